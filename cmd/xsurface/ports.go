package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/adapter/midiport"
	"github.com/trickstertwo/xsurface/adapter/serialport"
	"gopkg.in/yaml.v3"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports, serial devices and registered sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		ins, outs := midiport.Names()
		fmt.Fprintln(out, "MIDI inputs:")
		printList(cmd, ins)
		fmt.Fprintln(out, "MIDI outputs:")
		printList(cmd, outs)

		serials, err := serialport.Ports()
		fmt.Fprintln(out, "Serial devices:")
		if err != nil {
			fmt.Fprintf(out, "  (unavailable: %v)\n", err)
		} else {
			printList(cmd, serials)
		}

		fmt.Fprintln(out, "Sources:")
		names := xsurface.Sources()
		sort.Strings(names)
		printList(cmd, names)
		return nil
	},
}

func printList(cmd *cobra.Command, items []string) {
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  (none)")
		return
	}
	for _, s := range items {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", s)
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		b, err := yaml.Marshal(viper.AllSettings())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}
