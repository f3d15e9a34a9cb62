package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"
	"github.com/trickstertwo/xsurface/app"
)

var (
	cfgFile string
	debug   bool
	console bool
)

var rootCmd = &cobra.Command{
	Use:   "xsurface",
	Short: "Realtime MIDI control-surface core",
	Long: `xsurface reads MIDI from a port, a serial line or a synthetic generator,
dispatches notes immediately, coalesces controller sweeps to display rate,
and publishes both on a priority event bus.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./xsurface.yaml or $HOME/.xsurface.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&console, "console", true, "human-readable console logs")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("console", rootCmd.PersistentFlags().Lookup("console"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	setDefaults("", app.DefaultSettings())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("xsurface")
	}

	viper.SetEnvPrefix("XSURFACE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("debug") {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every leaf of m under its dotted key so env vars and
// flags can override nested settings individually.
func setDefaults(prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			setDefaults(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}

func loadConfig() (app.Config, error) {
	cfg := app.ConfigFromMap(viper.AllSettings())
	return cfg, cfg.Validate()
}

func newLogger() *xlog.Logger {
	zc := zerolog.Config{
		Console:           viper.GetBool("console"),
		ConsoleTimeFormat: time.RFC3339Nano,
	}
	if viper.GetBool("debug") {
		zc.MinLevel = xlog.LevelDebug
		zc.Caller = true
		zc.CallerSkip = 5
	}
	return zerolog.Use(zc).With(xlog.Str("app", "xsurface"))
}
