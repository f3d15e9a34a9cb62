// Command xsurface runs the MIDI control-surface core against a hardware or
// synthetic input and reports parameter updates and performance figures.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xsurface:", err)
		os.Exit(1)
	}
}
