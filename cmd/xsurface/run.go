package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/adapter/memory"
	"github.com/trickstertwo/xsurface/adapter/midiport"
	"github.com/trickstertwo/xsurface/adapter/serialport"
	"github.com/trickstertwo/xsurface/app"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the surface until interrupted",
	Example: `  xsurface run --source midi --port "Launch Control"
  xsurface run --source serial --port /dev/ttyUSB0
  xsurface run --source synthetic --rate 5000 --tui`,
	RunE: runSurface,
}

func init() {
	f := runCmd.Flags()
	f.String("source", memory.SourceName, "input source: midi, serial, synthetic or any registered name")
	f.String("port", "", "MIDI port name (substring match) or serial device")
	f.Int("baud", serialport.DefaultBaud, "serial baud rate")
	f.Int("rate", 1000, "synthetic messages per second")
	f.Duration("tick", app.DefaultTick, "main loop period")
	f.Duration("report", 10*time.Second, "diagnostics log period; 0 disables")
	f.Bool("tui", false, "show the terminal monitor")

	for _, k := range []string{"source", "port", "baud", "rate", "tick", "report", "tui"} {
		viper.BindPFlag("run."+k, f.Lookup(k))
	}
}

func runSurface(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	surface, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = surface.Close(context.Background()) }()

	src, err := newSource(logger)
	if err != nil {
		return err
	}

	surface.Bus.AddObserver(xsurface.LoggingObserver{Logger: logger})

	if viper.GetBool("run.tui") {
		return runWithMonitor(ctx, cancel, surface, src)
	}

	trace(surface, logger)
	if every := viper.GetDuration("run.report"); every > 0 {
		surface.Every(every, func() { report(ctx, surface, logger) })
	}

	logger.Info().
		Str("source", viper.GetString("run.source")).
		Dur("tick", viper.GetDuration("run.tick")).
		Msg("surface running; press Ctrl+C to exit")
	if err := surface.Run(ctx, src, viper.GetDuration("run.tick")); err != nil {
		return err
	}
	logger.Info().Msg(surface.MIDI.DiagnosticInfo())
	return nil
}

func newSource(logger *xlog.Logger) (xsurface.InputSource, error) {
	name := viper.GetString("run.source")
	port := viper.GetString("run.port")
	switch name {
	case midiport.SourceName:
		return midiport.NewSource(port, midiport.WithLogger(logger)), nil
	case serialport.SourceName:
		sc := serialport.Defaults()
		sc.Device = port
		sc.Baud = viper.GetInt("run.baud")
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		return serialport.NewSource(sc).WithLogger(logger), nil
	case memory.SourceName:
		return memory.NewSource(memory.ConfigFromMap(map[string]any{"rate": viper.GetInt("run.rate")})), nil
	default:
		src, err := xsurface.NewSource(name, viper.GetStringMap("run.options"))
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", name, err)
		}
		return src, nil
	}
}

// trace logs notes and display-rate parameter updates at debug level.
func trace(surface *app.Context, logger *xlog.Logger) {
	surface.Bus.SubscribeLow(xsurface.ListenerFunc(func(e xsurface.Event) bool {
		switch ev := e.(type) {
		case *xsurface.UIParameterUpdateEvent:
			logger.Debug().
				Str("param", ev.ParamName).
				Str("channel", fmt.Sprint(ev.Channel)).
				Str("value", fmt.Sprint(ev.Value)).
				Msg("parameter")
		case *xsurface.MidiNoteOnEvent:
			logger.Debug().
				Str("note", fmt.Sprint(ev.Note)).
				Str("velocity", fmt.Sprint(ev.Velocity)).
				Msg("note on")
		case *xsurface.MidiNoteOffEvent:
			logger.Debug().Str("note", fmt.Sprint(ev.Note)).Msg("note off")
		default:
			return false
		}
		return true
	}))
}

func report(ctx context.Context, surface *app.Context, logger *xlog.Logger) {
	h := surface.MIDI.Health(ctx)
	logger.Info().Str("status", h.Status).Msg(surface.MIDI.DiagnosticInfo())
}
