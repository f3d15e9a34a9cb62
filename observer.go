package xsurface

import (
	"github.com/trickstertwo/xlog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e BusEvent)

func (f ObserverFunc) OnEvent(e BusEvent) { f(e) }

// LoggingObserver is an Adapter that emits BusEvents via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e BusEvent) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("kind", string(e.Kind)),
		xlog.Str("priority", e.Priority.String()),
	)
	switch e.Kind {
	case ListenerPanic:
		ev.Warn().Err(e.Err).Str("event_name", e.EventName).Msg("xsurface event")
	case TierFull:
		ev.Warn().Msg("xsurface event")
	default:
		ev.Debug().Msg("xsurface event")
	}
}
