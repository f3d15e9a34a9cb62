package xsurface

import (
	"context"
	"time"
)

// Listener receives events from a Bus. Returning true marks the event handled
// but does not stop later listeners; call e.StopPropagation() for that.
type Listener interface {
	OnEvent(e Event) bool
}

// ListenerFunc is an Adapter that lets a plain function satisfy Listener.
type ListenerFunc func(e Event) bool

func (f ListenerFunc) OnEvent(e Event) bool { return f(e) }

// Publisher is the narrow surface producers need.
type Publisher interface {
	Publish(e Event) bool
}

// Sink accepts raw 3-byte MIDI messages from an input source.
// Implementations must tolerate being called from the source's goroutine.
type Sink interface {
	ProcessMidiMessage(status, data1, data2 uint8) bool
}

// InputSource is the Strategy interface for MIDI input backends.
type InputSource interface {
	// Run feeds sink until ctx is done or the source fails.
	Run(ctx context.Context, sink Sink) error
	Close() error
}

// Clock abstracts time for tests. xclock.Clock satisfies it.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// Observer receives bus lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e BusEvent)
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API represents the complete bus surface.
type API interface {
	Publisher
	Subscribe(l Listener, p Priority) SubscriptionID
	Unsubscribe(id SubscriptionID) bool
	Pause(id SubscriptionID) bool
	Resume(id SubscriptionID) bool
	Exists(id SubscriptionID) bool
	IsActive(id SubscriptionID) bool
	Count() int
	Clear()
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}
