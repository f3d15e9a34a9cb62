package app

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/eventpool"
	"github.com/trickstertwo/xsurface/midi"
)

// BusConfig sizes the event bus.
type BusConfig struct {
	// Capacity is the number of subscription slots reserved up front.
	Capacity int
}

// Config is the whole application configuration.
type Config struct {
	Bus    BusConfig
	Events eventpool.Config
	MIDI   midi.ManagerConfig

	// ObserverWorkers is the number of observer goroutines (0 disables async observers).
	ObserverWorkers int
	ObserverBuffer  int

	// StrictPools turns off the factory heap fallback.
	StrictPools bool
}

func Defaults() Config {
	return Config{
		Bus:             BusConfig{Capacity: xsurface.DefaultCapacity},
		Events:          eventpool.Defaults(),
		MIDI:            midi.DefaultManagerConfig(),
		ObserverWorkers: 1,
		ObserverBuffer:  256,
	}
}

func (c Config) Validate() error {
	if c.Bus.Capacity < 0 {
		return fmt.Errorf("config: bus.capacity must be >= 0, got %d", c.Bus.Capacity)
	}
	if c.ObserverWorkers < 0 {
		return fmt.Errorf("config: observer_workers must be >= 0, got %d", c.ObserverWorkers)
	}
	if c.ObserverWorkers > 0 && c.ObserverBuffer < 1 {
		return fmt.Errorf("config: observer_buffer must be >= 1, got %d", c.ObserverBuffer)
	}
	if err := c.Events.Validate(); err != nil {
		return err
	}
	if err := c.MIDI.Validate(); err != nil {
		return fmt.Errorf("config: midi: %w", err)
	}
	return nil
}

// ConfigFromMap overlays m, as produced by viper.AllSettings, on Defaults.
// Unknown keys and values of the wrong shape are ignored.
//
//	bus:
//	  capacity: 32
//	events:
//	  midi_events: 256
//	  ui_events: 64
//	midi:
//	  buffer_size: 256
//	  ui_interval: 8ms
//	observer_workers: 1
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()
	if m == nil {
		return c
	}

	if bus := section(m, "bus"); bus != nil {
		setInt(bus, "capacity", &c.Bus.Capacity)
	}
	if ev := section(m, "events"); ev != nil {
		c.Events = eventpool.ConfigFromMap(normalize(ev))
	}
	if mi := section(m, "midi"); mi != nil {
		p := &c.MIDI.Processor
		setInt(mi, "buffer_size", &p.BufferSize)
		setInt(mi, "batch_limit", &p.BatchLimit)
		setBool(mi, "enable_timestamping", &p.EnableTimestamping)
		setBool(mi, "enable_latency_monitoring", &p.EnableLatencyMonitoring)
		setDuration(mi, "max_latency_threshold", &p.MaxLatencyThreshold)

		b := &c.MIDI.Batch
		setDuration(mi, "ui_interval", &b.UIInterval)
		setDuration(mi, "status_interval", &b.StatusInterval)
		setBool(mi, "coalesce_identical_values", &b.CoalesceIdenticalValues)
		setBool(mi, "enable_ui_batching", &b.EnableUIBatching)
		setBool(mi, "enable_status_batching", &b.EnableStatusBatching)

		setBool(mi, "event_integration", &c.MIDI.EnableEventIntegration)
		setBool(mi, "performance_monitoring", &c.MIDI.EnablePerformanceMonitoring)
		setDuration(mi, "monitoring_interval", &c.MIDI.MonitoringInterval)
	}
	setInt(m, "observer_workers", &c.ObserverWorkers)
	setInt(m, "observer_buffer", &c.ObserverBuffer)
	setBool(m, "strict_pools", &c.StrictPools)
	return c
}

// toMap is the inverse of ConfigFromMap, used to seed viper defaults.
func (c Config) toMap() map[string]any {
	p, b := c.MIDI.Processor, c.MIDI.Batch
	return map[string]any{
		"bus": map[string]any{"capacity": c.Bus.Capacity},
		"events": map[string]any{
			"midi_events": c.Events.MidiEvents,
			"ui_events":   c.Events.UIEvents,
		},
		"midi": map[string]any{
			"buffer_size":               p.BufferSize,
			"batch_limit":               p.BatchLimit,
			"enable_timestamping":       p.EnableTimestamping,
			"enable_latency_monitoring": p.EnableLatencyMonitoring,
			"max_latency_threshold":     p.MaxLatencyThreshold.String(),
			"ui_interval":               b.UIInterval.String(),
			"status_interval":           b.StatusInterval.String(),
			"coalesce_identical_values": b.CoalesceIdenticalValues,
			"enable_ui_batching":        b.EnableUIBatching,
			"enable_status_batching":    b.EnableStatusBatching,
			"event_integration":         c.MIDI.EnableEventIntegration,
			"performance_monitoring":    c.MIDI.EnablePerformanceMonitoring,
			"monitoring_interval":       c.MIDI.MonitoringInterval.String(),
		},
		"observer_workers": c.ObserverWorkers,
		"observer_buffer":  c.ObserverBuffer,
		"strict_pools":     c.StrictPools,
	}
}

// DefaultSettings returns Defaults as a nested map for viper.SetDefault.
func DefaultSettings() map[string]any { return Defaults().toMap() }

func section(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	s, err := cast.ToStringMapE(v)
	if err != nil {
		return nil
	}
	return s
}

// normalize converts numeric strings so typed ConfigFromMap helpers accept them.
func normalize(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if n, err := cast.ToIntE(v); err == nil {
			out[k] = n
			continue
		}
		out[k] = v
	}
	return out
}

func setInt(m map[string]any, key string, dst *int) {
	if v, ok := m[key]; ok {
		if n, err := cast.ToIntE(v); err == nil {
			*dst = n
		}
	}
}

func setBool(m map[string]any, key string, dst *bool) {
	if v, ok := m[key]; ok {
		if b, err := cast.ToBoolE(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts time.Duration values and strings such as "8ms".
// Bare numbers are read as milliseconds.
func setDuration(m map[string]any, key string, dst *time.Duration) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch v.(type) {
	case int, int32, int64, float64:
		if n, err := cast.ToInt64E(v); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
		return
	}
	if d, err := cast.ToDurationE(v); err == nil {
		*dst = d
	}
}
