package eventpool

import "fmt"

// Config sizes the per-type pools.
type Config struct {
	// MidiEvents is the slot count of each MIDI pool (CC, NoteOn, NoteOff).
	MidiEvents int
	// UIEvents is the slot count of the UI parameter update pool.
	UIEvents int
}

// Defaults returns the sizes used on the target hardware.
func Defaults() Config {
	return Config{
		MidiEvents: 256,
		UIEvents:   64,
	}
}

// Validate checks Config for usable sizes.
func (c Config) Validate() error {
	if c.MidiEvents < 1 {
		return fmt.Errorf("config: midi_events must be >= 1, got %d", c.MidiEvents)
	}
	if c.UIEvents < 1 {
		return fmt.Errorf("config: ui_events must be >= 1, got %d", c.UIEvents)
	}
	return nil
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()
	if v, ok := m["midi_events"].(int); ok && v > 0 {
		c.MidiEvents = v
	}
	if v, ok := m["ui_events"].(int); ok && v > 0 {
		c.UIEvents = v
	}
	return c
}
