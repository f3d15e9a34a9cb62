package xsurface

import (
	"errors"
	"sort"
	"sync"
)

// SourceFactory constructs input sources from a config blob.
type SourceFactory func(cfg map[string]any) (InputSource, error)

var (
	sourceRegistryMu sync.RWMutex
	sourceRegistry   = map[string]SourceFactory{}
)

// RegisterSource registers an input backend under name.
// Adapters call it from init.
func RegisterSource(name string, factory SourceFactory) error {
	if name == "" {
		return errors.New("source name must not be empty")
	}
	if factory == nil {
		return errors.New("source factory must not be nil")
	}
	sourceRegistryMu.Lock()
	sourceRegistry[name] = factory
	sourceRegistryMu.Unlock()
	return nil
}

// NewSource constructs a source by name with config.
func NewSource(name string, cfg map[string]any) (InputSource, error) {
	if name == "" {
		return nil, ErrNoSource
	}
	sourceRegistryMu.RLock()
	f, ok := sourceRegistry[name]
	sourceRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownSource{name: name}
	}
	return f(cfg)
}

// Sources lists registered source names in sorted order.
func Sources() []string {
	sourceRegistryMu.RLock()
	defer sourceRegistryMu.RUnlock()
	names := make([]string, 0, len(sourceRegistry))
	for n := range sourceRegistry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
