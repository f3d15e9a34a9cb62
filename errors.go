package xsurface

import (
	"errors"
	"fmt"
)

var (
	ErrBusClosed                   = errors.New("xsurface: bus is closed")
	ErrInvalidCapacity             = errors.New("xsurface: capacity must be >= 0")
	ErrListenerPanic               = errors.New("xsurface: listener panic")
	ErrObserverPoolShutdownTimeout = errors.New("xsurface: observer pool shutdown timed out")
	ErrNoSource                    = errors.New("xsurface: no source configured")
)

// ErrUnknownSource is returned by NewSource for unregistered names.
type ErrUnknownSource struct{ name string }

func (e ErrUnknownSource) Error() string { return fmt.Sprintf("unknown source: %s", e.name) }
