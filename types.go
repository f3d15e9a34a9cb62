package xsurface

import "time"

// SubscriptionID identifies a subscription for the lifetime of a Bus.
type SubscriptionID uint16

// InvalidSubscription is returned when a subscription could not be created.
const InvalidSubscription SubscriptionID = 0

// Priority orders dispatch: every High subscription runs before any Normal,
// every Normal before any Low.
type Priority uint8

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// PriorityFromLevel maps a numeric 0-255 level onto a tier:
// >= 200 is high, < 50 is low, anything between is normal.
func PriorityFromLevel(level uint8) Priority {
	switch {
	case level >= 200:
		return PriorityHigh
	case level < 50:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// BusEventKind enumerates lifecycle notifications sent to observers.
type BusEventKind string

const (
	Subscribed    BusEventKind = "subscribed"
	Unsubscribed  BusEventKind = "unsubscribed"
	ListenerPanic BusEventKind = "listener_panic"
	TierFull      BusEventKind = "tier_full"
	BusClosed     BusEventKind = "closed"
)

// BusEvent carries telemetry for observers.
type BusEvent struct {
	Kind           BusEventKind
	SubscriptionID SubscriptionID
	Priority       Priority
	EventType      EventType
	EventName      string
	Err            error

	// Internal: attached for async dispatch
	observers []Observer
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Notifications dropped due to full buffer
	Processed    uint64 // Notifications dispatched
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Published       uint64
	Handled         uint64
	Stopped         uint64
	ListenerErrors  uint64
	Subscriptions   int
	ObserverDropped uint64
}

// HealthStatus indicates component health for diagnostics and probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)
