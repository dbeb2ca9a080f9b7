package interfaces

import domaintypes "srrt/internal/domain/types"

// HealthSource reports relay reachability and pushes every change.
type HealthSource interface {
	Healthy() bool
	// Subscribe registers fn for health changes and returns a function
	// that removes it.
	Subscribe(fn func(healthy bool)) (cancel func())
}

// ModeStore persists the transport mode outside process memory so that
// every process of the same user agrees on it.
type ModeStore interface {
	Mode() (domaintypes.TransportMode, error)
	SetMode(mode domaintypes.TransportMode) error
	// Watch calls fn whenever the stored mode changes, including changes
	// made by other processes.
	Watch(fn func(mode domaintypes.TransportMode)) (cancel func())
}

// EventConsumer receives flushed batches in arrival order.
type EventConsumer interface {
	OnEventsFlushed(batch []domaintypes.Event)
}
