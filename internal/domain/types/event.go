package types

// EventKind is the closed set of normalized event kinds.
type EventKind int

// Event kinds. Control frames never reach the consumer.
const (
	KindUnknown EventKind = iota
	KindCapsule
	KindVoiceFrame
	KindLock
	KindControl
)

var eventKindNames = [...]string{"unknown", "capsule", "voice_frame", "lock", "control"}

// String returns a lower-case name for the kind.
func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Wire type names used by producers.
const (
	TypeCapsule      = "glyphnet_capsule"
	TypeVoiceFrame   = "glyphnet_voice_frame"
	TypeLock         = "entanglement_lock"
	TypeLockAcquired = "entanglement_lock_acquired"
	TypeLockReleased = "entanglement_lock_released"
)

// Lock states.
const (
	LockHeld = "held"
	LockFree = "free"
)

// LockState is the normalized form of every lock/ownership notification.
type LockState struct {
	Resource      string `json:"resource,omitempty"`
	ResourceTopic string `json:"resource_topic,omitempty"`
	Owner         string `json:"owner,omitempty"`
	State         string `json:"state"`
	Granted       *bool  `json:"granted,omitempty"`
	Until         *int64 `json:"until,omitempty"`
}

// Event is the single shape every inbound frame is normalized into.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Type    string         `json:"type"`
	ID      string         `json:"id,omitempty"`
	TS      int64          `json:"ts,omitempty"`
	Capsule map[string]any `json:"capsule,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Lock    *LockState     `json:"lock,omitempty"`

	// Raw keeps the original top-level fields for consumers that read
	// producer-specific extras.
	Raw map[string]any `json:"raw,omitempty"`

	// DecryptErr is set when the capsule carried ciphertext that could not
	// be opened. The ciphertext is left in place.
	DecryptErr error `json:"-"`
}
