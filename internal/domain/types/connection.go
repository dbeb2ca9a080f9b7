package types

import "time"

// ConnState is the Connection Manager state.
type ConnState int

// Connection states. Closed is terminal.
const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

var connStateNames = [...]string{"idle", "connecting", "open", "reconnecting", "closed"}

// String returns a lower-case name for the state.
func (s ConnState) String() string {
	if int(s) < len(connStateNames) {
		return connStateNames[s]
	}
	return "unknown"
}

// ConnStatus is the observable connection state a UI may display.
type ConnStatus struct {
	State        ConnState     `json:"state"`
	Open         bool          `json:"open"`
	Reconnecting bool          `json:"reconnecting"`
	LastError    string        `json:"last_error,omitempty"`
	ReconnectIn  time.Duration `json:"reconnect_in"`
	Base         string        `json:"base"`
}
