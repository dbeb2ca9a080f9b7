package types

import "strings"

// Graph is the tenancy partition a Session is bound to.
type Graph string

// Known graphs. The empty Graph is a wildcard that accepts every frame.
const (
	GraphPersonal Graph = "personal"
	GraphWork     Graph = "work"
)

// String returns the string form of the graph.
func (g Graph) String() string { return string(g) }

// Valid reports whether g is one of the known graphs or the wildcard.
func (g Graph) Valid() bool {
	switch g {
	case "", GraphPersonal, GraphWork:
		return true
	}
	return false
}

// ParseGraph normalises s (case, whitespace) into a Graph.
func ParseGraph(s string) Graph {
	return Graph(strings.ToLower(strings.TrimSpace(s)))
}

// ConnID is the stable per-process connection identity. It is created once
// per Session and only ever read afterwards.
type ConnID string

// String returns the string form of the identity.
func (id ConnID) String() string { return string(id) }

// Purpose scopes a lease to one kind of protected payload. The purpose
// string is also the associated data bound into the AEAD tag.
type Purpose string

// Lease purposes.
const (
	PurposeGlyph      Purpose = "glyph"
	PurposeVoiceNote  Purpose = "voice_note"
	PurposeVoiceFrame Purpose = "voice_frame"
)

// String returns the string form of the purpose.
func (p Purpose) String() string { return string(p) }

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeGlyph, PurposeVoiceNote, PurposeVoiceFrame:
		return true
	}
	return false
}

// TransportMode is the user-selected transport policy shared by every
// process of the same user.
type TransportMode string

// Transport modes.
const (
	ModeAuto   TransportMode = "auto"
	ModeDirect TransportMode = "direct"
	ModeRelay  TransportMode = "relay"
)

// String returns the string form of the mode.
func (m TransportMode) String() string { return string(m) }

// ParseTransportMode maps s onto a mode. Unknown values fall back to auto.
func ParseTransportMode(s string) TransportMode {
	switch TransportMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDirect:
		return ModeDirect
	case ModeRelay, "radio", "radio-only":
		return ModeRelay
	}
	return ModeAuto
}
