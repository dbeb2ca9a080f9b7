package domain

import (
	interfaces "srrt/internal/domain/interfaces"
	types "srrt/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Graph         = types.Graph
	ConnID        = types.ConnID
	Purpose       = types.Purpose
	TransportMode = types.TransportMode
	LeaseRequest  = types.LeaseRequest
	Lease         = types.Lease
	EncMeta       = types.EncMeta
	ConnState     = types.ConnState
	ConnStatus    = types.ConnStatus
	EventKind     = types.EventKind
	LockState     = types.LockState
	Event         = types.Event
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	LeaseRequester = interfaces.LeaseRequester
	HealthSource   = interfaces.HealthSource
	ModeStore      = interfaces.ModeStore
	EventConsumer  = interfaces.EventConsumer
)

// Constants re-exported for callers that only import domain.
const (
	GraphPersonal = types.GraphPersonal
	GraphWork     = types.GraphWork

	PurposeGlyph      = types.PurposeGlyph
	PurposeVoiceNote  = types.PurposeVoiceNote
	PurposeVoiceFrame = types.PurposeVoiceFrame

	ModeAuto   = types.ModeAuto
	ModeDirect = types.ModeDirect
	ModeRelay  = types.ModeRelay

	StateIdle         = types.StateIdle
	StateConnecting   = types.StateConnecting
	StateOpen         = types.StateOpen
	StateReconnecting = types.StateReconnecting
	StateClosed       = types.StateClosed

	KindUnknown    = types.KindUnknown
	KindCapsule    = types.KindCapsule
	KindVoiceFrame = types.KindVoiceFrame
	KindLock       = types.KindLock
	KindControl    = types.KindControl

	TypeCapsule      = types.TypeCapsule
	TypeVoiceFrame   = types.TypeVoiceFrame
	TypeLock         = types.TypeLock
	TypeLockAcquired = types.TypeLockAcquired
	TypeLockReleased = types.TypeLockReleased

	LockHeld = types.LockHeld
	LockFree = types.LockFree
)

// Sentinel errors re-exported from the types subpackage.
var (
	ErrLeaseUnavailable     = types.ErrLeaseUnavailable
	ErrAuthenticationFailed = types.ErrAuthenticationFailed
	ErrEncoding             = types.ErrEncoding
	ErrTransport            = types.ErrTransport
	ErrMalformedFrame       = types.ErrMalformedFrame
	ErrUnsupportedScheme    = types.ErrUnsupportedScheme
)

// ParseGraph normalises s into a Graph.
func ParseGraph(s string) Graph { return types.ParseGraph(s) }

// ParseTransportMode maps s onto a transport mode.
func ParseTransportMode(s string) TransportMode { return types.ParseTransportMode(s) }
