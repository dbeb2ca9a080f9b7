package frame

import (
	"strings"

	"srrt/internal/domain"
)

// Control frame types. They never reach the consumer.
const (
	TypePing = "ping"
	TypePong = "pong"
)

// Normalize maps f onto the event model.
func Normalize(f Frame) domain.Event {
	env := f.Envelope()
	typ := baseType(f, env)

	if isLock(f, typ) {
		return lockEvent(f, env, typ)
	}

	ev := domain.Event{
		Type:    typ,
		ID:      env.ID,
		TS:      env.TS,
		Capsule: env.Capsule,
		Meta:    env.Meta,
		Raw:     f,
	}
	switch {
	case typ == TypePing || typ == TypePong:
		ev.Kind = domain.KindControl
		return ev
	case env.Capsule == nil && typ != domain.TypeCapsule && typ != domain.TypeVoiceFrame:
		ev.Kind = domain.KindUnknown
		return ev
	}

	if ev.Type == "" {
		ev.Type = domain.TypeCapsule
	}
	ev.Kind = domain.KindCapsule
	if env.Capsule["voice_frame"] != nil || ev.Type == domain.TypeVoiceFrame {
		ev.Type = domain.TypeVoiceFrame
		ev.Kind = domain.KindVoiceFrame
	}
	return ev
}

// IsChat reports whether env carries a plain chat message.
func IsChat(env Envelope) bool {
	_, ok := asMap(env.Capsule["chat_message"])["text"].(string)
	return ok
}

// chatEvent builds the event for a chat capsule without further
// classification.
func chatEvent(f Frame, env Envelope) domain.Event {
	return domain.Event{
		Kind:    domain.KindCapsule,
		Type:    domain.TypeCapsule,
		ID:      env.ID,
		TS:      env.TS,
		Capsule: env.Capsule,
		Meta:    env.Meta,
		Raw:     f,
	}
}

// baseType resolves the wire type. Only a nested envelope's capsule shape
// implies a type; flat capsules fall back to TypeCapsule later.
func baseType(f Frame, env Envelope) string {
	for _, s := range []string{asString(f["type"]), asString(f["event"]), env.Type} {
		if s != "" {
			return s
		}
	}
	if env.Nested && env.Capsule != nil {
		if env.Capsule["voice_frame"] != nil {
			return domain.TypeVoiceFrame
		}
		return domain.TypeCapsule
	}
	return ""
}

func isLock(f Frame, typ string) bool {
	switch typ {
	case domain.TypeLock, domain.TypeLockAcquired, domain.TypeLockReleased:
		return true
	}
	return asString(f["type"]) == domain.TypeLock ||
		asString(f["event"]) == domain.TypeLock ||
		asMap(f[domain.TypeLock]) != nil
}

func lockEvent(f Frame, env Envelope, typ string) domain.Event {
	src := asMap(f[domain.TypeLock])
	if src == nil {
		src = asMap(f["envelope"])
	}
	if src == nil {
		src = f
	}

	ls := &domain.LockState{
		Resource: asString(src["resource"]),
		Owner:    asString(src["owner"]),
		State:    asString(src["state"]),
	}
	if ls.State == "" {
		ls.State = domain.LockHeld
		if typ == domain.TypeLockReleased {
			ls.State = domain.LockFree
		}
	}
	if g, ok := src["granted"].(bool); ok {
		ls.Granted = &g
	} else if typ == domain.TypeLockAcquired || typ == domain.TypeLockReleased {
		g := true
		ls.Granted = &g
	}
	if src["until"] != nil {
		u := asInt(src["until"])
		ls.Until = &u
	}
	if _, ok := src["resource"].(string); ok {
		ls.ResourceTopic = strings.TrimPrefix(ls.Resource, "voice:")
	}

	return domain.Event{
		Kind: domain.KindLock,
		Type: domain.TypeLock,
		ID:   env.ID,
		TS:   env.TS,
		Meta: env.Meta,
		Lock: ls,
		Raw:  f,
	}
}
