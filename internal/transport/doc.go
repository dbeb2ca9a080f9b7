// Package transport decides whether the live connection addresses the
// server directly or through the relay.
//
// The Resolver combines a relay health signal with the shared transport
// mode and caches the resulting base: the empty string for direct, the relay
// prefix otherwise. Subscribers are told whenever the base changes so the
// connection can be reopened against it.
package transport
