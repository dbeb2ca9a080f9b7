// Package conn owns the live duplex connection of a session.
//
// A Manager keeps at most one connection open against the base chosen by
// the transport resolver. Unexpected closes and failed dials move it to
// Reconnecting and schedule the next attempt with capped, jittered
// exponential backoff. Close is the only way to stop reconnecting: it marks
// the manager dead before tearing the connection down, so the close path can
// tell a manual teardown from a failure.
package conn
