// Package clock abstracts timers so reconnect scheduling, delivery batching,
// keep-alives and health polling can be driven by virtual time in tests.
//
// Production code injects Real(); tests inject Fake() and call Advance.
package clock
