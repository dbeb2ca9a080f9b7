// Package app loads SRRT configuration and wires the components for the
// binaries.
//
// Config is read from TOML, defaulted and validated in one pass. NewWire
// builds the concrete collaborators (logging backend, lease client, mode
// store, health signal, metrics) and App runs the background services
// that sessions depend on.
package app
