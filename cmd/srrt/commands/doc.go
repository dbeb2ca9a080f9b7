// Package commands defines the srrt CLI and wires dependencies for subcommands.
//
// Commands
//
//   - watch   Subscribe to a topic and print flushed events as JSON lines
//   - send    Publish a chat message or encrypted glyphs
//   - lease   Request a lease and print its key fingerprint
//   - seal    Encrypt a payload under a lease
//   - open    Decrypt a payload produced by seal
//   - mode    Show or set the shared transport mode
//
// # Implementation
//
// The root command loads the TOML configuration, applies flag overrides and
// builds the dependency graph (lease client, mode store, health poller,
// metrics registry) before any subcommand runs. Background services are
// stopped once the subcommand returns.
package commands
