// Command devserver runs the in-memory SRRT development backend: a lease
// authority, a topic hub reachable directly and through the relay prefix,
// and a toggleable relay health endpoint. See package internal/devserver
// for the HTTP API.
//
// The default listen address is :8080. All state is lost on exit.
package main
