// Package store persists the transport mode outside process memory.
//
// Every SRRT process of the same user reads and writes one small JSON file,
// so a mode chosen in one process is picked up by all others. Writes go
// through a temp file and rename; watchers poll the file on the injected
// clock and fire when its content changes. MemoryModeStore is the
// single-process variant used by tests and by sessions without a mode file.
package store
