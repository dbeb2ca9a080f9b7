// Package frame turns inbound frames into normalized events.
//
// Producers are not uniform: capsules arrive flat or nested under
// "envelope", the type may sit in "type", "event" or the envelope, and lock
// notifications come in several spellings. Normalize is total over all of
// them and falls back to KindUnknown, so consumers only ever see
// domain.Event.
//
// Pipeline applies, in order: parse, self-echo suppression, the graph
// guard, normalization and opportunistic decryption.
package frame
