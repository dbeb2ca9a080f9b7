// Package lease provides the HTTP client for the key lease authority.
//
// The authority issues short-lived key material scoped to a
// (purpose, graph, local peer, remote peer) tuple. The client posts the tuple
// as JSON and normalises both response shapes the authority is known to
// emit, a bare lease object or a {"lease": {...}} wrapper, into one
// domain.Lease.
//
// Non-2xx statuses, ok:false replies and malformed bodies are returned as
// errors wrapping domain.ErrLeaseUnavailable. The client never retries;
// callers decide. Cache adds optional per-tuple reuse for the lease TTL.
package lease
