package types

import "time"

// LeaseRequest names the tuple a lease is scoped to.
type LeaseRequest struct {
	Purpose    Purpose `json:"purpose"`
	Graph      Graph   `json:"graph"`
	LocalPeer  string  `json:"local_peer"`
	RemotePeer string  `json:"remote_peer"`
}

// Lease is short-lived key material issued by the lease authority. Leases
// are immutable once issued; any peer holding the same lease derives the
// same key.
type Lease struct {
	KeyID        string        `json:"key_id"`
	CollapseHash string        `json:"collapse_hash"`
	Salt         []byte        `json:"salt"`
	TTL          time.Duration `json:"ttl"`
	Fingerprint  string        `json:"fingerprint,omitempty"`
	IssuedAt     time.Time     `json:"issued_at"`
}

// ExpiresAt returns the instant the lease stops being valid. A lease with no
// TTL expires when it is issued.
func (l Lease) ExpiresAt() time.Time { return l.IssuedAt.Add(l.TTL) }
