package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"srrt/internal/crypto"
	"srrt/internal/domain"
)

// DefaultLeaseTTL is the lifetime of issued leases.
const DefaultLeaseTTL = 10 * time.Minute

type issued struct {
	lease   domain.Lease
	expires time.Time
}

// Authority issues leases deterministically per tuple within their TTL.
type Authority struct {
	TTL time.Duration

	// Wrap answers with {"lease": {...}} instead of the bare shape.
	Wrap bool

	// Pin attaches the derived key fingerprint to every lease.
	Pin bool

	Now func() time.Time

	mu     sync.Mutex
	leases map[domain.LeaseRequest]issued
}

// NewAuthority returns an authority issuing leases valid for ttl.
func NewAuthority(ttl time.Duration) *Authority {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Authority{TTL: ttl, Now: time.Now, leases: make(map[domain.LeaseRequest]issued)}
}

// Issue returns the lease for req, minting one if none is live.
func (a *Authority) Issue(req domain.LeaseRequest) (domain.Lease, error) {
	now := a.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	if is, ok := a.leases[req]; ok && now.Before(is.expires) {
		return is.lease, nil
	}

	l := domain.Lease{
		KeyID:        "dev-" + randHex(6),
		CollapseHash: randHex(32),
		Salt:         randBytes(16),
		TTL:          a.TTL,
		IssuedAt:     now,
	}
	if a.Pin {
		k, err := crypto.DeriveKey(l)
		if err != nil {
			return domain.Lease{}, err
		}
		l.Fingerprint = k.Fingerprint()
		k.Destroy()
	}
	a.leases[req] = issued{lease: l, expires: now.Add(a.TTL)}
	return l, nil
}

// Len returns the number of leases issued and not yet replaced.
func (a *Authority) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.leases)
}

type leaseBody struct {
	OK           bool   `json:"ok"`
	KeyID        string `json:"key_id,omitempty"`
	CollapseHash string `json:"collapse_hash,omitempty"`
	SaltB64      string `json:"salt_b64,omitempty"`
	TTLMillis    int64  `json:"ttl_ms,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ServeHTTP handles POST /api/lease.
func (a *Authority) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req domain.LeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, leaseBody{Error: "bad json"})
		return
	}
	if !req.Purpose.Valid() {
		writeJSON(w, http.StatusBadRequest, leaseBody{Error: "unknown purpose"})
		return
	}
	req.Graph = domain.ParseGraph(string(req.Graph))
	if req.Graph == "" {
		req.Graph = domain.GraphPersonal
	}
	if !req.Graph.Valid() {
		writeJSON(w, http.StatusBadRequest, leaseBody{Error: "unknown graph"})
		return
	}

	l, err := a.Issue(req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, leaseBody{Error: err.Error()})
		return
	}
	body := leaseBody{
		OK:           true,
		KeyID:        l.KeyID,
		CollapseHash: l.CollapseHash,
		SaltB64:      crypto.B64(l.Salt),
		TTLMillis:    l.TTL.Milliseconds(),
		Fingerprint:  l.Fingerprint,
	}
	if a.Wrap {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lease": body})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func randHex(n int) string { return hex.EncodeToString(randBytes(n)) }
