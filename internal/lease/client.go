package lease

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gopkg.in/op/go-logging.v1"

	"srrt/internal/crypto"
	"srrt/internal/domain"
)

// maxBody bounds how much of a lease reply is read.
const maxBody = 64 << 10

// HTTP talks to the lease authority at URL.
type HTTP struct {
	URL  string
	HTTP *http.Client
	Now  func() time.Time

	log *logging.Logger
}

// NewHTTP returns a client posting lease requests to url.
func NewHTTP(url string, hc *http.Client, log *logging.Logger) *HTTP {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTP{URL: url, HTTP: hc, Now: time.Now, log: log}
}

var _ domain.LeaseRequester = (*HTTP)(nil)

// wireLease is the lease shape on the wire.
type wireLease struct {
	OK           *bool  `json:"ok,omitempty"`
	KeyID        string `json:"key_id"`
	CollapseHash string `json:"collapse_hash"`
	SaltB64      string `json:"salt_b64"`
	TTLMillis    int64  `json:"ttl_ms"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Error        string `json:"error,omitempty"`
}

type wireReply struct {
	wireLease
	Lease *wireLease `json:"lease,omitempty"`
}

// RequestLease posts req to the authority and returns the normalised lease.
func (c *HTTP) RequestLease(ctx context.Context, req domain.LeaseRequest) (domain.Lease, error) {
	var reply wireReply
	if err := c.post(ctx, req, &reply); err != nil {
		return domain.Lease{}, err
	}
	wl := reply.wireLease
	if reply.Lease != nil {
		wl = *reply.Lease
		if reply.OK != nil && !*reply.OK {
			wl.OK, wl.Error = reply.OK, reply.Error
		}
	}
	l, err := c.normalise(wl)
	if err != nil {
		return domain.Lease{}, fmt.Errorf("lease %s/%s: %w", req.Purpose, req.Graph, err)
	}
	if c.log != nil {
		c.log.Debugf("lease %s for %s/%s -> %s (ttl %v)", l.KeyID, req.Purpose, req.Graph, req.RemotePeer, l.TTL)
	}
	return l, nil
}

func (c *HTTP) normalise(wl wireLease) (domain.Lease, error) {
	if wl.OK != nil && !*wl.OK {
		msg := wl.Error
		if msg == "" {
			msg = "rejected"
		}
		return domain.Lease{}, fmt.Errorf("%w: %s", domain.ErrLeaseUnavailable, msg)
	}
	if wl.KeyID == "" || wl.CollapseHash == "" || wl.SaltB64 == "" {
		return domain.Lease{}, fmt.Errorf("%w: incomplete lease body", domain.ErrLeaseUnavailable)
	}
	salt, err := crypto.FromB64(wl.SaltB64)
	if err != nil {
		return domain.Lease{}, fmt.Errorf("%w: salt: %w", domain.ErrLeaseUnavailable, err)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return domain.Lease{
		KeyID:        wl.KeyID,
		CollapseHash: wl.CollapseHash,
		Salt:         salt,
		TTL:          time.Duration(wl.TTLMillis) * time.Millisecond,
		Fingerprint:  wl.Fingerprint,
		IssuedAt:     now(),
	}, nil
}

func (c *HTTP) post(ctx context.Context, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, buf)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLeaseUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", domain.ErrLeaseUnavailable, c.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: post %s: %s", domain.ErrLeaseUnavailable, c.URL, resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode reply: %w", domain.ErrLeaseUnavailable, fmt.Errorf("%w: %v", domain.ErrEncoding, err))
	}
	return nil
}
