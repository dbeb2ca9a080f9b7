package lease

import (
	"context"
	"sync"

	"srrt/internal/clock"
	"srrt/internal/domain"
)

// Cache reuses leases per request tuple until they expire. Leases with no
// TTL are never cached.
type Cache struct {
	next  domain.LeaseRequester
	clock clock.Clock

	mu      sync.Mutex
	entries map[domain.LeaseRequest]domain.Lease
}

// NewCache wraps next.
func NewCache(next domain.LeaseRequester, clk clock.Clock) *Cache {
	return &Cache{next: next, clock: clk, entries: make(map[domain.LeaseRequest]domain.Lease)}
}

var _ domain.LeaseRequester = (*Cache)(nil)

// RequestLease returns a cached lease for req or asks the wrapped requester.
func (c *Cache) RequestLease(ctx context.Context, req domain.LeaseRequest) (domain.Lease, error) {
	now := c.clock.Now()
	c.mu.Lock()
	if l, ok := c.entries[req]; ok {
		if now.Before(l.ExpiresAt()) {
			c.mu.Unlock()
			return l, nil
		}
		delete(c.entries, req)
	}
	c.mu.Unlock()

	l, err := c.next.RequestLease(ctx, req)
	if err != nil {
		return domain.Lease{}, err
	}
	if l.TTL > 0 {
		// Expiry is measured from when this process received the lease.
		l.IssuedAt = now
		c.mu.Lock()
		c.entries[req] = l
		c.mu.Unlock()
	}
	return l, nil
}

// Purge drops every cached lease.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
