package interfaces

import (
	"context"

	domaintypes "srrt/internal/domain/types"
)

// LeaseRequester obtains key material from the lease authority, all with
// context. Implementations do not retry.
type LeaseRequester interface {
	RequestLease(ctx context.Context, req domaintypes.LeaseRequest) (domaintypes.Lease, error)
}
