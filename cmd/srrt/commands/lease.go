package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"srrt/internal/crypto"
	"srrt/internal/domain"
	"srrt/internal/frame"
)

var (
	purpose    string
	remotePeer string
)

// leaseFlags registers the flags that select a lease tuple.
func leaseFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&purpose, "purpose", string(domain.PurposeGlyph), "lease purpose (glyph, voice_note, voice_frame)")
	cmd.Flags().StringVar(&remotePeer, "remote", "", "remote peer of the lease tuple")
}

// leaseRequest builds the tuple the same way a session derives it for a
// frame on the configured graph.
func leaseRequest() (domain.LeaseRequest, error) {
	p := domain.Purpose(purpose)
	if !p.Valid() {
		return domain.LeaseRequest{}, fmt.Errorf("unknown purpose %q", purpose)
	}
	meta := map[string]any{}
	if g := appCtx.Config.Session.Graph; g != "" {
		meta["graph"] = g
	}
	if remotePeer != "" {
		meta["sender"] = remotePeer
	}
	return frame.LeaseRequestFor(p, meta, appCtx.Config.Lease.LocalPeer), nil
}

// fetchKey requests the lease for the flagged tuple and derives its key.
func fetchKey(cmd *cobra.Command) (domain.LeaseRequest, domain.Lease, *crypto.Key, error) {
	req, err := leaseRequest()
	if err != nil {
		return req, domain.Lease{}, nil, err
	}
	l, err := appCtx.Leases.RequestLease(cmd.Context(), req)
	appCtx.Metrics.LeaseRequest(purpose, err)
	if err != nil {
		return req, l, nil, err
	}
	key, err := crypto.DeriveKey(l)
	if err != nil {
		return req, l, nil, err
	}
	return req, l, key, nil
}

// lease: request a lease and print its identity, never its secret.
func leaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lease",
		Short: "Request a lease and print its key fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, l, key, err := fetchKey(cmd)
			if err != nil {
				return err
			}
			defer key.Destroy()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"purpose":     req.Purpose,
				"graph":       req.Graph,
				"local_peer":  req.LocalPeer,
				"remote_peer": req.RemotePeer,
				"key_id":      l.KeyID,
				"fingerprint": key.Fingerprint(),
				"expires_at":  l.ExpiresAt().UTC().Format(time.RFC3339),
			})
		},
	}
	leaseFlags(cmd)
	return cmd
}
