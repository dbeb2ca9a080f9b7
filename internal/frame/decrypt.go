package frame

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"srrt/internal/crypto"
	"srrt/internal/domain"
	"srrt/internal/metrics"
)

// Lease tuple defaults for inbound capsules.
const (
	DefaultLocalPeer  = "ucs://local/self"
	DefaultRemotePeer = "ucs://unknown"
)

// maxKeys bounds the derived-key cache.
const maxKeys = 64

// InferPurpose picks the lease purpose from the field that carries
// ciphertext.
func InferPurpose(capsule map[string]any) domain.Purpose {
	switch {
	case asString(asMap(capsule["voice_frame"])["data_b64"]) != "":
		return domain.PurposeVoiceFrame
	case asString(asMap(capsule["voice_note"])["data_b64"]) != "":
		return domain.PurposeVoiceNote
	}
	return domain.PurposeGlyph
}

// LeaseRequestFor returns the lease tuple an inbound capsule with meta is
// decrypted under.
func LeaseRequestFor(purpose domain.Purpose, meta map[string]any, localPeer string) domain.LeaseRequest {
	graph := asString(meta["graph"])
	if graph == "" {
		graph = string(domain.GraphPersonal)
	}
	remote := DefaultRemotePeer
	for _, k := range []string{"localWA", "sender", "recipient"} {
		if s := asString(meta[k]); s != "" {
			remote = s
			break
		}
	}
	if localPeer == "" {
		localPeer = DefaultLocalPeer
	}
	return domain.LeaseRequest{
		Purpose:    purpose,
		Graph:      domain.ParseGraph(graph),
		LocalPeer:  localPeer,
		RemotePeer: remote,
	}
}

// Decryptor opens encrypted capsule fields in place.
type Decryptor struct {
	leases    domain.LeaseRequester
	codec     *crypto.Codec
	localPeer string
	log       *logging.Logger
	metrics   *metrics.Metrics

	mu   sync.Mutex
	keys map[string]*crypto.Key
}

// NewDecryptor returns a decryptor obtaining leases from leases.
func NewDecryptor(leases domain.LeaseRequester, codec *crypto.Codec, localPeer string, log *logging.Logger, m *metrics.Metrics) *Decryptor {
	if codec == nil {
		codec = &crypto.Codec{}
	}
	return &Decryptor{
		leases:    leases,
		codec:     codec,
		localPeer: localPeer,
		log:       log,
		metrics:   m,
		keys:      make(map[string]*crypto.Key),
	}
}

// Decrypt opens the ciphertext of ev's capsule, if any. On failure the
// capsule is left untouched.
func (d *Decryptor) Decrypt(ctx context.Context, ev *domain.Event) error {
	capsule := ev.Capsule
	enc := asMap(capsule["enc"])
	if enc == nil {
		return nil
	}
	purpose := InferPurpose(capsule)
	ctB64 := ciphertextField(capsule, purpose)
	if ctB64 == "" {
		return nil
	}

	meta, err := encMeta(enc)
	if err != nil {
		return err
	}
	ct, err := crypto.FromB64(ctB64)
	if err != nil {
		return fmt.Errorf("frame: %s ciphertext: %w", purpose, err)
	}

	req := LeaseRequestFor(purpose, ev.Meta, d.localPeer)
	l, err := d.leases.RequestLease(ctx, req)
	d.metrics.LeaseRequest(string(purpose), err)
	if err != nil {
		return err
	}
	key, err := d.key(l)
	if err != nil {
		return err
	}
	pt, err := d.codec.Decrypt(key, meta, ct, string(purpose))
	if err != nil {
		return fmt.Errorf("frame: %s: %w", purpose, err)
	}

	switch purpose {
	case domain.PurposeGlyph:
		var glyphs any
		if err := json.Unmarshal(pt, &glyphs); err != nil {
			glyphs = []any{string(pt)}
		}
		capsule["glyphs"] = glyphs
		delete(capsule, "glyphs_enc_b64")
	default:
		asMap(capsule[string(purpose)])["data_b64"] = crypto.B64(pt)
	}
	return nil
}

func ciphertextField(capsule map[string]any, purpose domain.Purpose) string {
	if purpose == domain.PurposeGlyph {
		return asString(capsule["glyphs_enc_b64"])
	}
	return asString(asMap(capsule[string(purpose)])["data_b64"])
}

func encMeta(enc map[string]any) (domain.EncMeta, error) {
	var meta domain.EncMeta
	b, err := json.Marshal(enc)
	if err == nil {
		err = json.Unmarshal(b, &meta)
	}
	if err != nil {
		return domain.EncMeta{}, fmt.Errorf("%w: enc: %v", domain.ErrEncoding, err)
	}
	return meta, nil
}

// key derives the key for l, reusing an earlier derivation of the same
// lease material.
func (d *Decryptor) key(l domain.Lease) (*crypto.Key, error) {
	id := l.KeyID + "\x00" + l.CollapseHash + "\x00" + crypto.B64(l.Salt)
	d.mu.Lock()
	defer d.mu.Unlock()
	if k, ok := d.keys[id]; ok {
		return k, nil
	}
	k, err := crypto.DeriveKey(l)
	if err != nil {
		return nil, err
	}
	if len(d.keys) >= maxKeys {
		d.purgeLocked()
	}
	d.keys[id] = k
	return k, nil
}

// Close wipes every cached key.
func (d *Decryptor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.purgeLocked()
}

func (d *Decryptor) purgeLocked() {
	for id, k := range d.keys {
		k.Destroy()
		delete(d.keys, id)
	}
}
