package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"

	"srrt/internal/domain"
)

const (
	// KeyBytes is the derived key length (AES-256 / ChaCha20).
	KeyBytes = 32

	// KDFIterations is the PBKDF2 work factor shared by every peer.
	KDFIterations = 100_000
)

// Key is a symmetric key derived from one lease.
type Key struct {
	KeyID string
	raw   []byte
}

// Bytes exposes the raw key. The slice aliases the key; do not retain it.
func (k *Key) Bytes() []byte { return k.raw }

// Fingerprint returns the short fingerprint of the derived key.
func (k *Key) Fingerprint() string { return Fingerprint(k.raw) }

// Destroy wipes the key material.
func (k *Key) Destroy() {
	Wipe(k.raw)
	k.raw = nil
}

// DeriveKey runs PBKDF2-HMAC-SHA256 over the lease's collapse hash and salt.
// The same lease always yields the same key. A lease that pins a fingerprint
// must derive a key with that fingerprint.
func DeriveKey(lease domain.Lease) (*Key, error) {
	if lease.CollapseHash == "" {
		return nil, errors.New("crypto: lease has no collapse hash")
	}
	if len(lease.Salt) == 0 {
		return nil, errors.New("crypto: lease has no salt")
	}
	raw := pbkdf2.Key([]byte(lease.CollapseHash), lease.Salt, KDFIterations, KeyBytes, sha256.New)
	k := &Key{KeyID: lease.KeyID, raw: raw}
	if lease.Fingerprint != "" {
		got := k.Fingerprint()
		if subtle.ConstantTimeCompare([]byte(got), []byte(lease.Fingerprint)) != 1 {
			k.Destroy()
			return nil, fmt.Errorf("%w: lease %s fingerprint mismatch", domain.ErrAuthenticationFailed, lease.KeyID)
		}
	}
	return k, nil
}

// Wipe zeroes the provided buffer. This is best-effort and aims to
// reduce the chance of the compiler eliding the write.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
