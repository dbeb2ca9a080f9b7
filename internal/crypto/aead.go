package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"srrt/internal/domain"
)

// Supported envelope schemes.
const (
	SchemeAESGCM   = "aes-256-gcm"
	SchemeChaCha20 = "chacha20-poly1305"
)

// NonceBytes is the nonce length of both schemes (96 bits).
const NonceBytes = 12

// Codec seals and opens capsule fields. The zero value uses AES-256-GCM and
// the wall clock for envelope timestamps.
type Codec struct {
	// Scheme selects the AEAD used by Encrypt. Decrypt follows the
	// scheme named in the envelope.
	Scheme string

	// Now stamps envelopes; defaults to time.Now.
	Now func() time.Time
}

// NewCodec returns a codec sealing under scheme.
func NewCodec(scheme string) (*Codec, error) {
	if _, err := newAEAD(scheme, make([]byte, KeyBytes)); err != nil {
		return nil, err
	}
	return &Codec{Scheme: scheme}, nil
}

// Encrypt seals plaintext under key with a fresh random nonce, binding aad.
// The returned metadata carries everything a peer holding the same lease
// needs to open it.
func (c *Codec) Encrypt(key *Key, plaintext []byte, aad string, seq *uint64) ([]byte, domain.EncMeta, error) {
	scheme := c.scheme()
	aead, err := newAEAD(scheme, key.Bytes())
	if err != nil {
		return nil, domain.EncMeta{}, err
	}
	nonce := make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, domain.EncMeta{}, fmt.Errorf("crypto: nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, []byte(aad))
	meta := domain.EncMeta{
		Scheme:   scheme,
		KeyID:    key.KeyID,
		NonceB64: B64(nonce),
		AAD:      aad,
		TS:       c.now().UnixMilli(),
	}
	if seq != nil {
		s := *seq
		meta.Seq = &s
	}
	return ct, meta, nil
}

// Decrypt opens ciphertext sealed by Encrypt. Tampering, a wrong key or
// mismatched aad yield domain.ErrAuthenticationFailed; a malformed nonce
// yields domain.ErrEncoding.
func (c *Codec) Decrypt(key *Key, meta domain.EncMeta, ciphertext []byte, aad string) ([]byte, error) {
	scheme := meta.Scheme
	if scheme == "" {
		scheme = SchemeAESGCM
	}
	aead, err := newAEAD(scheme, key.Bytes())
	if err != nil {
		return nil, err
	}
	if meta.KeyID != "" && key.KeyID != "" && meta.KeyID != key.KeyID {
		return nil, fmt.Errorf("%w: key id %s does not match envelope kid %s", domain.ErrAuthenticationFailed, key.KeyID, meta.KeyID)
	}
	nonce, err := FromB64(meta.NonceB64)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", domain.ErrEncoding, len(nonce), aead.NonceSize())
	}
	pt, err := aead.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return nil, fmt.Errorf("%w: %s open", domain.ErrAuthenticationFailed, scheme)
	}
	return pt, nil
}

func (c *Codec) scheme() string {
	if c == nil || c.Scheme == "" {
		return SchemeAESGCM
	}
	return c.Scheme
}

func (c *Codec) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func newAEAD(scheme string, key []byte) (cipher.AEAD, error) {
	if len(key) != KeyBytes {
		return nil, fmt.Errorf("crypto: key is %d bytes, want %d", len(key), KeyBytes)
	}
	switch scheme {
	case SchemeAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SchemeChaCha20:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedScheme, scheme)
	}
}
