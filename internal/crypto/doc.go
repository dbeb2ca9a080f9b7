// Package crypto derives per-lease symmetric keys and seals capsule fields.
//
// Contents
//
//   - PBKDF2-HMAC-SHA256 key derivation from lease material (DeriveKey)
//   - AEAD sealing with a fresh random 96-bit nonce per call (Codec.Encrypt,
//     Codec.Decrypt) under AES-256-GCM or ChaCha20-Poly1305
//   - Standard base64 helpers whose failures are encoding errors, never
//     authentication errors (B64, FromB64)
//   - Short key fingerprints for lease pinning and logging (Fingerprint)
//
// # Notes
//
// Any peer holding the same lease derives the same key, so the raw key never
// crosses the wire. Callers should Destroy keys they no longer need.
package crypto
