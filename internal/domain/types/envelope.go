package types

// EncMeta is attached to an encrypted capsule field. The nonce is unique per
// key id.
type EncMeta struct {
	Scheme   string  `json:"scheme"`
	KeyID    string  `json:"kid"`
	NonceB64 string  `json:"nonce_b64"`
	AAD      string  `json:"aad,omitempty"`
	Seq      *uint64 `json:"seq,omitempty"`
	TS       int64   `json:"ts"`
}
