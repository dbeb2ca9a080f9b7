package types

import "errors"

var (
	// ErrLeaseUnavailable means the lease authority was unreachable or
	// rejected the request.
	ErrLeaseUnavailable = errors.New("lease unavailable")

	// ErrAuthenticationFailed means an AEAD tag did not verify: tampered
	// data, wrong key or mismatched associated data.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrEncoding covers malformed base64 and JSON.
	ErrEncoding = errors.New("encoding error")

	// ErrTransport covers socket-level failures.
	ErrTransport = errors.New("transport error")

	// ErrMalformedFrame means an inbound frame could not be parsed.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnsupportedScheme means the envelope names an unknown AEAD scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)
