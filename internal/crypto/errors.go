package crypto

import "errors"

var (
	// ErrDecryptionFailed covers every authentication failure: wrong key,
	// tampered ciphertext, wrong nonce. Callers substitute a placeholder
	// instead of surfacing it as a crash.
	ErrDecryptionFailed = errors.New("crypto: message authentication failed")

	ErrMalformedKey = errors.New("crypto: malformed key material")
)
