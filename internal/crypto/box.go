package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const keySize = 32

// KeyPair is a long-lived X25519 key pair, base64-encoded for storage and
// transmission. The private key never leaves the client unwrapped.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// GenerateKeyPair produces a fresh X25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	var priv, pub [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return KeyPair{}, fmt.Errorf("generate private key: %w", err)
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pub[:]),
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
	}, nil
}

// DeriveSharedSecret computes the symmetric secret for a user pair:
// X25519(myPriv, theirPub) expanded through HKDF-SHA256. The result is
// identical regardless of which party computes it and is never persisted.
func DeriveSharedSecret(myPrivateKey, theirPublicKey string) ([]byte, error) {
	priv, err := decodeKey(myPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	pub, err := decodeKey(theirPublicKey)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}

	shared, err := curve25519.X25519(priv, pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	// low-order public keys produce an all-zero shared secret
	if subtle.ConstantTimeCompare(shared, make([]byte, keySize)) == 1 {
		return nil, fmt.Errorf("%w: low-order public key", ErrMalformedKey)
	}

	secret := make([]byte, keySize)
	h := hkdf.New(sha256.New, shared, nil, []byte("ephemsg-shared-v1"))
	if _, err := io.ReadFull(h, secret); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return secret, nil
}

// Encrypt seals plaintext under sharedSecret with AES-256-GCM and a fresh
// random nonce. The nonce is returned separately and travels with the
// message; it must never be reused under the same secret.
func Encrypt(plaintext, sharedSecret []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newAEAD(sharedSecret)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("rand nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext. Any authentication failure is reported as
// ErrDecryptionFailed; corrupted plaintext is never returned silently.
func Decrypt(ciphertext, nonce, sharedSecret []byte) ([]byte, error) {
	aead, err := newAEAD(sharedSecret)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: secret must be %d bytes", ErrMalformedKey, keySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aead, nil
}

func decodeKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if len(b) != keySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedKey, keySize, len(b))
	}
	return b, nil
}
