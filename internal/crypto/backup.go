package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Private-key backup: the key is wrapped under a password-derived AES-GCM
// key so the server can hold it without being able to read it. The "iv"
// stored alongside the blob is salt||nonce.

const (
	saltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

func passwordKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keySize)
}

// WrapPrivateKey encrypts the base64 private key under password. It returns
// the ciphertext blob and the iv (salt||nonce), both base64.
func WrapPrivateKey(privateKey, password string) (blob, iv string, err error) {
	priv, err := decodeKey(privateKey)
	if err != nil {
		return "", "", err
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", "", fmt.Errorf("rand salt: %w", err)
	}

	ct, nonce, err := Encrypt(priv, passwordKey(password, salt))
	if err != nil {
		return "", "", err
	}

	return base64.StdEncoding.EncodeToString(ct),
		base64.StdEncoding.EncodeToString(append(salt, nonce...)),
		nil
}

// UnwrapPrivateKey reverses WrapPrivateKey. A wrong password surfaces as
// ErrDecryptionFailed.
func UnwrapPrivateKey(blob, iv, password string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("backup blob: %w", ErrDecryptionFailed)
	}
	sn, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(sn) <= saltSize {
		return "", fmt.Errorf("backup iv: %w", ErrDecryptionFailed)
	}
	salt, nonce := sn[:saltSize], sn[saltSize:]

	priv, err := Decrypt(ct, nonce, passwordKey(password, salt))
	if err != nil {
		return "", err
	}
	if len(priv) != keySize {
		return "", ErrDecryptionFailed
	}
	return base64.StdEncoding.EncodeToString(priv), nil
}

// HashPassword derives an argon2id credential hash for storage. Format:
// base64(salt)$base64(hash).
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("rand salt: %w", err)
	}
	sum := passwordKey(password, salt)
	return base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(sum), nil
}

// VerifyPassword reports whether password matches a stored credential hash.
func VerifyPassword(stored, password string) bool {
	parts := strings.SplitN(stored, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	got := passwordKey(password, salt)
	return subtle.ConstantTimeCompare(got, want) == 1
}
