package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestDeriveSharedSecretSymmetry(t *testing.T) {
	alice, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair(alice): %v", err)
	}
	bob, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair(bob): %v", err)
	}

	ab, err := DeriveSharedSecret(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("DeriveSharedSecret(a,B): %v", err)
	}
	ba, err := DeriveSharedSecret(bob.PrivateKey, alice.PublicKey)
	if err != nil {
		t.Fatalf("DeriveSharedSecret(b,A): %v", err)
	}
	if !bytes.Equal(ab, ba) {
		t.Fatal("shared secrets differ between the two derivations")
	}
}

func TestDeriveSharedSecretMalformed(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	cases := []struct {
		name string
		priv string
		pub  string
	}{
		{"not base64", kp.PrivateKey, "%%%not-base64%%%"},
		{"wrong length", kp.PrivateKey, base64.StdEncoding.EncodeToString([]byte("short"))},
		{"low order", kp.PrivateKey, base64.StdEncoding.EncodeToString(make([]byte, 32))},
		{"empty private", "", kp.PublicKey},
	}
	for _, tc := range cases {
		if _, err := DeriveSharedSecret(tc.priv, tc.pub); !errors.Is(err, ErrMalformedKey) {
			t.Errorf("%s: want ErrMalformedKey, got %v", tc.name, err)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()

	sendSecret, err := DeriveSharedSecret(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("derive send secret: %v", err)
	}
	recvSecret, err := DeriveSharedSecret(bob.PrivateKey, alice.PublicKey)
	if err != nil {
		t.Fatalf("derive recv secret: %v", err)
	}

	plaintext := []byte("hi — see you at 6")
	ct, nonce, err := Encrypt(plaintext, sendSecret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := Decrypt(ct, nonce, recvSecret)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptTampering(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()
	secret, _ := DeriveSharedSecret(alice.PrivateKey, bob.PublicKey)

	ct, nonce, err := Encrypt([]byte("attack at dawn"), secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	for i := range ct {
		bad := append([]byte(nil), ct...)
		bad[i] ^= 0x01
		if _, err := Decrypt(bad, nonce, secret); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("flipped ciphertext byte %d: want ErrDecryptionFailed, got %v", i, err)
		}
	}
	for i := range nonce {
		bad := append([]byte(nil), nonce...)
		bad[i] ^= 0x01
		if _, err := Decrypt(ct, bad, secret); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("flipped nonce byte %d: want ErrDecryptionFailed, got %v", i, err)
		}
	}

	other, _ := GenerateKeyPair()
	wrongSecret, _ := DeriveSharedSecret(other.PrivateKey, bob.PublicKey)
	if _, err := Decrypt(ct, nonce, wrongSecret); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("wrong key: want ErrDecryptionFailed, got %v", err)
	}
}

func TestEncryptNonceFreshness(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()
	secret, _ := DeriveSharedSecret(alice.PrivateKey, bob.PublicKey)

	plaintext := []byte("same message twice")
	ct1, n1, err := Encrypt(plaintext, secret)
	if err != nil {
		t.Fatalf("Encrypt #1: %v", err)
	}
	ct2, n2, err := Encrypt(plaintext, secret)
	if err != nil {
		t.Fatalf("Encrypt #2: %v", err)
	}

	if bytes.Equal(n1, n2) {
		t.Fatal("nonce reused across two Encrypt calls")
	}
	if bytes.Equal(ct1, ct2) {
		t.Fatal("identical ciphertexts for two encryptions of the same plaintext")
	}
}
