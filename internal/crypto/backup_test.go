package crypto

import (
	"errors"
	"testing"
)

func TestWrapUnwrapPrivateKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	blob, iv, err := WrapPrivateKey(kp.PrivateKey, "hunter2")
	if err != nil {
		t.Fatalf("WrapPrivateKey: %v", err)
	}

	got, err := UnwrapPrivateKey(blob, iv, "hunter2")
	if err != nil {
		t.Fatalf("UnwrapPrivateKey: %v", err)
	}
	if got != kp.PrivateKey {
		t.Fatalf("unwrapped key mismatch: got %q want %q", got, kp.PrivateKey)
	}
}

func TestUnwrapWrongPassword(t *testing.T) {
	kp, _ := GenerateKeyPair()
	blob, iv, err := WrapPrivateKey(kp.PrivateKey, "correct horse")
	if err != nil {
		t.Fatalf("WrapPrivateKey: %v", err)
	}

	if _, err := UnwrapPrivateKey(blob, iv, "battery staple"); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("want ErrDecryptionFailed, got %v", err)
	}
}

func TestWrapFreshIV(t *testing.T) {
	kp, _ := GenerateKeyPair()
	_, iv1, err := WrapPrivateKey(kp.PrivateKey, "pw")
	if err != nil {
		t.Fatalf("WrapPrivateKey #1: %v", err)
	}
	_, iv2, err := WrapPrivateKey(kp.PrivateKey, "pw")
	if err != nil {
		t.Fatalf("WrapPrivateKey #2: %v", err)
	}
	if iv1 == iv2 {
		t.Fatal("iv reused across two backups")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in plaintext")
	}
	if !VerifyPassword(hash, "s3cret") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("wrong password accepted")
	}
	if VerifyPassword("not-a-hash", "s3cret") {
		t.Fatal("malformed stored hash accepted")
	}
}
