package message

import (
	"testing"
	"time"
)

func TestExpiredBoundary(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if Expired(created, created.Add(23*time.Hour+59*time.Minute)) {
		t.Fatal("message expired at T+23h59m")
	}
	if !Expired(created, created.Add(24*time.Hour+time.Minute)) {
		t.Fatal("message still retrievable at T+24h01m")
	}
	if !Expired(created, created.Add(TTL)) {
		t.Fatal("message still retrievable exactly at its TTL")
	}
}

func TestTTLIsOneDay(t *testing.T) {
	if got := int32(TTL / time.Second); got != 86400 {
		t.Fatalf("TTL index would be created with expireAfterSeconds=%d", got)
	}
}
