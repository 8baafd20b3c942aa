package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(1, 2)
	now := time.Now()

	if !l.Allow("u1", now) || !l.Allow("u1", now) {
		t.Fatal("burst of 2 rejected")
	}
	if l.Allow("u1", now) {
		t.Fatal("third immediate event allowed past burst")
	}
	if !l.Allow("u2", now) {
		t.Fatal("independent key throttled")
	}
	if !l.Allow("u1", now.Add(2*time.Second)) {
		t.Fatal("token did not refill")
	}
}

func TestNilLimiterAllowsAll(t *testing.T) {
	var l *PerKey
	if !l.Allow("u1", time.Now()) {
		t.Fatal("nil limiter must allow")
	}
	if New(0, 0) != nil {
		t.Fatal("invalid args must yield nil limiter")
	}
}
