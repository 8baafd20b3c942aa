package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PerKey applies a token bucket per string key (here: per user for typing
// broadcasts) and evicts idle entries as a side effect of use.
type PerKey struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*entry
	hits  uint64
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func New(perSec float64, burst int) *PerKey {
	if perSec <= 0 || burst <= 0 {
		return nil
	}
	return &PerKey{
		limit:   rate.Limit(perSec),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		byKey:   make(map[string]*entry),
	}
}

// Allow reports whether one token can be consumed for key at now.
// A nil limiter allows everything.
func (l *PerKey) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}

	return allowed
}
