package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Buckets for clients that stopped submitting are dropped after this much
// idle time; a full analysis upload cycle is well under it.
const idleEviction = 10 * time.Minute

// clientBucket tracks the remaining submission budget for one client key.
type clientBucket struct {
	level float64 // tokens currently available
	seen  time.Time
}

// refill credits tokens accrued since the last request, capped at burst.
func (b *clientBucket) refill(now time.Time, rps, burst float64) {
	b.level += now.Sub(b.seen).Seconds() * rps
	if b.level > burst {
		b.level = burst
	}
	b.seen = now
}

// MemoryLimiter is an in-process Limiter with one token bucket per client
// key. It exists to keep a single chatty client from monopolizing the
// analysis workers; it shares no state across replicas, so multi-instance
// deployments get per-replica budgets.
type MemoryLimiter struct {
	rps   float64
	burst float64

	mu    sync.Mutex
	byKey map[string]*clientBucket

	quit     chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiter creates a limiter allowing a sustained rps per key with
// bursts up to burst. A background sweeper drops idle buckets; call Close
// to stop it.
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	l := &MemoryLimiter{
		rps:   rps,
		burst: float64(burst),
		byKey: make(map[string]*clientBucket),
		quit:  make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow spends one token from key's bucket, reporting whether the
// submission may proceed. A key's first request always passes and leaves
// burst-1 tokens behind it.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byKey[key]
	if !ok {
		l.byKey[key] = &clientBucket{level: l.burst - 1, seen: now}
		return true, nil
	}

	b.refill(now, l.rps, l.burst)
	if b.level < 1 {
		return false, nil
	}
	b.level--
	return true, nil
}

// Close stops the sweeper. Safe to call more than once.
func (l *MemoryLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.quit) })
	return nil
}

func (l *MemoryLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.quit:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-idleEviction)
			l.mu.Lock()
			for key, b := range l.byKey {
				if b.seen.Before(cutoff) {
					delete(l.byKey, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
