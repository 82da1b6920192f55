package replay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// NonceCache tracks nonces recently presented by hub agents so that a
// captured poll request cannot be replayed inside the signature skew
// window. Entries are keyed by serial and nonce and expire after the
// configured TTL.
type NonceCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func NewNonceCache(ttl time.Duration) *NonceCache {
	return &NonceCache{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Remember records the nonce and reports whether it was already present.
func (nc *NonceCache) Remember(serial, nonce string, at time.Time) bool {
	key := serial + ":" + nonce

	nc.mu.Lock()
	defer nc.mu.Unlock()

	if expiry, exists := nc.seen[key]; exists && at.Before(expiry) {
		return true
	}
	nc.seen[key] = at.Add(nc.ttl)
	return false
}

func (nc *NonceCache) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nc.cleanup()
		}
	}
}

func (nc *NonceCache) cleanup() {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, expiry := range nc.seen {
		if now.After(expiry) {
			delete(nc.seen, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Cleaned up replay nonces", "removed", removed)
	}
}
