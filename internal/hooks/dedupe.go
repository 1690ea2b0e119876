package hooks

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// #region dedupe

// Dedupe remembers recently seen messages. Hosts re-emit updates for one
// message while it streams, and text parts often arrive without the role
// that an earlier update carried.
type Dedupe struct {
	mu    sync.Mutex
	seen  *ristretto.Cache[string, struct{}]
	roles *ristretto.Cache[string, string]
	ttl   time.Duration
}

// NewDedupe keeps up to maxEntries keys for ttl each.
func NewDedupe(maxEntries int64, ttl time.Duration) (*Dedupe, error) {
	if maxEntries < 1 {
		maxEntries = 1
	}
	seen, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	roles, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		seen.Close()
		return nil, err
	}
	return &Dedupe{seen: seen, roles: roles, ttl: ttl}, nil
}

// Seen reports whether key was marked within the TTL, marking it if not.
func (d *Dedupe) Seen(key string) bool {
	if d == nil || key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen.Get(key); ok {
		return true
	}
	d.seen.SetWithTTL(key, struct{}{}, 1, d.ttl)
	d.seen.Wait()
	return false
}

// RememberRole records the author role of a message.
func (d *Dedupe) RememberRole(key, role string) {
	if d == nil || key == "" || role == "" {
		return
	}
	d.roles.SetWithTTL(key, role, 1, d.ttl)
	d.roles.Wait()
}

// Role returns the remembered role for key.
func (d *Dedupe) Role(key string) (string, bool) {
	if d == nil || key == "" {
		return "", false
	}
	return d.roles.Get(key)
}

// Close releases the caches.
func (d *Dedupe) Close() {
	if d != nil {
		d.seen.Close()
		d.roles.Close()
	}
}

// #endregion dedupe
