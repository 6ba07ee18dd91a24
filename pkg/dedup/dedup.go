// Package dedup drops repeated items by identity key.
package dedup

import (
	"strings"
	"sync"
	"time"
)

// Deduper remembers keys for a bounded time. A zero TTL keeps keys for the
// lifetime of the Deduper, which is what a single batch pass wants.
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	now  func() time.Time
	seen map[string]time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if max <= 0 {
		max = 100000
	}
	return &Deduper{ttl: ttl, max: max, now: time.Now, seen: make(map[string]time.Time)}
}

// Key joins identity parts. Empty parts make the whole key empty.
func Key(parts ...string) string {
	for _, p := range parts {
		if p == "" {
			return ""
		}
	}
	return strings.Join(parts, "|")
}

// First reports whether key has not been seen (or has expired). Empty keys
// have no identity and always pass.
func (d *Deduper) First(key string) bool {
	if key == "" {
		return true
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[key]; ok && (exp.IsZero() || now.Before(exp)) {
		return false
	}
	var exp time.Time
	if d.ttl > 0 {
		exp = now.Add(d.ttl)
	}
	d.seen[key] = exp
	if len(d.seen) > d.max {
		d.evict(now)
	}
	return true
}

func (d *Deduper) evict(now time.Time) {
	for k, exp := range d.seen {
		if !exp.IsZero() && now.After(exp) {
			delete(d.seen, k)
		}
		if len(d.seen) <= d.max {
			return
		}
	}
}

func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Filter keeps the first item of every key, preserving order.
func Filter[T any](d *Deduper, items []T, key func(T) string) (kept []T, dropped int) {
	kept = make([]T, 0, len(items))
	for _, it := range items {
		if d.First(key(it)) {
			kept = append(kept, it)
			continue
		}
		dropped++
	}
	return kept, dropped
}
