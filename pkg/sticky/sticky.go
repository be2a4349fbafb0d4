// Package sticky pins a claim's correlation key to the peer that produced its
// successful verify, so the matching settle lands on the same peer.
package sticky

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = 300 * time.Second

type Store interface {
	// Get returns the pinned peer for a correlation key, if one exists and
	// has not expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put pins a peer for a correlation key, replacing any previous pin.
	Put(ctx context.Context, key string, peerID string) error
}

type memoryEntry struct {
	peerID  string
	expires time.Time
}

// MemoryStore is the default in-process backend. Expired entries are ignored
// on read and removed by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if now.After(e.expires) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.peerID, true, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, peerID string) error {
	if key == "" || peerID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{peerID: peerID, expires: time.Now().Add(s.ttl)}
	return nil
}

// Sweep drops expired entries so the table stays bounded by live correlation
// keys rather than every key ever seen.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Janitor sweeps periodically until the context is cancelled.
func (s *MemoryStore) Janitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
