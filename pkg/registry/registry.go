package registry

import (
	"sort"
	"sync"
	"time"

	"paygateway/pkg/proto"
)

// Record is the bookkeeping entry for one known peer. A zero LastSeen marks a
// statically configured peer that never expires.
type Record struct {
	ID       string
	Kinds    []proto.Kind
	LastSeen time.Time
	Addrs    []string
}

// Registry holds the in-process peer set. It is rebuilt from scratch on every
// start: seeded from static config, then mutated only by announcements.
type Registry struct {
	mu    sync.RWMutex
	ttl   time.Duration
	peers map[string]Record
}

const DefaultPeerTTL = 120 * time.Second

func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultPeerTTL
	}
	return &Registry{ttl: ttl, peers: make(map[string]Record)}
}

// SeedStatic inserts peers with no known kinds and the never-expires sentinel.
func (r *Registry) SeedStatic(peerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range peerIDs {
		if id == "" {
			continue
		}
		if _, ok := r.peers[id]; ok {
			continue
		}
		r.peers[id] = Record{ID: id}
	}
}

// Upsert overwrites the record for a peer. Last writer wins: the previous kind
// set is replaced, not merged. Known addresses survive the overwrite.
func (r *Registry) Upsert(peerID string, kinds []proto.Kind, now time.Time) {
	if peerID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := Record{ID: peerID, Kinds: append([]proto.Kind(nil), kinds...), LastSeen: now}
	if prev, ok := r.peers[peerID]; ok {
		rec.Addrs = prev.Addrs
	}
	r.peers[peerID] = rec
}

// SetAddrs records fallback dial addresses for a peer without touching its
// freshness. Unknown peers get a static-style record so seeded multiaddrs make
// the peer dialable before its first announcement.
func (r *Registry) SetAddrs(peerID string, addrs []string) {
	if peerID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.peers[peerID]
	if !ok {
		rec = Record{ID: peerID}
	}
	rec.Addrs = append([]string(nil), addrs...)
	r.peers[peerID] = rec
}

func (r *Registry) Addrs(peerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.peers[peerID]
	if !ok {
		return nil
	}
	return append([]string(nil), rec.Addrs...)
}

func (r *Registry) Record(peerID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.peers[peerID]
	if !ok {
		return Record{}, false
	}
	rec.Kinds = append([]proto.Kind(nil), rec.Kinds...)
	rec.Addrs = append([]string(nil), rec.Addrs...)
	return rec, true
}

// ActivePeers returns the ids of peers whose last announcement is within the
// TTL, plus all static peers. Sorted so candidate iteration is deterministic.
func (r *Registry) ActivePeers(now time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.peers))
	for id, rec := range r.peers {
		if rec.LastSeen.IsZero() || now.Sub(rec.LastSeen) <= r.ttl {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// FilterByNetwork keeps peers that declare a kind on the given network. Peers
// with no known kinds are kept: absence of information is not grounds for
// exclusion. If filtering would remove every candidate the original set is
// returned, availability over precision.
func (r *Registry) FilterByNetwork(peerIDs []string, network string) []string {
	if network == "" {
		return peerIDs
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(peerIDs))
	for _, id := range peerIDs {
		rec, ok := r.peers[id]
		if !ok || len(rec.Kinds) == 0 {
			out = append(out, id)
			continue
		}
		for _, k := range rec.Kinds {
			if k.Network == network {
				out = append(out, id)
				break
			}
		}
	}
	if len(out) == 0 {
		return peerIDs
	}
	return out
}
