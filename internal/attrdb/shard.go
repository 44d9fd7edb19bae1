// Package attrdb implements the content-hash-keyed, reference-counted
// interning databases for BGP path attributes: BgpAttrDB, AsPathDB,
// CommunityDB and ExtCommunityDB. Every DB maps a canonicalized spec to a
// single shared object; callers Locate/Release handles instead of owning
// copies, so two paths with byte-identical attributes share one allocation.
package attrdb

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

type entry[V any] struct {
	value    V
	refcount int64
}

// store is a sharded, reference-counted content cache. The zero value is
// not usable; construct with newStore. Between a refcount hitting zero and
// its removal completing, a concurrent Locate for the same content either
// revives it (increment before removal) or recreates it (removal completes
// first, Locate allocates fresh). Holding the shard's lock across both the
// refcount mutation and the map delete/insert rules out a caller observing
// a handle whose refcount has already been decided to be zero.
type store[V any] struct {
	shards [shardCount]shard[V]
}

type shard[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
}

func newStore[V any]() *store[V] {
	s := &store[V]{}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*entry[V])
	}
	return s
}

func (s *store[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

// locate returns the canonical value for key, building it with build() if
// absent, and increments its refcount.
func (s *store[V]) locate(key string, build func() V) V {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[key]; ok {
		e.refcount++
		return e.value
	}
	v := build()
	sh.entries[key] = &entry[V]{value: v, refcount: 1}
	return v
}

// release decrements key's refcount, removing the entry when it reaches
// zero. release is a no-op if key is not present (double-release guard for
// callers that track their own handle lifetime loosely). It reports whether
// this call removed the entry, letting callers cascade-release anything the
// entry itself held a handle to only once it is truly gone.
func (s *store[V]) release(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	if !ok {
		return false
	}
	e.refcount--
	if e.refcount <= 0 {
		delete(sh.entries, key)
		return true
	}
	return false
}

// size returns the total number of live entries across all shards; used by
// the concurrency test to verify quiescence.
func (s *store[V]) size() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		total += len(s.shards[i].entries)
		s.shards[i].mu.Unlock()
	}
	return total
}
