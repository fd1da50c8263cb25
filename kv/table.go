package kv

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultShardCount is used when a protocol does not care to tune shard
// count for its expected concurrency.
const DefaultShardCount = 64

// shardFor hashes a Key into [0, shards) with xxhash, which the rest of
// this codebase's ancestry already depends on for fast non-cryptographic
// hashing of small fixed-size keys.
func shardFor(k Key, shards int) int {
	var buf [52]byte
	copy(buf[:20], k.Addr[:])
	copy(buf[20:], k.Slot[:])
	return int(xxhash.Sum64(buf[:]) % uint64(shards))
}

// Table is a generic concurrent associative store indexed by Key, sharded
// by a fixed partition count chosen at construction (§4.1). Put acquires
// the shard lock for k's shard, invokes mutate exactly once, and releases;
// Get does the same with a non-mutating view. Neither ever holds the lock
// across a callback that could acquire another table's lock: callers must
// not call back into this or any other Table from within mutate/read.
type Table[V any] struct {
	shards []*tableShard[V]
	zero   V
}

type tableShard[V any] struct {
	mu      sync.RWMutex
	entries map[Key]V
}

// NewTable constructs a Table with the given shard count and the zero
// value returned for keys that have never been written.
func NewTable[V any](shards int, zero V) *Table[V] {
	if shards <= 0 {
		shards = DefaultShardCount
	}
	t := &Table[V]{shards: make([]*tableShard[V], shards), zero: zero}
	for i := range t.shards {
		t.shards[i] = &tableShard[V]{entries: make(map[Key]V)}
	}
	return t
}

// ShardCount returns the number of partitions this table was built with.
// For callers that must take a consistent global lock order across shard
// indices to avoid deadlock when touching more than one table.
func (t *Table[V]) ShardCount() int { return len(t.shards) }

// ShardIndex returns the shard index a key maps to, for callers that need
// to establish a lock order across shards ascending.
func (t *Table[V]) ShardIndex(k Key) int { return shardFor(k, len(t.shards)) }

// Put acquires the shard lock for k's shard, invokes mutate on the
// current slot value (the table's zero value if k is unset), stores
// whatever mutate left behind, and releases the lock.
func (t *Table[V]) Put(k Key, mutate func(cur *V)) {
	sh := t.shards[shardFor(k, len(t.shards))]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.entries[k]
	if !ok {
		v = t.zero
	}
	mutate(&v)
	sh.entries[k] = v
}

// Get acquires the shard lock for k's shard, invokes read with the
// current value (the table's zero value if unset), and releases the lock.
func (t *Table[V]) Get(k Key, read func(cur V)) {
	sh := t.shards[shardFor(k, len(t.shards))]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.entries[k]
	if !ok {
		v = t.zero
	}
	read(v)
}

// Set is a convenience wrapper over Put for the common plain-table case
// (Serial, Dummy) where the protocol has no need to read-modify-write
// under the lock.
func (t *Table[V]) Set(k Key, v V) {
	t.Put(k, func(cur *V) { *cur = v })
}

// Load is a convenience wrapper over Get returning the value directly.
func (t *Table[V]) Load(k Key) V {
	var out V
	t.Get(k, func(cur V) { out = cur })
	return out
}

// Len returns the total number of populated entries across all shards.
// Intended for tests and diagnostics, not the hot path.
func (t *Table[V]) Len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn for every populated entry, shard by shard, holding that
// shard's read lock for the duration of its snapshot. fn must not call
// back into this or any other Table. Intended for diagnostics (e.g.
// dumping the Calvin lock-wait graph), not the hot path.
func (t *Table[V]) Range(fn func(k Key, v V)) {
	for _, sh := range t.shards {
		sh.mu.RLock()
		snapshot := make(map[Key]V, len(sh.entries))
		for k, v := range sh.entries {
			snapshot[k] = v
		}
		sh.mu.RUnlock()
		for k, v := range snapshot {
			fn(k, v)
		}
	}
}
