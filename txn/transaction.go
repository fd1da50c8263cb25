// Package txn implements the multi-version transaction object used by the
// Sparkle/Spectrum engine (§3, "Transaction object (multi-version
// variant)"): the read/write logs, the rerun bookkeeping a concurrent
// writer uses to invalidate a reader, and the arena that resolves the
// chain's weak back-references to a live transaction.
package txn

import (
	"sync"
	"time"

	"github.com/jacklightChen/spectrum-sub001/checkpoint"
	"github.com/jacklightChen/spectrum-sub001/kv"
)

// TxId is a globally unique, monotonically assigned transaction
// identifier; lower id = logically older / higher commit priority.
type TxId uint64

// GetLogEntry is one entry of a transaction's ordered read log.
type GetLogEntry struct {
	Key     kv.Key
	Value   kv.Value
	Version TxId
	OpIndex int
}

// PutLogEntry is one entry of a transaction's ordered write log.
type PutLogEntry struct {
	Key     kv.Key
	Value   kv.Value
	OpIndex int
}

// Transaction is the multi-version transaction object (§3). Fields under
// mu may be mutated by a concurrent writer transaction invalidating this
// one; TuplesGet/TuplesPut/CPAt are touched only by the worker goroutine
// that owns this transaction.
type Transaction struct {
	ID         TxId
	StartTime  time.Time
	Checkpoint checkpoint.Transaction

	// TuplesGet/TuplesPut are the ordered read/write logs, owner-only.
	TuplesGet []GetLogEntry
	TuplesPut []PutLogEntry

	// CPAt maps an op index to the checkpoint id taken just before that
	// op executed; built by the owning engine as it drives execution.
	CPAt map[int]int

	mu              sync.Mutex
	rerunKeys       map[kv.Key]struct{}
	rerunFlag       bool
	recordedVersion map[kv.Key]TxId
}

// New creates a freshly-born transaction wrapping a checkpointing
// transaction. id must have been assigned by the owning engine's
// monotonic counter.
func New(id TxId, cp checkpoint.Transaction) *Transaction {
	return &Transaction{
		ID:              id,
		StartTime:       time.Now(),
		Checkpoint:      cp,
		CPAt:            make(map[int]int),
		rerunKeys:       make(map[kv.Key]struct{}),
		recordedVersion: make(map[kv.Key]TxId),
	}
}

// MarkRerun is called by a concurrent writer that invalidated a version
// this transaction observed (§4.4.2 step 2, §4.4.3). rerunFlag is
// monotonic: once set it is cleared only by the owner, through ClearFrom
// when it rewinds or ResetRerun when there is nothing to rewind.
func (t *Transaction) MarkRerun(k kv.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rerunKeys[k] = struct{}{}
	t.rerunFlag = true
}

// IsRerun reports whether this transaction has been marked for rerun
// since its last ResetRerun.
func (t *Transaction) IsRerun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rerunFlag
}

// RecordedVersion returns the version this transaction last recorded
// having read for k, and whether it has read k at all. Safe to call from
// any goroutine.
func (t *Transaction) RecordedVersion(k kv.Key) (TxId, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.recordedVersion[k]
	return v, ok
}

// RecordGet appends to the read log and updates the concurrently-visible
// recorded version for k. Called only by the owning worker.
func (t *Transaction) RecordGet(k kv.Key, v kv.Value, version TxId, opIndex int) {
	t.TuplesGet = append(t.TuplesGet, GetLogEntry{Key: k, Value: v, Version: version, OpIndex: opIndex})
	t.mu.Lock()
	t.recordedVersion[k] = version
	t.mu.Unlock()
}

// RecordPut appends to the write log. Called only by the owning worker.
func (t *Transaction) RecordPut(k kv.Key, v kv.Value, opIndex int) {
	t.TuplesPut = append(t.TuplesPut, PutLogEntry{Key: k, Value: v, OpIndex: opIndex})
}

// EarliestRerunOpIndex scans the read and write logs for the smallest
// op index whose key is currently in rerunKeys (§4.4 step 3: "the
// earliest affected op_index"). The second return is false if no logged
// op touches a rerun key (can happen if the invalidated key was read
// before any logged op in the current trace, e.g. immediately after a
// ResetRerun raced with a fresh MarkRerun).
func (t *Transaction) EarliestRerunOpIndex() (int, bool) {
	t.mu.Lock()
	keys := make(map[kv.Key]struct{}, len(t.rerunKeys))
	for k := range t.rerunKeys {
		keys[k] = struct{}{}
	}
	t.mu.Unlock()

	best := -1
	consider := func(k kv.Key, idx int) {
		if _, ok := keys[k]; !ok {
			return
		}
		if best == -1 || idx < best {
			best = idx
		}
	}
	for _, e := range t.TuplesGet {
		consider(e.Key, e.OpIndex)
	}
	for _, e := range t.TuplesPut {
		consider(e.Key, e.OpIndex)
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// ClearFrom truncates the read/write logs to entries with OpIndex <
// fromOpIndex, and clears the rerun state. Called by the owning worker
// after rewinding to the checkpoint at fromOpIndex; the caller is
// responsible for releasing the corresponding chain reader/writer
// entries in the table before calling this (§4.4.3).
func (t *Transaction) ClearFrom(fromOpIndex int) {
	kept := t.TuplesGet[:0]
	for _, e := range t.TuplesGet {
		if e.OpIndex < fromOpIndex {
			kept = append(kept, e)
		}
	}
	t.TuplesGet = kept

	keptPut := t.TuplesPut[:0]
	for _, e := range t.TuplesPut {
		if e.OpIndex < fromOpIndex {
			keptPut = append(keptPut, e)
		}
	}
	t.TuplesPut = keptPut

	t.mu.Lock()
	t.rerunKeys = make(map[kv.Key]struct{})
	t.rerunFlag = false
	for k := range t.recordedVersion {
		// Drop recorded versions for keys whose read was rolled back;
		// ClearFrom is always invoked against a consistent fromOpIndex
		// so re-deriving from the retained log is the source of truth.
		delete(t.recordedVersion, k)
	}
	for _, e := range t.TuplesGet {
		t.recordedVersion[e.Key] = e.Version
	}
	t.mu.Unlock()
}

// ResetRerun clears rerunFlag/rerunKeys without touching the logs. Used
// when a rerun mark matches no logged op, so there is nothing to rewind.
func (t *Transaction) ResetRerun() {
	t.mu.Lock()
	t.rerunFlag = false
	t.rerunKeys = make(map[kv.Key]struct{})
	t.mu.Unlock()
}
