package protocol

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"
	"github.com/jacklightChen/spectrum-sub001/checkpoint"
	"github.com/jacklightChen/spectrum-sub001/kv"
	"github.com/jacklightChen/spectrum-sub001/stats"
	"github.com/jacklightChen/spectrum-sub001/txn"
	"github.com/jacklightChen/spectrum-sub001/workload"
)

// versionEntry is one entry of a key's version chain (§3): the writer
// that produced value, and the set of still-live transactions that have
// observed it. readers holds weak references (TxIds resolved through the
// Sparkle engine's Arena), never *txn.Transaction, per §9.
type versionEntry struct {
	value   kv.Value
	writer  txn.TxId
	readers map[txn.TxId]struct{}
}

// chainDegree is the B-tree branching factor for version chains. Chains
// are short-lived and rarely hold more than a handful of entries, so a
// small degree keeps node allocation cheap.
const chainDegree = 8

func lessByWriter(a, b *versionEntry) bool { return a.writer < b.writer }

// chain is a key's ordered version chain (§3, "OrderedChain<VersionEntry>"),
// backed by a B-tree ordered by writer TxId so both point lookups (Get by
// exact writer, during regret/commit cleanup) and the "greatest writer <
// tx.id" lookup (during get) stay logarithmic instead of linear as a
// hot key accumulates concurrent versions; put still visits every entry
// older than its writer. entries[0] is conceptually a
// permanent genesis entry with writer 0 standing in for "the table's
// default value", so every scan can treat "no prior write" uniformly
// instead of special-casing an empty chain.
type chain struct {
	tree *btree.BTreeG[*versionEntry]
}

func ensureChain(c **chain) *chain {
	if *c == nil {
		tree := btree.NewG(chainDegree, lessByWriter)
		tree.ReplaceOrInsert(&versionEntry{writer: 0, value: kv.Zero, readers: make(map[txn.TxId]struct{})})
		*c = &chain{tree: tree}
	}
	return *c
}

// Sparkle is the multi-version speculative engine (§4.4). partial
// selects between the two variants described in §4.4.4: with partial
// rollback enabled (the "Spectrum"/"SparklePartial" variant), an
// invalidated transaction resumes from the earliest affected op via
// cp_at; with it disabled (plain "Sparkle"), every invalidation restarts
// the transaction from scratch.
type Sparkle struct {
	workload workload.Workload
	stats    *stats.Stats
	table    *kv.Table[*chain]
	arena    *txn.Arena
	workers  int
	partial  bool

	nextID        atomic.Uint64
	lastCommitted atomic.Uint64

	stop atomic.Bool
	wg   sync.WaitGroup
}

// NewSparkle builds the partial-rollback (Spectrum) variant.
func NewSparkle(w workload.Workload, s *stats.Stats, workers int) *Sparkle {
	return newSparkle(w, s, workers, true)
}

// NewSparkleFullRestart builds the plain Sparkle variant, which always
// re-executes an invalidated transaction from its first operation.
func NewSparkleFullRestart(w workload.Workload, s *stats.Stats, workers int) *Sparkle {
	return newSparkle(w, s, workers, false)
}

func newSparkle(w workload.Workload, s *stats.Stats, workers int, partial bool) *Sparkle {
	if workers < 1 {
		workers = 1
	}
	return &Sparkle{
		workload: w,
		stats:    s,
		table:    kv.NewTable[*chain](kv.DefaultShardCount, nil),
		arena:    txn.NewArena(),
		workers:  workers,
		partial:  partial,
	}
}

func (e *Sparkle) Start() {
	e.wg.Add(e.workers)
	for i := 0; i < e.workers; i++ {
		go e.runWorker()
	}
}

func (e *Sparkle) Stop() {
	e.stop.Store(true)
	e.wg.Wait()
}

func (e *Sparkle) runWorker() {
	defer e.wg.Done()
	for !e.stop.Load() {
		e.runOne()
	}
}

// runOne drives a single transaction from birth through commit (§4.4,
// the six-step per-transaction loop).
func (e *Sparkle) runOne() {
	wtx := e.workload.Next()
	id := txn.TxId(e.nextID.Add(1))
	cp := workload.NewCheckpointTransaction(wtx)
	t := txn.New(id, cp)
	e.arena.Birth(t)
	defer e.arena.Retire(id)

	start := time.Now()
	opIndex := 0

	cp.InstallGetStorage(func(addr kv.Address, slot kv.Slot) kv.Value {
		if e.rollbackOnce(t, &opIndex) {
			return kv.Zero
		}
		k := kv.Key{Addr: addr, Slot: slot}
		t.CPAt[opIndex] = cp.MakeCheckpoint()
		v := e.get(t, k, opIndex)
		opIndex++
		return v
	})
	cp.InstallSetStorage(func(addr kv.Address, slot kv.Slot, value kv.Value) checkpoint.StorageStatus {
		if e.rollbackOnce(t, &opIndex) {
			return checkpoint.StatusOK
		}
		k := kv.Key{Addr: addr, Slot: slot}
		t.CPAt[opIndex] = cp.MakeCheckpoint()
		e.put(t, k, value, opIndex)
		opIndex++
		return checkpoint.StatusOK
	})

	e.runToQuiescence(t, cp, &opIndex)

	for {
		for !e.stop.Load() && !t.IsRerun() && e.lastCommitted.Load()+1 != uint64(id) {
			runtime.Gosched()
		}
		if e.stop.Load() {
			return
		}
		if t.IsRerun() {
			// Invalidated while waiting for commit order (§4.4 step 4):
			// back to step 3.
			e.runToQuiescence(t, cp, &opIndex)
			continue
		}
		break
	}

	e.commit(t)
	e.lastCommitted.Store(uint64(id))

	// One execute per committed transaction (§4.4 step 6); rollbacks and
	// re-executions are not journaled separately.
	e.stats.JournalExecute()
	e.stats.JournalOperations(uint64(cp.CountOperations()))
	e.stats.JournalCommit(time.Since(start))
}

// runToQuiescence executes t until it finishes with rerun_flag clear,
// driving the rollback-and-resume loop from §4.4 step 3.
func (e *Sparkle) runToQuiescence(t *txn.Transaction, cp checkpoint.Transaction, opIndex *int) {
	_ = cp.Execute()
	for e.rollbackOnce(t, opIndex) {
		_ = cp.Execute()
	}
}

// rollbackOnce checks whether t has been invalidated and, if so, rewinds
// it to the appropriate checkpoint: the earliest affected op in the
// partial-rollback variant, or op 0 in the full-restart variant or in
// Basic checkpoint mode (§4.4.4).
func (e *Sparkle) rollbackOnce(t *txn.Transaction, opIndex *int) bool {
	if !t.IsRerun() {
		return false
	}
	idx := 0
	// Basic mode's ApplyCheckpoint always rewinds to op 0, so a Basic
	// transaction takes the full-restart path even in the partial variant.
	_, basic := t.Checkpoint.(*checkpoint.BasicTransaction)
	if e.partial && !basic {
		i, ok := t.EarliestRerunOpIndex()
		if !ok {
			// No logged op touches a rerun key yet; nothing to rewind.
			t.ResetRerun()
			return false
		}
		idx = i
	}
	e.regret(t, idx)
	t.Checkpoint.ApplyCheckpoint(t.CPAt[idx])
	t.ClearFrom(idx)
	*opIndex = idx
	return true
}

// get implements §4.4.1: walk the chain for the greatest entry with
// writer < tx.id, record it as read, and register tx as a reader so a
// later, older write can invalidate it.
func (e *Sparkle) get(t *txn.Transaction, k kv.Key, opIndex int) kv.Value {
	var result kv.Value
	var version txn.TxId
	e.table.Put(k, func(c **chain) {
		ch := ensureChain(c)
		var best *versionEntry
		ch.tree.DescendLessThan(&versionEntry{writer: t.ID}, func(en *versionEntry) bool {
			best = en
			return false // DescendLessThan yields in descending order; first hit is the greatest.
		})
		version = best.writer
		best.readers[t.ID] = struct{}{}
		result = best.value
	})
	t.RecordGet(k, result, version, opIndex)
	return result
}

// put implements §4.4.2: invalidate every reader of an older entry that
// this write now supersedes, then insert our entry in writer order.
func (e *Sparkle) put(t *txn.Transaction, k kv.Key, v kv.Value, opIndex int) {
	e.table.Put(k, func(c **chain) {
		ch := ensureChain(c)

		ch.tree.DescendLessThan(&versionEntry{writer: t.ID}, func(en *versionEntry) bool {
			for rid := range en.readers {
				if rid <= t.ID {
					continue
				}
				if r, ok := e.arena.Lookup(rid); ok {
					r.MarkRerun(k)
				}
			}
			return true // keep descending through every older entry
		})

		entry := &versionEntry{writer: t.ID, value: v, readers: make(map[txn.TxId]struct{})}
		ch.tree.ReplaceOrInsert(entry)
	})
	t.RecordPut(k, v, opIndex)
}

// regret implements §4.4.3's rollback-time cleanup: release our reader
// registrations and retract our own writes for every op at or past
// fromOpIndex, cascading a rerun to anyone who had read one of our
// retracted writes.
func (e *Sparkle) regret(t *txn.Transaction, fromOpIndex int) {
	for _, g := range t.TuplesGet {
		if g.OpIndex >= fromOpIndex {
			e.releaseReader(g.Key, g.Version, t.ID)
		}
	}
	for _, p := range t.TuplesPut {
		if p.OpIndex >= fromOpIndex {
			e.removeWrite(p.Key, t.ID)
		}
	}
}

// commit implements §4.4.3's commit-time clear: release our reader
// registrations (we can no longer be invalidated once committed) and
// leave our writes in the chain.
func (e *Sparkle) commit(t *txn.Transaction) {
	for _, g := range t.TuplesGet {
		e.releaseReader(g.Key, g.Version, t.ID)
	}
}

func (e *Sparkle) releaseReader(k kv.Key, version txn.TxId, reader txn.TxId) {
	e.table.Put(k, func(c **chain) {
		ch := ensureChain(c)
		if en, ok := ch.tree.Get(&versionEntry{writer: version}); ok {
			delete(en.readers, reader)
		}
	})
}

func (e *Sparkle) removeWrite(k kv.Key, writer txn.TxId) {
	e.table.Put(k, func(c **chain) {
		ch := ensureChain(c)
		entry, ok := ch.tree.Get(&versionEntry{writer: writer})
		if !ok {
			return
		}
		for rid := range entry.readers {
			if r, ok := e.arena.Lookup(rid); ok {
				r.MarkRerun(k)
			}
		}
		ch.tree.Delete(&versionEntry{writer: writer})
	})
}
