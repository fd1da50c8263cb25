package protocol

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jacklightChen/spectrum-sub001/checkpoint"
	"github.com/jacklightChen/spectrum-sub001/kv"
	"github.com/jacklightChen/spectrum-sub001/stats"
	"github.com/jacklightChen/spectrum-sub001/workload"
)

// ariaTx is one transaction's state across a round's three phases.
type ariaTx struct {
	id    uint64
	wtx   *workload.Transaction
	cp    checkpoint.Transaction
	start time.Time

	rset   map[kv.Key]struct{}
	wset   map[kv.Key]struct{}
	writes map[kv.Key]kv.Value
}

// ariaReservation is the per-key reservation slot staked in phase two
// (§4.5 step 2).
type ariaReservation struct {
	has    bool
	writer uint64
}

// AriaFB is the deterministic batch engine (§4.5): transactions execute
// in fixed-size rounds against the last round's committed snapshot,
// stake write reservations, and commit only if they hold every
// reservation they need and saw no read-after-write hazard, optionally
// rescued from a write-only conflict by logical reordering.
type AriaFB struct {
	workload   workload.Workload
	stats      *stats.Stats
	table      *kv.Table[kv.Value]
	batchSize  int
	workers    int
	reordering bool

	nextID atomic.Uint64
	stop   atomic.Bool
	done   chan struct{}
}

// NewAriaFB builds an Aria-FB engine. batchSize is the number of
// transactions per round; workers bounds how many run concurrently
// within a phase; reordering enables the write-only-conflict rescue from
// §4.5 step 3.
func NewAriaFB(w workload.Workload, s *stats.Stats, batchSize, workers int, reordering bool) *AriaFB {
	if batchSize < 1 {
		batchSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &AriaFB{
		workload:   w,
		stats:      s,
		table:      kv.NewTable[kv.Value](kv.DefaultShardCount, kv.Zero),
		batchSize:  batchSize,
		workers:    workers,
		reordering: reordering,
		done:       make(chan struct{}),
	}
}

func (e *AriaFB) Start() {
	go e.runRounds()
}

func (e *AriaFB) Stop() {
	e.stop.Store(true)
	<-e.done
}

func (e *AriaFB) runRounds() {
	defer close(e.done)
	var pending []*ariaTx
	for !e.stop.Load() {
		for len(pending) < e.batchSize {
			wtx := e.workload.Next()
			pending = append(pending, &ariaTx{id: e.nextID.Add(1), wtx: wtx, start: time.Now()})
		}
		batch := pending
		pending = e.runRound(batch)
	}
}

// phase runs fn over every tx in batch, bounding concurrency to
// e.workers, and blocks until all have finished — the phase barrier from
// §4.5 ("Rounds advance only when all workers finish the current phase").
func (e *AriaFB) phase(batch []*ariaTx, fn func(*ariaTx)) {
	sem := semaphore.NewWeighted(int64(e.workers))
	ctx := context.Background()
	var g errgroup.Group
	for _, tx := range batch {
		tx := tx
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			fn(tx)
			return nil
		})
	}
	_ = g.Wait()
}

// runRound drives one batch through read, reservation, and commit phases
// and returns the transactions that must be retried next round.
func (e *AriaFB) runRound(batch []*ariaTx) []*ariaTx {
	e.phase(batch, e.readPhase)

	reservations := kv.NewTable[ariaReservation](kv.DefaultShardCount, ariaReservation{})
	e.phase(batch, func(tx *ariaTx) {
		for k := range tx.wset {
			reservations.Put(k, func(cur *ariaReservation) {
				if !cur.has || tx.id < cur.writer {
					cur.has = true
					cur.writer = tx.id
				}
			})
		}
	})

	byID := make(map[uint64]*ariaTx, len(batch))
	for _, tx := range batch {
		byID[tx.id] = tx
	}

	var mu sync.Mutex
	var rejected []*ariaTx
	e.phase(batch, func(tx *ariaTx) {
		if e.tryCommit(tx, byID, reservations) {
			e.finalize(tx)
			return
		}
		e.stats.JournalExecute()
		mu.Lock()
		rejected = append(rejected, tx)
		mu.Unlock()
	})
	return rejected
}

// readPhase executes tx against the committed snapshot (§4.5 step 1),
// recording its read-set, write-set, and the values it would write.
func (e *AriaFB) readPhase(tx *ariaTx) {
	tx.cp = workload.NewCheckpointTransaction(tx.wtx)
	tx.rset = make(map[kv.Key]struct{})
	tx.wset = make(map[kv.Key]struct{})
	tx.writes = make(map[kv.Key]kv.Value)

	tx.cp.InstallGetStorage(func(addr kv.Address, slot kv.Slot) kv.Value {
		k := kv.Key{Addr: addr, Slot: slot}
		tx.rset[k] = struct{}{}
		return e.table.Load(k)
	})
	tx.cp.InstallSetStorage(func(addr kv.Address, slot kv.Slot, value kv.Value) checkpoint.StorageStatus {
		k := kv.Key{Addr: addr, Slot: slot}
		tx.wset[k] = struct{}{}
		tx.writes[k] = value
		return checkpoint.StatusOK
	})
	_ = tx.cp.Execute()
}

// tryCommit implements §4.5 step 3's two conditions, with the optional
// reordering rescue for a write-only conflict.
func (e *AriaFB) tryCommit(tx *ariaTx, byID map[uint64]*ariaTx, reservations *kv.Table[ariaReservation]) bool {
	for k := range tx.wset {
		var res ariaReservation
		reservations.Get(k, func(cur ariaReservation) { res = cur })
		if res.has && res.writer == tx.id {
			continue
		}
		if !e.reordering {
			return false
		}
		displacer, ok := byID[res.writer]
		if !ok {
			return false
		}
		for w := range tx.wset {
			if _, reads := displacer.rset[w]; reads {
				return false
			}
		}
	}
	for k := range tx.rset {
		var res ariaReservation
		reservations.Get(k, func(cur ariaReservation) { res = cur })
		if res.has && res.writer < tx.id {
			return false
		}
	}
	return true
}

func (e *AriaFB) finalize(tx *ariaTx) {
	for k, v := range tx.writes {
		e.table.Set(k, v)
	}
	e.stats.JournalExecute()
	e.stats.JournalOperations(uint64(tx.cp.CountOperations()))
	e.stats.JournalCommit(time.Since(tx.start))
}
