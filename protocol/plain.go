package protocol

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacklightChen/spectrum-sub001/checkpoint"
	"github.com/jacklightChen/spectrum-sub001/kv"
	"github.com/jacklightChen/spectrum-sub001/stats"
	"github.com/jacklightChen/spectrum-sub001/workload"
)

// plainEngine is the shared shape behind Serial and Dummy (§4.7): a
// worker pool executing transactions directly against a plain table with
// no conflict detection whatsoever. The only difference between the two
// is the worker count Serial pins to 1.
type plainEngine struct {
	workload workload.Workload
	stats    *stats.Stats
	table    *kv.Table[kv.Value]
	workers  int

	stop atomic.Bool
	wg   sync.WaitGroup
}

func newPlainEngine(w workload.Workload, s *stats.Stats, workers int) *plainEngine {
	if workers < 1 {
		workers = 1
	}
	return &plainEngine{
		workload: w,
		stats:    s,
		table:    kv.NewTable[kv.Value](kv.DefaultShardCount, kv.Zero),
		workers:  workers,
	}
}

func (e *plainEngine) Start() {
	e.wg.Add(e.workers)
	for i := 0; i < e.workers; i++ {
		go e.runWorker()
	}
}

func (e *plainEngine) Stop() {
	e.stop.Store(true)
	e.wg.Wait()
}

func (e *plainEngine) runWorker() {
	defer e.wg.Done()
	for !e.stop.Load() {
		start := time.Now()
		tx := e.workload.Next()
		cp := workload.NewCheckpointTransaction(tx)

		cp.InstallGetStorage(func(addr kv.Address, slot kv.Slot) kv.Value {
			return e.table.Load(kv.Key{Addr: addr, Slot: slot})
		})
		cp.InstallSetStorage(func(addr kv.Address, slot kv.Slot, value kv.Value) checkpoint.StorageStatus {
			e.table.Set(kv.Key{Addr: addr, Slot: slot}, value)
			return checkpoint.StatusOK
		})

		e.stats.JournalExecute()
		_ = cp.Execute()
		e.stats.JournalOperations(uint64(cp.CountOperations()))
		e.stats.JournalCommit(time.Since(start))

		if e.stop.Load() {
			return
		}
	}
}

// Serial runs every transaction on a single worker against a plain table:
// no contention is possible, so no conflict detection is needed (§4.7).
type Serial struct {
	*plainEngine
}

// NewSerial builds the single-worker baseline engine.
func NewSerial(w workload.Workload, s *stats.Stats) *Serial {
	return &Serial{plainEngine: newPlainEngine(w, s, 1)}
}

// Dummy runs a fixed pool of workers against a shared plain table with no
// conflict detection at all (§4.7): an upper bound on raw execution
// throughput, ignoring correctness.
type Dummy struct {
	*plainEngine
}

// NewDummy builds the Dummy baseline engine with the given worker count.
func NewDummy(w workload.Workload, s *stats.Stats, workers int) *Dummy {
	return &Dummy{plainEngine: newPlainEngine(w, s, workers)}
}
