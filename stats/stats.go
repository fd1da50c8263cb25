// Package stats implements the statistics sink every protocol engine
// journals into (§6, §9): an append-only bank of per-shard atomic
// counters for commits, executions, operations, and a latency histogram,
// aggregated on demand into a throughput report. Workload generation and
// CLI/logging prefixing are external collaborators (§1); this package is
// the "simple sharded counter bank" §6 sketches the contract for.
package stats

import (
	"encoding/binary"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/jacklightChen/spectrum-sub001/internal/xlog"
)

// Latency bucket boundaries, in microseconds (§6).
const (
	bucket25us  = 25
	bucket50us  = 50
	bucket100us = 100
)

const numBuckets = 4

type shard struct {
	executes   atomic.Uint64
	commits    atomic.Uint64
	operations atomic.Uint64
	buckets    [numBuckets]atomic.Uint64
}

// Stats is a sharded counter bank safe for concurrent use from any number
// of worker goroutines without their journaling calls contending on a
// single cache line.
type Stats struct {
	shards []*shard
	log    *xlog.Logger
}

// New builds a Stats bank with the given shard count (use a multiple of
// the expected worker count; 0 picks a reasonable default).
func New(shardCount int) *Stats {
	if shardCount <= 0 {
		shardCount = 64
	}
	s := &Stats{shards: make([]*shard, shardCount), log: xlog.Default().Module("stats")}
	for i := range s.shards {
		s.shards[i] = &shard{}
	}
	return s
}

// shardFor picks a shard by hashing a token derived from the calling
// goroutine's stack region, the same technique randsrc.ThreadLocal uses
// to spread load without a true thread-local.
func (s *Stats) shardFor() *shard {
	var probe byte
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(uintptr(unsafe.Pointer(&probe))))
	idx := xxhash.Sum64(buf[:]) % uint64(len(s.shards))
	return s.shards[idx]
}

func bucketIndex(latencyUs int64) int {
	switch {
	case latencyUs <= bucket25us:
		return 0
	case latencyUs <= bucket50us:
		return 1
	case latencyUs <= bucket100us:
		return 2
	default:
		return 3
	}
}

// JournalExecute records one transaction execution attempt. Each engine
// decides which attempts it journals: AriaFB journals every round a
// transaction runs in, including rejected ones; Sparkle journals one per
// committed transaction.
func (s *Stats) JournalExecute() {
	s.shardFor().executes.Add(1)
}

// JournalCommit records one committed transaction with its end-to-end
// latency.
func (s *Stats) JournalCommit(latency time.Duration) {
	sh := s.shardFor()
	sh.commits.Add(1)
	sh.buckets[bucketIndex(latency.Microseconds())].Add(1)
}

// JournalOperations records count storage operations performed.
func (s *Stats) JournalOperations(count uint64) {
	s.shardFor().operations.Add(count)
}

// Report is the aggregate snapshot produced by PrintWithDuration.
type Report struct {
	Executes          uint64
	Commits           uint64
	Operations        uint64
	LatencyBuckets    [numBuckets]uint64
	ExecutesPerCommit float64
	CommitsPerSecond  float64
	ExecutesPerSecond float64
}

// PrintWithDuration aggregates all shards into a Report, logs a summary
// line, and returns the report for programmatic use.
func (s *Stats) PrintWithDuration(d time.Duration) Report {
	var r Report
	for _, sh := range s.shards {
		r.Executes += sh.executes.Load()
		r.Commits += sh.commits.Load()
		r.Operations += sh.operations.Load()
		for i := 0; i < numBuckets; i++ {
			r.LatencyBuckets[i] += sh.buckets[i].Load()
		}
	}
	secs := d.Seconds()
	if r.Commits > 0 {
		r.ExecutesPerCommit = float64(r.Executes) / float64(r.Commits)
	}
	if secs > 0 {
		r.CommitsPerSecond = float64(r.Commits) / secs
		r.ExecutesPerSecond = float64(r.Executes) / secs
	}
	s.log.Info("benchmark complete",
		"executes", r.Executes,
		"commits", r.Commits,
		"operations", r.Operations,
		"commits_per_sec", r.CommitsPerSecond,
		"executes_per_sec", r.ExecutesPerSecond,
		"executes_per_commit", r.ExecutesPerCommit,
		"latency_le_25us", r.LatencyBuckets[0],
		"latency_le_50us", r.LatencyBuckets[1],
		"latency_le_100us", r.LatencyBuckets[2],
		"latency_gt_100us", r.LatencyBuckets[3],
	)
	return r
}
