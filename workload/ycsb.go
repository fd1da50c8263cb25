package workload

import (
	"sync"

	"github.com/jacklightChen/spectrum-sub001/checkpoint"
	"github.com/jacklightChen/spectrum-sub001/kv"
)

// ycsbBytecode is a placeholder bytecode blob; the embedded interpreter
// that would decode it is out of scope (§1). Its only purpose here is to
// give Transaction.Bytecode a non-nil value as the contract promises.
var ycsbBytecode = []byte("ycsb-read-modify-write")

// YCSB produces YCSB-C-style read-modify-write transactions: each
// transaction samples opsPerTx distinct record ids from sample (typically
// a Zipfian or uniform sampler over [1, numRecords]) and, per
// lib/workload/ycsb.cpp in the original implementation, reads then writes
// (observed value + 1 to) each one in turn.
type YCSB struct {
	sample   func() int64
	opsPerTx int
	contract kv.Address

	mu      sync.Mutex
	evmType EVMType
}

// NewYCSB builds a YCSB workload. sample must return values in
// [1, numRecords]; opsPerTx is the number of distinct records touched per
// transaction.
func NewYCSB(sample func() int64, opsPerTx int, contract kv.Address) *YCSB {
	if opsPerTx < 1 {
		opsPerTx = 1
	}
	return &YCSB{sample: sample, opsPerTx: opsPerTx, contract: contract}
}

func (w *YCSB) SetEVMType(t EVMType) {
	w.mu.Lock()
	w.evmType = t
	w.mu.Unlock()
}

func (w *YCSB) currentEVMType() EVMType {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.evmType
}

func (w *YCSB) Next() *Transaction {
	ids := make([]int64, w.opsPerTx)
	sampleUniqueN(w.sample, ids)

	keys := make([]kv.Key, w.opsPerTx)
	for i, id := range ids {
		keys[i] = keyFromRecordID(w.contract, id)
	}

	steps := make([]checkpoint.Step, 0, 2*w.opsPerTx)
	for i := range keys {
		steps = append(steps, checkpoint.Step{Kind: checkpoint.OpGet, KeyIndex: i})
		steps = append(steps, checkpoint.Step{Kind: checkpoint.OpPut, KeyIndex: i})
	}

	reads := append([]kv.Key(nil), keys...)
	writes := append([]kv.Key(nil), keys...)

	return &Transaction{
		Caller:          nextCallerAddress(),
		Callee:          w.contract,
		Bytecode:        ycsbBytecode,
		CallData:        encodeRecordIDs(ids),
		PredictedReads:  reads,
		PredictedWrites: writes,
		Program:         &checkpoint.Program{Keys: keys, Steps: steps},
		EVMType:         w.currentEVMType(),
	}
}

// sampleUniqueN is the same rejection-sampling loop as
// randsrc.SampleUniqueN, duplicated locally so workload does not need to
// import randsrc just for this helper (workload only needs "a source of
// int64 samples", not the sampler implementations themselves).
func sampleUniqueN(sample func() int64, dst []int64) {
	seen := make(map[int64]struct{}, len(dst))
	for i := range dst {
		for {
			v := sample()
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				dst[i] = v
				break
			}
		}
	}
}
