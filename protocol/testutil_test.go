package protocol

import (
	"encoding/binary"
	"sync"

	"github.com/jacklightChen/spectrum-sub001/checkpoint"
	"github.com/jacklightChen/spectrum-sub001/kv"
	"github.com/jacklightChen/spectrum-sub001/workload"
)

// disjointWorkload produces transactions each reading then writing a
// single key of their own, never shared with any other transaction it
// has produced. Used to test the no-conflict path of every engine.
type disjointWorkload struct {
	mu sync.Mutex
	n  int64

	evmMu sync.Mutex
	evm   workload.EVMType
}

func (w *disjointWorkload) Next() *workload.Transaction {
	w.mu.Lock()
	w.n++
	id := w.n
	w.mu.Unlock()

	var addr kv.Address
	binary.BigEndian.PutUint64(addr[12:], uint64(id))
	k := kv.Key{Addr: addr}

	w.evmMu.Lock()
	evm := w.evm
	w.evmMu.Unlock()

	return &workload.Transaction{
		Caller:          addr,
		Callee:          addr,
		Bytecode:        []byte("disjoint"),
		PredictedReads:  []kv.Key{k},
		PredictedWrites: []kv.Key{k},
		Program: &checkpoint.Program{
			Keys: []kv.Key{k},
			Steps: []checkpoint.Step{
				{Kind: checkpoint.OpGet, KeyIndex: 0},
				{Kind: checkpoint.OpPut, KeyIndex: 0},
			},
		},
		EVMType: evm,
	}
}

func (w *disjointWorkload) SetEVMType(t workload.EVMType) {
	w.evmMu.Lock()
	w.evm = t
	w.evmMu.Unlock()
}

func testKey(n byte) kv.Key {
	var k kv.Key
	k.Slot[31] = n
	return k
}

func testValue(n byte) kv.Value {
	var v kv.Value
	v[31] = n
	return v
}
