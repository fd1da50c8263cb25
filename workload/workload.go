// Package workload implements the synthetic transaction generators (YCSB,
// Smallbank) driven by a configurable key-access distribution (§4,
// "Workload"). Workload generation beyond the statistical distribution
// interface is otherwise out of scope (§1); this package supplies just
// enough of a transaction shape — caller/callee addresses, a bytecode
// blob, call-data, and a checkpoint.Program standing in for what the
// embedded bytecode interpreter would compile that call-data into — for
// the protocol engines to actually drive an executable transaction.
package workload

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/jacklightChen/spectrum-sub001/checkpoint"
	"github.com/jacklightChen/spectrum-sub001/kv"
)

// EVMType selects the checkpointing transaction mode (§4.3) used for
// transactions produced from the point SetEVMType is called onward.
type EVMType int

const (
	Basic EVMType = iota
	Strawman
	CopyOnWrite
)

// Transaction is one unit of work a Workload produces.
type Transaction struct {
	Caller          kv.Address
	Callee          kv.Address
	Bytecode        []byte
	CallData        []byte
	PredictedReads  []kv.Key
	PredictedWrites []kv.Key
	Program         *checkpoint.Program
	EVMType         EVMType
}

// NewCheckpointTransaction builds the checkpointing transaction mode
// requested by tx.EVMType wrapping tx.Program, for a protocol engine to
// install storage handlers on and Execute.
func NewCheckpointTransaction(tx *Transaction) checkpoint.Transaction {
	switch tx.EVMType {
	case Strawman:
		return checkpoint.NewStrawmanTransaction(tx.Program)
	case CopyOnWrite:
		return checkpoint.NewCowTransaction(tx.Program)
	default:
		return checkpoint.NewBasicTransaction(tx.Program)
	}
}

// Workload produces transactions on demand (§4, §6).
type Workload interface {
	Next() *Transaction
	SetEVMType(t EVMType)
}

// keyFromRecordID maps a sampled record id to a deterministic storage key
// under addr, encoding the id big-endian in the low 8 bytes of the slot.
func keyFromRecordID(addr kv.Address, id int64) kv.Key {
	var k kv.Key
	k.Addr = addr
	binary.BigEndian.PutUint64(k.Slot[24:], uint64(id))
	return k
}

// callerCounter is shared across workload implementations so concurrent
// Next() calls (a single Workload may be driven by several worker
// goroutines) still produce distinct caller addresses.
var callerCounter uint64

func nextCallerAddress() kv.Address {
	n := atomic.AddUint64(&callerCounter, 1)
	var a kv.Address
	binary.BigEndian.PutUint64(a[12:], n)
	return a
}

func encodeRecordIDs(ids []int64) []byte {
	buf := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(id))
	}
	return buf
}
