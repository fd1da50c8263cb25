package workload

import (
	"sync"

	"github.com/jacklightChen/spectrum-sub001/checkpoint"
	"github.com/jacklightChen/spectrum-sub001/kv"
)

// smallbankProfile names the five Smallbank transaction shapes from
// lib/workload/smallbank.hpp in the original implementation.
type smallbankProfile int

const (
	profileAmalgamate smallbankProfile = iota
	profileBalance
	profileDepositChecking
	profileSendPayment
	profileWriteCheck
	profileCount
)

var smallbankBytecode = map[smallbankProfile][]byte{
	profileAmalgamate:      []byte("smallbank-amalgamate"),
	profileBalance:         []byte("smallbank-balance"),
	profileDepositChecking: []byte("smallbank-deposit-checking"),
	profileSendPayment:     []byte("smallbank-send-payment"),
	profileWriteCheck:      []byte("smallbank-write-check"),
}

// Smallbank produces transactions following the five Smallbank account
// profiles. Each account has two correlated storage slots (checking and
// savings); the accounts touched come from sample, a source of ids in
// [1, numAccounts], and the profile from profileSeq.
type Smallbank struct {
	sample      func() int64
	contract    kv.Address
	profileSeq  func() int64 // samples in [1, int64(profileCount)]

	mu      sync.Mutex
	evmType EVMType
}

// NewSmallbank builds a Smallbank workload. sample draws account ids in
// [1, numAccounts]; profileSample draws profile ids in
// [1, 5] (uniform profile selection is typical; callers needing a skewed
// profile mix can pass a Zipfian sampler instead).
func NewSmallbank(sample func() int64, profileSample func() int64, contract kv.Address) *Smallbank {
	return &Smallbank{sample: sample, profileSeq: profileSample, contract: contract}
}

func (w *Smallbank) SetEVMType(t EVMType) {
	w.mu.Lock()
	w.evmType = t
	w.mu.Unlock()
}

func (w *Smallbank) currentEVMType() EVMType {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.evmType
}

func checkingKey(contract kv.Address, account int64) kv.Key {
	return keyFromRecordID(contract, account*2)
}

func savingsKey(contract kv.Address, account int64) kv.Key {
	return keyFromRecordID(contract, account*2+1)
}

func (w *Smallbank) Next() *Transaction {
	profile := smallbankProfile((w.profileSeq() - 1) % int64(profileCount))

	var keys []kv.Key
	var steps []checkpoint.Step
	var reads, writes []kv.Key

	addRW := func(k kv.Key) {
		idx := len(keys)
		keys = append(keys, k)
		steps = append(steps,
			checkpoint.Step{Kind: checkpoint.OpGet, KeyIndex: idx},
			checkpoint.Step{Kind: checkpoint.OpPut, KeyIndex: idx},
		)
		reads = append(reads, k)
		writes = append(writes, k)
	}
	addR := func(k kv.Key) {
		idx := len(keys)
		keys = append(keys, k)
		steps = append(steps, checkpoint.Step{Kind: checkpoint.OpGet, KeyIndex: idx})
		reads = append(reads, k)
	}

	switch profile {
	case profileAmalgamate:
		// Move all funds from one account's checking+savings into
		// another account's checking.
		a1, a2 := w.sample(), w.sample()
		addR(savingsKey(w.contract, a1))
		addRW(checkingKey(w.contract, a1))
		addRW(checkingKey(w.contract, a2))
	case profileBalance:
		a := w.sample()
		addR(checkingKey(w.contract, a))
		addR(savingsKey(w.contract, a))
	case profileDepositChecking:
		a := w.sample()
		addRW(checkingKey(w.contract, a))
	case profileSendPayment:
		a1, a2 := w.sample(), w.sample()
		addRW(checkingKey(w.contract, a1))
		addRW(checkingKey(w.contract, a2))
	case profileWriteCheck:
		a := w.sample()
		addR(savingsKey(w.contract, a))
		addRW(checkingKey(w.contract, a))
	}

	return &Transaction{
		Caller:          nextCallerAddress(),
		Callee:          w.contract,
		Bytecode:        smallbankBytecode[profile],
		CallData:        encodeRecordIDs([]int64{int64(profile)}),
		PredictedReads:  reads,
		PredictedWrites: writes,
		Program:         &checkpoint.Program{Keys: keys, Steps: steps},
		EVMType:         w.currentEVMType(),
	}
}
