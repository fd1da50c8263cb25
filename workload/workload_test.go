package workload

import (
	"math/rand"
	"testing"

	"github.com/jacklightChen/spectrum-sub001/checkpoint"
	"github.com/jacklightChen/spectrum-sub001/kv"
	"github.com/stretchr/testify/require"
)

func TestYCSBNextProducesDistinctKeysAndBalancedProgram(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sample := func() int64 { return rng.Int63n(100) + 1 }
	w := NewYCSB(sample, 5, kv.Address{1})

	tx := w.Next()
	require.Len(t, tx.Program.Keys, 5)
	require.Len(t, tx.Program.Steps, 10)
	require.Len(t, tx.PredictedReads, 5)
	require.Len(t, tx.PredictedWrites, 5)

	seen := make(map[kv.Key]struct{})
	for _, k := range tx.Program.Keys {
		_, dup := seen[k]
		require.False(t, dup)
		seen[k] = struct{}{}
	}
}

func TestYCSBSetEVMTypeAffectsSubsequentTransactions(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	sample := func() int64 { return rng.Int63n(50) + 1 }
	w := NewYCSB(sample, 3, kv.Address{2})

	first := w.Next()
	require.Equal(t, Basic, first.EVMType)

	w.SetEVMType(CopyOnWrite)
	second := w.Next()
	require.Equal(t, CopyOnWrite, second.EVMType)
}

func TestSmallbankProducesAllFiveProfilesOverManyCalls(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	accountSample := func() int64 { return rng.Int63n(10) + 1 }
	var profileCounter int64
	profileSample := func() int64 {
		profileCounter++
		return profileCounter
	}
	w := NewSmallbank(accountSample, profileSample, kv.Address{3})

	seenLens := make(map[int]struct{})
	seenProfiles := make(map[string]struct{})
	for i := 0; i < int(profileCount); i++ {
		tx := w.Next()
		require.NotEmpty(t, tx.Program.Keys)
		seenLens[len(tx.Program.Keys)] = struct{}{}
		seenProfiles[string(tx.Bytecode)] = struct{}{}
	}
	require.Len(t, seenProfiles, int(profileCount))
	// Amalgamate touches 3 keys, SendPayment/Balance/WriteCheck 2,
	// DepositChecking 1 — at least two distinct shapes should appear.
	require.GreaterOrEqual(t, len(seenLens), 2)
}

func TestNewCheckpointTransactionUsesRequestedMode(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	sample := func() int64 { return rng.Int63n(20) + 1 }
	w := NewYCSB(sample, 2, kv.Address{4})

	w.SetEVMType(Strawman)
	tx := w.Next()
	cp := NewCheckpointTransaction(tx)
	_, ok := cp.(*checkpoint.StrawmanTransaction)
	require.True(t, ok)
}
