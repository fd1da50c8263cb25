package kv

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func key(a byte, s byte) Key {
	var k Key
	k.Addr[0] = a
	k.Slot[0] = s
	return k
}

func val(b byte) Value {
	var v Value
	v[31] = b
	return v
}

// TestTableRoundtrip checks the invariant from spec.md §8:
// Put(k, set(x)); Get(k, r) => r = x for any key and value.
func TestTableRoundtrip(t *testing.T) {
	tbl := NewTable[Value](8, Zero)
	k := key(1, 2)
	x := val(42)

	tbl.Set(k, x)

	var got Value
	tbl.Get(k, func(cur Value) { got = cur })
	require.Equal(t, x, got)
}

func TestTableGetOnUnsetKeyReturnsZero(t *testing.T) {
	tbl := NewTable[Value](8, Zero)
	got := tbl.Load(key(9, 9))
	require.Equal(t, Zero, got)
}

func TestTableConcurrentPutIsRaceFree(t *testing.T) {
	tbl := NewTable[Value](16, Zero)
	var wg sync.WaitGroup
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			k := key(byte(g), byte(g))
			for i := 0; i < 1000; i++ {
				tbl.Put(k, func(cur *Value) { cur[31]++ })
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 32; g++ {
		k := key(byte(g), byte(g))
		got := tbl.Load(k)
		require.EqualValues(t, 1000%256, got[31])
	}
}

func TestShardIndexStableForSameKey(t *testing.T) {
	tbl := NewTable[Value](32, Zero)
	k := key(5, 5)
	idx1 := tbl.ShardIndex(k)
	idx2 := tbl.ShardIndex(k)
	require.Equal(t, idx1, idx2)
	require.GreaterOrEqual(t, idx1, 0)
	require.Less(t, idx1, 32)
}
