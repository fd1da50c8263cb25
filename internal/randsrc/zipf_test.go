package randsrc

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewZipfRejectsInvalidArgs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := NewZipf(rng, 0, 1.0)
	require.ErrorIs(t, err, ErrInvalidN)

	_, err = NewZipf(rng, 10, 0)
	require.ErrorIs(t, err, ErrInvalidExponent)

	_, err = NewZipf(rng, 10, -1)
	require.ErrorIs(t, err, ErrInvalidExponent)
}

func TestZipfSamplesWithinRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	z, err := NewZipf(rng, 1000, 1.0)
	require.NoError(t, err)

	for i := 0; i < 100000; i++ {
		v := z.Sample()
		require.GreaterOrEqual(t, v, int64(1))
		require.LessOrEqual(t, v, int64(1000))
	}
}

// TestZipfShapeMatchesHarmonicFrequency checks scenario 4 from spec.md §8:
// with N=1000, s=1.0, key 1's empirical frequency should be within ±5% of
// 1/H_{1000,1} where H is the generalized harmonic number.
func TestZipfShapeMatchesHarmonicFrequency(t *testing.T) {
	const n = 1000
	const trials = 2_000_000

	rng := rand.New(rand.NewSource(7))
	z, err := NewZipf(rng, n, 1.0)
	require.NoError(t, err)

	var hN float64
	for k := 1; k <= n; k++ {
		hN += 1.0 / float64(k)
	}
	expected := 1.0 / hN

	var hits int
	for i := 0; i < trials; i++ {
		if z.Sample() == 1 {
			hits++
		}
	}
	observed := float64(hits) / float64(trials)

	require.InEpsilon(t, expected, observed, 0.05)
}

func TestSampleUniqueNYieldsDistinctValues(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	u, err := NewUniform(rng, 1000)
	require.NoError(t, err)

	for _, l := range []int{1, 5, 50, 1000} {
		dst := make([]int64, l)
		SampleUniqueN(u.Sample, dst)
		require.Len(t, dst, l)

		seen := make(map[int64]struct{}, l)
		for _, v := range dst {
			_, dup := seen[v]
			require.False(t, dup, "duplicate value %d", v)
			seen[v] = struct{}{}
		}
	}
}

func TestHelperTaylorFallbackMatchesExactForm(t *testing.T) {
	// Near x=0 the helpers must agree closely with the exact log1p/expm1
	// forms at the same points, on both sides of the 1e-8 fallback threshold.
	xs := []float64{1e-9, -1e-9, 1e-7, -1e-7}
	for _, x := range xs {
		exact1 := math.Log1p(x) / x
		require.InDelta(t, exact1, helper1(x), 1e-6)

		exact2 := math.Expm1(x) / x
		require.InDelta(t, exact2, helper2(x), 1e-6)
	}
}
