package randsrc

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThreadLocalConcurrentSamplesStayInRange(t *testing.T) {
	tl, err := NewThreadLocal(func(i int) (Sampler, error) {
		return NewZipf(rand.New(rand.NewSource(int64(i)+1)), 500, 1.2)
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				v := tl.Sample()
				require.GreaterOrEqual(t, v, int64(1))
				require.LessOrEqual(t, v, int64(500))
			}
		}()
	}
	wg.Wait()
}
