package protocol

import (
	"testing"
	"time"

	"github.com/jacklightChen/spectrum-sub001/stats"
	"github.com/stretchr/testify/require"
)

// TestAriaFBCommitsAllWhenDisjoint is §8 scenario 5: a workload of
// disjoint-key transactions should never suffer a reservation conflict,
// so every attempt commits on its first try (Executes == Commits).
func TestAriaFBCommitsAllWhenDisjoint(t *testing.T) {
	w := &disjointWorkload{}
	st := stats.New(8)
	e := NewAriaFB(w, st, 8, 4, false)
	e.Start()
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	r := st.PrintWithDuration(time.Millisecond)
	require.Greater(t, r.Commits, uint64(0))
	require.Equal(t, r.Executes, r.Commits)
}

func TestAriaFBStopIsBounded(t *testing.T) {
	w := &disjointWorkload{}
	st := stats.New(8)
	e := NewAriaFB(w, st, 16, 4, true)
	e.Start()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}
