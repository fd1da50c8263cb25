package protocol

import (
	"testing"
	"time"

	"github.com/jacklightChen/spectrum-sub001/stats"
	"github.com/stretchr/testify/require"
)

func TestSerialCommitsAndStops(t *testing.T) {
	w := &disjointWorkload{}
	st := stats.New(4)
	s := NewSerial(w, st)
	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	r := st.PrintWithDuration(time.Millisecond)
	require.Greater(t, r.Commits, uint64(0))
	require.Equal(t, r.Executes, r.Commits)
}

func TestDummyCommitsWithMultipleWorkers(t *testing.T) {
	w := &disjointWorkload{}
	st := stats.New(8)
	d := NewDummy(w, st, 4)
	d.Start()
	time.Sleep(20 * time.Millisecond)
	d.Stop()

	r := st.PrintWithDuration(time.Millisecond)
	require.Greater(t, r.Commits, uint64(0))
}

func TestPlainEngineStopIsBounded(t *testing.T) {
	w := &disjointWorkload{}
	st := stats.New(4)
	s := NewSerial(w, st)
	s.Start()
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}
