// Package protocol implements the five transaction-scheduling engines
// benchmarked against each other (§4.7, §4.4, §4.5, §4.6): Serial, Dummy,
// Sparkle/Spectrum, Aria-FB, and Calvin. Each owns its own table, worker
// pool, and stop flag behind the common Protocol capability set (§9,
// "Dynamic dispatch across protocols").
package protocol

import (
	"github.com/jacklightChen/spectrum-sub001/workload"
)

// Protocol is the capability set every engine exposes to a driver (§9):
// construction wires in a Workload and a Stats sink, and the rest of the
// engine's state stays unexported.
type Protocol interface {
	// Start spawns the engine's worker pool (and, for Calvin, its
	// dispatcher) and returns immediately; workers run until Stop.
	Start()
	// Stop sets the shared stop flag and joins every worker before
	// returning (§5, "Cancellation / shutdown").
	Stop()
}

// source is the subset of workload.Workload that yields a stream of
// transactions to drive. The engines themselves hold a full
// workload.Workload.
type source interface {
	Next() *workload.Transaction
}
