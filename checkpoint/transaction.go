package checkpoint

import "github.com/jacklightChen/spectrum-sub001/kv"

// Transaction is the checkpointing transaction contract (§4.3). Only this
// contract matters to the rest of the scheduler: Basic, Strawman, and
// CopyOnWrite differ solely in the cost of MakeCheckpoint/ApplyCheckpoint,
// never in observable behavior.
type Transaction interface {
	// InstallGetStorage registers the handler invoked for every storage
	// read raised while executing.
	InstallGetStorage(fn GetStorageFunc)
	// InstallSetStorage registers the handler invoked for every storage
	// write raised while executing.
	InstallSetStorage(fn SetStorageFunc)
	// Execute runs the program to completion, invoking the installed
	// handlers for every storage op and incrementing the operation
	// counter on each one actually performed. A handler may call
	// ApplyCheckpoint on this same transaction from within itself to
	// rewind execution to an earlier point before returning; Execute
	// resumes the loop from wherever the handler left the cursor.
	Execute() error
	// MakeCheckpoint snapshots enough state to resume execution just
	// before the storage op currently being serviced. It is meant to be
	// called from within an installed handler, whose invocation is the
	// "next storage op" the checkpoint resumes before.
	MakeCheckpoint() int
	// ApplyCheckpoint restores execution to the point identified by id.
	// All operations after that point are forgotten; the next Execute
	// (or the remainder of the current one, if called from a handler)
	// resumes from there. Idempotent under repeated rollback to the
	// same or an earlier checkpoint.
	ApplyCheckpoint(id int)
	// CountOperations returns the number of storage operations actually
	// performed in the current trace since the last FlushOperations.
	CountOperations() int
	// FlushOperations resets the operation counter used by
	// CountOperations, without affecting execution state.
	FlushOperations()
}

// execCore holds the interpreter state shared by all three modes: a
// cursor into the program and the counters every mode must expose
// identically.
type execCore struct {
	program *Program
	pc      int
	opCount int
	getFn   GetStorageFunc
	setFn   SetStorageFunc

	// lastGetKeyIndex/lastGetValue remember the most recent OpGet's key
	// and observed value, so a following OpPut on the same KeyIndex can
	// write back an updated value instead of a placeholder (the
	// read-modify-write shape every Program the workloads build uses:
	// each OpPut immediately follows the OpGet for its KeyIndex).
	lastGetKeyIndex int
	lastGetValue    kv.Value
}

func newExecCore(p *Program) execCore {
	return execCore{program: p, lastGetKeyIndex: -1}
}

func (c *execCore) InstallGetStorage(fn GetStorageFunc) { c.getFn = fn }
func (c *execCore) InstallSetStorage(fn SetStorageFunc) { c.setFn = fn }
func (c *execCore) CountOperations() int                { return c.opCount }
func (c *execCore) FlushOperations()                    { c.opCount = 0 }

// run drives the interpreter loop from the current pc. A handler may
// rewind c.pc (via ApplyCheckpoint) from inside invoke; run detects this
// by comparing pc before and after the call and, if unchanged, advances
// normally and counts the op. If the handler rewound pc, the op is not
// counted and the loop simply continues from the new cursor.
func (c *execCore) run() error {
	for c.pc < len(c.program.Steps) {
		executedPC := c.pc
		c.invoke(c.program.Steps[executedPC])
		if c.pc == executedPC {
			c.opCount++
			c.pc++
		}
	}
	return nil
}

func (c *execCore) invoke(step Step) {
	key := c.program.Keys[step.KeyIndex]
	switch step.Kind {
	case OpGet:
		if c.getFn != nil {
			c.lastGetValue = c.getFn(key.Addr, key.Slot)
			c.lastGetKeyIndex = step.KeyIndex
		}
	case OpPut:
		if c.setFn != nil {
			// Read-modify-write: every Program the workloads build
			// emits OpPut immediately after the OpGet for the same
			// KeyIndex, so the value just observed is the one to
			// increment and write back (lib/workload/ycsb.cpp's
			// read_modify_write shape). A write with no immediately
			// preceding read of the same key falls back to a
			// placeholder, since there is no observed value to base it on.
			v := kv.Value{31: byte(step.KeyIndex%255 + 1)}
			if c.lastGetKeyIndex == step.KeyIndex {
				v = c.lastGetValue.AddSmall(1)
			}
			c.setFn(key.Addr, key.Slot, v)
		}
	}
}
