package checkpoint

// CowTransaction uses a copy-on-write execution trace: MakeCheckpoint
// just records the current trace length (O(1), no copying — the
// unwritten prefix is shared with every earlier snapshot), and
// ApplyCheckpoint truncates back to that length. Only the bytes appended
// since the restored checkpoint are ever discarded; nothing is ever deep
// copied. Behavior is identical to Basic and Strawman; only the cost
// differs.
type CowTransaction struct {
	execCore
	trace     []byte
	snapshots map[int]cowSnapshot
	nextID    int
}

type cowSnapshot struct {
	pc       int
	traceLen int
}

// NewCowTransaction wraps p in the CopyOnWrite checkpointing mode.
func NewCowTransaction(p *Program) *CowTransaction {
	return &CowTransaction{
		execCore:  newExecCore(p),
		snapshots: make(map[int]cowSnapshot),
		nextID:    1,
	}
}

func (t *CowTransaction) Execute() error {
	for t.pc < len(t.program.Steps) {
		executedPC := t.pc
		t.invoke(t.program.Steps[executedPC])
		if t.pc == executedPC {
			t.trace = append(t.trace, byte(t.program.Steps[executedPC].Kind))
			t.opCount++
			t.pc++
		}
	}
	return nil
}

func (t *CowTransaction) MakeCheckpoint() int {
	id := t.nextID
	t.nextID++
	t.snapshots[id] = cowSnapshot{pc: t.pc, traceLen: len(t.trace)}
	return id
}

func (t *CowTransaction) ApplyCheckpoint(id int) {
	cp, ok := t.snapshots[id]
	if !ok {
		t.pc = 0
		t.trace = t.trace[:0]
		return
	}
	t.pc = cp.pc
	// Words after traceLen are privately owned by the rolled-back
	// branch and dropped; the prefix is shared, untouched memory.
	t.trace = t.trace[:cp.traceLen]
}
