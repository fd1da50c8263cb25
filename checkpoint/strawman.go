package checkpoint

// strawmanSnapshot is a full deep copy of everything needed to resume
// execution: the program cursor and the entire simulated execution
// trace (standing in for stack/memory/gas/storage-overlay per §4.3).
type strawmanSnapshot struct {
	pc    int
	trace []byte
}

// StrawmanTransaction takes the most expensive checkpointing approach:
// every MakeCheckpoint deep-copies the entire execution state. Behavior
// is identical to Basic and CopyOnWrite; only the cost differs.
type StrawmanTransaction struct {
	execCore
	trace     []byte
	snapshots map[int]strawmanSnapshot
	nextID    int
}

// NewStrawmanTransaction wraps p in the Strawman checkpointing mode.
func NewStrawmanTransaction(p *Program) *StrawmanTransaction {
	return &StrawmanTransaction{
		execCore:  newExecCore(p),
		snapshots: make(map[int]strawmanSnapshot),
		nextID:    1,
	}
}

func (t *StrawmanTransaction) Execute() error {
	return t.runTraced()
}

// runTraced mirrors execCore.run but appends a byte to t.trace for every
// op actually performed, so MakeCheckpoint has real state to deep-copy.
func (t *StrawmanTransaction) runTraced() error {
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

func (t *StrawmanTransaction) MakeCheckpoint() int {
	id := t.nextID
	t.nextID++
	cp := strawmanSnapshot{pc: t.pc, trace: make([]byte, len(t.trace))}
	copy(cp.trace, t.trace)
	t.snapshots[id] = cp
	return id
}

func (t *StrawmanTransaction) ApplyCheckpoint(id int) {
	cp, ok := t.snapshots[id]
	if !ok {
		t.pc = 0
		t.trace = t.trace[:0]
		return
	}
	t.pc = cp.pc
	t.trace = make([]byte, len(cp.trace))
	copy(t.trace, cp.trace)
}
