package debugger

// watch is one polled memory location: Check reports a hit the first time
// the byte at Address differs from the value last observed. Rather than
// intercepting bus reads/writes directly, this debugger has no bus-tap
// hook to intercept through; polling once per instruction against Peek8
// (which never perturbs state) catches the same "this byte changed"
// condition for anything that isn't itself written and re-written to the
// same value within a single instruction.
type watch struct {
	Address uint32
	last    uint8
	primed  bool
}

// Watches is the set of addresses the debugger is polling.
type Watches struct {
	peek func(uint32) (uint8, error)
	list []*watch
}

// NewWatches returns an empty watch list that reads through peek (normally
// Machine.CPU.Peek8, an out-of-band read with no side effects).
func NewWatches(peek func(uint32) (uint8, error)) *Watches {
	return &Watches{peek: peek}
}

// Add starts watching addr. The first Check call after adding primes the
// baseline value rather than reporting a spurious hit.
func (w *Watches) Add(addr uint32) {
	w.list = append(w.list, &watch{Address: addr})
}

// Clear removes every watch.
func (w *Watches) Clear() {
	w.list = nil
}

// List returns the watched addresses.
func (w *Watches) List() []uint32 {
	out := make([]uint32, 0, len(w.list))
	for _, e := range w.list {
		out = append(out, e.Address)
	}
	return out
}

// Check polls every watch and returns the addresses whose value has
// changed since the last Check.
func (w *Watches) Check() []uint32 {
	var hit []uint32
	for _, e := range w.list {
		v, err := w.peek(e.Address)
		if err != nil {
			continue
		}
		if !e.primed {
			e.primed = true
			e.last = v
			continue
		}
		if v != e.last {
			hit = append(hit, e.Address)
			e.last = v
		}
	}
	return hit
}
