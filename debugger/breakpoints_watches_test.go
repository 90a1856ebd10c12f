package debugger

import "testing"

func TestBreakpointsAddCheckRemove(t *testing.T) {
	b := NewBreakpoints()
	if b.Check(0x400) {
		t.Fatalf("expected no breakpoint before Add")
	}
	b.Add(0x400)
	if !b.Check(0x400) {
		t.Fatalf("expected Check to report the armed address")
	}
	b.Remove(0x400)
	if b.Check(0x400) {
		t.Fatalf("expected Remove to disarm the address")
	}
}

func TestBreakpointsClear(t *testing.T) {
	b := NewBreakpoints()
	b.Add(0x400)
	b.Add(0x600)
	b.Clear()
	if len(b.List()) != 0 {
		t.Fatalf("expected Clear to empty the set, got %v", b.List())
	}
}

func TestWatchesPrimesBaselineWithoutAFalseHitOnFirstCheck(t *testing.T) {
	mem := map[uint32]uint8{0x1000: 0x00}
	peek := func(addr uint32) (uint8, error) { return mem[addr], nil }

	w := NewWatches(peek)
	w.Add(0x1000)

	if hits := w.Check(); len(hits) != 0 {
		t.Fatalf("expected the first Check to prime the baseline, not report a hit, got %v", hits)
	}

	mem[0x1000] = 0x01
	hits := w.Check()
	if len(hits) != 1 || hits[0] != 0x1000 {
		t.Fatalf("expected a hit at 0x1000 once the value changed, got %v", hits)
	}

	// a second check with no further change should not repeat the hit.
	if hits := w.Check(); len(hits) != 0 {
		t.Fatalf("expected no hit once the value has stabilised, got %v", hits)
	}
}
