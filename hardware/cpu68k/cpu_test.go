package cpu68k

import (
	"testing"

	"github.com/kestrel-emu/megawave/hardware/memorymap"
)

// newTestCPU builds a CPU over a single flat 1MiB RAM region, with the
// reset vectors at 0/4 pointing at SSP=0x10000 and PC=0x400 so tests can
// write instructions starting at 0x400 without colliding with the vector
// table itself.
func newTestCPU(t *testing.T) (*CPU, *memorymap.RAMBuffer) {
	t.Helper()
	ram := memorymap.NewRAM(1024 * 1024)
	mm := memorymap.New(24)
	mm.Attach(0, 1024*1024, ram)

	ram.Buf[0] = 0x00
	ram.Buf[1] = 0x01
	ram.Buf[2] = 0x00
	ram.Buf[3] = 0x00 // SSP = 0x00010000
	ram.Buf[4] = 0x00
	ram.Buf[5] = 0x00
	ram.Buf[6] = 0x04
	ram.Buf[7] = 0x00 // PC = 0x00000400

	c := New(mm, mm)
	if err := c.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return c, ram
}

func putWord(ram *memorymap.RAMBuffer, addr uint32, v uint16) {
	ram.Buf[addr] = byte(v >> 8)
	ram.Buf[addr+1] = byte(v)
}

func TestResetLoadsSSPAndPCFromVectors(t *testing.T) {
	c, _ := newTestCPU(t)
	if c.Reg.A[7] != 0x00010000 {
		t.Fatalf("expected SSP 0x10000, got %#x", c.Reg.A[7])
	}
	if c.Reg.PC != 0x00000400 {
		t.Fatalf("expected PC 0x400, got %#x", c.Reg.PC)
	}
	if !c.Reg.SR.Supervisor {
		t.Fatalf("reset should leave the CPU in supervisor mode")
	}
	if c.Reg.SR.IntMask != 7 {
		t.Fatalf("reset should mask interrupts at level 7, got %d", c.Reg.SR.IntMask)
	}
}

func TestMOVEQSetsRegisterAndNegativeFlag(t *testing.T) {
	c, ram := newTestCPU(t)
	putWord(ram, 0x400, 0x7EFF) // MOVEQ #-1, D7

	if _, err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.Reg.D[7] != 0xFFFFFFFF {
		t.Fatalf("expected D7 = 0xFFFFFFFF, got %#x", c.Reg.D[7])
	}
	if !c.Reg.SR.Negative {
		t.Fatalf("MOVEQ #-1 should set the negative flag")
	}
	if c.Reg.SR.Zero {
		t.Fatalf("MOVEQ #-1 should not set the zero flag")
	}
}

func TestMOVEQZeroSetsZeroFlag(t *testing.T) {
	c, ram := newTestCPU(t)
	putWord(ram, 0x400, 0x7400) // MOVEQ #0, D2

	if _, err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.Reg.D[2] != 0 {
		t.Fatalf("expected D2 = 0, got %#x", c.Reg.D[2])
	}
	if !c.Reg.SR.Zero {
		t.Fatalf("MOVEQ #0 should set the zero flag")
	}
}

func TestBRATakenAdvancesPCByDisplacement(t *testing.T) {
	c, ram := newTestCPU(t)
	putWord(ram, 0x400, 0x6010) // BRA +16 (short displacement)

	if _, err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	want := uint32(0x400 + 2 + 0x10)
	if c.Reg.PC != want {
		t.Fatalf("expected PC %#x after BRA, got %#x", want, c.Reg.PC)
	}
}

func TestNOPAdvancesPCWithoutSideEffects(t *testing.T) {
	c, ram := newTestCPU(t)
	putWord(ram, 0x400, 0x4E71) // NOP
	c.Reg.D[0] = 0x12345678

	if _, err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.Reg.PC != 0x402 {
		t.Fatalf("expected PC 0x402 after NOP, got %#x", c.Reg.PC)
	}
	if c.Reg.D[0] != 0x12345678 {
		t.Fatalf("NOP must not touch registers")
	}
}

type fixedInterrupt struct {
	level   int
	vector  uint8
	pending bool
	acked   bool
}

func (f *fixedInterrupt) Pending() (int, uint8, bool) { return f.level, f.vector, f.pending }
func (f *fixedInterrupt) Acknowledge(level int) {
	f.acked = true
	f.pending = false
}

func TestHighestPendingPicksHighestLevelAcrossSources(t *testing.T) {
	c, _ := newTestCPU(t)
	low := &fixedInterrupt{level: 2, pending: true}
	high := &fixedInterrupt{level: 6, pending: true}
	c.AddInterruptSource(low)
	c.AddInterruptSource(high)

	level, _, ok := c.highestPending()
	if !ok || level != 6 {
		t.Fatalf("expected highest pending level 6, got level=%d ok=%v", level, ok)
	}
}

func TestStepServicesPendingInterruptBeforeExecutingNextInstruction(t *testing.T) {
	c, ram := newTestCPU(t)
	putWord(ram, 0x400, 0x4E71) // NOP, should not run this step

	// vector 26 = autovector for level 2 (24 + 2)
	putWord(ram, 26*4, 0x0000)
	putWord(ram, 26*4+2, 0x0800)

	src := &fixedInterrupt{level: 2, pending: true}
	c.AddInterruptSource(src)
	c.Reg.SR.IntMask = 0 // reset leaves interrupts masked at 7; lower it so level 2 is serviced

	r, err := c.Step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if r.Mnemonic != "interrupt" {
		t.Fatalf("expected the pending interrupt to be serviced first, got %q", r.Mnemonic)
	}
	if !src.acked {
		t.Fatalf("expected the interrupt source to be acknowledged")
	}
	if c.Reg.PC != 0x0800 {
		t.Fatalf("expected PC to load from the autovector, got %#x", c.Reg.PC)
	}
	if c.Reg.SR.IntMask != 2 {
		t.Fatalf("expected interrupt mask raised to the serviced level, got %d", c.Reg.SR.IntMask)
	}
}
