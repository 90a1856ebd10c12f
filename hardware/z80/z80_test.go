package z80

import (
	"testing"

	"github.com/kestrel-emu/megawave/hardware/memorymap"
)

func newTestBus(t *testing.T) *memorymap.Map {
	t.Helper()
	mm := memorymap.New(16)
	mm.Attach(0x0000, 0x10000, memorymap.NewRAM(0x10000))
	return mm
}

func TestNewHoldsCPUInReset(t *testing.T) {
	c := New(newTestBus(t))
	if !c.BusAcknowledged() {
		t.Fatalf("expected a freshly constructed Z80 to report bus-acknowledged while held in reset")
	}
}

func TestStepIsANoOpWhileInReset(t *testing.T) {
	mem := newTestBus(t)
	c := New(mem)

	pcBefore := c.PC()
	cycles := c.Step()
	if cycles != 4 {
		t.Fatalf("expected a fixed 4 T-states while held in reset, got %d", cycles)
	}
	if c.PC() != pcBefore {
		t.Fatalf("expected PC not to advance while held in reset")
	}
}

func TestStepIsANoOpWhileBusRequested(t *testing.T) {
	mem := newTestBus(t)
	c := New(mem)
	c.SetReset(false)
	c.SetBusRequest(true)

	if !c.BusAcknowledged() {
		t.Fatalf("expected BusAcknowledged while the 68K holds BUSREQ")
	}
	pcBefore := c.PC()
	c.Step()
	if c.PC() != pcBefore {
		t.Fatalf("expected PC not to advance while the bus is requested")
	}
}

func TestReleasingResetStartsExecutionAtZero(t *testing.T) {
	mem := newTestBus(t)
	mem.Write8(0, 0x00) // NOP
	c := New(mem)

	c.SetReset(false)
	if c.BusAcknowledged() {
		t.Fatalf("expected BusAcknowledged to drop once reset is released and the bus isn't requested")
	}
	if c.PC() != 0 {
		t.Fatalf("expected PC 0 immediately after releasing reset, got %#x", c.PC())
	}
	cycles := c.Step()
	if cycles != 4 {
		t.Fatalf("expected a NOP to cost 4 T-states, got %d", cycles)
	}
	if c.PC() != 1 {
		t.Fatalf("expected PC to advance past the NOP, got %#x", c.PC())
	}
}

func TestInterruptIsIgnoredWhileHeldInReset(t *testing.T) {
	mem := newTestBus(t)
	c := New(mem)
	c.Interrupt()

	if c.cpu.Interrupt != nil {
		t.Fatalf("expected Interrupt to have no effect while the CPU is held in reset")
	}
}

func TestClearInterruptDropsThePendingLine(t *testing.T) {
	mem := newTestBus(t)
	mem.Write8(0, 0x00) // NOP, so EI's delayed-acceptance logic doesn't interfere
	c := New(mem)
	c.SetReset(false)

	c.Interrupt()
	if c.cpu.Interrupt == nil {
		t.Fatalf("expected Interrupt to raise the line once the CPU is running")
	}
	c.ClearInterrupt()
	if c.cpu.Interrupt != nil {
		t.Fatalf("expected ClearInterrupt to drop the pending interrupt")
	}
}

func TestEIDelaysInterruptAcceptanceByOneInstruction(t *testing.T) {
	mem := newTestBus(t)
	mem.Write8(0, 0xFB) // EI
	mem.Write8(1, 0x00) // NOP, the instruction EI's delay must protect
	mem.Write8(2, 0x00) // NOP
	c := New(mem)
	c.SetReset(false)
	c.Interrupt()

	// EI itself: IFF1 becomes set by the underlying core, but the pending
	// interrupt must not be serviced on the very next Step.
	c.Step()
	pcAfterEI := c.PC()
	if pcAfterEI != 1 {
		t.Fatalf("expected PC 1 after EI, got %#x", pcAfterEI)
	}

	// The instruction immediately after EI: the interrupt must still be
	// suppressed for exactly this one step.
	c.Step()
	if c.PC() != 2 {
		t.Fatalf("expected PC 2 after the instruction following EI, got %#x", c.PC())
	}
	if c.cpu.Interrupt == nil {
		t.Fatalf("expected the interrupt line to still be pending after the delay window")
	}
}
