// Package cpu68k implements a cycle-accurate Motorola 68000 interpreter
// built around the same coroutine-like shape as the Atari CPU core this
// project is descended from: every bus access invokes a CycleCallback
// immediately after the access completes, which is how the rest of the
// machine (VDP slots, the Z80, DMA, audio) gets to "catch up" to the exact
// clock edge the 68K just consumed. The interpreter never advances its own
// notion of time independently of the callback; Cycles() only reports what
// has already been reported to the callback.
package cpu68k

import (
	"fmt"

	"github.com/kestrel-emu/megawave/hardware/cpu68k/execution"
	"github.com/kestrel-emu/megawave/hardware/cpu68k/registers"
	"github.com/kestrel-emu/megawave/hardware/memory/bus"
)

// CycleCallback is invoked once per cycle the core reports (one per bus
// access, plus fixed counts for STOP and exception processing); the
// harness advances every other component by clocks.M68KDivider
// master-clock ticks per call, keeping them in lockstep. Returning a non-nil error aborts the in-flight
// instruction; ShouldExit-style early termination is reported this way.
type CycleCallback func() error

// Vector numbers for the exceptions this core raises directly. Device
// interrupts use Pending()'s level to select 24 (spurious) or 25-31
// (autovector) per the standard formula vecAutovector+level.
const (
	vecReset             = 0
	vecBusError          = 2
	vecAddressError      = 3
	vecIllegalInstruction = 4
	vecDivideByZero      = 5
	vecCHK               = 6
	vecTRAPV             = 7
	vecPrivilegeViolation = 8
	vecTrace             = 9
	vecLineA             = 10
	vecLineF             = 11
	vecSpurious          = 24
	vecAutovector        = 24 // + level (1-7)
	vecTrapBase          = 32 // + trap number (0-15)
)

// CPU is one MC68000 core. A Sega CD instance creates two (main and sub),
// each wired to its own bus.CPUBus and interrupt sources.
type CPU struct {
	Reg registers.File

	mem      bus.CPUBus
	dbg      bus.DebuggerBus
	interrupts []bus.InterruptSource

	cycleCallback CycleCallback

	stopped bool
	halted  bool

	cycles uint64

	pendingTrace bool

	lastResult execution.Result

	// LogAddresses, when non-nil, receives every instruction's starting PC;
	// it is how the "-l" flag's 68K code-address log is implemented without
	// coupling this package to the logger.
	LogAddresses func(pc uint32)
}

// New creates a CPU wired to mem for normal bus traffic and dbg for
// out-of-band debugger access (they are frequently, but not always,
// the same underlying memory map).
func New(mem bus.CPUBus, dbg bus.DebuggerBus) *CPU {
	return &CPU{mem: mem, dbg: dbg}
}

// AddInterruptSource registers a device (VDP, IO ports, Sega CD gate array)
// whose Pending level is consulted on every instruction boundary.
func (c *CPU) AddInterruptSource(src bus.InterruptSource) {
	c.interrupts = append(c.interrupts, src)
}

// SetCycleCallback installs the per-bus-cycle hook. Passing nil reverts to
// the interpreter running at full speed with no side-channel notification,
// used by tests that only care about register results.
func (c *CPU) SetCycleCallback(cb CycleCallback) {
	c.cycleCallback = cb
}

// Reset performs a hardware reset: SSP from address 0, PC from address 4,
// supervisor mode, interrupts masked at level 7, tracing off.
func (c *CPU) Reset() error {
	c.Reg.Reset()
	c.stopped = false
	c.halted = false
	c.cycles = 0

	ssp, err := c.read32(0)
	if err != nil {
		return err
	}
	pc, err := c.read32(4)
	if err != nil {
		return err
	}
	c.Reg.A[7] = ssp
	c.Reg.SSP = ssp
	c.Reg.PC = pc
	return nil
}

// Halted reports whether the core has stopped after a double bus fault
// (an exception raised while processing another exception).
func (c *CPU) Halted() bool { return c.halted }

// Cycles returns the number of bus cycles ticked through the callback since
// the last reset.
func (c *CPU) Cycles() uint64 { return c.cycles }

// LastResult describes the most recently completed instruction.
func (c *CPU) LastResult() execution.Result { return c.lastResult }

// Peek8 and Poke8 give the debugger out-of-band memory access, forwarding
// straight to the bus's bus.DebuggerBus half without ticking any cycles.
// Whether the access has side effects is up to that half: memorymap.Map
// forwards to its Read8/Write8, so port regions see a real access.
func (c *CPU) Peek8(address uint32) (uint8, error) { return c.dbg.Peek8(address) }
func (c *CPU) Poke8(address uint32, value uint8) error { return c.dbg.Poke8(address, value) }

func (c *CPU) tick(n int) error {
	c.cycles += uint64(n)
	if c.cycleCallback == nil {
		return nil
	}
	for i := 0; i < n; i++ {
		if err := c.cycleCallback(); err != nil {
			return err
		}
	}
	return nil
}

func (c *CPU) read8(addr uint32) (uint8, error) {
	v, err := c.mem.Read8(addr)
	if err != nil {
		return 0, err
	}
	if err := c.tick(1); err != nil {
		return 0, err
	}
	return v, nil
}

func (c *CPU) read16(addr uint32) (uint16, error) {
	if addr&1 != 0 {
		return 0, c.addressError(addr)
	}
	v, err := c.mem.Read16(addr)
	if err != nil {
		return 0, err
	}
	if err := c.tick(1); err != nil {
		return 0, err
	}
	return v, nil
}

func (c *CPU) read32(addr uint32) (uint32, error) {
	hi, err := c.read16(addr)
	if err != nil {
		return 0, err
	}
	lo, err := c.read16(addr + 2)
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

func (c *CPU) write8(addr uint32, v uint8) error {
	if err := c.mem.Write8(addr, v); err != nil {
		return err
	}
	return c.tick(1)
}

func (c *CPU) write16(addr uint32, v uint16) error {
	if addr&1 != 0 {
		return c.addressError(addr)
	}
	if err := c.mem.Write16(addr, v); err != nil {
		return err
	}
	return c.tick(1)
}

func (c *CPU) write32(addr uint32, v uint32) error {
	if err := c.write16(addr, uint16(v>>16)); err != nil {
		return err
	}
	return c.write16(addr+2, uint16(v))
}

func (c *CPU) fetch16() (uint16, error) {
	v, err := c.read16(c.Reg.PC)
	if err != nil {
		return 0, err
	}
	c.Reg.PC += 2
	return v, nil
}

func (c *CPU) fetch32() (uint32, error) {
	hi, err := c.fetch16()
	if err != nil {
		return 0, err
	}
	lo, err := c.fetch16()
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

func (c *CPU) push16(v uint16) error {
	c.Reg.A[7] -= 2
	return c.write16(c.Reg.A[7], v)
}

func (c *CPU) push32(v uint32) error {
	c.Reg.A[7] -= 4
	return c.write32(c.Reg.A[7], v)
}

func (c *CPU) pop16() (uint16, error) {
	v, err := c.read16(c.Reg.A[7])
	if err != nil {
		return 0, err
	}
	c.Reg.A[7] += 2
	return v, nil
}

func (c *CPU) pop32() (uint32, error) {
	v, err := c.read32(c.Reg.A[7])
	if err != nil {
		return 0, err
	}
	c.Reg.A[7] += 4
	return v, nil
}

func (c *CPU) addressError(addr uint32) error {
	return fmt.Errorf("cpu68k: address error at %06x", addr)
}

// Step executes exactly one instruction (or services one pending STOP tick,
// or one pending exception) and returns its Result.
func (c *CPU) Step() (execution.Result, error) {
	if c.halted {
		return execution.Result{Exception: "halted"}, nil
	}

	if level, vector, ok := c.highestPending(); ok && level > int(c.Reg.SR.IntMask) {
		if err := c.takeException(vecAutovector+level, vector, true); err != nil {
			return execution.Result{}, err
		}
		r := execution.Result{Mnemonic: "interrupt", Exception: fmt.Sprintf("level %d", level), Final: true}
		c.lastResult = r
		return r, nil
	}

	if c.stopped {
		if err := c.tick(4); err != nil {
			return execution.Result{}, err
		}
		return execution.Result{Mnemonic: "STOP", Final: true}, nil
	}

	if c.Reg.PC&1 != 0 {
		if err := c.takeException(vecAddressError, 0, false); err != nil {
			return execution.Result{}, err
		}
		return execution.Result{Exception: "address error"}, nil
	}

	start := c.Reg.PC
	if c.LogAddresses != nil {
		c.LogAddresses(start)
	}

	opcode, err := c.fetch16()
	if err != nil {
		return execution.Result{}, err
	}

	r, err := c.execute(opcode)
	if err != nil {
		return execution.Result{}, err
	}
	r.Address = start
	r.Final = true
	c.lastResult = r

	if c.Reg.SR.Trace && r.Exception == "" {
		if err := c.takeException(vecTrace, 0, false); err != nil {
			return execution.Result{}, err
		}
	}
	return r, nil
}

// highestPending asks every registered InterruptSource for its level and
// returns the highest one currently asserted, re-querying after the ack
// (see bus.InterruptSource's doc comment) rather than trusting a cached
// value -- this is the "whichever is currently asserted" quirk from the
// VDP's interrupt behaviour.
func (c *CPU) highestPending() (level int, vector uint8, ok bool) {
	for _, src := range c.interrupts {
		if l, v, pending := src.Pending(); pending && l > level {
			level, vector, ok = l, v, true
		}
	}
	return
}

func (c *CPU) acknowledgeInterrupt(level int) {
	for _, src := range c.interrupts {
		if l, _, pending := src.Pending(); pending && l == level {
			src.Acknowledge(level)
		}
	}
}

// takeException pushes SR and PC, enters supervisor mode, clears tracing,
// raises the interrupt mask to the serviced level (for device interrupts),
// acknowledges the source, and loads PC from the vector table.
func (c *CPU) takeException(vectorNumber int, explicitVector uint8, isInterrupt bool) error {
	oldSR := c.Reg.SR.Value()
	c.Reg.SetSupervisor(true)
	c.Reg.SR.Trace = false

	if isInterrupt {
		level := vectorNumber - vecAutovector
		c.acknowledgeInterrupt(level)
		if explicitVector != 0 {
			vectorNumber = int(explicitVector)
		}
		c.Reg.SR.IntMask = uint8(level)
		c.stopped = false
	}

	if err := c.push32(c.Reg.PC); err != nil {
		return err
	}
	if err := c.push16(oldSR); err != nil {
		return err
	}

	addr, err := c.read32(uint32(vectorNumber) * 4)
	if err != nil {
		if c.halted {
			return err
		}
		c.halted = true
		return err
	}
	if addr == 0 {
		c.halted = true
		return fmt.Errorf("cpu68k: double fault servicing vector %d", vectorNumber)
	}
	c.Reg.PC = addr
	return c.tick(4)
}

// staticInterrupt is a convenience used by tests and simple harnesses that don't
// want to implement a full bus.InterruptSource for a one-shot IRQ.
type staticInterrupt struct {
	level   int
	vector  uint8
	pending bool
}

func (s *staticInterrupt) Pending() (int, uint8, bool) { return s.level, s.vector, s.pending }
func (s *staticInterrupt) Acknowledge(int)             { s.pending = false }

// RequestInterrupt asserts a one-shot autovectored or vectored interrupt at
// the given level by adding a new source; earlier one-shot requests stay
// registered alongside it. Hardware interrupt sources should implement bus.InterruptSource and
// be added with AddInterruptSource instead; this exists for test fixtures.
func (c *CPU) RequestInterrupt(level int, vector uint8) {
	c.interrupts = append(c.interrupts, &staticInterrupt{level: level, vector: vector, pending: true})
}
