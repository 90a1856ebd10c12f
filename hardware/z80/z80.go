// Package z80 wraps the third-party koron-go/z80 interpreter with the
// cycle-accurate bookkeeping the console's sound subsystem needs: a T-state
// lookup per opcode (the upstream library executes one whole instruction per
// Step with no exposed per-cycle hook), the EI instruction's one-instruction
// interrupt-acceptance delay that the library does not model, and the
// 68K-controlled BUSREQ/RESET lines that let the main CPU seize the Z80's
// bus entirely while it holds the sound CPU in reset.
package z80

import (
	"github.com/koron-go/z80"

	"github.com/kestrel-emu/megawave/hardware/memory/bus"
)

// memoryAdapter lets the Z80 core address a bus.CPUBus with 16-bit
// addresses, as the koron-go/z80.Memory interface expects.
type memoryAdapter struct {
	bus bus.CPUBus
}

func (m memoryAdapter) Get(addr uint16) uint8 {
	v, _ := m.bus.Read8(uint32(addr))
	return v
}

func (m memoryAdapter) Set(addr uint16, v uint8) {
	_ = m.bus.Write8(uint32(addr), v)
}

// nullIO answers every IN with open-bus 0xFF and discards every OUT: the
// sound CPU talks to the YM2612 and PSG through ordinary memory-mapped
// addresses, never through Z80 IN/OUT, so the port space is unconnected.
type nullIO struct{}

func (nullIO) In(port uint16) uint8     { return 0xFF }
func (nullIO) Out(port uint16, v uint8) {}

// CPU wraps a koron-go/z80.CPU with per-instruction T-state accounting and
// the BUSREQ/RESET control lines the 68K drives.
type CPU struct {
	cpu *z80.CPU
	mem memoryAdapter

	afterEI      bool
	cachedIM1Int *z80.Interrupt

	busRequested bool
	inReset      bool
}

// New creates a Z80 wired to mem, initially held in reset with its bus free
// (the console asserts both lines at power-on; software must release them
// before the sound CPU can run).
func New(mem bus.CPUBus) *CPU {
	adapter := memoryAdapter{bus: mem}
	c := &CPU{
		mem: adapter,
		cpu: &z80.CPU{
			Memory: adapter,
			IO:     nullIO{},
		},
		cachedIM1Int: z80.IM1Interrupt(),
		inReset:      true,
	}
	return c
}

// SetBusRequest asserts or releases the 68K's hold on the Z80 bus. While
// requested, Step is a no-op: the Z80 is suspended with its address/data
// lines floating so the 68K can read and write Z80 RAM and the bank window
// directly.
func (c *CPU) SetBusRequest(requested bool) {
	c.busRequested = requested
}

// BusAcknowledged reports the value the 68K reads back at 0xA11100: busy
// (not acknowledged) whenever the Z80 is actually running.
func (c *CPU) BusAcknowledged() bool {
	return c.busRequested || c.inReset
}

// SetReset asserts or releases the Z80 RESET line. Asserting it re-applies
// the processor's power-on register state the next time it is released.
func (c *CPU) SetReset(held bool) {
	if held && !c.inReset {
		c.inReset = true
		return
	}
	if !held && c.inReset {
		*c.cpu = z80.CPU{Memory: c.mem, IO: nullIO{}}
		c.afterEI = false
	}
	c.inReset = held
}

// Interrupt raises the Z80 maskable interrupt line (IM1, vector-less),
// which is how the VDP's VBlank line is wired into the sound CPU.
func (c *CPU) Interrupt() {
	if !c.inReset {
		c.cpu.Interrupt = c.cachedIM1Int
	}
}

// ClearInterrupt drops the interrupt line, matching the VDP's own
// level-triggered VINT flag being acknowledged.
func (c *CPU) ClearInterrupt() {
	c.cpu.Interrupt = nil
}

// PC returns the current program counter, used by save states and the
// debugger's disassembly view.
func (c *CPU) PC() uint16 { return c.cpu.PC }

// Step executes one instruction (or one cycle of suspension while the bus
// is requested or the CPU held in reset) and returns the T-states consumed.
//
// Per the Zilog Z80 User Manual, an EI instruction delays interrupt
// acceptance until the instruction immediately following it has executed;
// koron-go/z80 raises IFF1 on EI with no delay, so a pending interrupt would
// otherwise be serviced before the very HALT that EI;HALT sequences depend
// on for frame synchronisation. Step hides any pending interrupt for the one
// instruction after EI and restores it afterwards to reproduce the delay.
func (c *CPU) Step() int {
	if c.inReset || c.busRequested {
		return 4
	}

	var savedInterrupt *z80.Interrupt
	if c.afterEI && c.cpu.Interrupt != nil {
		savedInterrupt = c.cpu.Interrupt
		c.cpu.Interrupt = nil
	}
	c.afterEI = false

	if c.cpu.Interrupt != nil {
		if c.cpu.HALT {
			c.cpu.HALT = false
			c.cpu.PC++
		}
		if c.cpu.IFF1 {
			c.cpu.Step()
			return 13
		}
	}

	if c.cpu.HALT {
		return 4
	}

	pc := c.cpu.PC
	opcode := c.mem.Get(pc)
	cyclesUsed := c.lookupCycles(pc, opcode)

	c.cpu.Step()

	if opcode == 0xFB {
		c.afterEI = true
	}
	cyclesUsed = c.adjustConditional(opcode, pc, cyclesUsed)

	if savedInterrupt != nil {
		c.cpu.Interrupt = savedInterrupt
	}
	return cyclesUsed
}

func (c *CPU) lookupCycles(pc uint16, opcode uint8) int {
	switch opcode {
	case 0xCB:
		return cbCycles[c.mem.Get(pc+1)]
	case 0xDD:
		op2 := c.mem.Get(pc + 1)
		if op2 == 0xCB {
			return indexedBitCycles(c.mem.Get(pc + 3))
		}
		return ddfdCycles[op2]
	case 0xED:
		return edCycles[c.mem.Get(pc+1)]
	case 0xFD:
		op2 := c.mem.Get(pc + 1)
		if op2 == 0xCB {
			return indexedBitCycles(c.mem.Get(pc + 3))
		}
		return ddfdCycles[op2]
	default:
		return baseCycles[opcode]
	}
}

func indexedBitCycles(op4 uint8) int {
	if op4 >= 0x40 && op4 <= 0x7F {
		return 20
	}
	return 23
}

// adjustConditional corrects the table lookup for instructions whose cycle
// cost depends on whether a branch was actually taken, inferred from
// whether PC advanced past the instruction or jumped away.
func (c *CPU) adjustConditional(opcode uint8, pcBefore uint16, base int) int {
	pcAfter := c.cpu.PC
	switch opcode {
	case 0x20, 0x28, 0x30, 0x38: // JR cc,d
		if pcAfter == pcBefore+2 {
			return 7
		}
		return 12
	case 0xC0, 0xC8, 0xD0, 0xD8, 0xE0, 0xE8, 0xF0, 0xF8: // RET cc
		if pcAfter == pcBefore+1 {
			return 5
		}
		return 11
	case 0xC4, 0xCC, 0xD4, 0xDC, 0xE4, 0xEC, 0xF4, 0xFC: // CALL cc,nn
		if pcAfter == pcBefore+3 {
			return 10
		}
		return 17
	case 0x10: // DJNZ
		if pcAfter == pcBefore+2 {
			return 8
		}
		return 13
	case 0xED:
		switch c.mem.Get(pcBefore + 1) {
		case 0xB0, 0xB1, 0xB2, 0xB3, 0xB8, 0xB9, 0xBA, 0xBB: // LDIR/CPIR/INIR/OTIR and decrementing forms
			if pcAfter == pcBefore {
				return 21
			}
			return 16
		}
	}
	return base
}
