// Package bus defines the memory-bus interfaces shared by every component
// that participates in the 68K, Z80 or sub-CPU address spaces. A component
// that owns a region of memory (a RAM buffer, a cartridge mapper, the VDP's
// port pair) implements the subset of these interfaces relevant to it; the
// harness composes them into the flat CPUBus each CPU core actually talks
// to (see hardware/memorymap.Map).
package bus

import "errors"

// AddressError is returned (wrapped) by Read/Write when the address given
// does not correspond to a real bus responder -- equivalent to an open bus
// read or an unmapped write. Distinguished from other errors because an
// open-bus read is not fatal; it just returns the bus's "last value" or a
// floating pattern.
var AddressError = errors.New("bus: unmapped address")

// CPUBus is the primary interface a CPU core executes instructions against.
// All addresses are expressed in the CPU's own address space (24-bit for
// the 68K, 16-bit for the Z80).
type CPUBus interface {
	Read8(address uint32) (uint8, error)
	Read16(address uint32) (uint16, error)
	Write8(address uint32, value uint8) error
	Write16(address uint32, value uint16) error
}

// DebuggerBus defines out-of-band peek/poke access used by the debugger and
// by save-state comparisons. The interface does not itself make an access
// side-effect-free: memorymap.Map, the implementation the harness wires
// in, forwards Peek8/Poke8 to its Read8/Write8, so a peek or poke at a
// port region has that port's side effects.
type DebuggerBus interface {
	Peek8(address uint32) (uint8, error)
	Poke8(address uint32, value uint8) error
}

// ChipData describes the most recent write observed by a chip-level
// (non-CPU) memory region.
type ChipData struct {
	Name  string
	Value uint16
}

// InterruptSource is implemented by any component capable of asserting one
// of the 68K's seven interrupt priority levels (the VDP for VINT/HINT, the
// IO ports for EINT, the Sega CD gate array for its IRQ mask lines).
type InterruptSource interface {
	// Pending returns the highest currently-asserted level this source can
	// drive, and the vector to use (0 selects auto-vectoring).
	Pending() (level int, vector uint8, ok bool)

	// Acknowledge clears this source's currently-asserted flag for the given
	// level. Passing the wrong level is a no-op: the VDP's "whichever is
	// currently asserted" ack quirk is implemented by cpu68k re-reading
	// every source's Pending() when it acknowledges a level, not by
	// relying on the original level still being asserted.
	Acknowledge(level int)
}
