// Package memorymap builds the flat bus.CPUBus a CPU core executes against
// out of a list of regions, each a tagged variant over a RAM buffer, a ROM
// buffer, or a dispatch to a named I/O handler. This mirrors the "function
// pointers inside memory maps" structure noted for the source project: address
// decode there is a table of (start, end, read fn, write fn, opaque data)
// entries resolved once at map-construction time rather than re-derived on
// every access. Go has no function-pointer-in-struct idiom as such, but the
// same shape falls out of an interface value stored per region.
package memorymap

import (
	"fmt"

	"github.com/kestrel-emu/megawave/hardware/memory/bus"
)

// Handler services all accesses within a mapped region. Regions backed by a
// flat buffer use the package-level RAM/ROM helpers to build one; components
// with side effects (the VDP ports, the bank-switch register, the PSG write
// port) implement Handler directly.
type Handler interface {
	Read8(offset uint32) (uint8, error)
	Read16(offset uint32) (uint16, error)
	Write8(offset uint32, value uint8) error
	Write16(offset uint32, value uint16) error
}

// region is one entry in the decode table: [Start, End) in the CPU's address
// space, mapped onto a Handler at a local offset.
type region struct {
	start, end uint32
	h          Handler
}

// Map is an ordered list of regions forming a complete bus.CPUBus. Regions
// are tried in the order they were added with Attach; the first containing
// the address wins, matching the source project's first-match linear decode
// (the 68K map has under two dozen entries, so a linear scan is simpler and
// no slower in practice than a radix lookup).
type Map struct {
	regions []region
	mask    uint32 // address lines actually decoded, e.g. 0x00FFFFFF for the 68K
}

// New creates a Map that decodes the given number of address bits.
func New(addressBits uint) *Map {
	return &Map{mask: (uint32(1) << addressBits) - 1}
}

// Attach adds a region spanning [start, end) backed by h. Later calls are
// consulted only if an earlier one does not claim the address, so more
// specific (smaller, higher-priority) regions should be attached first.
func (m *Map) Attach(start, end uint32, h Handler) {
	m.regions = append(m.regions, region{start: start & m.mask, end: end & m.mask, h: h})
}

func (m *Map) find(address uint32) (Handler, uint32, bool) {
	address &= m.mask
	for _, r := range m.regions {
		if address >= r.start && address < r.end {
			return r.h, address - r.start, true
		}
	}
	return nil, 0, false
}

func (m *Map) Read8(address uint32) (uint8, error) {
	h, off, ok := m.find(address)
	if !ok {
		return 0, fmt.Errorf("memorymap: read8 %06x: %w", address, bus.AddressError)
	}
	return h.Read8(off)
}

func (m *Map) Read16(address uint32) (uint16, error) {
	h, off, ok := m.find(address &^ 1)
	if !ok {
		return 0, fmt.Errorf("memorymap: read16 %06x: %w", address, bus.AddressError)
	}
	return h.Read16(off)
}

func (m *Map) Write8(address uint32, value uint8) error {
	h, off, ok := m.find(address)
	if !ok {
		return fmt.Errorf("memorymap: write8 %06x: %w", address, bus.AddressError)
	}
	return h.Write8(off, value)
}

func (m *Map) Write16(address uint32, value uint16) error {
	h, off, ok := m.find(address &^ 1)
	if !ok {
		return fmt.Errorf("memorymap: write16 %06x: %w", address, bus.AddressError)
	}
	return h.Write16(off, value)
}

// Peek8 and Poke8 implement bus.DebuggerBus by delegating to the same
// region decode Read8/Write8 use. For RAM/ROM-backed regions this is
// genuinely side-effect-free; a region backed by a port with real side
// effects (an I/O data register advancing its TH handshake on read, any
// write to a VDP port) sees a real access, a debugger-visibility gap
// noted in DESIGN.md. There is no second, non-destructive handler
// interface.
func (m *Map) Peek8(address uint32) (uint8, error) { return m.Read8(address) }
func (m *Map) Poke8(address uint32, value uint8) error { return m.Write8(address, value) }

// RAMBuffer is a Handler backed by a plain byte slice, used for work RAM,
// sound RAM, VRAM-adjacent scratch, and any other directly-addressable
// storage. Reads/writes past the end of buf wrap, matching the console's
// habit of mirroring undersized RAM across its decoded window.
type RAMBuffer struct {
	Buf []byte
}

// NewRAM allocates a zeroed RAM region of the given size.
func NewRAM(size int) *RAMBuffer {
	return &RAMBuffer{Buf: make([]byte, size)}
}

func (r *RAMBuffer) idx(offset uint32) int {
	return int(offset) % len(r.Buf)
}

func (r *RAMBuffer) Read8(offset uint32) (uint8, error) {
	return r.Buf[r.idx(offset)], nil
}

func (r *RAMBuffer) Read16(offset uint32) (uint16, error) {
	i := r.idx(offset &^ 1)
	return uint16(r.Buf[i])<<8 | uint16(r.Buf[(i+1)%len(r.Buf)]), nil
}

func (r *RAMBuffer) Write8(offset uint32, value uint8) error {
	r.Buf[r.idx(offset)] = value
	return nil
}

func (r *RAMBuffer) Write16(offset uint32, value uint16) error {
	i := r.idx(offset &^ 1)
	r.Buf[i] = byte(value >> 8)
	r.Buf[(i+1)%len(r.Buf)] = byte(value)
	return nil
}

// ROMBuffer is a Handler backed by a read-only byte slice; writes are
// silently discarded, matching open-bus behaviour for cartridge ROM rather
// than raising a bus error (real carts simply don't drive a response).
type ROMBuffer struct {
	Buf []byte
}

func NewROM(data []byte) *ROMBuffer {
	return &ROMBuffer{Buf: data}
}

func (r *ROMBuffer) idx(offset uint32) int {
	if len(r.Buf) == 0 {
		return 0
	}
	return int(offset) % len(r.Buf)
}

func (r *ROMBuffer) Read8(offset uint32) (uint8, error) {
	if len(r.Buf) == 0 {
		return 0xFF, nil
	}
	return r.Buf[r.idx(offset)], nil
}

func (r *ROMBuffer) Read16(offset uint32) (uint16, error) {
	if len(r.Buf) == 0 {
		return 0xFFFF, nil
	}
	i := r.idx(offset &^ 1)
	return uint16(r.Buf[i])<<8 | uint16(r.Buf[(i+1)%len(r.Buf)]), nil
}

func (r *ROMBuffer) Write8(uint32, uint8) error   { return nil }
func (r *ROMBuffer) Write16(uint32, uint16) error { return nil }

// FuncHandler adapts four plain functions into a Handler, for small
// registers (a single interrupt-mask byte, a bank-select latch) that don't
// warrant a dedicated type.
type FuncHandler struct {
	ReadByte   func(offset uint32) (uint8, error)
	ReadWord   func(offset uint32) (uint16, error)
	WriteByte  func(offset uint32, value uint8) error
	WriteWord  func(offset uint32, value uint16) error
}

func (f FuncHandler) Read8(offset uint32) (uint8, error) {
	if f.ReadByte == nil {
		return 0xFF, nil
	}
	return f.ReadByte(offset)
}

func (f FuncHandler) Read16(offset uint32) (uint16, error) {
	if f.WriteWord == nil && f.ReadWord == nil {
		b, err := f.Read8(offset)
		return uint16(b)<<8 | uint16(b), err
	}
	return f.ReadWord(offset)
}

func (f FuncHandler) Write8(offset uint32, value uint8) error {
	if f.WriteByte == nil {
		return nil
	}
	return f.WriteByte(offset, value)
}

func (f FuncHandler) Write16(offset uint32, value uint16) error {
	if f.WriteWord == nil {
		if f.WriteByte == nil {
			return nil
		}
		if err := f.WriteByte(offset, uint8(value>>8)); err != nil {
			return err
		}
		return f.WriteByte(offset+1, uint8(value))
	}
	return f.WriteWord(offset, value)
}
