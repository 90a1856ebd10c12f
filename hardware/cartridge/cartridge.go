// Package cartridge implements the mapper variants games ship with --
// plain ROM, the Sega bank-switching mapper, NOR flash -- plus an EEPROM
// save-data variant and lock-on pass-through, all behind the common
// memorymap.Handler interface so the harness attaches whichever one a
// cartridge image needs without special-casing it elsewhere. There is no
// J-Cart variant: its two extra controller ports are not modelled.
package cartridge

import "github.com/kestrel-emu/megawave/hardware/memorymap"

// Mapper is the common shape every cartridge variant below satisfies, plus
// the bookkeeping the harness needs for save-state and backup-RAM
// persistence.
type Mapper interface {
	memorymap.Handler
	// SRAM returns the battery-backed save data, if any, for persistence
	// on process exit or checkpoint (invariant 7: saves persist only on
	// exit/checkpoint, not on every in-memory write).
	SRAM() []byte
}

// Plain is a ROM-only cartridge, optionally with a fixed SRAM window
// (commonly at 0x200000). The window is live whenever sramSize is
// non-zero: no register write switches it, and the flag SetSRAMEnabled
// records is not consulted by Read8 or Write8.
type Plain struct {
	rom       []byte
	sram      []byte
	sramAt    uint32
	sramSize  uint32
	sramOn    bool
}

// NewPlain creates a plain-ROM mapper. sramAt/sramSize of zero disables
// the SRAM window entirely.
func NewPlain(rom []byte, sramAt, sramSize uint32) *Plain {
	var sram []byte
	if sramSize > 0 {
		sram = make([]byte, sramSize)
	}
	return &Plain{rom: rom, sram: sram, sramAt: sramAt, sramSize: sramSize}
}

func (p *Plain) inSRAM(offset uint32) bool {
	return p.sram != nil && offset >= p.sramAt && offset < p.sramAt+p.sramSize
}

func (p *Plain) Read8(offset uint32) (uint8, error) {
	if p.inSRAM(offset) {
		return p.sram[offset-p.sramAt], nil
	}
	if int(offset) < len(p.rom) {
		return p.rom[offset], nil
	}
	return 0xFF, nil
}

func (p *Plain) Read16(offset uint32) (uint16, error) {
	hi, _ := p.Read8(offset)
	lo, _ := p.Read8(offset + 1)
	return uint16(hi)<<8 | uint16(lo), nil
}

func (p *Plain) Write8(offset uint32, value uint8) error {
	// Only the SRAM window accepts writes; writes anywhere else, ROM
	// included, are dropped. No SRAM enable register is decoded here.
	if !p.inSRAM(offset) {
		return nil
	}
	p.sram[offset-p.sramAt] = value
	return nil
}

func (p *Plain) Write16(offset uint32, value uint16) error {
	p.Write8(offset, uint8(value>>8))
	p.Write8(offset+1, uint8(value))
	return nil
}

func (p *Plain) SRAM() []byte { return p.sram }

// SetSRAMEnabled records an SRAM enable flag. Read8 and Write8 do not
// consult it, and the 68K bus decode does not call it.
func (p *Plain) SetSRAMEnabled(on bool) { p.sramOn = on }

// SegaMapper is the 8-bank, 512 KiB-per-window variant, the most common
// non-trivial mapper this console family uses.
type SegaMapper struct {
	rom   []byte
	sram  []byte
	banks [8]uint32 // each bank register selects which 512KiB ROM page is visible
}

const bankWindow = 512 * 1024

// NewSegaMapper creates a Sega-mapper cartridge with sramSize bytes of
// battery-backed save RAM (0 disables it).
func NewSegaMapper(rom []byte, sramSize uint32) *SegaMapper {
	m := &SegaMapper{rom: rom}
	if sramSize > 0 {
		m.sram = make([]byte, sramSize)
	}
	for i := range m.banks {
		m.banks[i] = uint32(i)
	}
	return m
}

func (m *SegaMapper) translate(offset uint32) uint32 {
	bank := offset / bankWindow
	within := offset % bankWindow
	if int(bank) >= len(m.banks) {
		return offset
	}
	return m.banks[bank]*bankWindow + within
}

func (m *SegaMapper) Read8(offset uint32) (uint8, error) {
	addr := m.translate(offset)
	if int(addr) < len(m.rom) {
		return m.rom[addr], nil
	}
	return 0xFF, nil
}

func (m *SegaMapper) Read16(offset uint32) (uint16, error) {
	hi, _ := m.Read8(offset)
	lo, _ := m.Read8(offset + 1)
	return uint16(hi)<<8 | uint16(lo), nil
}

// Write8 handles bank-register writes: a byte written at mapper-local
// offset 2n or 2n+1 (n = 1..7) selects which 512KiB page of the
// underlying ROM bank n maps to; bank 0's offsets are ignored. The
// harness forwards its 0xA13000-0xA130FF window with offsets relative to
// 0xA13000, so bank n's register sits at 0xA13000+2n; writes into the
// ROM range itself reach this method too.
func (m *SegaMapper) Write8(offset uint32, value uint8) error {
	bankReg := offset / 2
	if bankReg == 0 {
		return nil // bank 0 is not remappable; it always holds the boot vectors
	}
	if int(bankReg) < len(m.banks) {
		m.banks[bankReg] = uint32(value)
	}
	return nil
}

func (m *SegaMapper) Write16(offset uint32, value uint16) error {
	return m.Write8(offset+1, uint8(value))
}

func (m *SegaMapper) SRAM() []byte { return m.sram }

// EEPROM implements the two-wire (SCL/SDA) bit-serial protocol used by
// I2C save chips: a handful of cartridge designs expose SCL/SDA on two
// specific data-port bits rather than a flat address window.
type EEPROM struct {
	data []byte

	scl, sda     bool
	prevSCL      bool
	prevSDA      bool
	bitCount     int
	shiftReg     uint8
	addr         int
	phase        eepromPhase
	ackPending   bool
}

type eepromPhase int

const (
	phaseIdle eepromPhase = iota
	phaseDeviceAddr
	phaseWordAddr
	phaseData
)

// NewEEPROM creates an EEPROM of the given byte size (commonly 128 to
// 2048 bytes on this console family's save cartridges).
func NewEEPROM(size int) *EEPROM {
	return &EEPROM{data: make([]byte, size), phase: phaseIdle}
}

// SetLines drives the two-wire bus from the cartridge's SCL/SDA output
// pins, detecting start (SDA falls while SCL high) and stop (SDA rises
// while SCL high) conditions and shifting in bits on SCL rising edges.
func (e *EEPROM) SetLines(scl, sda bool) {
	if scl && e.prevSCL {
		if !sda && e.prevSDA {
			e.phase = phaseDeviceAddr
			e.bitCount = 0
			e.shiftReg = 0
		} else if sda && !e.prevSDA {
			e.phase = phaseIdle
		}
	}

	if scl && !e.prevSCL {
		e.shiftReg = (e.shiftReg << 1)
		if sda {
			e.shiftReg |= 1
		}
		e.bitCount++
		if e.bitCount == 8 {
			e.commitByte()
			e.bitCount = 0
		}
	}

	e.prevSCL = scl
	e.prevSDA = sda
	e.scl, e.sda = scl, sda
}

func (e *EEPROM) commitByte() {
	switch e.phase {
	case phaseDeviceAddr:
		e.phase = phaseWordAddr
	case phaseWordAddr:
		e.addr = int(e.shiftReg) % len(e.data)
		e.phase = phaseData
	case phaseData:
		if e.addr < len(e.data) {
			e.data[e.addr] = e.shiftReg
			e.addr = (e.addr + 1) % len(e.data)
		}
	}
}

// DataOut returns the bit the EEPROM is currently driving back onto SDA
// during a read cycle (the cartridge's read logic arbitrates the shared
// line outside this type).
func (e *EEPROM) DataOut() bool {
	if e.addr >= len(e.data) {
		return true
	}
	return e.data[e.addr]&0x80 != 0
}

// Bytes exposes the raw EEPROM contents for save-state/backup-file
// persistence.
func (e *EEPROM) Bytes() []byte { return e.data }

// NORFlash implements a JEDEC-like byte-wide command state machine: the
// three-cycle unlock sequence (0x5555<-0xAA, 0x2AAA<-0x55, 0x5555<-cmd)
// gates sector-erase (0x10/0x30) and byte-program (0xA0), matching the
// flash parts used on a handful of reproduction and multi-cart boards.
// Other commands, autoselect among them, are accepted and ignored: reads
// always return the array contents, never device IDs.
type NORFlash struct {
	data  []byte
	phase int
	cmd   uint8
}

// NewNORFlash creates a NOR flash mapper pre-loaded with rom's contents;
// writes mutate this shadow buffer directly rather than the original
// image, so the cartridge image can be reloaded fresh on reset.
func NewNORFlash(rom []byte) *NORFlash {
	data := make([]byte, len(rom))
	copy(data, rom)
	return &NORFlash{data: data}
}

func (f *NORFlash) Read8(offset uint32) (uint8, error) {
	if int(offset) < len(f.data) {
		return f.data[offset], nil
	}
	return 0xFF, nil
}

func (f *NORFlash) Read16(offset uint32) (uint16, error) {
	hi, _ := f.Read8(offset)
	lo, _ := f.Read8(offset + 1)
	return uint16(hi)<<8 | uint16(lo), nil
}

func (f *NORFlash) Write8(offset uint32, value uint8) error {
	switch f.phase {
	case 0:
		if f.cmd == 0xA0 {
			// byte-program: the write following the program command lands
			f.cmd = 0
			if int(offset) < len(f.data) {
				f.data[offset] = value
			}
			return nil
		}
		if offset == 0x5555 && value == 0xAA {
			f.phase = 1
		}
	case 1:
		if offset == 0x2AAA && value == 0x55 {
			f.phase = 2
		} else {
			f.phase = 0
		}
	case 2:
		f.phase = 0
		if value == 0x10 || value == 0x30 {
			f.eraseFrom(offset)
		}
		if value == 0xA0 {
			f.cmd = value
		}
		return nil
	}
	if f.phase == 0 && f.cmd == 0 {
		if int(offset) < len(f.data) {
			f.data[offset] = value
		}
	}
	return nil
}

func (f *NORFlash) eraseFrom(offset uint32) {
	sectorSize := uint32(0x10000)
	start := (offset / sectorSize) * sectorSize
	for i := uint32(0); i < sectorSize && start+i < uint32(len(f.data)); i++ {
		f.data[start+i] = 0xFF
	}
}

func (f *NORFlash) Write16(offset uint32, value uint16) error {
	f.Write8(offset, uint8(value>>8))
	return f.Write8(offset+1, uint8(value))
}

func (f *NORFlash) SRAM() []byte { return f.data }

// LockOn wraps a primary mapper with a secondary ROM image mapped
// read-only alongside it, selected by a host-controlled flag -- the
// pass-through behaviour reproduction "combiner" carts use to let one
// cartridge's code see another's ROM at a fixed offset.
type LockOn struct {
	Mapper
	secondary []byte
	enabled   bool
}

// NewLockOn wraps primary with secondary mapped at offset 0x400000 when
// enabled.
func NewLockOn(primary Mapper, secondary []byte) *LockOn {
	return &LockOn{Mapper: primary, secondary: secondary, enabled: true}
}

const lockOnBase = 0x400000

func (l *LockOn) Read8(offset uint32) (uint8, error) {
	if l.enabled && offset >= lockOnBase && int(offset-lockOnBase) < len(l.secondary) {
		return l.secondary[offset-lockOnBase], nil
	}
	return l.Mapper.Read8(offset)
}

func (l *LockOn) Read16(offset uint32) (uint16, error) {
	hi, _ := l.Read8(offset)
	lo, _ := l.Read8(offset + 1)
	return uint16(hi)<<8 | uint16(lo), nil
}
