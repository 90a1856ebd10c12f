// Package vdp implements the Sega video display processor: its 24-register
// file, 64 KiB of VRAM plus CRAM and VSRAM, the 4-entry FIFO and three DMA
// modes, the sprite engine, and the slot-accurate horizontal/vertical
// counter state machine that drives VINT/HINT (the EINT flag Pending
// reports is never raised inside this package).
//
// The state machine is deliberately a flat (line, hslot) pair advanced
// one slot at a time by Step, rather than the giant re-entrant switch real
// VDP implementations often grow into: the whole of a slot's behaviour
// lives in one function call.
package vdp

import (
	"github.com/kestrel-emu/megawave/eventlog"
	"github.com/kestrel-emu/megawave/hardware/memory/bus"
)

const (
	vramSize  = 65536
	cramBytes = 128 // 64 entries x 2 bytes
	vsramBytes = 80 // 40 entries x 2 bytes (64 in some variants; unused tail stays zero)
)

// Region selects NTSC (262 lines) or PAL (313 lines) timing.
type Region int

const (
	NTSC Region = iota
	PAL
)

func (r Region) linesPerFrame() int {
	if r == PAL {
		return 313
	}
	return 262
}

// portWriteState tracks the two-word control-port protocol: the first
// word is latched, and a second control-port word (rather than a data-port
// write) completes the command instead of starting a transfer.
type portWriteState struct {
	latched    bool
	firstWord  uint16
}

// VDP is one video display processor instance.
type VDP struct {
	region Region

	reg [24]uint8

	vram  [vramSize]byte
	cram  [cramBytes]byte
	vsram [vsramBytes]byte

	satCache [80][4]byte // shadow of each sprite's first 4 bytes, indexed by sprite slot

	addr       uint16
	code       uint8 // 6-bit CD (code/destination) field
	pending    portWriteState
	readBuffer uint16
	readLatched bool

	fifo fifo

	dmaRunning bool
	dmaFillLatch uint16
	dmaFillArmed bool

	hslot int
	line  int
	field bool // alternating parity in interlace; unused outside interlace modes

	cycle uint64

	vintPending bool
	hintPending bool
	eintPending bool
	hintCounter uint8

	spriteOverflow bool
	spriteCollisionMask bool

	// Framebuffer holds one palette-index byte per pixel for every active
	// line of the frame (256 pixels per line; H40 columns past 256 are
	// cropped), each line composited by renderLine when that line's last
	// slot completes.
	Framebuffer [256 * 240]uint8

	// RGBFrame holds the same pixels as Framebuffer, already resolved
	// through cramColor into packed 8-bit-per-channel RGB triples, so a
	// display backend can blit it directly without its own copy of the
	// CRAM decode.
	RGBFrame [256 * 240 * 3]uint8

	mem68k bus.CPUBus // the 68K-side bus, read during 68K->VDP DMA

	events *eventlog.Writer // non-nil only when "-e" is in effect
}

// New creates a VDP in its post-reset state.
func New(region Region) *VDP {
	v := &VDP{region: region}
	v.Reset()
	return v
}

// AttachSourceBus gives the VDP access to the 68K bus for 68K->VDP DMA
// transfers, which read directly from cartridge ROM or work RAM.
func (v *VDP) AttachSourceBus(b bus.CPUBus) { v.mem68k = b }

// AttachEventLog arms the "-e" deterministic-replay trace: every
// committed VRAM/CRAM/VSRAM write and every register write is appended to
// w from this point on.
func (v *VDP) AttachEventLog(w *eventlog.Writer) { v.events = w }

func (v *VDP) logEvent(kind eventlog.Kind, address uint32, value uint16) {
	if v.events == nil {
		return
	}
	_ = v.events.Write(eventlog.Event{
		Cycle:   v.cycle,
		Kind:    kind,
		Address: address,
		Value:   value,
	}, uint32(v.autoIncrement()))
}

// Reset clears all registers, memories and pipeline state.
func (v *VDP) Reset() {
	v.reg = [24]uint8{}
	v.vram = [vramSize]byte{}
	v.cram = [cramBytes]byte{}
	v.vsram = [vsramBytes]byte{}
	v.satCache = [80][4]byte{}
	v.addr = 0
	v.code = 0
	v.pending = portWriteState{}
	v.readLatched = false
	v.fifo.reset()
	v.dmaRunning = false
	v.dmaFillArmed = false
	v.hslot = 0
	v.line = 0
	v.cycle = 0
	v.vintPending = false
	v.hintPending = false
	v.eintPending = false
	v.hintCounter = v.reg[regHInterruptCounter]
	v.spriteOverflow = false
	v.spriteCollisionMask = false
}

// slotsPerLine returns the slot count for the current horizontal mode.
func (v *VDP) slotsPerLine() int {
	if v.h40() {
		return 420
	}
	return 342
}

// Pending implements bus.InterruptSource: VINT (level 6) takes priority
// over HINT (level 4), which takes priority over the IO EINT (level 2);
// only one of the three is ever reported at a time by the VDP's own
// priority encoder, independent of whatever else shares the level with it.
func (v *VDP) Pending() (level int, vector uint8, ok bool) {
	switch {
	case v.vintPending && v.vintEnabled():
		return 6, 0, true
	case v.hintPending && v.hintEnabled():
		return 4, 0, true
	case v.eintPending:
		return 2, 0, true
	}
	return 0, 0, false
}

// Acknowledge clears whichever flag is currently asserted at level, not
// necessarily the one that was pending when the interrupt was first
// raised: a HINT at level 4 can be superseded by VINT at level 6 racing in
// between assertion and acknowledge, and the CPU must see whatever is
// asserted *now*.
func (v *VDP) Acknowledge(level int) {
	switch level {
	case 6:
		v.vintPending = false
	case 4:
		v.hintPending = false
	case 2:
		v.eintPending = false
	}
}

// ReadControlPort returns the VDP status word: bits for FIFO empty/full,
// vblank/hblank, sprite overflow/collision and DMA busy. No odd-field
// flag is reported.
func (v *VDP) ReadControlPort() uint16 {
	v.pending = portWriteState{}
	var s uint16 = 0x3400 // fixed bits per hardware: always-1 region/undocumented bits
	if v.fifo.empty() {
		s |= 0x0200
	}
	if v.fifo.full() {
		s |= 0x0100
	}
	if v.inVBlank() {
		s |= 0x0008
	}
	if v.inHBlank() {
		s |= 0x0004
	}
	if v.spriteOverflow {
		s |= 0x0040
	}
	if v.spriteCollisionMask {
		s |= 0x0020
	}
	if v.dmaRunning {
		s |= 0x0002
	}
	return s
}

func (v *VDP) inVBlank() bool {
	return v.line >= activeLines(v.region)
}

func (v *VDP) inHBlank() bool {
	total := v.slotsPerLine()
	return v.hslot >= total-total/5
}

func activeLines(r Region) int {
	if r == PAL {
		return 240
	}
	return 224
}

// WriteControlPort handles a 16-bit write to the control port. The first
// word of a two-word command is latched; the second completes it (setting
// the address/code registers, and triggering a DMA if the command's DMA
// bit and the enable register bit are both set). A write whose top two
// bits are 10 instead targets a register directly ("register write"
// shorthand), which is how games set up the VDP without going through the
// two-word command protocol at all.
func (v *VDP) WriteControlPort(word uint16) {
	if !v.pending.latched && word&0xC000 == 0x8000 {
		regNum := (word >> 8) & 0x1F
		if int(regNum) < len(v.reg) {
			v.reg[regNum] = uint8(word)
			if regNum == regHInterruptCounter {
				v.hintCounter = uint8(word)
			}
			v.logEvent(eventlog.KindRegister, uint32(regNum), uint16(uint8(word)))
		}
		return
	}

	if !v.pending.latched {
		v.pending.firstWord = word
		v.pending.latched = true
		v.addr = (v.addr &^ 0x3FFF) | (word & 0x3FFF)
		v.code = (v.code &^ 0x03) | uint8((word>>14)&0x03)
		return
	}

	v.pending.latched = false
	v.addr = (v.addr &^ 0xC000) | ((word & 0x0003) << 14)
	v.code = (v.code &^ 0x3C) | uint8((word>>2)&0x3C)

	if word&0x0080 != 0 && v.dmaEnabled() {
		v.startDMA()
	}
}

// FIFOFull reports whether the write FIFO has no free slot. The bus caller
// is expected to check this before WriteDataPort and stall the 68K (by
// advancing every other component one cycle at a time) until it clears,
// the same way real hardware inserts wait states on a data port write that
// finds the FIFO backed up.
func (v *VDP) FIFOFull() bool { return v.fifo.full() }

// WriteDataPort enqueues one FIFO entry destined for whichever RAM the
// current code/destination selects, advancing the address latch by the
// auto-increment register afterward as hardware does immediately, not
// when the entry drains. Callers must not invoke this while FIFOFull
// reports true; doing so silently drops the write rather than blocking,
// since only the bus has the means to advance simulated time.
func (v *VDP) WriteDataPort(word uint16) {
	v.pending.latched = false
	t := v.destination()
	if !v.fifo.enqueue(fifoEntry{
		earliestCycle: v.cycle + 1,
		address:       v.addr,
		value:         word,
		target:        t,
	}) {
		return
	}
	v.addr += v.autoIncrement()

	if v.dmaFillArmed {
		v.dmaFillLatch = word
		v.dmaFillArmed = false
		v.runFillDMA()
	}
}

// WriteDataPortByte performs a CPU byte-sized write to the data port. The
// data port is wired as a 16-bit-only peripheral, so in standard VRAM
// addressing a byte write always lands at addr^1 regardless of which
// byte lane the 68K targeted, never at addr itself (the VRAM mirror
// invariant). 128K VRAM mode is the one exception: its address space is
// genuinely byte-addressable, so the write lands exactly where
// addressed. CRAM and VSRAM have no byte-addressable mode, so a byte
// write there is promoted to a word write with the byte duplicated onto
// both halves, matching the bus's open high/low lane for those targets.
// Bypasses the FIFO entirely: unlike word writes, byte writes are rare
// enough (used by a handful of titles' VRAM-clearing loops) that the
// extra one-slot delay isn't worth modelling.
func (v *VDP) WriteDataPortByte(value uint8) {
	v.pending.latched = false
	t := v.destination()
	if t != targetVRAM {
		v.commit(fifoEntry{address: v.addr, value: uint16(value)<<8 | uint16(value), target: t})
		v.addr += v.autoIncrement()
		return
	}

	addr := v.addr
	if !v.vram128KMode() {
		addr ^= 1
	}
	v.vram[addr%vramSize] = value
	v.refreshSATCache(addr)
	v.logEvent(eventlog.KindVRAM, uint32(addr), uint16(value))
	v.addr += v.autoIncrement()
}

func (v *VDP) destination() target {
	switch v.code & 0x0F {
	case 0x01, 0x00:
		return targetVRAM
	case 0x03:
		return targetCRAM
	case 0x05:
		return targetVSRAM
	default:
		return targetVRAM
	}
}

// ReadDataPort returns the word at the current address in the selected
// RAM and advances the address latch, matching a CPU read of the VDP's
// data port outside of any FIFO involvement (reads are never queued).
func (v *VDP) ReadDataPort() uint16 {
	v.pending.latched = false
	var result uint16
	switch v.destination() {
	case targetVRAM:
		result = uint16(v.vram[v.addr])<<8 | uint16(v.vram[(v.addr+1)%vramSize])
	case targetCRAM:
		result = uint16(v.cram[v.addr%cramBytes])<<8 | uint16(v.cram[(v.addr+1)%cramBytes])
	case targetVSRAM:
		result = uint16(v.vsram[v.addr%vsramBytes])<<8 | uint16(v.vsram[(v.addr+1)%vsramBytes])
	}
	v.addr += v.autoIncrement()
	return result
}

func (v *VDP) commit(e fifoEntry) {
	switch e.target {
	case targetVRAM:
		v.vram[e.address%vramSize] = uint8(e.value >> 8)
		v.vram[(e.address+1)%vramSize] = uint8(e.value)
		v.refreshSATCache(e.address)
		v.logEvent(eventlog.KindVRAM, uint32(e.address), e.value)
	case targetCRAM:
		idx := e.address % cramBytes
		v.cram[idx] = uint8(e.value >> 8)
		v.cram[(idx+1)%cramBytes] = uint8(e.value)
		v.logEvent(eventlog.KindCRAM, uint32(e.address), e.value)
	case targetVSRAM:
		idx := e.address % vsramBytes
		v.vsram[idx] = uint8(e.value >> 8)
		v.vsram[(idx+1)%vsramBytes] = uint8(e.value)
		v.logEvent(eventlog.KindVSRAM, uint32(e.address), e.value)
	}
}

// refreshSATCache keeps the sprite-attribute shadow copy (satCache) in
// sync whenever a VRAM write lands inside the live sprite table. The
// sprite scan in render.go reads the table from VRAM, not from this copy.
func (v *VDP) refreshSATCache(addr uint16) {
	base := v.spriteTableAddr()
	if addr < base || addr >= base+640 {
		return
	}
	offset := addr - base
	slot := offset / 8
	within := offset % 8
	if slot >= uint16(len(v.satCache)) || within >= 4 {
		return
	}
	v.satCache[slot][within] = v.vram[addr]
	if within+1 < 4 {
		v.satCache[slot][within+1] = v.vram[(addr+1)%vramSize]
	}
}

func (v *VDP) startDMA() {
	mode := (v.reg[regDMASourceHi] >> 6) & 0x03
	switch {
	case mode == 0 || mode == 1: // 68K -> VDP
		v.runMemoryDMA()
	case mode == 2: // VRAM fill, armed by the next data-port write
		v.dmaFillArmed = true
	case mode == 3: // VRAM copy
		v.runCopyDMA()
	}
}

func (v *VDP) dmaLength() int {
	n := int(v.reg[regDMALengthHi])<<8 | int(v.reg[regDMALengthLo])
	if n == 0 {
		return 0x10000
	}
	return n
}

func (v *VDP) dmaSourceAddr() uint32 {
	return uint32(v.reg[regDMASourceHi]&0x7F)<<17 | uint32(v.reg[regDMASourceMid])<<9 | uint32(v.reg[regDMASourceLo])<<1
}

// runMemoryDMA copies directly from the 68K's address space into the
// currently selected VDP RAM, one word per call rather than modelled
// per-slot, which is an acceptable simplification given DMA already holds
// the 68K off the bus for its whole duration.
func (v *VDP) runMemoryDMA() {
	if v.mem68k == nil {
		return
	}
	v.dmaRunning = true
	length := v.dmaLength()
	src := v.dmaSourceAddr()
	t := v.destination()
	addr := v.addr
	for i := 0; i < length; i++ {
		word, _ := v.mem68k.Read16(src)
		v.directWrite(t, addr, word)
		addr += v.autoIncrement()
		src += 2
	}
	v.addr = addr
	v.reg[regDMALengthLo] = 0
	v.reg[regDMALengthHi] = 0
	v.dmaRunning = false
}

func (v *VDP) runFillDMA() {
	v.dmaRunning = true
	length := v.dmaLength()
	// The data-port write that armed the fill has already advanced the
	// address latch; the fill starts at the address that write targeted
	// and lands each fill byte on the odd half of the word (addr^1).
	addr := v.addr - v.autoIncrement()
	fillByte := uint8(v.dmaFillLatch >> 8)
	for i := 0; i < length; i++ {
		v.vram[int(addr^1)%vramSize] = fillByte
		v.refreshSATCache(addr ^ 1)
		v.logEvent(eventlog.KindVRAM, uint32(addr^1), uint16(fillByte)<<8|uint16(fillByte))
		addr += v.autoIncrement()
	}
	v.addr = addr
	v.reg[regDMALengthLo] = 0
	v.reg[regDMALengthHi] = 0
	v.dmaRunning = false
}

func (v *VDP) runCopyDMA() {
	v.dmaRunning = true
	length := v.dmaLength()
	src := v.dmaSourceAddr() & 0xFFFF
	addr := uint32(v.addr)
	for i := 0; i < length; i++ {
		b := v.vram[src%vramSize]
		v.vram[addr%vramSize] = b
		v.refreshSATCache(uint16(addr))
		v.logEvent(eventlog.KindVRAM, addr, uint16(b))
		addr += uint32(v.autoIncrement())
		src++
	}
	v.addr = uint16(addr)
	v.reg[regDMALengthLo] = 0
	v.reg[regDMALengthHi] = 0
	v.dmaRunning = false
}

func (v *VDP) directWrite(t target, addr uint16, word uint16) {
	switch t {
	case targetVRAM:
		v.vram[addr%vramSize] = uint8(word >> 8)
		v.vram[(addr+1)%vramSize] = uint8(word)
		v.refreshSATCache(addr)
		v.logEvent(eventlog.KindVRAM, uint32(addr), word)
	case targetCRAM:
		idx := addr % cramBytes
		v.cram[idx] = uint8(word >> 8)
		v.cram[(idx+1)%cramBytes] = uint8(word)
		v.logEvent(eventlog.KindCRAM, uint32(addr), word)
	case targetVSRAM:
		idx := addr % vsramBytes
		v.vsram[idx] = uint8(word >> 8)
		v.vsram[(idx+1)%vsramBytes] = uint8(word)
		v.logEvent(eventlog.KindVSRAM, uint32(addr), word)
	}
}

// Step advances the pipeline by exactly one slot: it drains the oldest
// FIFO entry once its earliest commit cycle has passed (any slot may
// drain one; refresh slots are not modelled), and when the slot counter
// wraps it composites the finished line if it was active display,
// advances the vertical counter, and raises VINT/HINT as the counters
// dictate.
func (v *VDP) Step() {
	v.cycle++

	if e, ok := v.fifo.drain(v.cycle); ok {
		v.commit(e)
	}

	v.hslot++
	if v.hslot >= v.slotsPerLine() {
		v.hslot = 0
		v.endOfLine()
	}
}

func (v *VDP) endOfLine() {
	active := activeLines(v.region)

	if v.line < active && v.displayEnabled() {
		v.renderLine(v.line)
	}

	if v.line < active {
		if v.hintCounter == 0 {
			v.hintPending = true
			v.hintCounter = v.reg[regHInterruptCounter]
		} else {
			v.hintCounter--
		}
	} else {
		v.hintCounter = v.reg[regHInterruptCounter]
	}

	v.line++
	if v.line == active {
		v.vintPending = true
	}
	if v.line >= v.region.linesPerFrame() {
		v.line = 0
		v.field = !v.field
		v.spriteOverflow = false
		v.spriteCollisionMask = false
	}
}

// Line returns the current vertical counter, for the debugger and
// save-state serialisation.
func (v *VDP) Line() int { return v.line }

// HSlot returns the current horizontal slot, for save-state serialisation.
func (v *VDP) HSlot() int { return v.hslot }
