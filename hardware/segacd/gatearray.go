// Package segacd models the Sega CD expansion: a second 68000 sub-CPU, the
// 96-register gate array that arbitrates memory and interrupts between it
// and the main CPU, the CDC/CDD disc-reading pipeline, the RF5C164 PCM
// chip, and the word-RAM sharing handshake between the two CPUs. It
// follows the same "chip owns its registers, harness wires the bus"
// shape as the main console's hardware/vdp and hardware/ym2612 packages.
package segacd

import (
	"github.com/kestrel-emu/megawave/hardware/memory/bus"
	"github.com/kestrel-emu/megawave/savestate"
)

// Gate array register offsets. Registers not named here are still backed
// by the 96-word file; software that reads or writes them (graphics ASIC
// stamp/trace parameters, most of the communication bytes) round-trips
// through regs directly.
const (
	regResetControl  = 0x00 // SRES/SBRQ/IFL2
	regMemoryMode    = 0x02 // RET/DMNA/MODE/priority/bank
	regCDCMode       = 0x04
	regCDCHostData   = 0x06
	regStopwatch     = 0x0C
	regCommFlags     = 0x0E
	regCommCmdBase   = 0x10 // 8 words, main->sub command mailbox
	regCommStatBase  = 0x20 // 8 words, sub->main status mailbox
	regTimer         = 0x30
	regIRQMask       = 0x32
	regCDDFaderCtrl  = 0x34
	regCDDControl    = 0x36
	regCDDCommBase   = 0x38 // 5 words
	regCDDStatBase   = 0x3C // 5 words
	regFontColor     = 0x4C
	regFontBitmap    = 0x4E
	regStampSize     = 0x58
	regStampMapBase  = 0x5A
	regImageBufVSize = 0x5C
	regImageBufStart = 0x5E
	regImageBufOffs  = 0x60
	regImageBufVDot  = 0x62
	regTraceVector   = 0x64
	regSubcodeAddr   = 0x66
)

const numRegisters = 96

// GateArray is the Sega CD's 192-byte (96 × 16-bit) register file plus the
// derived behaviour: reset/busreq handshake, word-RAM bank ownership,
// interrupt mask.
type GateArray struct {
	regs [numRegisters]uint16

	subReset   bool // SRES: sub-CPU held in reset when true
	subBusReq  bool // SBRQ: main CPU requests the sub-CPU's bus
	word1MMode bool // MODE bit: false = 2M (shared), true = 1M (banked)
	wordRAMRet bool // RET: which side of a 1M swap owns bank 0

	irqPending [6]bool // one flag per IRQ line, 1 (lowest) through 6 (highest)

	stopwatchCounter uint16
	timerCounter     uint8
	timerReload      uint8
}

// NewGateArray returns a GateArray with the sub-CPU held in reset,
// matching the console's power-on state (the BIOS releases SRES once it
// has set up the sub-CPU's vectors).
func NewGateArray() *GateArray {
	g := &GateArray{}
	g.Reset()
	return g
}

// Reset returns every register to zero, re-asserts SRES (sub-CPU held in
// reset) and clears SBRQ.
func (g *GateArray) Reset() {
	for i := range g.regs {
		g.regs[i] = 0
	}
	g.subReset = true
	g.subBusReq = false
	g.word1MMode = false
	g.wordRAMRet = false
	for i := range g.irqPending {
		g.irqPending[i] = false
	}
	g.stopwatchCounter = 0
	g.timerCounter = 0
	g.timerReload = 0
}

// SubCPUHeld reports whether the sub-CPU should be suspended: either held
// in reset, or with its bus requested away by the main CPU.
func (g *GateArray) SubCPUHeld() bool {
	return g.subReset || g.subBusReq
}

// WordRAM1MMode reports the current word-RAM sharing discipline: false for
// 2M (single-writer, whole 256KiB block switches owner), true for 1M (each
// CPU permanently owns one 128KiB bank, swapped on a RET handshake).
func (g *GateArray) WordRAM1MMode() bool {
	return g.word1MMode
}

// MainOwnsWordRAM reports whether the main CPU currently has word-RAM
// mapped into its address space in 2M mode (RET=0).
func (g *GateArray) MainOwnsWordRAM() bool {
	return !g.wordRAMRet
}

// ReadWord16 reads register index idx (0..95), the addressing unit both
// CPUs use -- the main CPU's byte-wide bus access is split into a
// register read plus a high/low select by the caller.
func (g *GateArray) ReadWord16(idx int) uint16 {
	if idx < 0 || idx >= numRegisters {
		return 0xFFFF
	}
	switch idx {
	case regResetControl / 2:
		v := g.regs[idx] &^ 0x0003
		if !g.subReset {
			v |= 0x0001
		}
		if g.subBusReq {
			v |= 0x0002
		}
		return v
	case regMemoryMode / 2:
		v := g.regs[idx] &^ 0x0006
		if g.word1MMode {
			v |= 0x0004
		}
		if g.wordRAMRet {
			v |= 0x0002
		}
		return v
	}
	return g.regs[idx]
}

// WriteWord16 writes register index idx, applying the side effects real
// hardware derives from specific bit patterns (reset/busreq lines, the
// memory-mode handshake bits, the six-line IRQ mask).
func (g *GateArray) WriteWord16(idx int, v uint16) {
	if idx < 0 || idx >= numRegisters {
		return
	}
	g.regs[idx] = v
	switch idx {
	case regResetControl / 2:
		g.subReset = v&0x0001 == 0
		g.subBusReq = v&0x0002 != 0
	case regMemoryMode / 2:
		g.word1MMode = v&0x0004 != 0
		g.wordRAMRet = v&0x0002 != 0
	case regIRQMask / 2:
		// bits 1-6 enable IRQ lines 1-6; a software-cleared mask also
		// drops any already-latched flag for the line it disables.
		for line := 0; line < 6; line++ {
			if v&(1<<uint(line+1)) == 0 {
				g.irqPending[line] = false
			}
		}
	case regTimer / 2:
		g.timerCounter = uint8(v & 0x00FF)
	}
}

// RaiseIRQ latches gate array IRQ line (1-6) for delivery to the sub-CPU,
// gated by the IRQ mask register the sub-CPU itself controls.
func (g *GateArray) RaiseIRQ(line int) {
	if line < 1 || line > 6 {
		return
	}
	if g.regs[regIRQMask/2]&(1<<uint(line)) == 0 {
		return
	}
	g.irqPending[line-1] = true
}

// Pending implements bus.InterruptSource for the sub-CPU: the highest
// asserted IRQ line wins, vector-less (auto-vectored) like the main
// console's own interrupt sources.
func (g *GateArray) Pending() (level int, vector uint8, ok bool) {
	for line := 6; line >= 1; line-- {
		if g.irqPending[line-1] {
			return line, 0, true
		}
	}
	return 0, 0, false
}

// Acknowledge clears the latch for the given line.
func (g *GateArray) Acknowledge(level int) {
	if level >= 1 && level <= 6 {
		g.irqPending[level-1] = false
	}
}

var _ bus.InterruptSource = (*GateArray)(nil)

// Save writes every field of this gate array -- the 96-word register
// file plus the derived state WriteWord16's side effects track
// separately (SRES/SBRQ, 1M/2M mode, the six IRQ latches, the live
// stopwatch/timer counters) -- into fw, for save-state capture.
func (g *GateArray) Save(fw *savestate.FieldWriter) {
	fw.U8(1)
	for _, v := range g.regs {
		fw.U16(v)
	}
	fw.Bool(g.subReset)
	fw.Bool(g.subBusReq)
	fw.Bool(g.word1MMode)
	fw.Bool(g.wordRAMRet)
	for _, p := range g.irqPending {
		fw.Bool(p)
	}
	fw.U16(g.stopwatchCounter)
	fw.U8(g.timerCounter)
}

// Load restores every field Save wrote.
func (g *GateArray) Load(fr *savestate.FieldReader) {
	_ = fr.U8()
	for i := range g.regs {
		g.regs[i] = fr.U16()
	}
	g.subReset = fr.Bool()
	g.subBusReq = fr.Bool()
	g.word1MMode = fr.Bool()
	g.wordRAMRet = fr.Bool()
	for i := range g.irqPending {
		g.irqPending[i] = fr.Bool()
	}
	g.stopwatchCounter = fr.U16()
	g.timerCounter = fr.U8()
}

// TickStopwatch advances the 12-bit stopwatch counter, which increments
// once every 1536 master clocks and wraps silently (software polls it;
// nothing latches on overflow).
func (g *GateArray) TickStopwatch() {
	g.stopwatchCounter = (g.stopwatchCounter + 1) & 0x0FFF
}

// StopwatchValue returns the current 12-bit count.
func (g *GateArray) StopwatchValue() uint16 {
	return g.stopwatchCounter
}

// TickTimer advances the 8-bit timer once per its configured period,
// reloading and raising IRQ line 4 (the gate array's timer interrupt) on
// underflow.
func (g *GateArray) TickTimer() {
	if g.timerCounter == 0 {
		reload := uint8(g.regs[regTimer/2] & 0x00FF)
		if reload == 0 {
			return
		}
		g.timerCounter = reload
		g.RaiseIRQ(4)
		return
	}
	g.timerCounter--
}
