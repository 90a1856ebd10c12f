package segacd

import "github.com/kestrel-emu/megawave/savestate"

// CDDStatus names the disc-drive's command-level states: play, seek,
// pause, TOC-read, plus an idle state for a tray with nothing queued.
type CDDStatus int

const (
	CDDStopped CDDStatus = iota
	CDDPlaying
	CDDSeeking
	CDDPaused
	CDDReadingTOC
)

// framesPerSecond is the CD-DA "frame" rate (75Hz), the unit the CDD
// reports head position in and the rate at which it raises the
// subcode-Q interrupt toward the gate array.
const framesPerSecond = 75

// CDD models the disc-drive command-processor MCU: a 10-byte command
// register the sub-CPU writes, a 10-byte status register it reads back,
// and head-position tracking in CD frames (1/75 second each, the unit CD
// addressing and sector-ready timing are expressed in).
type CDD struct {
	Status CDDStatus

	command [10]byte
	report  [10]byte

	headFrame  int // current position, in CD frames from the start of the disc
	totalFrame int // disc length, set by the cartridgeloader's track list

	seekTarget int

	frameDebt int // CDC-clock debt toward the next 1/75s frame tick

	sectorReady bool
	subcodeIRQ  bool
}

// NewCDD returns a CDD with no disc inserted (Stopped, zero-length).
func NewCDD() *CDD {
	return &CDD{Status: CDDStopped}
}

// LoadDisc sets the disc's total length in CD frames (75/sec), called once
// by the harness after cartridgeloader has parsed the CUE sheet's track
// list.
func (d *CDD) LoadDisc(totalFrames int) {
	d.totalFrame = totalFrames
	d.headFrame = 0
	d.Status = CDDStopped
}

// WriteCommand latches one byte of the sub-CPU's 10-byte command buffer.
// Per the real protocol the last byte (a checksum) triggers interpretation;
// here the whole buffer is re-evaluated on every write, which is
// behaviourally equivalent since a partial command names no valid opcode.
func (d *CDD) WriteCommand(idx int, v byte) {
	if idx < 0 || idx >= len(d.command) {
		return
	}
	d.command[idx] = v
	d.interpret()
}

// ReadStatus reads one byte of the sub-CPU-visible 10-byte status buffer.
func (d *CDD) ReadStatus(idx int) byte {
	if idx < 0 || idx >= len(d.report) {
		return 0xFF
	}
	return d.report[idx]
}

func (d *CDD) interpret() {
	switch d.command[0] & 0x0F {
	case 0x00: // no-op / status request
	case 0x01: // stop
		d.Status = CDDStopped
	case 0x03: // play, from the frame encoded in command[2..3] (BCD, simplified to binary here)
		d.seekTarget = int(d.command[2])<<8 | int(d.command[3])
		d.Status = CDDSeeking
	case 0x04: // seek
		d.seekTarget = int(d.command[2])<<8 | int(d.command[3])
		d.Status = CDDSeeking
	case 0x06: // pause
		if d.Status == CDDPlaying {
			d.Status = CDDPaused
		}
	case 0x0A: // read TOC
		d.Status = CDDReadingTOC
	}
}

// Step advances the drive's head position by cdcClocks CDC-clock ticks.
// Every 1/75s of simulated time it moves the head by one frame (toward
// the seek target while seeking, forward while playing) and raises the
// subcode-Q interrupt.
func (d *CDD) Step(cdcClocks int, cdcHz int) {
	d.frameDebt += cdcClocks
	frameTicks := cdcHz / framesPerSecond
	if frameTicks <= 0 {
		frameTicks = 1
	}
	for d.frameDebt >= frameTicks {
		d.frameDebt -= frameTicks
		d.tickFrame()
	}
}

func (d *CDD) tickFrame() {
	switch d.Status {
	case CDDSeeking:
		if d.headFrame < d.seekTarget {
			d.headFrame++
		} else if d.headFrame > d.seekTarget {
			d.headFrame--
		} else {
			d.Status = CDDPlaying
		}
	case CDDPlaying:
		if d.headFrame < d.totalFrame {
			d.headFrame++
			d.sectorReady = true
		} else {
			d.Status = CDDStopped
		}
	}
	d.report[0] = byte(d.Status)
	d.report[2] = byte(d.headFrame >> 8)
	d.report[3] = byte(d.headFrame)
	d.subcodeIRQ = true
}

// SectorReady reports and clears the "a new sector has been produced"
// flag the CDC consumes to trigger its own decode pass.
func (d *CDD) SectorReady() bool {
	v := d.sectorReady
	d.sectorReady = false
	return v
}

// SubcodeIRQPending reports and clears the 75Hz subcode-Q interrupt flag,
// which the gate array latches onto IRQ line 4 when CDD notifications are
// unmasked (shared with the timer line on real hardware's mask register,
// matching this model's single-mask-per-line simplification).
func (d *CDD) SubcodeIRQPending() bool {
	v := d.subcodeIRQ
	d.subcodeIRQ = false
	return v
}

// HeadFrame returns the current head position, used by the save-state
// disc-position section.
func (d *CDD) HeadFrame() int {
	return d.headFrame
}

// Save writes the command-processor state beyond head/total frame
// (already covered by HeadFrame and the disc-position section) into fw:
// status, the command/report buffers, the seek target, and the pending
// one-shot flags.
func (d *CDD) Save(fw *savestate.FieldWriter) {
	fw.U8(1)
	fw.U8(uint8(d.Status))
	fw.Bytes(d.command[:])
	fw.Bytes(d.report[:])
	fw.U32(uint32(d.seekTarget))
	fw.U32(uint32(d.frameDebt))
	fw.Bool(d.sectorReady)
	fw.Bool(d.subcodeIRQ)
}

// Load restores every field Save wrote. The total-frame/disc length and
// head position are restored separately, by the caller's own LoadDisc +
// SetHeadFrame (see harness_state.go), since those are already what the
// disc-position save-state section carries.
func (d *CDD) Load(fr *savestate.FieldReader) {
	_ = fr.U8()
	d.Status = CDDStatus(fr.U8())
	copy(d.command[:], fr.Bytes(len(d.command)))
	copy(d.report[:], fr.Bytes(len(d.report)))
	d.seekTarget = int(fr.U32())
	d.frameDebt = int(fr.U32())
	d.sectorReady = fr.Bool()
	d.subcodeIRQ = fr.Bool()
}

// SetHeadFrame restores the head position captured by HeadFrame, for
// save-state loading (LoadDisc always resets it to the start of the disc,
// so a loader needs a way to move it back without resetting disc length).
func (d *CDD) SetHeadFrame(frame int) {
	d.headFrame = frame
}
