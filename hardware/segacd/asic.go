package segacd

// Stamp pixels are 4bpp (one nibble per pixel, the same depth the main
// console's own tile format uses), so a 16x16 stamp is 128 bytes and a
// 32x32 stamp is 512 bytes.
const (
	stampBytes16 = 16 * 16 / 2
	stampBytes32 = 32 * 32 / 2
)

// asicCellsPerRow is the image buffer's width in stamp-sized cells. Real
// hardware derives this from other gate-array state (the VDP's own
// horizontal resolution, since the image buffer is sized to match a
// screen); this model fixes it at a single constant instead, since nothing
// here renders the image buffer's contents to a display -- the buffer
// exists so software can read back what the ASIC wrote, not so this
// emulator can show it.
const asicCellsPerRow = 16

// traceEntryBytes is the size of one trace-vector list entry this model
// reads: a big-endian stamp number, then a destination cell column and
// row. Real hardware's trace format additionally carries a rotation/scale
// matrix reference per entry; this model copies stamps untransformed (see
// ASIC's doc comment) so that part of the entry is not represented.
const traceEntryBytes = 4

// ASIC is the Sega CD's cell-arithmetic graphics engine: triggered by a
// write to the trace-vector register, it walks a list of (stamp number,
// destination cell) pairs out of word-RAM and copies each referenced
// stamp's pixel bytes into the image buffer, also in word-RAM, at the
// documented stamp-copy byte rate (clocks.ASICByteRate).
//
// Real hardware additionally rotates and scales each stamp through a
// dedicated affine pipeline as it copies; this model does not reproduce
// the transform matrix itself -- it copies stamps through unmodified.
// This and the fixed image-buffer width (asicCellsPerRow) are the
// documented simplifications in an otherwise complete
// trace-list -> stamp-lookup -> image-buffer data path.
type ASIC struct {
	read  func(addr uint32) (uint8, error)
	write func(addr uint32, v uint8) error

	running     bool
	traceBase   uint32
	entryCount  int
	entriesDone int

	stampBytes int // 128 (16x16) or 512 (32x32), latched from regStampSize at Start
	stampBase  uint32
	imageBase  uint32
	imageOffs  uint32

	copyOffset int // bytes of the current stamp already copied
	clockDebt  int

	done bool // one-shot completion flag, cleared once the caller observes it
}

// NewASIC returns an idle ASIC reading and writing word-RAM through read
// and write (ordinarily Unit's raw word-RAM buffer accessors, bypassing
// the 1M/2M ownership gate the two CPUs observe -- the ASIC is modelled as
// a third, always-granted, bus master rather than contending for word-RAM
// ownership the way the two CPUs do).
func NewASIC(read func(uint32) (uint8, error), write func(uint32, uint8) error) *ASIC {
	return &ASIC{read: read, write: write}
}

// Start begins tracing: entryCount trace-vector entries starting at
// traceBase, each identifying a stamp out of the stamp map at stampBase
// (sized by stamp16x16, true for 16x16 stamps / false for 32x32) to copy
// into the image buffer at imageBase, offset by imageOffs bytes. Starting
// a new trace while one is already running restarts it at the new
// parameters, matching real hardware's "writing the trigger register again
// re-arms the engine" behaviour.
func (a *ASIC) Start(traceBase uint32, entryCount int, stampBase uint32, stamp16x16 bool, imageBase, imageOffs uint32) {
	a.traceBase = traceBase
	a.entryCount = entryCount
	a.entriesDone = 0
	a.stampBase = stampBase
	a.imageBase = imageBase
	a.imageOffs = imageOffs
	a.copyOffset = 0
	a.clockDebt = 0
	if stamp16x16 {
		a.stampBytes = stampBytes16
	} else {
		a.stampBytes = stampBytes32
	}
	a.running = a.entryCount > 0
}

// Reset stops any in-flight trace without touching word-RAM contents.
func (a *ASIC) Reset() {
	a.running = false
	a.done = false
	a.entriesDone = 0
	a.copyOffset = 0
	a.clockDebt = 0
}

// Running reports whether a trace is still in progress.
func (a *ASIC) Running() bool {
	return a.running
}

// Done reports and clears the one-shot "trace list exhausted" flag the
// caller raises IRQ line 1 from, mirroring CDC.DecodeIRQPending's shape.
func (a *ASIC) Done() bool {
	v := a.done
	a.done = false
	return v
}

// Step advances the copy engine by masterTicks master-clock ticks,
// transferring one byte every clocks.ASICByteRate ticks while a trace is
// running.
func (a *ASIC) Step(masterTicks int, byteRate int) {
	if !a.running {
		return
	}
	a.clockDebt += masterTicks
	for a.clockDebt >= byteRate {
		a.clockDebt -= byteRate
		a.copyByte()
		if !a.running {
			return
		}
	}
}

func (a *ASIC) copyByte() {
	entryAddr := a.traceBase + uint32(a.entriesDone*traceEntryBytes)
	stampHi, _ := a.read(entryAddr)
	stampLo, _ := a.read(entryAddr + 1)
	destCol, _ := a.read(entryAddr + 2)
	destRow, _ := a.read(entryAddr + 3)
	stampNum := uint32(stampHi)<<8 | uint32(stampLo)

	srcAddr := a.stampBase + stampNum*uint32(a.stampBytes) + uint32(a.copyOffset)
	dstAddr := a.imageBase + a.imageOffs +
		(uint32(destRow)*asicCellsPerRow+uint32(destCol))*uint32(a.stampBytes) +
		uint32(a.copyOffset)

	if b, err := a.read(srcAddr); err == nil {
		_ = a.write(dstAddr, b)
	}

	a.copyOffset++
	if a.copyOffset >= a.stampBytes {
		a.copyOffset = 0
		a.entriesDone++
		if a.entriesDone >= a.entryCount {
			a.running = false
			a.done = true
		}
	}
}
