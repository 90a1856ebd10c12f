package segacd

import (
	"github.com/kestrel-emu/megawave/clocks"
	"github.com/kestrel-emu/megawave/hardware/cpu68k"
	"github.com/kestrel-emu/megawave/hardware/memorymap"
)

// Unit is the Sega CD expansion as a child component of the Genesis
// harness: a second 68K (the "sub-CPU"), the gate array that arbitrates
// memory and interrupts between it and the main CPU, the CDC/CDD disc
// pipeline, and the RF5C164 PCM chip. The main harness owns one of these
// per Machine when inst.System is instance.SegaCD, and drives it from the
// same onCPUCycle fan-out that advances the Z80 and sound chips (see
// hardware/harness.go), rather than the sub-CPU holding a pointer back to
// the Genesis struct -- a two-way pointer doesn't translate cleanly into
// this language's ownership model.
type Unit struct {
	SubCPU    *cpu68k.CPU
	GateArray *GateArray
	CDC       *CDC
	CDD       *CDD
	PCM       *PCM
	ASIC      *ASIC

	prgRAM  *memorymap.RAMBuffer
	wordRAM *memorymap.RAMBuffer
	backup  *memorymap.RAMBuffer

	prgRAMWriteProtect uint16 // byte offset below which writes are discarded

	subBus *memorymap.Map

	masterDebt int // master-clock ticks owed to the sub-CPU's own divider
	cdcDebt    int // sub-CPU-clock ticks owed to the CDC/CDD's own divider
	pcmDebt    int // master-clock ticks owed to the PCM's sample divider
}

// New constructs a Sega CD unit and wires its sub-CPU to its own 24-bit
// address space.
func New() *Unit {
	u := &Unit{
		GateArray: NewGateArray(),
		CDC:       NewCDC(),
		CDD:       NewCDD(),
		PCM:       NewPCM(),
		prgRAM:    memorymap.NewRAM(512 * 1024),
		wordRAM:   memorymap.NewRAM(256 * 1024),
		backup:    memorymap.NewRAM(8 * 1024),
	}
	u.ASIC = NewASIC(u.wordRAM.Read8, u.wordRAM.Write8)
	u.subBus = u.buildSubBus()
	u.SubCPU = cpu68k.New(u.subBus, u.subBus)
	u.SubCPU.AddInterruptSource(u.GateArray)
	return u
}

// Reset puts the gate array, CDC, PCM and graphics ASIC back to their
// post-power-on state and clears PRG-RAM write protection; the CDD and
// the disc position it holds are left as they are. The sub-CPU itself is not reset here: SRES holds it; Reset leaves it held,
// matching GateArray.Reset's own default.
func (u *Unit) Reset() {
	u.GateArray.Reset()
	u.CDC.Reset()
	u.PCM.Reset()
	u.ASIC.Reset()
	u.prgRAMWriteProtect = 0
}

// buildSubBus attaches PRG RAM, the word-RAM window, backup RAM, and the
// gate array's 96-register file onto the sub-CPU's address space. Writes
// to the CDC host-data register are also forwarded to the CDC; the CDD
// and PCM have no register window on this bus.
func (u *Unit) buildSubBus() *memorymap.Map {
	mm := memorymap.New(24)

	mm.Attach(0x000000, 0x080000, memorymap.FuncHandler{
		ReadByte:  u.prgRAM.Read8,
		WriteByte: u.writePRGRAM,
		ReadWord:  u.prgRAM.Read16,
	})

	mm.Attach(0x080000, 0x0C0000, memorymap.FuncHandler{
		ReadByte:  u.readWordRAMSub,
		WriteByte: u.writeWordRAMSub,
	})

	mm.Attach(0xFE0000, 0xFE2000, memorymap.FuncHandler{
		ReadByte:  u.backup.Read8,
		WriteByte: u.backup.Write8,
	})

	mm.Attach(0xFF8000, 0xFF8000+numRegisters*2, memorymap.FuncHandler{
		ReadByte:  u.readGateArrayByte,
		WriteByte: u.writeGateArrayByte,
	})

	return mm
}

func (u *Unit) writePRGRAM(off uint32, v uint8) error {
	if off < uint32(u.prgRAMWriteProtect) {
		return nil
	}
	return u.prgRAM.Write8(off, v)
}

func (u *Unit) readWordRAMSub(off uint32) (uint8, error) {
	if u.GateArray.WordRAM1MMode() && u.GateArray.MainOwnsWordRAM() {
		return 0xFF, nil
	}
	return u.wordRAM.Read8(off)
}

func (u *Unit) writeWordRAMSub(off uint32, v uint8) error {
	if u.GateArray.WordRAM1MMode() && u.GateArray.MainOwnsWordRAM() {
		return nil
	}
	return u.wordRAM.Write8(off, v)
}

func (u *Unit) readGateArrayByte(off uint32) (uint8, error) {
	idx := int(off / 2)
	w := u.GateArray.ReadWord16(idx)
	if off%2 == 0 {
		return uint8(w >> 8), nil
	}
	return uint8(w), nil
}

func (u *Unit) writeGateArrayByte(off uint32, v uint8) error {
	idx := int(off / 2)
	w := u.GateArray.ReadWord16(idx)
	if off%2 == 0 {
		w = uint16(v)<<8 | (w & 0x00FF)
	} else {
		w = (w &^ 0x00FF) | uint16(v)
	}
	u.GateArray.WriteWord16(idx, w)

	switch idx {
	case regCDCHostData / 2:
		if off%2 == 1 {
			u.CDC.WriteData(v)
		} else {
			u.CDC.WriteAddress(v)
		}
	case regTraceVector / 2:
		// Writing the trace-vector register's low byte is what real
		// hardware arms the graphics ASIC from; wait for the full word
		// the same way the CDC's two-byte register writes do above.
		if off%2 == 1 {
			u.startASIC()
		}
	}
	return nil
}

// startASIC latches the gate array's stamp/trace registers and kicks off
// the graphics ASIC, triggered by a write completing the trace-vector
// register (see writeGateArrayByte).
func (u *Unit) startASIC() {
	stampSize := u.GateArray.ReadWord16(regStampSize / 2)
	stampBase := uint32(u.GateArray.ReadWord16(regStampMapBase/2)) * 2
	imageBase := uint32(u.GateArray.ReadWord16(regImageBufStart/2)) * 2
	imageOffs := uint32(u.GateArray.ReadWord16(regImageBufOffs / 2))
	traceBase := uint32(u.GateArray.ReadWord16(regTraceVector/2)) * 2
	entryCount := int(u.GateArray.ReadWord16(regImageBufVSize / 2))

	u.ASIC.Start(traceBase, entryCount, stampBase, stampSize&0x0001 == 0, imageBase, imageOffs)
}

// MainReadWordRAM and MainWriteWordRAM let the main-CPU-side bus window
// (wired by hardware/harness.go into bus68k when a Sega CD unit is
// present) reach the same backing buffer, gated by the same 1M/2M
// ownership rule from the main side.
func (u *Unit) MainReadWordRAM(off uint32) (uint8, error) {
	if u.GateArray.WordRAM1MMode() && !u.GateArray.MainOwnsWordRAM() {
		return 0xFF, nil
	}
	return u.wordRAM.Read8(off)
}

func (u *Unit) MainWriteWordRAM(off uint32, v uint8) error {
	if u.GateArray.WordRAM1MMode() && !u.GateArray.MainOwnsWordRAM() {
		return nil
	}
	return u.wordRAM.Write8(off, v)
}

// MainReadGateArray and MainWriteGateArray expose the same register file
// to the main CPU's own bus window.
func (u *Unit) MainReadGateArray(off uint32) (uint8, error)  { return u.readGateArrayByte(off) }
func (u *Unit) MainWriteGateArray(off uint32, v uint8) error { return u.writeGateArrayByte(off, v) }

// Step advances every sub-component by masterTicks master-clock ticks --
// the same granularity hardware/harness.go's onCPUCycle advances the Z80
// and sound chips by -- running the sub-CPU through its own divided
// clock, ticking the gate array's stopwatch/timer, stepping the CDC/CDD
// pipeline, and mixing PCM samples into the audio sink.
func (u *Unit) Step(masterTicks int, audioSink func(l, r float32)) error {
	u.masterDebt += masterTicks
	for u.masterDebt >= clocks.SubCPUDivider {
		u.masterDebt -= clocks.SubCPUDivider
		if !u.GateArray.SubCPUHeld() {
			if _, err := u.SubCPU.Step(); err != nil {
				return err
			}
		}
		u.GateArray.TickStopwatch()
		u.GateArray.TickTimer()
	}

	u.cdcDebt += masterTicks
	for u.cdcDebt >= clocks.CDCDivider {
		u.cdcDebt -= clocks.CDCDivider
		u.stepDisc()
	}

	u.pcmDebt += masterTicks
	for u.pcmDebt >= clocks.PCMDivider {
		u.pcmDebt -= clocks.PCMDivider
		l, r := u.PCM.Step()
		if audioSink != nil {
			audioSink(l, r)
		}
	}

	u.ASIC.Step(masterTicks, clocks.ASICByteRate)
	if u.ASIC.Done() {
		u.GateArray.RaiseIRQ(1)
	}

	return nil
}

func (u *Unit) stepDisc() {
	u.CDD.Step(clocks.CDCDivider, clocks.NTSCMasterHz/clocks.CDCDivider)
	if u.CDD.SubcodeIRQPending() {
		u.GateArray.RaiseIRQ(4)
	}
	if u.CDD.SectorReady() {
		// A real CDC would pull the sector through EDC/ECC from the CDD's
		// data line; the harness delivers a zero-filled 2352-byte sector
		// instead: no sector data is read from the disc image here, and
		// nothing downstream inspects error-correction results.
		u.CDC.DeliverSector(make([]byte, 2352))
	}
	if u.CDC.DecodeIRQPending() {
		u.GateArray.RaiseIRQ(5)
	}

	byteRate := clocks.CDCBytePCM
	if u.CDC.dmaDest == DMAPRGRAM || u.CDC.dmaDest == DMAWordRAM {
		byteRate = clocks.CDCByteRAM
	}
	if b, dest, addr, produced := u.CDC.Step(clocks.CDCDivider, byteRate); produced {
		u.deliverDMAByte(b, dest, addr)
	}
}

// deliverDMAByte routes one CDC-drained byte to its armed destination at
// addr, the CDC's own running byte-address counter (see CDC.dmaAddr),
// wrapping within each destination's backing buffer the way the real
// chip's counter wraps within whichever memory it was pointed at.
func (u *Unit) deliverDMAByte(b uint8, dest DMADestination, addr uint32) {
	switch dest {
	case DMAPCM:
		u.PCM.WriteRAM(uint16(addr%65536), b)
	case DMAPRGRAM:
		_ = u.prgRAM.Write8(addr%(512*1024), b)
	case DMAWordRAM:
		_ = u.wordRAM.Write8(addr%(256*1024), b)
	}
}
