package segacd

import "testing"

func TestGateArrayResetHoldsSubCPU(t *testing.T) {
	g := NewGateArray()
	if !g.SubCPUHeld() {
		t.Fatalf("expected a freshly reset gate array to hold the sub-CPU")
	}
}

func TestGateArrayReleasingSRESReleasesSubCPU(t *testing.T) {
	g := NewGateArray()
	g.WriteWord16(regResetControl/2, 0x0001) // bit 0 set: SRES released
	if g.SubCPUHeld() {
		t.Fatalf("expected writing the reset-control bit to release the sub-CPU")
	}
}

func TestGateArrayIRQMaskGatesRaiseIRQ(t *testing.T) {
	g := NewGateArray()
	g.RaiseIRQ(5) // masked off by default (IRQ mask register starts at 0)
	if _, _, ok := g.Pending(); ok {
		t.Fatalf("expected a masked IRQ line not to assert")
	}

	g.WriteWord16(regIRQMask/2, 1<<5)
	g.RaiseIRQ(5)
	level, _, ok := g.Pending()
	if !ok || level != 5 {
		t.Fatalf("expected IRQ line 5 to assert once unmasked, got level=%d ok=%v", level, ok)
	}

	g.Acknowledge(5)
	if _, _, ok := g.Pending(); ok {
		t.Fatalf("expected Acknowledge to clear the latch")
	}
}

func TestGateArrayTimerReloadsAndRaisesIRQOnUnderflow(t *testing.T) {
	g := NewGateArray()
	g.WriteWord16(regTimer/2, 2)
	g.WriteWord16(regIRQMask/2, 1<<4)

	g.TickTimer() // 2 -> 1
	g.TickTimer() // 1 -> 0
	if _, _, ok := g.Pending(); ok {
		t.Fatalf("expected no IRQ before the counter underflows to zero")
	}
	g.TickTimer() // 0 -> reload to 2, raise IRQ 4
	level, _, ok := g.Pending()
	if !ok || level != 4 {
		t.Fatalf("expected IRQ line 4 on timer underflow, got level=%d ok=%v", level, ok)
	}
}

func TestGateArrayMemoryModeBitsRoundTrip(t *testing.T) {
	g := NewGateArray()
	g.WriteWord16(regMemoryMode/2, 0x0006) // MODE=1 (1M), RET=1
	if !g.WordRAM1MMode() {
		t.Fatalf("expected 1M mode after setting the MODE bit")
	}
	if g.MainOwnsWordRAM() {
		t.Fatalf("expected RET=1 to mean the main CPU does not own word RAM")
	}
}

func TestCDCArmsAndDrainsDMAAtThePCMByteRate(t *testing.T) {
	c := NewCDC()
	c.DeliverSector(make([]byte, 10))

	c.WriteAddress(0x0B)
	c.WriteData(0x02) // destination = PCM
	c.WriteAddress(0x0E)
	c.WriteData(0xFF) // arm DMA

	if !c.Active() {
		t.Fatalf("expected DMA to be active once armed with bytes available")
	}

	_, _, _, produced := c.Step(5, 6) // under the PCM byte rate
	if produced {
		t.Fatalf("expected no byte yet below the configured byte rate")
	}
	_, dest, _, produced := c.Step(1, 6) // crosses the 6-tick threshold
	if !produced || dest != DMAPCM {
		t.Fatalf("expected a byte delivered to DMAPCM, got produced=%v dest=%v", produced, dest)
	}
}

func TestCDCDMAAddressCounterAdvancesOneByteAtATimeFromTheLatchedWAPair(t *testing.T) {
	c := NewCDC()
	c.DeliverSector([]byte{0xAA, 0xBB, 0xCC})

	c.WriteAddress(regWAH)
	c.WriteData(0x00)
	c.WriteAddress(regWAL)
	c.WriteData(0x10) // word address 0x0010 -> byte address 0x0020

	c.WriteAddress(0x0B)
	c.WriteData(0x03) // destination = PRG RAM
	c.WriteAddress(0x0E)
	c.WriteData(0xFF) // arm DMA

	_, _, addr, produced := c.Step(1, 1)
	if !produced || addr != 0x0020 {
		t.Fatalf("expected the first byte delivered at the latched start address 0x20, got addr=%#x produced=%v", addr, produced)
	}
	_, _, addr, produced = c.Step(1, 1)
	if !produced || addr != 0x0021 {
		t.Fatalf("expected the destination address to advance by one byte, got addr=%#x produced=%v", addr, produced)
	}
}

func TestCDCDecodeIRQPendingIsOneShot(t *testing.T) {
	c := NewCDC()
	c.DeliverSector([]byte{1, 2, 3})
	if !c.DecodeIRQPending() {
		t.Fatalf("expected DeliverSector to raise the decode-complete flag")
	}
	if c.DecodeIRQPending() {
		t.Fatalf("expected the flag to clear after being read once")
	}
}

func TestCDDPlayCommandAdvancesHeadTowardTarget(t *testing.T) {
	d := NewCDD()
	d.LoadDisc(1000)
	d.WriteCommand(0, 0x03) // play
	d.WriteCommand(2, 0x00)
	d.WriteCommand(3, 0x0A) // seek target = 10

	cdcHz := 1000
	frameTicks := cdcHz / framesPerSecond
	for i := 0; i < frameTicks*15; i++ {
		d.Step(1, cdcHz)
	}
	if d.HeadFrame() == 0 {
		t.Fatalf("expected the head to have advanced from frame 0")
	}
}

func TestCDDSubcodeIRQFiresOncePerFrameTick(t *testing.T) {
	d := NewCDD()
	d.LoadDisc(1000)
	d.Status = CDDPlaying

	cdcHz := 1000
	frameTicks := cdcHz / framesPerSecond
	d.Step(frameTicks, cdcHz)
	if !d.SubcodeIRQPending() {
		t.Fatalf("expected a subcode IRQ after one frame tick's worth of clocks")
	}
	if d.SubcodeIRQPending() {
		t.Fatalf("expected the flag to clear after being read once")
	}
}

func TestPCMChannelOutputsSilenceWhenDisabled(t *testing.T) {
	p := NewPCM()
	p.SetEnabled(true)
	l, r := p.Step()
	if l != 0 || r != 0 {
		t.Fatalf("expected silence with every channel disabled, got %v/%v", l, r)
	}
}

func TestPCMChannelProducesNonZeroSampleWhenEnabled(t *testing.T) {
	p := NewPCM()
	p.SetEnabled(true)
	p.SelectChannel(0)
	p.SetEnvelope(0xFF)
	p.SetPan(0xFF) // full left and right weight
	p.SetStartAddress(0)
	p.SetFrequency(1 << pcmFixedPointBits)
	p.WriteRAM(0, 0x7F) // max positive sample byte
	p.KeyOn(0, true)

	l, r := p.Step()
	if l <= 0 || r <= 0 {
		t.Fatalf("expected a positive sample from an enabled channel, got %v/%v", l, r)
	}
}

func TestUnitConstructsSubCPUHeldInReset(t *testing.T) {
	u := New()
	if !u.GateArray.SubCPUHeld() {
		t.Fatalf("expected a freshly constructed unit to hold the sub-CPU in reset")
	}
}

func TestUnitStepDoesNotRunSubCPUWhileHeld(t *testing.T) {
	u := New()
	pcBefore := u.SubCPU.Reg.PC
	if err := u.Step(1000, nil); err != nil {
		t.Fatalf("step: %v", err)
	}
	if u.SubCPU.Reg.PC != pcBefore {
		t.Fatalf("expected the sub-CPU's PC not to move while held in reset")
	}
}

func TestASICCopiesOneStampFromStampMapToImageBufferThenRaisesDone(t *testing.T) {
	mem := make([]byte, 4096)
	read := func(addr uint32) (uint8, error) { return mem[addr], nil }
	write := func(addr uint32, v uint8) error { mem[addr] = v; return nil }

	const stampBase = 0x100
	const traceBase = 0x000
	const imageBase = 0x800
	for i := 0; i < stampBytes16; i++ {
		mem[stampBase+i] = byte(i + 1) // distinctive, non-zero pixel data
	}
	// one trace entry: stamp 0, destination cell (0, 0).
	mem[traceBase+0] = 0x00
	mem[traceBase+1] = 0x00
	mem[traceBase+2] = 0x00
	mem[traceBase+3] = 0x00

	a := NewASIC(read, write)
	a.Start(traceBase, 1, stampBase, true, imageBase, 0)
	if !a.Running() {
		t.Fatalf("expected Start with a non-empty entry list to leave the engine running")
	}

	a.Step(stampBytes16*4-1, 4) // one tick short of completing the copy
	if a.Done() {
		t.Fatalf("did not expect Done before every stamp byte has been copied")
	}
	a.Step(4, 4) // the final byte
	if a.Running() {
		t.Fatalf("expected the trace to finish after entryCount*stampBytes byte-ticks")
	}
	if !a.Done() {
		t.Fatalf("expected Done to report true once the trace list is exhausted")
	}
	if a.Done() {
		t.Fatalf("expected Done to be one-shot")
	}

	for i := 0; i < stampBytes16; i++ {
		if mem[imageBase+i] != byte(i+1) {
			t.Fatalf("image buffer byte %d: expected %#x, got %#x", i, i+1, mem[imageBase+i])
		}
	}
}

func TestUnitWritingTraceVectorRegisterArmsTheASIC(t *testing.T) {
	u := New()
	u.GateArray.WriteWord16(regStampSize/2, 0x0000)     // 16x16 stamps
	u.GateArray.WriteWord16(regStampMapBase/2, 0x0000)  // word-RAM offset 0
	u.GateArray.WriteWord16(regImageBufStart/2, 0x0100) // word-RAM byte offset 0x200
	u.GateArray.WriteWord16(regImageBufVSize/2, 1)      // one trace entry

	if err := u.writeGateArrayByte(regTraceVector, 0x00); err != nil {
		t.Fatalf("write: %v", err)
	}
	if u.ASIC.Running() {
		t.Fatalf("expected only the low byte of the trace-vector register to be latched so far")
	}
	if err := u.writeGateArrayByte(regTraceVector+1, 0x00); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !u.ASIC.Running() {
		t.Fatalf("expected completing the trace-vector register write to arm the ASIC")
	}
}

func TestUnitGateArrayByteAccessRoundTripsThroughWordRegister(t *testing.T) {
	u := New()
	if err := u.writeGateArrayByte(regStopwatch, 0x12); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := u.writeGateArrayByte(regStopwatch+1, 0x34); err != nil {
		t.Fatalf("write: %v", err)
	}
	hi, _ := u.readGateArrayByte(regStopwatch)
	lo, _ := u.readGateArrayByte(regStopwatch + 1)
	if hi != 0x12 || lo != 0x34 {
		t.Fatalf("expected byte writes to assemble into one 16-bit register, got %#x %#x", hi, lo)
	}
}
