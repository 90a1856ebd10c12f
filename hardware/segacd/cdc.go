package segacd

import "github.com/kestrel-emu/megawave/savestate"

// DMADestination names where the CDC's DMA engine delivers decoded sector
// bytes. Direct host-register reads are handled by the caller, not by CDC
// itself, since they have no DMA timing to model.
type DMADestination int

const (
	DMANone DMADestination = iota
	DMAPCM
	DMAPRGRAM
	DMAWordRAM
)

// CDC models the LC8951 CD-ROM data-path chip: a 16KiB sector buffer, a
// small host-addressed register file (address pointer + data port, the
// same shape as the VDP's control/data port pair), and a DMA engine that
// drains the buffer into one of three destinations at a fixed byte rate.
type CDC struct {
	buffer [16384]byte
	head   int // next buffer offset a freshly decoded sector byte lands at
	tail   int // next buffer offset DMA reads from

	regAddr uint8 // host-selected register pointer (CDC's "address" port)
	regs    [16]uint8

	dmaActive       bool
	dmaDest         DMADestination
	dmaBytesPending int
	dmaClockDebt    int
	dmaAddr         uint32 // destination byte-address counter, latched from WAH/WAL (word value doubled) at arm time

	decodeIRQPending bool
}

// NewCDC returns a freshly reset CDC.
func NewCDC() *CDC {
	c := &CDC{}
	c.Reset()
	return c
}

// Reset clears the buffer pointers, registers, and any in-flight DMA.
func (c *CDC) Reset() {
	c.head, c.tail = 0, 0
	c.regAddr = 0
	for i := range c.regs {
		c.regs[i] = 0
	}
	c.dmaActive = false
	c.dmaDest = DMANone
	c.dmaBytesPending = 0
	c.dmaClockDebt = 0
	c.dmaAddr = 0
	c.decodeIRQPending = false
}

// regWAH and regWAL are the LC8951's word-address-counter halves: the host
// latches a destination address into them before arming a transfer, and
// the real chip counts in words (two bytes per increment) regardless of
// destination.
const (
	regWAH = 0x09
	regWAL = 0x0A
)

// WriteAddress sets the register pointer the next WriteData/ReadData call
// targets, mirroring the VDP's two-port "select then access" protocol.
func (c *CDC) WriteAddress(v uint8) {
	c.regAddr = v & 0x0F
}

// WriteData writes the currently selected register. Writing the DMA
// trigger register (index 0x0E, "DTTRG" on the real chip) arms a transfer
// to the destination most recently latched into the control register.
func (c *CDC) WriteData(v uint8) {
	c.regs[c.regAddr] = v
	if c.regAddr == 0x0E {
		c.armDMA()
	}
}

// ReadData reads the currently selected register.
func (c *CDC) ReadData() uint8 {
	return c.regs[c.regAddr]
}

func (c *CDC) armDMA() {
	mode := c.regs[0x0B] // CTRL1-style destination select, gate-array convention
	switch mode & 0x07 {
	case 2:
		c.dmaDest = DMAPCM
	case 3:
		c.dmaDest = DMAPRGRAM
	case 5:
		c.dmaDest = DMAWordRAM
	default:
		c.dmaDest = DMANone
		return
	}
	available := c.head - c.tail
	if available < 0 {
		available += len(c.buffer)
	}
	c.dmaBytesPending = available
	c.dmaActive = c.dmaBytesPending > 0
	c.dmaClockDebt = 0
	c.dmaAddr = (uint32(c.regs[regWAH])<<8 | uint32(c.regs[regWAL])) * 2
}

// DeliverSector appends one CD sector's worth of decoded data to the ring
// buffer (the CDD is the producer; a full implementation would run
// EDC/ECC here, omitted since nothing downstream inspects error-correction
// results) and raises the decode-complete IRQ line.
func (c *CDC) DeliverSector(sector []byte) {
	for _, b := range sector {
		c.buffer[c.head] = b
		c.head = (c.head + 1) % len(c.buffer)
	}
	c.decodeIRQPending = true
}

// DecodeIRQPending reports and clears the sector-decode-complete flag,
// which the gate array latches onto IRQ line 5 (CDC interrupt).
func (c *CDC) DecodeIRQPending() bool {
	v := c.decodeIRQPending
	c.decodeIRQPending = false
	return v
}

// Step advances the DMA engine by cdcClocks CDC-clock ticks, transferring
// one byte every CDCBytePCM or CDCByteRAM ticks depending on destination,
// and returns the byte most recently drained, the destination address it
// belongs at, and whether one was produced this call (the caller routes it
// to PCM RAM, program RAM, or word RAM at that address). addr advances by
// one byte per call regardless of the chip's internal word-at-a-time
// counter convention, since every destination buffer in this model is
// flat and byte-addressed.
func (c *CDC) Step(cdcClocks int, byteRate int) (b uint8, dest DMADestination, addr uint32, produced bool) {
	if !c.dmaActive {
		return 0, DMANone, 0, false
	}
	c.dmaClockDebt += cdcClocks
	if c.dmaClockDebt < byteRate {
		return 0, DMANone, 0, false
	}
	c.dmaClockDebt -= byteRate

	b = c.buffer[c.tail]
	c.tail = (c.tail + 1) % len(c.buffer)
	c.dmaBytesPending--
	addr = c.dmaAddr
	c.dmaAddr++
	if c.dmaBytesPending <= 0 {
		c.dmaActive = false
	}
	return b, c.dmaDest, addr, true
}

// Active reports whether a DMA transfer is currently in flight.
func (c *CDC) Active() bool {
	return c.dmaActive
}

// Save writes the 16KiB sector buffer, its head/tail pointers, the
// host-addressed register file, and any in-flight DMA state into fw, for
// save-state capture.
func (c *CDC) Save(fw *savestate.FieldWriter) {
	fw.U8(1)
	fw.Bytes(c.buffer[:])
	fw.U32(uint32(c.head))
	fw.U32(uint32(c.tail))
	fw.U8(c.regAddr)
	fw.Bytes(c.regs[:])
	fw.Bool(c.dmaActive)
	fw.U8(uint8(c.dmaDest))
	fw.U32(uint32(c.dmaBytesPending))
	fw.U32(uint32(c.dmaClockDebt))
	fw.U32(c.dmaAddr)
	fw.Bool(c.decodeIRQPending)
}

// Load restores every field Save wrote.
func (c *CDC) Load(fr *savestate.FieldReader) {
	_ = fr.U8()
	copy(c.buffer[:], fr.Bytes(len(c.buffer)))
	c.head = int(fr.U32())
	c.tail = int(fr.U32())
	c.regAddr = fr.U8()
	copy(c.regs[:], fr.Bytes(len(c.regs)))
	c.dmaActive = fr.Bool()
	c.dmaDest = DMADestination(fr.U8())
	c.dmaBytesPending = int(fr.U32())
	c.dmaClockDebt = int(fr.U32())
	c.dmaAddr = fr.U32()
	c.decodeIRQPending = fr.Bool()
}
