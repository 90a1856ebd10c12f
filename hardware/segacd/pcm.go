package segacd

import "github.com/kestrel-emu/megawave/savestate"

// pcmChannel is one of the RF5C164's 8 independent sample-playback voices:
// a fixed-point (16.11, matching the real chip's step-size precision)
// address into the shared 64KiB sample RAM, an 8-bit envelope, an 8-bit
// pan value, and a loop-start address used when playback wraps.
type pcmChannel struct {
	enabled bool
	address uint32 // 16.11 fixed point
	step    uint32 // 16.11 fixed point, added to address every sample
	loopAt  uint32 // 16.11 fixed point
	env     uint8
	pan     uint8 // low nibble = left weight, high nibble = right weight
}

const pcmFixedPointBits = 11

// PCM models the RF5C164: 8 channels sharing one 64KiB sample RAM bank
// (bank-selected per channel, matching the real chip's per-channel bank
// register), mixed to stereo at master/384.
type PCM struct {
	ram      [65536]byte
	channels [8]pcmChannel

	bankSelect [8]uint8 // which 64KiB-aligned window of RAM each channel reads (always 0 here: one bank covers the whole space)
	selected   int      // currently-addressed channel for register writes
	enabledAll bool
}

// NewPCM returns a PCM chip with every channel silent.
func NewPCM() *PCM {
	return &PCM{}
}

// Reset silences every channel and clears sample RAM addressing state
// (the sample data itself, loaded by software via RAM writes, is left
// untouched -- matching real hardware, where only the control latch
// resets on the gate array's PCM-enable line).
func (p *PCM) Reset() {
	for i := range p.channels {
		p.channels[i] = pcmChannel{}
	}
	p.selected = 0
	p.enabledAll = false
}

// SelectChannel latches which of the 8 channels subsequent control writes
// target, mirroring the real chip's channel-select register.
func (p *PCM) SelectChannel(ch int) {
	p.selected = ch & 0x07
}

// SetEnvelope, SetPan, SetFrequency and SetLoopStart write the currently
// selected channel's corresponding register.
func (p *PCM) SetEnvelope(v uint8) { p.channels[p.selected].env = v }
func (p *PCM) SetPan(v uint8)      { p.channels[p.selected].pan = v }

// SetFrequency writes the per-sample step in the chip's native 16.11
// fixed-point address format, as software computes it from the desired
// playback rate.
func (p *PCM) SetFrequency(step16_11 uint32) {
	p.channels[p.selected].step = step16_11
}

// SetStartAddress sets the selected channel's current (and, implicitly,
// loop) address from an 8-bit page register, matching the real chip's
// "start address is a byte address times 2^pcmFixedPointBits" convention.
func (p *PCM) SetStartAddress(page uint8) {
	addr := uint32(page) << (8 + pcmFixedPointBits)
	p.channels[p.selected].address = addr
	p.channels[p.selected].loopAt = addr
}

// KeyOn enables or disables channel playback; disabling snaps the address
// back to the loop point rather than leaving it mid-sample, matching the
// real chip's key-on/off behaviour.
func (p *PCM) KeyOn(ch int, on bool) {
	c := &p.channels[ch&0x07]
	c.enabled = on
	if !on {
		c.address = c.loopAt
	}
}

// WriteRAM writes one byte of the shared 64KiB sample RAM. Real hardware
// only allows this while the corresponding channel's playback is stopped;
// this model allows it unconditionally, simplifying the loader path that
// populates samples before starting channels.
func (p *PCM) WriteRAM(addr uint16, v uint8) {
	p.ram[addr] = v
}

// ReadRAM reads one byte of sample RAM, used by the debugger's memory
// inspector.
func (p *PCM) ReadRAM(addr uint16) uint8 {
	return p.ram[addr]
}

// Step advances every enabled channel by one sample tick (the caller is
// expected to invoke this once per clocks.PCMDivider master-clock ticks)
// and returns the mixed stereo sample, each channel's 8-bit signed sample
// byte weighted by its envelope and pan nibble.
func (p *PCM) Step() (left, right float32) {
	if !p.enabledAll {
		return 0, 0
	}
	for i := range p.channels {
		c := &p.channels[i]
		if !c.enabled {
			continue
		}
		sampleByte := p.ram[(c.address>>pcmFixedPointBits)&0xFFFF]
		sample := (float32(int8(sampleByte)) / 128.0) * (float32(c.env) / 255.0)

		lWeight := float32(c.pan&0x0F) / 15.0
		rWeight := float32(c.pan>>4) / 15.0
		left += sample * lWeight
		right += sample * rWeight

		c.address += c.step
		if (c.address >> pcmFixedPointBits) >= 0x10000 {
			c.address = c.loopAt
		}
	}
	return left, right
}

// SetEnabled gates the whole chip's output, matching the gate array's PCM
// enable bit in the CDD fader-control register.
func (p *PCM) SetEnabled(on bool) {
	p.enabledAll = on
}

// Save writes the 64KiB sample RAM (software loads samples via RAM
// writes, so a cold-reset restore would otherwise replay silence), all 8
// channels' playback state, and the chip-enable flag into fw, for
// save-state capture.
func (p *PCM) Save(fw *savestate.FieldWriter) {
	fw.U8(1)
	fw.Bytes(p.ram[:])
	for _, c := range p.channels {
		fw.Bool(c.enabled)
		fw.U32(c.address)
		fw.U32(c.step)
		fw.U32(c.loopAt)
		fw.U8(c.env)
		fw.U8(c.pan)
	}
	fw.Bytes(p.bankSelect[:])
	fw.U8(uint8(p.selected))
	fw.Bool(p.enabledAll)
}

// Load restores every field Save wrote.
func (p *PCM) Load(fr *savestate.FieldReader) {
	_ = fr.U8()
	copy(p.ram[:], fr.Bytes(len(p.ram)))
	for i := range p.channels {
		p.channels[i].enabled = fr.Bool()
		p.channels[i].address = fr.U32()
		p.channels[i].step = fr.U32()
		p.channels[i].loopAt = fr.U32()
		p.channels[i].env = fr.U8()
		p.channels[i].pan = fr.U8()
	}
	copy(p.bankSelect[:], fr.Bytes(len(p.bankSelect)))
	p.selected = int(fr.U8())
	p.enabledAll = fr.Bool()
}
