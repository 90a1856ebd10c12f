// Package psg emulates the SN76489-derived programmable sound generator
// wired to the 68K at 0xC00011/0x7F11 (mirrored) and to the Z80 at 0x7F11,
// providing three square-wave tone channels and one LFSR noise channel. The
// Sega variant widens the noise LFSR to 16 bits and taps bits 0 and 3 for
// white noise, versus the original TI part's 15-bit LFSR tapping bits 0 and
// 1; both differences are captured in Variant below rather than hardcoded,
// since the Game Gear's PSG is the same core with an added stereo panning
// register.
package psg

import "math"

// Variant captures the few bits of chip-to-chip variation across the
// SN76489 family that actually affects observable behaviour.
type Variant struct {
	LFSRBits   int
	NoiseTaps  uint16
	ToneZeroAs uint16 // what an all-zero tone register counts as
}

// SegaVariant is the chip as wired into every Sega console in this family.
var SegaVariant = Variant{LFSRBits: 16, NoiseTaps: 0x0009, ToneZeroAs: 1}

var volumeTable [16]float32

func init() {
	for i := 0; i < 15; i++ {
		volumeTable[i] = float32(math.Pow(10, -2.0*float64(i)/20.0))
	}
	volumeTable[15] = 0
}

// PSG is one SN76489-family chip: three tone channels and a noise channel,
// each with an independent 4-bit attenuator.
type PSG struct {
	variant Variant

	toneFreq    [3]uint16
	toneCounter [3]uint16
	toneHigh    [3]bool

	noiseControl uint8
	noiseCounter uint16
	lfsr         uint16
	noiseEdge    bool
	noiseHigh    bool

	volume [4]uint8

	latchChannel uint8
	latchIsVol   bool

	clockDivider int
	gain         float32
}

// New creates a chip in its post-reset state: every channel silenced.
func New(variant Variant) *PSG {
	p := &PSG{variant: variant, gain: 0.25}
	p.Reset()
	return p
}

// Reset returns the chip to its power-on state. Host-side mixing gain is
// not chip state and survives a reset.
func (p *PSG) Reset() {
	p.toneFreq = [3]uint16{}
	p.toneCounter = [3]uint16{}
	p.toneHigh = [3]bool{}
	p.noiseControl = 0
	p.noiseCounter = 0
	p.lfsr = p.lfsrReset()
	p.noiseEdge = false
	p.noiseHigh = false
	for i := range p.volume {
		p.volume[i] = 0x0F
	}
	p.latchChannel = 0
	p.latchIsVol = false
	p.clockDivider = 0
}

func (p *PSG) lfsrReset() uint16 {
	return uint16(1) << uint(p.variant.LFSRBits-1)
}

// Write decodes one byte written to the PSG's single write-only port.
func (p *PSG) Write(value uint8) {
	if value&0x80 != 0 {
		p.latchChannel = (value >> 5) & 3
		p.latchIsVol = value&0x10 != 0
		data := value & 0x0F
		p.apply(data, true)
		return
	}
	p.apply(value&0x3F, false)
}

func (p *PSG) apply(data uint8, lowNibble bool) {
	if p.latchIsVol {
		p.volume[p.latchChannel] = data & 0x0F
		return
	}
	if p.latchChannel < 3 {
		if lowNibble {
			p.toneFreq[p.latchChannel] = (p.toneFreq[p.latchChannel] &^ 0x0F) | uint16(data&0x0F)
		} else {
			p.toneFreq[p.latchChannel] = (p.toneFreq[p.latchChannel] &^ 0x3F0) | (uint16(data&0x3F) << 4)
		}
		return
	}
	p.noiseControl = data & 0x07
	p.lfsr = p.lfsrReset()
}

// Clock advances the chip by one PSG input clock (the Genesis divides the
// master clock by clocks.PSGDivider to produce it); internally the chip
// further divides by 16 to reach its channel counters.
func (p *PSG) Clock() {
	p.clockDivider++
	if p.clockDivider < 16 {
		return
	}
	p.clockDivider = 0

	for i := 0; i < 3; i++ {
		if p.toneCounter[i] > 0 {
			p.toneCounter[i]--
			continue
		}
		if p.toneFreq[i] == 0 {
			p.toneCounter[i] = p.variant.ToneZeroAs
		} else {
			p.toneCounter[i] = p.toneFreq[i]
		}
		p.toneHigh[i] = !p.toneHigh[i]
	}

	if p.noiseCounter > 0 {
		p.noiseCounter--
		return
	}
	switch p.noiseControl & 0x03 {
	case 0:
		p.noiseCounter = 0x10
	case 1:
		p.noiseCounter = 0x20
	case 2:
		p.noiseCounter = 0x40
	case 3:
		if p.toneFreq[2] == 0 {
			p.noiseCounter = p.variant.ToneZeroAs
		} else {
			p.noiseCounter = p.toneFreq[2]
		}
	}
	p.noiseEdge = !p.noiseEdge
	if !p.noiseEdge {
		return
	}
	p.noiseHigh = p.lfsr&1 != 0
	var feedback uint16
	if p.noiseControl&0x04 != 0 {
		tapped := p.lfsr & p.variant.NoiseTaps
		tapped ^= tapped >> 8
		tapped ^= tapped >> 4
		tapped ^= tapped >> 2
		tapped ^= tapped >> 1
		feedback = (tapped & 1) << uint(p.variant.LFSRBits-1)
	} else {
		feedback = (p.lfsr & 1) << uint(p.variant.LFSRBits-1)
	}
	p.lfsr = (p.lfsr >> 1) | feedback
}

// Sample mixes the current instantaneous channel outputs into one
// unipolar amplitude sample, the form the mixer in package audio expects.
func (p *PSG) Sample() float32 {
	var sample float32
	for i := 0; i < 3; i++ {
		if p.toneHigh[i] {
			sample += volumeTable[p.volume[i]]
		}
	}
	if p.noiseHigh {
		sample += volumeTable[p.volume[3]]
	}
	return sample * p.gain
}

// SetGain scales the chip's contribution to the final mix, letting the
// audio mixer balance the PSG against the YM2612 the way real consoles do
// in their analog summing stage.
func (p *PSG) SetGain(gain float32) { p.gain = gain }

// ToneFrequency returns channel i's 10-bit tone divider, for the debugger
// and save-state serialisation.
func (p *PSG) ToneFrequency(ch int) uint16 { return p.toneFreq[ch] }

// Volume returns channel ch's 4-bit attenuator (0 = loudest, 15 = silent).
func (p *PSG) Volume(ch int) uint8 { return p.volume[ch] }

// NoiseControl returns the 3-bit noise control register.
func (p *PSG) NoiseControl() uint8 { return p.noiseControl }

// LFSR returns the raw noise shift register, for save states.
func (p *PSG) LFSR() uint16 { return p.lfsr }

// LoadLFSR restores the noise shift register from a save state.
func (p *PSG) LoadLFSR(v uint16) { p.lfsr = v }
