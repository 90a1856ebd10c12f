// Package clocks defines the constant values that describe the master clock
// driving every component of the emulated console.
//
// The Genesis/Mega Drive family derives all of its component clocks from a
// single master oscillator. The 68000 divides the master clock by 7, the Z80
// and PSG divide it by 15, the YM2612 divides it by 7 then again internally,
// and the VDP divides it by 4 (NTSC, H40) or by 5 (H32). Keeping every
// component's cycle counter expressed in master-clock units is what lets the
// harness compare them directly without per-component unit conversion.
package clocks

// Master clock frequencies in Hz, as generated by the console's crystal
// oscillator. NTSC consoles use a ~53.69MHz oscillator; PAL consoles use a
// ~53.2MHz oscillator tuned for the 50Hz mains.
const (
	NTSCMasterHz = 53693175
	PALMasterHz  = 53203424
)

// Divider ratios from the master clock to each component's own clock.
const (
	M68KDivider = 7
	Z80Divider  = 15
	PSGDivider  = 15
	YMDivider   = 7
)

// Sega CD divider ratios. The sub-CPU runs off the same master oscillator
// as the main 68K but through its own divider (4, giving ~13.4MHz against
// the main CPU's ~7.67MHz); the CDC's own clock divides the master by 4 as
// well, with its DMA engine further dividing that per destination (6 ticks
// per PCM byte, 21 per RAM byte, per the gate array's documented transfer
// rates); the RF5C164 mixes one stereo sample every 384 master clocks; the
// CDD's subcode-Q interrupt fires at the disc's fixed 75Hz frame rate.
const (
	SubCPUDivider      = 4
	CDCDivider         = 4
	CDCBytePCM         = 6
	CDCByteRAM         = 21
	PCMDivider         = 384
	CDDFramesPerSecond = 75
)

// ASICByteRate is the graphics ASIC's stamp-copy rate in master-clock
// ticks per byte. No documented real-hardware throughput figure is used
// here; this rate is chosen so a handful of stamps complete within a frame
// or two.
const ASICByteRate = 4

// VDP slot dividers. H40 slots are 16 master clocks (with one irregular
// HSYNC region, see vdp.SlotLengthsH40); H32 slots are a uniform 20 master
// clocks.
const (
	VDPSlotH40 = 16
	VDPSlotH32 = 20
)

// Frame geometry. NTSC runs 262 scanlines/frame; PAL runs 313.
const (
	NTSCLinesPerFrame = 262
	PALLinesPerFrame  = 313
)

// Region identifies the broadcast standard a Machine is emulating. It
// selects frame geometry, master clock rate and refresh rate.
type Region int

const (
	NTSC Region = iota
	PAL
)

// MasterHz returns the master clock frequency for the region.
func (r Region) MasterHz() int {
	if r == PAL {
		return PALMasterHz
	}
	return NTSCMasterHz
}

// LinesPerFrame returns the number of scanlines in one frame for the region.
func (r Region) LinesPerFrame() int {
	if r == PAL {
		return PALLinesPerFrame
	}
	return NTSCLinesPerFrame
}

func (r Region) String() string {
	if r == PAL {
		return "PAL"
	}
	return "NTSC"
}

// WrapThreshold is the point at which the master clock counter (and every
// cycle-stamped record derived from it) is rebased downward by WrapAmount,
// per invariant 2 of the data model: components never observe a clock that
// has wrapped, only one that has been uniformly translated.
const (
	WrapThreshold = 1 << 40
	WrapAmount    = 1 << 39
)
