// Package hardware wires every emulated component into one Machine: the
// memory map, the clock arbiter that catches every component up to the
// 68K's current cycle on each bus access, and the cross-component calls
// (VDP DMA reading the 68K bus, interrupt sources feeding the 68K,
// Z80 BUSREQ/RESET lines driven from 68K port writes).
package hardware

import (
	"github.com/kestrel-emu/megawave/clocks"
	"github.com/kestrel-emu/megawave/hardware/cartridge"
	"github.com/kestrel-emu/megawave/hardware/cpu68k"
	"github.com/kestrel-emu/megawave/hardware/memorymap"
	"github.com/kestrel-emu/megawave/hardware/ports"
	"github.com/kestrel-emu/megawave/hardware/psg"
	"github.com/kestrel-emu/megawave/hardware/segacd"
	"github.com/kestrel-emu/megawave/hardware/vdp"
	"github.com/kestrel-emu/megawave/hardware/ym2612"
	"github.com/kestrel-emu/megawave/hardware/z80"
	"github.com/kestrel-emu/megawave/instance"
)

// Machine is one fully wired console instance: a 68K, the Z80 sound
// coprocessor, the VDP, the two sound chips, controller I/O, and
// whichever cartridge mapper the loaded image needs.
type Machine struct {
	inst *instance.Instance

	CPU   *cpu68k.CPU
	Z80   *z80.CPU
	VDP   *vdp.VDP
	YM    *ym2612.Chip
	PSG   *psg.PSG
	Ports *ports.Controllers

	// SegaCD is non-nil only when inst.System is instance.SegaCD: the
	// expansion unit is a child component the main harness drives from
	// its own clock fan-out (see onCPUCycle), never a peer the main CPU
	// holds a two-way pointer to.
	SegaCD *segacd.Unit

	mapper cartridge.Mapper
	workRAM *memorymap.RAMBuffer
	z80RAM  *memorymap.RAMBuffer

	bus68k *memorymap.Map
	busZ80 *memorymap.Map

	z80BusReq bool
	z80Reset  bool

	// z80MasterDebt accumulates fractional master clocks owed to the Z80,
	// whose divider (15) doesn't evenly share a common multiple with the
	// callback granularity the 68K core reports cycles in.
	z80MasterDebt int
	ymMasterDebt  int
	psgMasterDebt int

	audioSink func(ymL, ymR, psgSample float32)

	z80BankedAddr uint32
}

// New constructs a Machine for the given cartridge image, already decoded
// by cartridgeloader and wrapped in a concrete cartridge.Mapper by the
// caller (main.go decides which mapper variant the image needs).
func New(inst *instance.Instance, mapper cartridge.Mapper, region clocks.Region) *Machine {
	m := &Machine{
		inst:    inst,
		VDP:     vdp.New(vdpRegion(region)),
		YM:      ym2612.New(clocks.NTSCMasterHz/clocks.YMDivider, 53267),
		PSG:     psg.New(psg.SegaVariant),
		Ports:   ports.New(),
		mapper:  mapper,
		workRAM: memorymap.NewRAM(64 * 1024),
		z80RAM:  memorymap.NewRAM(8 * 1024),
	}

	if inst.System == instance.SegaCD {
		m.SegaCD = segacd.New()
	}

	m.bus68k = buildBus68K(m)
	m.CPU = cpu68k.New(m.bus68k, m.bus68k)
	m.CPU.AddInterruptSource(m.VDP)
	m.CPU.AddInterruptSource(m.Ports)
	m.CPU.SetCycleCallback(m.onCPUCycle)

	m.busZ80 = buildBusZ80(m)
	m.Z80 = z80.New(m.busZ80)

	m.VDP.AttachSourceBus(m.bus68k)

	return m
}

func vdpRegion(r clocks.Region) vdp.Region {
	if r == clocks.PAL {
		return vdp.PAL
	}
	return vdp.NTSC
}

// Reset puts every component back to its post-power-on state.
func (m *Machine) Reset() error {
	m.VDP.Reset()
	m.PSG.Reset()
	m.YM.Reset()
	if err := m.CPU.Reset(); err != nil {
		return err
	}
	m.Z80.SetReset(true)
	if m.SegaCD != nil {
		m.SegaCD.Reset()
	}
	return nil
}

// Instance returns the process-wide context this Machine was built from,
// letting the debugger poll/clear DebuggerEntered and ShouldExit without
// this package exposing its other internal state.
func (m *Machine) Instance() *instance.Instance {
	return m.inst
}

// AttachAudioSink registers a callback the harness invokes separately per
// source: once per YM2612 output sample with its stereo sample (psgSample 0), once
// per PSG clock with its sample (ymL and ymR 0), and on a Sega CD once
// per PCM sample with the PCM's stereo output in the ymL/ymR slots.
// Nothing is mixed or folded to mono here. This lets the caller (typically package audio's Mixer) push into its own ring
// buffers without this package importing audio directly.
func (m *Machine) AttachAudioSink(sink func(ymL, ymR, psgSample float32)) {
	m.audioSink = sink
}

// onCPUCycle is the 68K's CycleCallback: it advances every other
// component by the number of master clocks one 68K bus cycle represents,
// catching everyone up to the current cycle before a memory access is
// decoded.
func (m *Machine) onCPUCycle() error {
	const masterTicks = clocks.M68KDivider

	for i := 0; i < masterTicks; i++ {
		m.VDP.Step()
	}

	m.advanceZ80(masterTicks)
	m.advanceYM(masterTicks)
	m.advancePSG(masterTicks)

	if m.SegaCD != nil {
		if err := m.SegaCD.Step(masterTicks, m.segaCDAudioSink); err != nil {
			return err
		}
	}

	return nil
}

func (m *Machine) segaCDAudioSink(l, r float32) {
	if m.audioSink != nil {
		m.audioSink(l, r, 0)
	}
}

func (m *Machine) advanceZ80(masterTicks int) {
	m.z80MasterDebt += masterTicks
	for m.z80MasterDebt >= clocks.Z80Divider {
		m.z80MasterDebt -= clocks.Z80Divider
		m.Z80.Step()
	}
}

func (m *Machine) advanceYM(masterTicks int) {
	m.ymMasterDebt += masterTicks
	// The YM2612 produces one output sample every 144 of its own clocks
	// (YMDivider master clocks each): at that rate its hardware timers
	// advance one tick and, when a sink is attached, its current stereo
	// sample is pushed to that sink.
	const masterPerSample = clocks.YMDivider * 144
	for m.ymMasterDebt >= masterPerSample {
		m.ymMasterDebt -= masterPerSample
		m.YM.TickTimers()
		if m.audioSink != nil {
			l, r := m.YM.Sample()
			m.audioSink(l, r, 0)
		}
	}
}

func (m *Machine) advancePSG(masterTicks int) {
	m.psgMasterDebt += masterTicks
	for m.psgMasterDebt >= clocks.PSGDivider {
		m.psgMasterDebt -= clocks.PSGDivider
		m.PSG.Clock()
		if m.audioSink != nil {
			m.audioSink(0, 0, m.PSG.Sample())
		}
	}
}

// Step runs exactly one 68K instruction (and, via onCPUCycle, catches up
// every other component), returning any error the step raised. The
// instruction's Result is not returned; CPU.LastResult holds it.
func (m *Machine) Step() error {
	if m.inst.ShouldExit || m.inst.DebuggerEntered {
		return nil
	}
	_, err := m.CPU.Step()
	return err
}

// RunFrame steps the 68K until the VDP has completed one full frame
// (observed as the vertical counter wrapping back to line 0): the
// harness's top-level "advance by video frame" entry point, used by the
// CLI's `-b N` headless mode and the interactive run loop alike.
func (m *Machine) RunFrame() error {
	startLine := m.VDP.Line()
	wrapped := false
	for !wrapped {
		if m.inst.ShouldExit || m.inst.DebuggerEntered {
			return nil
		}
		if err := m.Step(); err != nil {
			return err
		}
		if m.VDP.Line() < startLine {
			wrapped = true
		}
	}
	return nil
}

// buildBus68K attaches every region of the 68K's 24-bit address space:
// cartridge ROM/mapper at the bottom, work RAM mirrored at the top, and
// the Z80/VDP/IO windows in between.
func buildBus68K(m *Machine) *memorymap.Map {
	mm := memorymap.New(24)

	// The Sega CD's word-RAM and gate-array windows are attached before
	// the cartridge mapper and work RAM so their narrower ranges win the
	// memorymap's first-match decode: word RAM falls inside the mapper's
	// 0x000000-0x400000 span, the gate array inside work RAM's
	// 0xE00000-0x1000000 mirror. The word-RAM window spans the full 256KiB
	// buffer (real hardware's main-side window is nibble-packed to 128KiB
	// in 2M mode; this model keeps one flat byte buffer on both sides, so
	// the window is sized to match rather than aliasing half of it away).
	if m.SegaCD != nil {
		mm.Attach(0x020000, 0x060000, memorymap.FuncHandler{
			ReadByte:  m.SegaCD.MainReadWordRAM,
			WriteByte: m.SegaCD.MainWriteWordRAM,
		})
		mm.Attach(0xFF8000, 0xFF8000+96*2, memorymap.FuncHandler{
			ReadByte:  m.SegaCD.MainReadGateArray,
			WriteByte: m.SegaCD.MainWriteGateArray,
		})
	}

	mm.Attach(0x000000, 0x400000, m.mapper)

	mm.Attach(0xA00000, 0xA10000, memorymap.FuncHandler{
		ReadByte:  func(off uint32) (uint8, error) { return m.z80RAM.Read8(off) },
		WriteByte: func(off uint32, v uint8) error { return m.z80RAM.Write8(off, v) },
		ReadWord:  func(off uint32) (uint16, error) { return m.z80RAM.Read16(off) },
		WriteWord: func(off uint32, v uint16) error { return m.z80RAM.Write16(off, v) },
	})

	mm.Attach(0xA10000, 0xA10020, memorymap.FuncHandler{
		ReadByte:  m.readIOPort,
		WriteByte: m.writeIOPort,
	})

	mm.Attach(0xA11100, 0xA11102, memorymap.FuncHandler{
		ReadByte: func(uint32) (uint8, error) {
			if m.z80BusReq && !m.z80Reset {
				return 0x01, nil
			}
			return 0x00, nil
		},
		WriteByte: func(_ uint32, v uint8) error {
			m.z80BusReq = v&0x01 != 0
			m.Z80.SetBusRequest(m.z80BusReq)
			return nil
		},
	})

	mm.Attach(0xA11200, 0xA11202, memorymap.FuncHandler{
		WriteByte: func(_ uint32, v uint8) error {
			m.z80Reset = v&0x01 == 0
			m.Z80.SetReset(m.z80Reset)
			return nil
		},
	})

	mm.Attach(0xA13000, 0xA13100, memorymap.FuncHandler{
		WriteByte: func(off uint32, v uint8) error { return m.mapper.Write8(off, v) },
	})

	var tmssLatch uint32 // the four bytes written to 0xA14000-0xA14003
	mm.Attach(0xA14000, 0xA14004, memorymap.FuncHandler{
		WriteByte: func(off uint32, v uint8) error {
			shift := (3 - off&3) * 8
			tmssLatch = tmssLatch&^(0xFF<<shift) | uint32(v)<<shift
			m.Ports.WriteTMSSLock(tmssLatch)
			return nil
		},
	})

	mm.Attach(0xC00000, 0xC00010, memorymap.FuncHandler{
		ReadWord: func(off uint32) (uint16, error) {
			switch off & 0x0F {
			case 0x00, 0x02:
				return m.VDP.ReadDataPort(), nil
			default:
				return m.VDP.ReadControlPort(), nil
			}
		},
		WriteByte: func(off uint32, v uint8) error {
			switch off & 0x0F {
			case 0x00, 0x01, 0x02, 0x03:
				m.VDP.WriteDataPortByte(v)
			}
			return nil
		},
		WriteWord: func(off uint32, v uint16) error {
			switch off & 0x0F {
			case 0x00, 0x02:
				for m.VDP.FIFOFull() {
					if err := m.onCPUCycle(); err != nil {
						return err
					}
				}
				m.VDP.WriteDataPort(v)
			default:
				m.VDP.WriteControlPort(v)
			}
			return nil
		},
	})

	mm.Attach(0xC00010, 0xC00018, memorymap.FuncHandler{
		WriteByte: func(off uint32, v uint8) error {
			if off&1 == 1 {
				m.PSG.Write(v)
			}
			return nil
		},
	})

	mm.Attach(0xE00000, 0x1000000, memorymap.FuncHandler{
		ReadByte:  m.workRAM.Read8,
		WriteByte: m.workRAM.Write8,
		ReadWord:  m.workRAM.Read16,
		WriteWord: m.workRAM.Write16,
	})

	return mm
}

func (m *Machine) readIOPort(off uint32) (uint8, error) {
	switch off {
	case 0x01:
		return m.Ports.ReadData(ports.Port1), nil
	case 0x03:
		return m.Ports.ReadData(ports.Port2), nil
	case 0x05:
		return m.Ports.ReadData(ports.PortExt), nil
	case 0x07:
		return m.Ports.ReadCtrl(ports.Port1), nil
	case 0x09:
		return m.Ports.ReadCtrl(ports.Port2), nil
	case 0x0B:
		return m.Ports.ReadCtrl(ports.PortExt), nil
	}
	return 0xFF, nil
}

func (m *Machine) writeIOPort(off uint32, v uint8) error {
	switch off {
	case 0x01:
		m.Ports.WriteData(ports.Port1, v)
	case 0x03:
		m.Ports.WriteData(ports.Port2, v)
	case 0x05:
		m.Ports.WriteData(ports.PortExt, v)
	case 0x07:
		m.Ports.WriteCtrl(ports.Port1, v)
	case 0x09:
		m.Ports.WriteCtrl(ports.Port2, v)
	case 0x0B:
		m.Ports.WriteCtrl(ports.PortExt, v)
	}
	return nil
}

// buildBusZ80 builds the Z80's 16-bit address space: its own 8 KiB RAM
// mirrored across 0x0000-0x3FFF, the YM2612 port pair, the bank
// register, the PSG port, and the 32 KiB banked window onto the 68K bus.
// No VDP port window is mapped on the Z80 side.
func buildBusZ80(m *Machine) *memorymap.Map {
	mm := memorymap.New(16)

	mm.Attach(0x0000, 0x4000, memorymap.FuncHandler{
		ReadByte:  m.z80RAM.Read8,
		WriteByte: m.z80RAM.Write8,
	})

	mm.Attach(0x4000, 0x4004, memorymap.FuncHandler{
		WriteByte: func(off uint32, v uint8) error {
			m.YM.WritePort(int(off), v)
			return nil
		},
		ReadByte: func(uint32) (uint8, error) { return m.YM.Status(), nil },
	})

	mm.Attach(0x7F11, 0x7F12, memorymap.FuncHandler{
		WriteByte: func(_ uint32, v uint8) error {
			m.PSG.Write(v)
			return nil
		},
	})

	mm.Attach(0x6000, 0x6001, memorymap.FuncHandler{
		WriteByte: func(_ uint32, v uint8) error {
			// Each write shifts one bit into the top of the 9-bit bank
			// register, matching the real hardware's one-bit-at-a-time
			// bank select protocol.
			m.z80BankedAddr = (m.z80BankedAddr >> 1) | (uint32(v&0x01) << 23)
			return nil
		},
	})

	mm.Attach(0x8000, 0x10000, memorymap.FuncHandler{
		ReadByte: func(off uint32) (uint8, error) {
			b, _ := m.bus68k.Read8(m.z80BankWindow(off))
			return b, nil
		},
		WriteByte: func(off uint32, v uint8) error {
			return m.bus68k.Write8(m.z80BankWindow(off), v)
		},
	})

	return mm
}

func (m *Machine) z80BankWindow(off uint32) uint32 {
	return (m.z80BankedAddr &^ 0x7FFF) + off
}
