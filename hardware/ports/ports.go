// Package ports implements the console's controller I/O: the three 9-pin
// port data/control/serial register triples, the TH/TR handshake standard
// pads use to multiplex six buttons onto six data lines, the TMSS
// ("Trademark Security System") lock register, and the EINT edge detector
// on port 2's TH line.
package ports

// Port identifies one of the three physical controller connectors.
type Port int

const (
	Port1 Port = iota
	Port2
	PortExt
)

// Pad is the button state of a standard or six-button controller, read
// by the host frontend and fed into Controllers.SetButtons once per frame; the
// TH-cycling protocol below samples whichever half of it the current TH
// level selects.
type Pad struct {
	Up, Down, Left, Right bool
	A, B, C               bool
	X, Y, Z, Mode, Start  bool
	SixButton             bool
}

// controllerPort is one physical connector's register triple (DATA,
// CTRL, S-CTRL/TxD/RxD) plus the pad currently plugged into it.
type controllerPort struct {
	data uint8 // last value written by the CPU (pins driven as outputs)
	ctrl uint8 // direction register: 1 = CPU drives that pin
	tx   uint8
	rx   uint8
	sctl uint8

	pad Pad

	thCycle    int  // 6-button controllers advance through 4 TH toggles per read
	thPrev     bool
	edgeLatched bool
}

// Controllers owns all three ports and the TMSS lock register.
type Controllers struct {
	ports [3]controllerPort

	tmssLocked bool
	eintFromTH bool // port 2's TH edge can be wired to raise EINT
}

// New creates a Controllers block with all ports unplugged (idle-high,
// matching an open connector) and TMSS locked, matching power-on state on
// consoles that implement the lockout.
func New() *Controllers {
	c := &Controllers{tmssLocked: true}
	for i := range c.ports {
		c.ports[i].data = 0x7F
		c.ports[i].ctrl = 0x00
	}
	return c
}

// Plug attaches pad as the controller in port p, replacing whatever was
// there (including nothing).
func (c *Controllers) Plug(p Port, pad Pad) { c.ports[p].pad = pad }

// SetButtons updates the live button state for whatever pad occupies
// port p, to be read back on the port's next data-register read.
func (c *Controllers) SetButtons(p Port, pad Pad) { c.ports[p].pad = pad }

// ReadData returns the DATA register for port p: bits the CPU is driving
// as outputs (per the CTRL direction register) read back their last
// written value; bits configured as inputs read the pad's current state
// for whichever half the TH line currently selects.
func (c *Controllers) ReadData(p Port) uint8 {
	port := &c.ports[p]
	th := port.data&0x40 != 0

	var sample uint8
	pad := port.pad
	if th {
		// TH=1: up/down/left/right/B/C on the low bits, TH echoed high.
		sample = 0x40
		if !pad.Up {
			sample |= 0x01
		}
		if !pad.Down {
			sample |= 0x02
		}
		if !pad.Left {
			sample |= 0x04
		}
		if !pad.Right {
			sample |= 0x08
		}
		if !pad.B {
			sample |= 0x10
		}
		if !pad.C {
			sample |= 0x20
		}
	} else {
		// TH=0: up/down on bits 0-1 and A/Start on bits 4-5; on a
		// 3-button pad the Left/Right pins (bits 2-3) read high. A
		// six-button pad instead reports a cleared low nibble on its
		// extra-button cycle.
		sample = 0x00
		if !pad.Up {
			sample |= 0x01
		}
		if !pad.Down {
			sample |= 0x02
		}
		if pad.SixButton && port.thCycle == 1 {
			if !pad.A {
				sample |= 0x10
			}
			if !pad.Start {
				sample |= 0x20
			}
			sample &^= 0x0F // low nibble reports 0000 on the extra-button cycle
		} else {
			sample |= 0x0C // Left/Right pins read high (always-1) on a 3-button pad's TH=0 cycle
			if !pad.A {
				sample |= 0x10
			}
			if !pad.Start {
				sample |= 0x20
			}
		}
	}

	if th != port.thPrev {
		port.thCycle = (port.thCycle + 1) % 4
		if th && !port.edgeLatched {
			port.edgeLatched = true
		}
	}
	port.thPrev = th

	// Output bits (ctrl=1) are not overridden by the pad sample; the CPU
	// reads back exactly what it last wrote on those pins.
	return (sample &^ port.ctrl) | (port.data & port.ctrl)
}

// WriteData latches the CPU's outputs for port p's DATA register.
func (c *Controllers) WriteData(p Port, value uint8) { c.ports[p].data = value }

// ReadCtrl/WriteCtrl access the direction register (1 = pin driven by
// the CPU, 0 = pin driven by whatever is plugged in).
func (c *Controllers) ReadCtrl(p Port) uint8        { return c.ports[p].ctrl }
func (c *Controllers) WriteCtrl(p Port, value uint8) { c.ports[p].ctrl = value }

// ReadSCtrl/WriteSCtrl/ReadTxData/WriteTxData/ReadRxData access the
// serial-mode registers; this implementation treats them as plain
// read/write latches since no accessory using serial mode is modelled.
func (c *Controllers) ReadSCtrl(p Port) uint8         { return c.ports[p].sctl }
func (c *Controllers) WriteSCtrl(p Port, value uint8) { c.ports[p].sctl = value }
func (c *Controllers) ReadTxData(p Port) uint8        { return c.ports[p].tx }
func (c *Controllers) WriteTxData(p Port, value uint8) { c.ports[p].tx = value }
func (c *Controllers) ReadRxData(p Port) uint8        { return c.ports[p].rx }

// Pending implements bus.InterruptSource for the EINT line (level 2),
// raised by port 2's TH rising edge when a controller or light gun wired
// for it asserts the line.
func (c *Controllers) Pending() (level int, vector uint8, ok bool) {
	if c.ports[Port2].edgeLatched {
		return 2, 0, true
	}
	return 0, 0, false
}

// Acknowledge clears the EINT edge latch.
func (c *Controllers) Acknowledge(level int) {
	if level == 2 {
		c.ports[Port2].edgeLatched = false
	}
}

// TMSSLocked reports whether the "SEGA" magic word pair has not yet been
// written to the lock register. The flag gates no memory access: no boot
// ROM is mapped, and cartridge ROM is visible in the low address space
// whether it is set or not.
func (c *Controllers) TMSSLocked() bool { return c.tmssLocked }

// WriteTMSSLock handles a write to the TMSS lock register at 0xA14000;
// value is the register's full 32-bit content, and the two magic words
// "SEGA" clear the lock flag.
func (c *Controllers) WriteTMSSLock(value uint32) {
	if value == 0x53454741 { // "SEGA"
		c.tmssLocked = false
	}
}
