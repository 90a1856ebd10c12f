package cpu68k

// size identifies the width of an operand transfer.
type size int

const (
	sizeByte size = 1
	sizeWord size = 2
	sizeLong size = 4
)

func (s size) mask() uint32 {
	switch s {
	case sizeByte:
		return 0xFF
	case sizeWord:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

func (s size) signBit() uint32 {
	switch s {
	case sizeByte:
		return 0x80
	case sizeWord:
		return 0x8000
	default:
		return 0x80000000
	}
}

// ea is a resolved effective address: either a register (kindDataReg /
// kindAddrReg) or a memory location (kindMemory), produced once by
// decodeEA and then read or written through get/set. Keeping the decoded
// form around separately from the raw mode/reg fields means postincrement
// and predecrement side effects on An happen exactly once, at decode time,
// matching the real processor's single effective-address calculation.
type ea struct {
	kind int
	reg  int
	addr uint32

	// immediate holds the value for kindImmediate, which has no address to
	// write back to (a MOVE with an immediate destination is illegal and
	// never decoded, but CMP/ADD/AND etc. read immediates as a source).
	immediate uint32
}

const (
	kindDataReg = iota
	kindAddrReg
	kindMemory
	kindImmediate
)

// decodeEA decodes a standard 6-bit mode/register field, consuming any
// extension words it needs (displacement, extension word, absolute
// address) from the instruction stream via fetch16/fetch32, and applying
// postincrement/predecrement to the address register immediately.
func (c *CPU) decodeEA(mode, reg int, sz size) (ea, error) {
	switch mode {
	case 0:
		return ea{kind: kindDataReg, reg: reg}, nil
	case 1:
		return ea{kind: kindAddrReg, reg: reg}, nil
	case 2:
		return ea{kind: kindMemory, addr: c.Reg.A[reg]}, nil
	case 3:
		addr := c.Reg.A[reg]
		inc := uint32(sz)
		if reg == 7 && sz == sizeByte {
			inc = 2 // A7 stays word-aligned
		}
		c.Reg.A[reg] += inc
		return ea{kind: kindMemory, addr: addr}, nil
	case 4:
		dec := uint32(sz)
		if reg == 7 && sz == sizeByte {
			dec = 2
		}
		c.Reg.A[reg] -= dec
		return ea{kind: kindMemory, addr: c.Reg.A[reg]}, nil
	case 5:
		disp, err := c.fetch16()
		if err != nil {
			return ea{}, err
		}
		return ea{kind: kindMemory, addr: c.Reg.A[reg] + signExtend16(disp)}, nil
	case 6:
		addr, err := c.indexedAddress(c.Reg.A[reg])
		if err != nil {
			return ea{}, err
		}
		return ea{kind: kindMemory, addr: addr}, nil
	case 7:
		switch reg {
		case 0:
			w, err := c.fetch16()
			if err != nil {
				return ea{}, err
			}
			return ea{kind: kindMemory, addr: signExtend16(w)}, nil
		case 1:
			l, err := c.fetch32()
			if err != nil {
				return ea{}, err
			}
			return ea{kind: kindMemory, addr: l}, nil
		case 2:
			base := c.Reg.PC
			disp, err := c.fetch16()
			if err != nil {
				return ea{}, err
			}
			return ea{kind: kindMemory, addr: base + signExtend16(disp)}, nil
		case 3:
			base := c.Reg.PC
			addr, err := c.indexedAddress(base)
			if err != nil {
				return ea{}, err
			}
			return ea{kind: kindMemory, addr: addr}, nil
		case 4:
			switch sz {
			case sizeByte:
				w, err := c.fetch16()
				if err != nil {
					return ea{}, err
				}
				return ea{kind: kindImmediate, immediate: uint32(w) & 0xFF}, nil
			case sizeWord:
				w, err := c.fetch16()
				if err != nil {
					return ea{}, err
				}
				return ea{kind: kindImmediate, immediate: uint32(w)}, nil
			default:
				l, err := c.fetch32()
				if err != nil {
					return ea{}, err
				}
				return ea{kind: kindImmediate, immediate: l}, nil
			}
		}
	}
	return ea{}, c.illegal()
}

// indexedAddress decodes the brief extension word format used by mode 6
// (An-relative) and mode 7/3 (PC-relative): an 8-bit signed displacement
// plus a data or address register used as an index, sign- or zero-extended
// per the extension word's word/long bit.
func (c *CPU) indexedAddress(base uint32) (uint32, error) {
	ext, err := c.fetch16()
	if err != nil {
		return 0, err
	}
	idxReg := int((ext >> 12) & 7)
	var idx uint32
	if ext&(1<<15) != 0 {
		idx = c.Reg.A[idxReg]
	} else {
		idx = c.Reg.D[idxReg]
	}
	if ext&(1<<11) == 0 {
		idx = signExtend16(uint16(idx))
	}
	disp := int8(ext & 0xFF)
	return base + idx + uint32(int32(disp)), nil
}

func signExtend16(v uint16) uint32 {
	return uint32(int32(int16(v)))
}

// get reads the operand's value at the given size, ticking the bus for
// memory operands.
func (c *CPU) getEA(e ea, sz size) (uint32, error) {
	switch e.kind {
	case kindDataReg:
		return c.Reg.D[e.reg] & sz.mask(), nil
	case kindAddrReg:
		if sz == sizeWord {
			return signExtend16(uint16(c.Reg.A[e.reg])) & sz.mask(), nil
		}
		return c.Reg.A[e.reg] & sz.mask(), nil
	case kindImmediate:
		return e.immediate, nil
	default:
		switch sz {
		case sizeByte:
			v, err := c.read8(e.addr)
			return uint32(v), err
		case sizeWord:
			v, err := c.read16(e.addr)
			return uint32(v), err
		default:
			return c.read32(e.addr)
		}
	}
}

// set writes value (already masked to sz by the caller's arithmetic) into
// the operand. Writing a byte or word to a data register only touches the
// low bits, leaving the rest of the register intact, matching hardware.
func (c *CPU) setEA(e ea, sz size, value uint32) error {
	switch e.kind {
	case kindDataReg:
		switch sz {
		case sizeByte:
			c.Reg.D[e.reg] = (c.Reg.D[e.reg] &^ 0xFF) | (value & 0xFF)
		case sizeWord:
			c.Reg.D[e.reg] = (c.Reg.D[e.reg] &^ 0xFFFF) | (value & 0xFFFF)
		default:
			c.Reg.D[e.reg] = value
		}
		return nil
	case kindAddrReg:
		if sz == sizeWord {
			c.Reg.A[e.reg] = signExtend16(uint16(value))
			return nil
		}
		c.Reg.A[e.reg] = value
		return nil
	case kindImmediate:
		return c.illegal()
	default:
		switch sz {
		case sizeByte:
			return c.write8(e.addr, uint8(value))
		case sizeWord:
			return c.write16(e.addr, uint16(value))
		default:
			return c.write32(e.addr, value)
		}
	}
}

func (c *CPU) illegal() error {
	return takeIllegal
}

// illegalSentinel is matched by execute to raise the illegal-instruction
// exception without plumbing a typed error through every decode helper.
type illegalSentinel struct{}

func (illegalSentinel) Error() string { return "cpu68k: illegal instruction" }

var takeIllegal error = illegalSentinel{}
