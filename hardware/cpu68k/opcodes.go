package cpu68k

import (
	"github.com/kestrel-emu/megawave/hardware/cpu68k/execution"
)

// execute decodes and runs one instruction word already consumed from the
// instruction stream. It is organised as a switch on the top nibble, which
// is how the 68000's own decode PLA groups opcodes; each case further
// narrows on whatever bits that group uses. Opcode patterns this core does
// not recognise raise the illegal-instruction or line-A/line-F exceptions,
// the same fallback path real silicon takes for unimplemented coprocessor
// and future-expansion opcodes.
func (c *CPU) execute(op uint16) (execution.Result, error) {
	var r execution.Result
	var err error

	switch op >> 12 {
	case 0x0:
		r, err = c.group0(op)
	case 0x1, 0x2, 0x3:
		r, err = c.groupMove(op)
	case 0x4:
		r, err = c.group4(op)
	case 0x5:
		r, err = c.group5(op)
	case 0x6:
		r, err = c.groupBranch(op)
	case 0x7:
		r, err = c.opMOVEQ(op)
	case 0x8:
		r, err = c.group8(op)
	case 0x9:
		r, err = c.groupAddSub(op, true)
	case 0xB:
		r, err = c.groupB(op)
	case 0xC:
		r, err = c.groupC(op)
	case 0xD:
		r, err = c.groupAddSub(op, false)
	case 0xE:
		r, err = c.groupShift(op)
	case 0xA:
		err = c.exceptionTrap(vecLineA)
		r = execution.Result{Mnemonic: "line-A"}
	case 0xF:
		err = c.exceptionTrap(vecLineF)
		r = execution.Result{Mnemonic: "line-F"}
	default:
		err = c.illegal()
	}

	if err != nil {
		if _, ok := err.(illegalSentinel); ok {
			if e2 := c.exceptionTrap(vecIllegalInstruction); e2 != nil {
				return execution.Result{}, e2
			}
			return execution.Result{Mnemonic: "ILLEGAL", Exception: "illegal instruction"}, nil
		}
		return execution.Result{}, err
	}
	return r, nil
}

// exceptionTrap is takeException for exceptions raised by the instruction
// stream itself rather than by a device interrupt.
func (c *CPU) exceptionTrap(vector int) error {
	return c.takeException(vector, 0, false)
}

func sizeFromBits2(b uint16) size {
	switch b {
	case 0:
		return sizeByte
	case 1:
		return sizeWord
	default:
		return sizeLong
	}
}

// --- group 0x0: immediate ops to EA, static/dynamic bit ops, MOVEP ---

func (c *CPU) group0(op uint16) (execution.Result, error) {
	mode := int((op >> 3) & 7)
	reg := int(op & 7)

	// MOVEP: 0000 ddd1 ss001 aaa -- rarely used (joypad-era hardware); not
	// implemented by this core. Real games targeting the VDP/PSG/YM2612
	// never use it, so it falls through to the illegal-instruction path.

	if op&0x0100 != 0 && mode != 1 { // dynamic bit op: Dn, opmode, EA
		dReg := int((op >> 9) & 7)
		opType := (op >> 6) & 3
		return c.bitOp(op, opType, uint32(c.Reg.D[dReg]&31), mode, reg)
	}
	if op&0x0100 != 0 { // MOVEP (mode 1), see above
		return execution.Result{}, c.illegal()
	}

	szBits := (op >> 6) & 3
	immOp := (op >> 9) & 7

	switch immOp {
	case 0, 1, 2, 3, 5, 6: // ORI, ANDI, SUBI, ADDI, EORI, CMPI
		if mode == 7 && reg == 4 {
			return c.immediateToSRorCCR(op, immOp)
		}
		sz := sizeFromBits2(szBits)
		imm, err := c.fetchImmediate(sz)
		if err != nil {
			return execution.Result{}, err
		}
		dst, err := c.decodeEA(mode, reg, sz)
		if err != nil {
			return execution.Result{}, err
		}
		return c.immediateArith(immOp, dst, sz, imm)
	case 4: // static bit ops: BTST/BCHG/BCLR/BSET #imm
		opType := (op >> 6) & 3
		w, err := c.fetch16()
		if err != nil {
			return execution.Result{}, err
		}
		bit := uint32(w & 0x1F)
		return c.bitOp(op, opType, bit, mode, reg)
	}
	return execution.Result{}, c.illegal()
}

func (c *CPU) fetchImmediate(sz size) (uint32, error) {
	switch sz {
	case sizeByte:
		w, err := c.fetch16()
		return uint32(w) & 0xFF, err
	case sizeWord:
		w, err := c.fetch16()
		return uint32(w), err
	default:
		return c.fetch32()
	}
}

func (c *CPU) immediateToSRorCCR(op uint16, immOp uint16) (execution.Result, error) {
	wordMode := op&0x0040 != 0
	imm, err := c.fetch16()
	if err != nil {
		return execution.Result{}, err
	}
	if !wordMode {
		if !c.Reg.SR.Supervisor {
			return execution.Result{}, c.illegal()
		}
	}
	cur := uint32(c.Reg.SR.Value())
	if !wordMode {
		imm &= 0xFF
	}
	var result uint32
	name := ""
	switch immOp {
	case 0:
		result = cur | uint32(imm)
		name = "ORI"
	case 1:
		result = cur & uint32(imm)
		name = "ANDI"
	case 5:
		result = cur ^ uint32(imm)
		name = "EORI"
	default:
		return execution.Result{}, c.illegal()
	}
	if wordMode {
		c.Reg.SetSupervisor(result&(1<<13) != 0)
		c.Reg.SR.Load(uint16(result))
	} else {
		c.Reg.SR.LoadCCR(uint8(result))
	}
	return execution.Result{Mnemonic: name + " to SR/CCR", Cycles: 20}, nil
}

func (c *CPU) immediateArith(op uint16, dst ea, sz size, imm uint32) (execution.Result, error) {
	a, err := c.getEA(dst, sz)
	if err != nil {
		return execution.Result{}, err
	}
	var result uint32
	name := ""
	switch op {
	case 0:
		result = a | imm
		c.setLogicFlags(result, sz)
		name = "ORI"
	case 1:
		result = a & imm
		c.setLogicFlags(result, sz)
		name = "ANDI"
	case 2:
		result = a - imm
		c.setSubFlags(a, imm, result, sz)
		name = "SUBI"
	case 3:
		result = a + imm
		c.setAddFlags(a, imm, result, sz)
		name = "ADDI"
	case 5:
		result = a ^ imm
		c.setLogicFlags(result, sz)
		name = "EORI"
	case 6:
		result = a - imm
		c.setSubFlags(a, imm, result, sz)
		return execution.Result{Mnemonic: "CMPI", Cycles: 8}, nil
	default:
		return execution.Result{}, c.illegal()
	}
	if err := c.setEA(dst, sz, result&sz.mask()); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Mnemonic: name, Cycles: 8}, nil
}

func (c *CPU) bitOp(op uint16, opType uint16, bit uint32, mode, reg int) (execution.Result, error) {
	sz := sizeByte
	if mode == 0 {
		sz = sizeLong
		bit &= 31
	} else {
		bit &= 7
	}
	dst, err := c.decodeEA(mode, reg, sz)
	if err != nil {
		return execution.Result{}, err
	}
	v, err := c.getEA(dst, sz)
	if err != nil {
		return execution.Result{}, err
	}
	mask := uint32(1) << bit
	c.Reg.SR.Zero = v&mask == 0
	name := "BTST"
	switch opType {
	case 1:
		v ^= mask
		name = "BCHG"
	case 2:
		v &^= mask
		name = "BCLR"
	case 3:
		v |= mask
		name = "BSET"
	default:
		return execution.Result{Mnemonic: name, Cycles: 4}, nil
	}
	if err := c.setEA(dst, sz, v); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Mnemonic: name, Cycles: 8}, nil
}

// --- MOVE / MOVEA (groups 0x1-0x3) ---

func (c *CPU) groupMove(op uint16) (execution.Result, error) {
	var sz size
	switch op >> 12 {
	case 1:
		sz = sizeByte
	case 3:
		sz = sizeWord
	default:
		sz = sizeLong
	}
	srcMode := int((op >> 3) & 7)
	srcReg := int(op & 7)
	destReg := int((op >> 9) & 7)
	destMode := int((op >> 6) & 7)

	src, err := c.decodeEA(srcMode, srcReg, sz)
	if err != nil {
		return execution.Result{}, err
	}
	v, err := c.getEA(src, sz)
	if err != nil {
		return execution.Result{}, err
	}

	if destMode == 1 { // MOVEA
		if sz == sizeWord {
			c.Reg.A[destReg] = signExtend16(uint16(v))
		} else {
			c.Reg.A[destReg] = v
		}
		return execution.Result{Mnemonic: "MOVEA", Cycles: 4}, nil
	}

	dst, err := c.decodeEA(destMode, destReg, sz)
	if err != nil {
		return execution.Result{}, err
	}
	c.setLogicFlags(v, sz)
	if err := c.setEA(dst, sz, v); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Mnemonic: "MOVE", Cycles: 4}, nil
}

// --- group 0x4: miscellaneous ---

func (c *CPU) group4(op uint16) (execution.Result, error) {
	mode := int((op >> 3) & 7)
	reg := int(op & 7)

	switch {
	case op == 0x4AFC: // ILLEGAL
		return execution.Result{}, c.illegal()
	case op == 0x4E70: // RESET
		return execution.Result{Mnemonic: "RESET", Cycles: 132}, nil
	case op == 0x4E71: // NOP
		return execution.Result{Mnemonic: "NOP", Cycles: 4}, nil
	case op == 0x4E72: // STOP
		imm, err := c.fetch16()
		if err != nil {
			return execution.Result{}, err
		}
		if !c.Reg.SR.Supervisor {
			return execution.Result{}, c.illegal()
		}
		c.Reg.SR.Load(imm)
		c.stopped = true
		return execution.Result{Mnemonic: "STOP", Cycles: 4}, nil
	case op == 0x4E73: // RTE
		if !c.Reg.SR.Supervisor {
			return execution.Result{}, c.illegal()
		}
		sr, err := c.pop16()
		if err != nil {
			return execution.Result{}, err
		}
		pc, err := c.pop32()
		if err != nil {
			return execution.Result{}, err
		}
		c.Reg.SetSupervisor(sr&(1<<13) != 0)
		c.Reg.SR.Load(sr)
		c.Reg.PC = pc
		return execution.Result{Mnemonic: "RTE", Cycles: 20}, nil
	case op == 0x4E75: // RTS
		pc, err := c.pop32()
		if err != nil {
			return execution.Result{}, err
		}
		c.Reg.PC = pc
		return execution.Result{Mnemonic: "RTS", Cycles: 16}, nil
	case op == 0x4E76: // TRAPV
		if c.Reg.SR.Overflow {
			return execution.Result{}, c.exceptionTrap(vecTRAPV)
		}
		return execution.Result{Mnemonic: "TRAPV", Cycles: 4}, nil
	case op == 0x4E77: // RTR
		ccr, err := c.pop16()
		if err != nil {
			return execution.Result{}, err
		}
		pc, err := c.pop32()
		if err != nil {
			return execution.Result{}, err
		}
		c.Reg.SR.LoadCCR(uint8(ccr))
		c.Reg.PC = pc
		return execution.Result{Mnemonic: "RTR", Cycles: 20}, nil
	}

	switch {
	case op&0xFFF8 == 0x4E50: // LINK
		a, err := c.fetch16()
		if err != nil {
			return execution.Result{}, err
		}
		if err := c.push32(c.Reg.A[reg]); err != nil {
			return execution.Result{}, err
		}
		c.Reg.A[reg] = c.Reg.A[7]
		c.Reg.A[7] += signExtend16(a)
		return execution.Result{Mnemonic: "LINK", Cycles: 16}, nil
	case op&0xFFF8 == 0x4E58: // UNLK
		c.Reg.A[7] = c.Reg.A[reg]
		v, err := c.pop32()
		if err != nil {
			return execution.Result{}, err
		}
		c.Reg.A[reg] = v
		return execution.Result{Mnemonic: "UNLK", Cycles: 12}, nil
	case op&0xFFF8 == 0x4E60: // MOVE An,USP / USP,An
		if !c.Reg.SR.Supervisor {
			return execution.Result{}, c.illegal()
		}
		if op&8 == 0 {
			c.Reg.USP = c.Reg.A[reg]
		} else {
			c.Reg.A[reg] = c.Reg.USP
		}
		return execution.Result{Mnemonic: "MOVE USP", Cycles: 4}, nil
	case op&0xFFC0 == 0x4E80: // JSR
		dst, err := c.decodeEA(mode, reg, sizeLong)
		if err != nil {
			return execution.Result{}, err
		}
		target := dst.addr
		if err := c.push32(c.Reg.PC); err != nil {
			return execution.Result{}, err
		}
		c.Reg.PC = target
		return execution.Result{Mnemonic: "JSR", Cycles: 16}, nil
	case op&0xFFC0 == 0x4EC0: // JMP
		dst, err := c.decodeEA(mode, reg, sizeLong)
		if err != nil {
			return execution.Result{}, err
		}
		c.Reg.PC = dst.addr
		return execution.Result{Mnemonic: "JMP", Cycles: 8}, nil
	case op&0xFF00 == 0x4A00 && op&0x00C0 != 0x00C0: // TST
		sz := sizeFromBits2((op >> 6) & 3)
		e, err := c.decodeEA(mode, reg, sz)
		if err != nil {
			return execution.Result{}, err
		}
		v, err := c.getEA(e, sz)
		if err != nil {
			return execution.Result{}, err
		}
		c.setLogicFlags(v, sz)
		return execution.Result{Mnemonic: "TST", Cycles: 4}, nil
	case op&0xFFC0 == 0x4AC0: // TAS
		e, err := c.decodeEA(mode, reg, sizeByte)
		if err != nil {
			return execution.Result{}, err
		}
		v, err := c.getEA(e, sizeByte)
		if err != nil {
			return execution.Result{}, err
		}
		c.setLogicFlags(v, sizeByte)
		if err := c.setEA(e, sizeByte, v|0x80); err != nil {
			return execution.Result{}, err
		}
		return execution.Result{Mnemonic: "TAS", Cycles: 14}, nil
	case op&0xF1C0 == 0x41C0: // LEA
		dReg := int((op >> 9) & 7)
		e, err := c.decodeEA(mode, reg, sizeLong)
		if err != nil {
			return execution.Result{}, err
		}
		if e.kind != kindMemory {
			return execution.Result{}, c.illegal()
		}
		c.Reg.A[dReg] = e.addr
		return execution.Result{Mnemonic: "LEA", Cycles: 4}, nil
	case op&0xF1C0 == 0x4180: // CHK
		dReg := int((op >> 9) & 7)
		e, err := c.decodeEA(mode, reg, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		bound, err := c.getEA(e, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		v := int16(c.Reg.D[dReg])
		if v < 0 {
			c.Reg.SR.Negative = true
			return execution.Result{}, c.exceptionTrap(vecCHK)
		}
		if uint16(v) > uint16(bound) {
			c.Reg.SR.Negative = false
			return execution.Result{}, c.exceptionTrap(vecCHK)
		}
		return execution.Result{Mnemonic: "CHK", Cycles: 10}, nil
	case op&0xFF00 == 0x4000: // NEGX.sz
		return c.unaryOp(op, mode, reg, "NEGX")
	case op&0xFF00 == 0x4200: // CLR.sz
		return c.unaryOp(op, mode, reg, "CLR")
	case op&0xFF00 == 0x4400: // NEG.sz
		return c.unaryOp(op, mode, reg, "NEG")
	case op&0xFF00 == 0x4600: // NOT.sz
		return c.unaryOp(op, mode, reg, "NOT")
	case op&0xFB80 == 0x4880 && op&0x0038 != 0: // EXT
		dReg := reg
		if op&0x40 != 0 { // EXT.L
			v := int32(int16(c.Reg.D[dReg]))
			c.Reg.D[dReg] = uint32(v)
			c.setLogicFlags(uint32(v), sizeLong)
		} else { // EXT.W
			v := int16(int8(c.Reg.D[dReg]))
			c.Reg.D[dReg] = (c.Reg.D[dReg] &^ 0xFFFF) | uint32(uint16(v))
			c.setLogicFlags(uint32(uint16(v)), sizeWord)
		}
		return execution.Result{Mnemonic: "EXT", Cycles: 4}, nil
	case op&0xFFF8 == 0x4840: // SWAP
		v := c.Reg.D[reg]
		c.Reg.D[reg] = v<<16 | v>>16
		c.setLogicFlags(c.Reg.D[reg], sizeLong)
		return execution.Result{Mnemonic: "SWAP", Cycles: 4}, nil
	case op&0xFFC0 == 0x4840: // PEA
		e, err := c.decodeEA(mode, reg, sizeLong)
		if err != nil {
			return execution.Result{}, err
		}
		if err := c.push32(e.addr); err != nil {
			return execution.Result{}, err
		}
		return execution.Result{Mnemonic: "PEA", Cycles: 12}, nil
	case op&0xFB80 == 0x4880: // MOVEM
		return c.movem(op, mode, reg)
	case op&0xFFC0 == 0x40C0: // MOVE from SR
		e, err := c.decodeEA(mode, reg, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		if err := c.setEA(e, sizeWord, uint32(c.Reg.SR.Value())); err != nil {
			return execution.Result{}, err
		}
		return execution.Result{Mnemonic: "MOVE from SR", Cycles: 6}, nil
	case op&0xFFC0 == 0x44C0: // MOVE to CCR
		e, err := c.decodeEA(mode, reg, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		v, err := c.getEA(e, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		c.Reg.SR.LoadCCR(uint8(v))
		return execution.Result{Mnemonic: "MOVE to CCR", Cycles: 12}, nil
	case op&0xFFC0 == 0x46C0: // MOVE to SR
		if !c.Reg.SR.Supervisor {
			return execution.Result{}, c.illegal()
		}
		e, err := c.decodeEA(mode, reg, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		v, err := c.getEA(e, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		c.Reg.SetSupervisor(v&(1<<13) != 0)
		c.Reg.SR.Load(uint16(v))
		return execution.Result{Mnemonic: "MOVE to SR", Cycles: 12}, nil
	}

	if op&0xFFF0 == 0x4E40 { // TRAP #n
		vector := vecTrapBase + int(op&0xF)
		return execution.Result{}, c.exceptionTrap(vector)
	}

	return execution.Result{}, c.illegal()
}

func (c *CPU) unaryOp(op uint16, mode, reg int, name string) (execution.Result, error) {
	sz := sizeFromBits2((op >> 6) & 3)
	e, err := c.decodeEA(mode, reg, sz)
	if err != nil {
		return execution.Result{}, err
	}
	v, err := c.getEA(e, sz)
	if err != nil {
		return execution.Result{}, err
	}
	var result uint32
	switch name {
	case "CLR":
		result = 0
		c.setLogicFlags(result, sz)
	case "NOT":
		result = ^v & sz.mask()
		c.setLogicFlags(result, sz)
	case "NEG":
		result = (0 - v) & sz.mask()
		c.setSubFlags(0, v, result, sz)
	case "NEGX":
		borrow := uint32(0)
		if c.Reg.SR.Extend {
			borrow = 1
		}
		result = (0 - v - borrow) & sz.mask()
		c.setSubFlags(0, v+borrow, result, sz)
	}
	if err := c.setEA(e, sz, result); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Mnemonic: name, Cycles: 4}, nil
}

func (c *CPU) movem(op uint16, mode, reg int) (execution.Result, error) {
	toMemory := op&0x0400 == 0
	sz := sizeWord
	if op&0x0040 != 0 {
		sz = sizeLong
	}
	mask, err := c.fetch16()
	if err != nil {
		return execution.Result{}, err
	}

	if !toMemory {
		e, err := c.decodeEA(mode, reg, sizeLong)
		if err != nil {
			return execution.Result{}, err
		}
		addr := e.addr
		if mode == 3 { // postincrement handled manually below since order is D0..D7,A0..A7
			addr = e.addr
		}
		n := 0
		for i := 0; i < 8; i++ {
			if mask&(1<<i) != 0 {
				v, err := c.movemRead(addr, sz)
				if err != nil {
					return execution.Result{}, err
				}
				c.Reg.D[i] = v
				addr += uint32(sz)
				n++
			}
		}
		for i := 0; i < 8; i++ {
			if mask&(1<<(8+i)) != 0 {
				v, err := c.movemRead(addr, sz)
				if err != nil {
					return execution.Result{}, err
				}
				c.Reg.A[i] = v
				addr += uint32(sz)
				n++
			}
		}
		if mode == 3 {
			c.Reg.A[reg] = addr
		}
		return execution.Result{Mnemonic: "MOVEM mem->reg", Cycles: 4 + n*4}, nil
	}

	// register -> memory; predecrement mode stores registers A7..A0,D7..D0
	// in reverse and runs the address downward.
	e, err := c.decodeEA(mode, reg, sizeLong)
	if err != nil {
		return execution.Result{}, err
	}
	addr := e.addr
	n := 0
	if mode == 4 {
		for i := 7; i >= 0; i-- {
			if mask&(1<<i) != 0 {
				addr -= uint32(sz)
				if err := c.movemWrite(addr, sz, c.Reg.A[i]); err != nil {
					return execution.Result{}, err
				}
				n++
			}
		}
		for i := 7; i >= 0; i-- {
			if mask&(1<<(8+i)) != 0 {
				addr -= uint32(sz)
				if err := c.movemWrite(addr, sz, c.Reg.D[i]); err != nil {
					return execution.Result{}, err
				}
				n++
			}
		}
		c.Reg.A[reg] = addr
	} else {
		for i := 0; i < 8; i++ {
			if mask&(1<<i) != 0 {
				if err := c.movemWrite(addr, sz, c.Reg.D[i]); err != nil {
					return execution.Result{}, err
				}
				addr += uint32(sz)
				n++
			}
		}
		for i := 0; i < 8; i++ {
			if mask&(1<<(8+i)) != 0 {
				if err := c.movemWrite(addr, sz, c.Reg.A[i]); err != nil {
					return execution.Result{}, err
				}
				addr += uint32(sz)
				n++
			}
		}
	}
	return execution.Result{Mnemonic: "MOVEM reg->mem", Cycles: 4 + n*4}, nil
}

func (c *CPU) movemRead(addr uint32, sz size) (uint32, error) {
	if sz == sizeLong {
		return c.read32(addr)
	}
	v, err := c.read16(addr)
	return signExtend16(v), err
}

func (c *CPU) movemWrite(addr uint32, sz size, v uint32) error {
	if sz == sizeLong {
		return c.write32(addr, v)
	}
	return c.write16(addr, uint16(v))
}

// --- group 0x5: ADDQ/SUBQ/Scc/DBcc ---

func (c *CPU) group5(op uint16) (execution.Result, error) {
	mode := int((op >> 3) & 7)
	reg := int(op & 7)
	szBits := (op >> 6) & 3

	if szBits == 3 { // Scc / DBcc
		cc := int((op >> 8) & 0xF)
		if mode == 1 { // DBcc
			if c.testCondition(cc) {
				_, err := c.fetch16() // displacement still consumed
				return execution.Result{Mnemonic: "DBcc", Cycles: 12}, err
			}
			disp, err := c.fetch16()
			if err != nil {
				return execution.Result{}, err
			}
			c.Reg.D[reg]--
			if int16(c.Reg.D[reg]) != -1 {
				c.Reg.PC = c.Reg.PC - 2 + signExtend16(disp)
				return execution.Result{Mnemonic: "DBcc taken", Cycles: 10}, nil
			}
			return execution.Result{Mnemonic: "DBcc fallthrough", Cycles: 14}, nil
		}
		e, err := c.decodeEA(mode, reg, sizeByte)
		if err != nil {
			return execution.Result{}, err
		}
		v := uint32(0)
		if c.testCondition(cc) {
			v = 0xFF
		}
		if err := c.setEA(e, sizeByte, v); err != nil {
			return execution.Result{}, err
		}
		return execution.Result{Mnemonic: "Scc", Cycles: 4}, nil
	}

	sz := sizeFromBits2(szBits)
	imm := (op >> 9) & 7
	if imm == 0 {
		imm = 8
	}
	e, err := c.decodeEA(mode, reg, sz)
	if err != nil {
		return execution.Result{}, err
	}
	if e.kind == kindAddrReg {
		v, _ := c.getEA(e, sizeLong)
		if op&0x0100 != 0 {
			v -= uint32(imm)
		} else {
			v += uint32(imm)
		}
		_ = c.setEA(e, sizeLong, v)
		return execution.Result{Mnemonic: "ADDQ/SUBQ An", Cycles: 8}, nil
	}
	a, err := c.getEA(e, sz)
	if err != nil {
		return execution.Result{}, err
	}
	var result uint32
	name := "ADDQ"
	if op&0x0100 != 0 {
		result = a - uint32(imm)
		c.setSubFlags(a, uint32(imm), result, sz)
		name = "SUBQ"
	} else {
		result = a + uint32(imm)
		c.setAddFlags(a, uint32(imm), result, sz)
	}
	if err := c.setEA(e, sz, result); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Mnemonic: name, Cycles: 4}, nil
}

// --- group 0x6: BRA/BSR/Bcc ---

func (c *CPU) groupBranch(op uint16) (execution.Result, error) {
	cc := int((op >> 8) & 0xF)
	base := c.Reg.PC
	disp := int32(int8(op & 0xFF))
	var full uint32
	if disp == 0 {
		w, err := c.fetch16()
		if err != nil {
			return execution.Result{}, err
		}
		full = base + signExtend16(w)
	} else {
		full = uint32(int32(base) + disp)
	}

	if cc == 1 { // BSR
		if err := c.push32(c.Reg.PC); err != nil {
			return execution.Result{}, err
		}
		c.Reg.PC = full
		return execution.Result{Mnemonic: "BSR", Cycles: 18}, nil
	}
	if cc == 0 || c.testCondition(cc) { // BRA or Bcc taken
		c.Reg.PC = full
		return execution.Result{Mnemonic: "Bcc taken", Cycles: 10}, nil
	}
	return execution.Result{Mnemonic: "Bcc", Cycles: 8}, nil
}

func (c *CPU) opMOVEQ(op uint16) (execution.Result, error) {
	reg := int((op >> 9) & 7)
	v := uint32(int32(int8(op & 0xFF)))
	c.Reg.D[reg] = v
	c.setLogicFlags(v, sizeLong)
	return execution.Result{Mnemonic: "MOVEQ", Cycles: 4}, nil
}

// --- group 0x8: OR / DIVU / DIVS ---

func (c *CPU) group8(op uint16) (execution.Result, error) {
	dReg := int((op >> 9) & 7)
	opmode := (op >> 6) & 7
	mode := int((op >> 3) & 7)
	reg := int(op & 7)

	switch opmode {
	case 3: // DIVU
		e, err := c.decodeEA(mode, reg, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		divisor, err := c.getEA(e, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		if divisor == 0 {
			return execution.Result{}, c.exceptionTrap(vecDivideByZero)
		}
		dividend := c.Reg.D[dReg]
		q := dividend / divisor
		r := dividend % divisor
		if q > 0xFFFF {
			c.Reg.SR.Overflow = true
		} else {
			c.Reg.D[dReg] = (r << 16) | (q & 0xFFFF)
			c.setLogicFlags(q, sizeWord)
			c.Reg.SR.Overflow = false
		}
		return execution.Result{Mnemonic: "DIVU", Cycles: 140}, nil
	case 7: // DIVS
		e, err := c.decodeEA(mode, reg, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		dw, err := c.getEA(e, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		divisor := int32(int16(dw))
		if divisor == 0 {
			return execution.Result{}, c.exceptionTrap(vecDivideByZero)
		}
		dividend := int32(c.Reg.D[dReg])
		q := dividend / divisor
		r := dividend % divisor
		if q > 32767 || q < -32768 {
			c.Reg.SR.Overflow = true
		} else {
			c.Reg.D[dReg] = (uint32(uint16(r)) << 16) | uint32(uint16(q))
			c.setLogicFlags(uint32(uint16(q)), sizeWord)
			c.Reg.SR.Overflow = false
		}
		return execution.Result{Mnemonic: "DIVS", Cycles: 158}, nil
	}

	sz := sizeFromBits2(opmode & 3)
	e, err := c.decodeEA(mode, reg, sz)
	if err != nil {
		return execution.Result{}, err
	}
	src, err := c.getEA(e, sz)
	if err != nil {
		return execution.Result{}, err
	}
	if opmode&4 == 0 { // EA -> Dn
		v := src | (c.Reg.D[dReg] & sz.mask())
		c.setLogicFlags(v, sz)
		dst := ea{kind: kindDataReg, reg: dReg}
		_ = c.setEA(dst, sz, v)
		return execution.Result{Mnemonic: "OR", Cycles: 4}, nil
	}
	dnVal := c.Reg.D[dReg] & sz.mask()
	v := dnVal | src
	c.setLogicFlags(v, sz)
	if err := c.setEA(e, sz, v); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Mnemonic: "OR", Cycles: 8}, nil
}

// --- groups 0x9/0xD: SUB/SUBA/SUBX and ADD/ADDA/ADDX ---

func (c *CPU) groupAddSub(op uint16, isSub bool) (execution.Result, error) {
	dReg := int((op >> 9) & 7)
	opmode := (op >> 6) & 7
	mode := int((op >> 3) & 7)
	reg := int(op & 7)
	name := "ADD"
	if isSub {
		name = "SUB"
	}

	if opmode == 3 || opmode == 7 { // ADDA/SUBA
		sz := sizeWord
		if opmode == 7 {
			sz = sizeLong
		}
		e, err := c.decodeEA(mode, reg, sz)
		if err != nil {
			return execution.Result{}, err
		}
		v, err := c.getEA(e, sz)
		if err != nil {
			return execution.Result{}, err
		}
		if sz == sizeWord {
			v = signExtend16(uint16(v))
		}
		if isSub {
			c.Reg.A[dReg] -= v
		} else {
			c.Reg.A[dReg] += v
		}
		return execution.Result{Mnemonic: name + "A", Cycles: 8}, nil
	}

	if mode == 0 && opmode&3 != 3 && (opmode == 4 || opmode == 5 || opmode == 6) {
		// ADDX/SUBX Dn,Dn or -(Ay),-(Ax); support the register-direct form.
		sz := sizeFromBits2(opmode & 3)
		srcReg := reg
		a := c.Reg.D[dReg] & sz.mask()
		b := c.Reg.D[srcReg] & sz.mask()
		x := uint32(0)
		if c.Reg.SR.Extend {
			x = 1
		}
		var result uint32
		if isSub {
			result = a - b - x
			c.setSubFlags(a, b+x, result, sz)
		} else {
			result = a + b + x
			c.setAddFlags(a, b+x, result, sz)
		}
		if result&sz.mask() != 0 {
			c.Reg.SR.Zero = false
		}
		dst := ea{kind: kindDataReg, reg: dReg}
		_ = c.setEA(dst, sz, result)
		return execution.Result{Mnemonic: name + "X", Cycles: 4}, nil
	}

	sz := sizeFromBits2(opmode & 3)
	e, err := c.decodeEA(mode, reg, sz)
	if err != nil {
		return execution.Result{}, err
	}
	src, err := c.getEA(e, sz)
	if err != nil {
		return execution.Result{}, err
	}

	if opmode&4 == 0 { // EA -> Dn
		a := c.Reg.D[dReg] & sz.mask()
		var result uint32
		if isSub {
			result = a - src
			c.setSubFlags(a, src, result, sz)
		} else {
			result = a + src
			c.setAddFlags(a, src, result, sz)
		}
		dst := ea{kind: kindDataReg, reg: dReg}
		if err := c.setEA(dst, sz, result); err != nil {
			return execution.Result{}, err
		}
		return execution.Result{Mnemonic: name, Cycles: 4}, nil
	}

	a := src
	b := c.Reg.D[dReg] & sz.mask()
	var result uint32
	if isSub {
		result = a - b
		c.setSubFlags(a, b, result, sz)
	} else {
		result = a + b
		c.setAddFlags(a, b, result, sz)
	}
	if err := c.setEA(e, sz, result); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Mnemonic: name, Cycles: 8}, nil
}

// --- group 0xB: CMP/CMPA/EOR/CMPM ---

func (c *CPU) groupB(op uint16) (execution.Result, error) {
	dReg := int((op >> 9) & 7)
	opmode := (op >> 6) & 7
	mode := int((op >> 3) & 7)
	reg := int(op & 7)

	if opmode == 3 || opmode == 7 { // CMPA
		sz := sizeWord
		if opmode == 7 {
			sz = sizeLong
		}
		e, err := c.decodeEA(mode, reg, sz)
		if err != nil {
			return execution.Result{}, err
		}
		v, err := c.getEA(e, sz)
		if err != nil {
			return execution.Result{}, err
		}
		if sz == sizeWord {
			v = signExtend16(uint16(v))
		}
		a := c.Reg.A[dReg]
		c.setSubFlags(a, v, a-v, sizeLong)
		return execution.Result{Mnemonic: "CMPA", Cycles: 6}, nil
	}

	sz := sizeFromBits2(opmode & 3)
	if opmode&4 != 0 && mode == 1 { // CMPM (Ay)+,(Ax)+
		src, err := c.decodeEA(3, reg, sz)
		if err != nil {
			return execution.Result{}, err
		}
		sv, err := c.getEA(src, sz)
		if err != nil {
			return execution.Result{}, err
		}
		dst, err := c.decodeEA(3, dReg, sz)
		if err != nil {
			return execution.Result{}, err
		}
		dv, err := c.getEA(dst, sz)
		if err != nil {
			return execution.Result{}, err
		}
		c.setSubFlags(dv, sv, dv-sv, sz)
		return execution.Result{Mnemonic: "CMPM", Cycles: 12}, nil
	}

	e, err := c.decodeEA(mode, reg, sz)
	if err != nil {
		return execution.Result{}, err
	}
	src, err := c.getEA(e, sz)
	if err != nil {
		return execution.Result{}, err
	}

	if opmode&4 == 0 { // CMP
		a := c.Reg.D[dReg] & sz.mask()
		c.setSubFlags(a, src, a-src, sz)
		return execution.Result{Mnemonic: "CMP", Cycles: 4}, nil
	}

	// EOR Dn,<ea>
	dv := c.Reg.D[dReg] & sz.mask()
	v := dv ^ src
	c.setLogicFlags(v, sz)
	if err := c.setEA(e, sz, v); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Mnemonic: "EOR", Cycles: 8}, nil
}

// --- group 0xC: AND / MULU / MULS / EXG ---

func (c *CPU) groupC(op uint16) (execution.Result, error) {
	dReg := int((op >> 9) & 7)
	opmode := (op >> 6) & 7
	mode := int((op >> 3) & 7)
	reg := int(op & 7)

	switch opmode {
	case 3: // MULU
		e, err := c.decodeEA(mode, reg, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		v, err := c.getEA(e, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		result := (c.Reg.D[dReg] & 0xFFFF) * v
		c.Reg.D[dReg] = result
		c.setLogicFlags(result, sizeLong)
		return execution.Result{Mnemonic: "MULU", Cycles: 70}, nil
	case 7: // MULS
		e, err := c.decodeEA(mode, reg, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		v, err := c.getEA(e, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		result := int32(int16(c.Reg.D[dReg])) * int32(int16(v))
		c.Reg.D[dReg] = uint32(result)
		c.setLogicFlags(uint32(result), sizeLong)
		return execution.Result{Mnemonic: "MULS", Cycles: 70}, nil
	}

	if mode == 1 && (opmode == 4 || opmode == 5 || opmode == 6) { // EXG
		srcReg := reg
		switch {
		case opmode == 4: // Dn,Dn
			c.Reg.D[dReg], c.Reg.D[srcReg] = c.Reg.D[srcReg], c.Reg.D[dReg]
		case opmode == 5: // An,An
			c.Reg.A[dReg], c.Reg.A[srcReg] = c.Reg.A[srcReg], c.Reg.A[dReg]
		default: // Dn,An
			c.Reg.D[dReg], c.Reg.A[srcReg] = c.Reg.A[srcReg], c.Reg.D[dReg]
		}
		return execution.Result{Mnemonic: "EXG", Cycles: 6}, nil
	}

	sz := sizeFromBits2(opmode & 3)
	e, err := c.decodeEA(mode, reg, sz)
	if err != nil {
		return execution.Result{}, err
	}
	src, err := c.getEA(e, sz)
	if err != nil {
		return execution.Result{}, err
	}

	if opmode&4 == 0 {
		v := src & (c.Reg.D[dReg] & sz.mask())
		c.setLogicFlags(v, sz)
		dst := ea{kind: kindDataReg, reg: dReg}
		if err := c.setEA(dst, sz, v); err != nil {
			return execution.Result{}, err
		}
		return execution.Result{Mnemonic: "AND", Cycles: 4}, nil
	}
	v := src & (c.Reg.D[dReg] & sz.mask())
	c.setLogicFlags(v, sz)
	if err := c.setEA(e, sz, v); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Mnemonic: "AND", Cycles: 8}, nil
}

// --- group 0xE: shifts/rotates ---

func (c *CPU) groupShift(op uint16) (execution.Result, error) {
	mode := int((op >> 3) & 7)
	reg := int(op & 7)

	if (op>>6)&3 == 3 { // memory shift, always 1 bit, size word
		dir := op & 0x0100 != 0
		kind := (op >> 9) & 3
		e, err := c.decodeEA(mode, reg, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		v, err := c.getEA(e, sizeWord)
		if err != nil {
			return execution.Result{}, err
		}
		result := c.shiftRotate(kind, dir, uint32(v), 1, sizeWord)
		if err := c.setEA(e, sizeWord, result); err != nil {
			return execution.Result{}, err
		}
		return execution.Result{Mnemonic: "shift mem", Cycles: 8}, nil
	}

	dReg := int((op >> 9) & 7)
	sz := sizeFromBits2((op >> 6) & 3)
	dir := op & 0x0100 != 0
	kind := (op >> 3) & 3
	useReg := op & 0x0020 != 0

	count := uint32((op >> 9) & 7)
	if useReg {
		count = c.Reg.D[dReg] % 64
	} else if count == 0 {
		count = 8
	}

	v := c.Reg.D[reg] & sz.mask()
	result := c.shiftRotate(kind, dir, v, count, sz)
	c.Reg.D[reg] = (c.Reg.D[reg] &^ sz.mask()) | (result & sz.mask())
	return execution.Result{Mnemonic: "shift reg", Cycles: 6 + int(count)*2}, nil
}

// shiftRotate implements ASx/LSx/ROXx/ROx for a single operand, updating
// flags as it goes. kind: 0=ASx 1=LSx 2=ROXx 3=ROx. dir true=left.
func (c *CPU) shiftRotate(kind uint16, dir bool, v uint32, count uint32, sz size) uint32 {
	sign := sz.signBit()
	bits := uint32(sz) * 8
	result := v

	for i := uint32(0); i < count; i++ {
		switch kind {
		case 0: // arithmetic
			if dir {
				carry := result&sign != 0
				result = (result << 1) & sz.mask()
				c.Reg.SR.Carry, c.Reg.SR.Extend = carry, carry
				if (result&sign != 0) != (v&sign != 0) && i == count-1 {
					c.Reg.SR.Overflow = true
				}
			} else {
				carry := result&1 != 0
				msb := result & sign
				result = (result >> 1) | msb
				c.Reg.SR.Carry, c.Reg.SR.Extend = carry, carry
			}
		case 1: // logical
			if dir {
				carry := result&sign != 0
				result = (result << 1) & sz.mask()
				c.Reg.SR.Carry, c.Reg.SR.Extend = carry, carry
			} else {
				carry := result&1 != 0
				result >>= 1
				c.Reg.SR.Carry, c.Reg.SR.Extend = carry, carry
			}
		case 2: // rotate through extend
			x := uint32(0)
			if c.Reg.SR.Extend {
				x = 1
			}
			if dir {
				carry := result&sign != 0
				result = ((result << 1) | x) & sz.mask()
				c.Reg.SR.Carry, c.Reg.SR.Extend = carry, carry
			} else {
				carry := result&1 != 0
				result = (result >> 1) | (x << (bits - 1))
				c.Reg.SR.Carry, c.Reg.SR.Extend = carry, carry
			}
		default: // rotate
			if dir {
				carry := result&sign != 0
				result = ((result << 1) | boolBit(carry)) & sz.mask()
				c.Reg.SR.Carry = carry
			} else {
				carry := result&1 != 0
				result = (result >> 1) | (boolBit(carry) << (bits - 1))
				c.Reg.SR.Carry = carry
			}
		}
	}
	if count == 0 {
		c.Reg.SR.Carry = false
	}
	c.setLogicFlags(result, sz)
	if kind == 2 || kind == 3 {
		c.Reg.SR.Overflow = false
	}
	return result
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
