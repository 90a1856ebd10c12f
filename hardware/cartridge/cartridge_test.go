package cartridge

import "testing"

func TestPlainReadsROMThenFallsBackToOpenBus(t *testing.T) {
	p := NewPlain([]byte{0x11, 0x22, 0x33}, 0, 0)
	v, _ := p.Read8(1)
	if v != 0x22 {
		t.Fatalf("expected 0x22, got %#x", v)
	}
	v, _ = p.Read8(10)
	if v != 0xFF {
		t.Fatalf("expected open-bus 0xFF past the ROM's extent, got %#x", v)
	}
}

func TestPlainSRAMWindowReadsAndWrites(t *testing.T) {
	p := NewPlain([]byte{0, 0, 0, 0}, 0x200000, 0x100)

	if err := p.Write8(0x200010, 0x42); err != nil {
		t.Fatalf("write8: %v", err)
	}
	v, _ := p.Read8(0x200010)
	if v != 0x42 {
		t.Fatalf("expected SRAM write to read back, got %#x", v)
	}
	if p.SRAM()[0x10] != 0x42 {
		t.Fatalf("expected SRAM() to expose the same backing buffer")
	}
}

func TestSegaMapperBank0IsFixed(t *testing.T) {
	rom := make([]byte, bankWindow*3)
	rom[0] = 0xAB
	m := NewSegaMapper(rom, 0)

	if err := m.Write8(0, 0x02); err != nil { // attempt to remap bank 0
		t.Fatalf("write8: %v", err)
	}
	v, _ := m.Read8(0)
	if v != 0xAB {
		t.Fatalf("expected bank 0 to remain fixed at ROM offset 0, got %#x", v)
	}
}

func TestSegaMapperBankSwitchRemapsWindow(t *testing.T) {
	rom := make([]byte, bankWindow*3)
	rom[bankWindow*2] = 0xCD
	m := NewSegaMapper(rom, 0)

	// bank register 1 lives at mapper-local offset 2 (bankReg = offset/2)
	if err := m.Write8(2, 0x02); err != nil {
		t.Fatalf("write8: %v", err)
	}
	v, _ := m.Read8(bankWindow) // first byte of the window bank 1 now covers
	if v != 0xCD {
		t.Fatalf("expected bank register 1 to remap to ROM page 2, got %#x", v)
	}
}

func TestNORFlashPlainWriteWhenNoCommandPending(t *testing.T) {
	f := NewNORFlash(make([]byte, 0x10000))
	if err := f.Write8(0x10, 0x99); err != nil {
		t.Fatalf("write8: %v", err)
	}
	v, _ := f.Read8(0x10)
	if v != 0x99 {
		t.Fatalf("expected a direct write to take effect before any unlock sequence, got %#x", v)
	}
}

func TestNORFlashSectorEraseCommand(t *testing.T) {
	rom := make([]byte, 0x10000)
	for i := range rom {
		rom[i] = 0x55
	}
	f := NewNORFlash(rom)

	f.Write8(0x5555, 0xAA)
	f.Write8(0x2AAA, 0x55)
	f.Write8(0x5555, 0x30) // sector erase

	v, _ := f.Read8(0)
	if v != 0xFF {
		t.Fatalf("expected sector erase to fill the sector with 0xFF, got %#x", v)
	}
}

func TestLockOnMapsSecondaryROMAtFixedBase(t *testing.T) {
	primary := NewPlain([]byte{0x01, 0x02}, 0, 0)
	secondary := []byte{0x99, 0x98}
	l := NewLockOn(primary, secondary)

	v, _ := l.Read8(lockOnBase)
	if v != 0x99 {
		t.Fatalf("expected the secondary ROM at the lock-on base, got %#x", v)
	}
	v, _ = l.Read8(0)
	if v != 0x01 {
		t.Fatalf("expected the primary mapper to still serve its own range, got %#x", v)
	}
}

func TestEEPROMStartConditionEntersDeviceAddressPhase(t *testing.T) {
	e := NewEEPROM(128)
	e.prevSCL, e.prevSDA = true, true // simulate an idle-high bus

	e.SetLines(true, false) // SDA falls while SCL is high: start condition

	if e.phase != phaseDeviceAddr {
		t.Fatalf("expected a start condition to enter the device-address phase, got %v", e.phase)
	}
}

func TestEEPROMShiftsInAByteAndAdvancesPhase(t *testing.T) {
	e := NewEEPROM(128)
	e.prevSCL, e.prevSDA = true, true
	e.SetLines(true, false) // start condition

	bits := []bool{true, false, true, false, false, false, false, false} // 0xA0
	for _, bit := range bits {
		e.SetLines(false, bit)
		e.SetLines(true, bit)
	}

	if e.phase != phaseWordAddr {
		t.Fatalf("expected the device-address byte to advance to the word-address phase, got %v", e.phase)
	}
	if e.shiftReg != 0xA0 {
		t.Fatalf("expected the shifted-in byte to equal 0xA0, got %#x", e.shiftReg)
	}
}
