package ports

import "testing"

func TestReadDataTHHighReportsDpadAndBC(t *testing.T) {
	c := New()
	c.Plug(Port1, Pad{})
	c.WriteData(Port1, 0x40) // TH = 1

	got := c.ReadData(Port1)
	want := uint8(0x7F) // TH echoed high, every button line idle-high (released)
	if got != want {
		t.Fatalf("expected %#x with everything released and TH=1, got %#x", want, got)
	}
}

func TestReadDataTHHighReflectsPressedButtons(t *testing.T) {
	c := New()
	c.Plug(Port1, Pad{Up: true, B: true})
	c.WriteData(Port1, 0x40)

	got := c.ReadData(Port1)
	if got&0x01 != 0 {
		t.Fatalf("Up is pressed, its bit should read low: %#x", got)
	}
	if got&0x10 != 0 {
		t.Fatalf("B is pressed, its bit should read low: %#x", got)
	}
	if got&0x02 == 0 {
		t.Fatalf("Down was not pressed, its bit should read high: %#x", got)
	}
}

func TestReadDataTHLowReportsThreeButtonPattern(t *testing.T) {
	c := New()
	c.Plug(Port1, Pad{})
	c.WriteData(Port1, 0x00) // TH = 0

	got := c.ReadData(Port1)
	want := uint8(0x3F) // up/down + always-high left/right pins + A/Start released
	if got != want {
		t.Fatalf("expected %#x for an idle 3-button pad at TH=0, got %#x", want, got)
	}
}

func TestOutputBitsReadBackWhatWasWritten(t *testing.T) {
	c := New()
	c.Plug(Port1, Pad{})
	c.WriteCtrl(Port1, 0xFF) // every pin CPU-driven
	c.WriteData(Port1, 0xAA)

	if got := c.ReadData(Port1); got != 0xAA {
		t.Fatalf("expected CPU-driven pins to read back the last write, got %#x", got)
	}
}

func TestTMSSUnlocksOnlyOnExactMagicValue(t *testing.T) {
	c := New()
	if !c.TMSSLocked() {
		t.Fatalf("expected TMSS to be locked on power-on")
	}

	c.WriteTMSSLock(0x41474553) // wrong byte order, must not unlock
	if !c.TMSSLocked() {
		t.Fatalf("expected TMSS to remain locked on an incorrect value")
	}

	c.WriteTMSSLock(0x53454741) // "SEGA"
	if c.TMSSLocked() {
		t.Fatalf("expected TMSS to unlock on the SEGA magic value")
	}
}

func TestPort2THRisingEdgeRaisesEINT(t *testing.T) {
	c := New()

	if _, _, pending := c.Pending(); pending {
		t.Fatalf("should not be pending before any TH transition")
	}

	c.WriteData(Port2, 0x40) // TH 0 -> 1
	c.ReadData(Port2)

	level, _, pending := c.Pending()
	if !pending || level != 2 {
		t.Fatalf("expected EINT pending at level 2 after a TH rising edge, got level=%d pending=%v", level, pending)
	}

	c.Acknowledge(2)
	if _, _, pending := c.Pending(); pending {
		t.Fatalf("expected EINT to clear after acknowledge")
	}
}
