package vdp

import (
	"bytes"
	"testing"

	"github.com/kestrel-emu/megawave/eventlog"
)

func TestDMAFillWritesOddBytesOnly(t *testing.T) {
	v := New(NTSC)
	v.reg[regMode2] = 0x10 // DMA enabled
	v.reg[regDMALengthLo] = 0x00
	v.reg[regDMALengthHi] = 0x01 // length 0x100
	v.reg[regDMASourceHi] = 0x80 // fill mode (bits 6-7 = 10)
	v.reg[regAutoIncrement] = 2

	v.WriteControlPort(0x5000) // first word: CD bits 0-1 = 01, addr 0x1000
	v.WriteControlPort(0x0080) // second word: CD5 (the DMA-enable bit) set, addr hi = 0

	v.WriteDataPort(0xAB00) // arms and runs the fill with high byte 0xAB

	if v.vram[0x1001] != 0xAB {
		t.Fatalf("expected VRAM[0x1001] = 0xAB, got %#x", v.vram[0x1001])
	}
	if v.vram[0x1000] != 0x00 {
		t.Fatalf("fill must not touch the even byte, got %#x", v.vram[0x1000])
	}
}

func TestAttachEventLogRecordsRegisterAndVRAMWrites(t *testing.T) {
	v := New(NTSC)
	var buf bytes.Buffer
	v.AttachEventLog(eventlog.NewWriter(&buf))

	v.WriteControlPort(0x8134) // register write: reg 1 = 0x34

	v.reg[regAutoIncrement] = 2
	v.WriteControlPort(0x5000) // address latch, first word: addr 0x1000
	v.WriteControlPort(0x0000) // second word, no DMA
	v.WriteDataPort(0xBEEF)

	committed := false
	for i := 0; i < 8; i++ {
		v.Step()
		if v.vram[0x1000] == 0xBE {
			committed = true
			break
		}
	}
	if !committed {
		t.Fatalf("expected the queued FIFO entry to commit within a few slots")
	}

	r := eventlog.NewReader(&buf)
	regEvent, err := r.Next(0)
	if err != nil {
		t.Fatalf("decoding the register event: %v", err)
	}
	if regEvent.Kind != eventlog.KindRegister || regEvent.Address != 1 || regEvent.Value != 0x34 {
		t.Fatalf("unexpected register event: %+v", regEvent)
	}

	vramEvent, err := r.Next(2)
	if err != nil {
		t.Fatalf("decoding the VRAM event: %v", err)
	}
	if vramEvent.Kind != eventlog.KindVRAM || vramEvent.Address != 0x1000 || vramEvent.Value != 0xBEEF {
		t.Fatalf("unexpected VRAM event: %+v", vramEvent)
	}
}

func TestWriteDataPortByteMirrorsToOddAddressInStandardMode(t *testing.T) {
	v := New(NTSC)
	v.reg[regAutoIncrement] = 1

	v.WriteControlPort(0x5000) // VRAM write mode, address 0x1000 (even)
	v.WriteControlPort(0x0000)

	v.WriteDataPortByte(0x42)

	if v.vram[0x1000] != 0x00 {
		t.Fatalf("expected the addressed even byte to stay untouched, got %#x", v.vram[0x1000])
	}
	if v.vram[0x1001] != 0x42 {
		t.Fatalf("expected the byte write to land at addr^1, got %#x", v.vram[0x1001])
	}
}

func TestWriteDataPortByteWritesDirectlyIn128KMode(t *testing.T) {
	v := New(NTSC)
	v.reg[regMode2] |= 0x80 // 128K VRAM mode
	v.reg[regAutoIncrement] = 1

	v.WriteControlPort(0x5000) // VRAM write mode, address 0x1000
	v.WriteControlPort(0x0000)

	v.WriteDataPortByte(0x42)

	if v.vram[0x1000] != 0x42 {
		t.Fatalf("expected a 128K-mode byte write to land exactly where addressed, got %#x", v.vram[0x1000])
	}
	if v.vram[0x1001] != 0x00 {
		t.Fatalf("128K-mode byte write must not touch the neighbouring byte, got %#x", v.vram[0x1001])
	}
}

func TestInterruptAcknowledgeReflectsCurrentlyAsserted(t *testing.T) {
	v := New(NTSC)
	v.reg[regMode2] = 0x20 // VINT enabled
	v.reg[regMode1] = 0x10 // HINT enabled

	v.hintPending = true
	v.vintPending = true

	level, _, ok := v.Pending()
	if !ok || level != 6 {
		t.Fatalf("VINT should take priority over HINT, got level=%d ok=%v", level, ok)
	}

	v.Acknowledge(6)
	level, _, ok = v.Pending()
	if !ok || level != 4 {
		t.Fatalf("after VINT ack, HINT should now be the asserted level, got level=%d ok=%v", level, ok)
	}
}

func TestHSlotWrapAdvancesLine(t *testing.T) {
	v := New(NTSC)
	v.reg[regMode4] = 0x00 // H32
	startLine := v.line
	for i := 0; i < v.slotsPerLine(); i++ {
		v.Step()
	}
	if v.line != startLine+1 {
		t.Fatalf("expected line to advance by 1 after a full line of slots, got %d -> %d", startLine, v.line)
	}
}
