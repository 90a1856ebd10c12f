package hardware

import (
	"bytes"
	"testing"

	"github.com/kestrel-emu/megawave/clocks"
	"github.com/kestrel-emu/megawave/hardware/cartridge"
	"github.com/kestrel-emu/megawave/instance"
)

func newTestSegaCDMachine(t *testing.T) *Machine {
	t.Helper()
	inst := instance.NewInstance(instance.SegaCD, nil, 1)

	rom := make([]byte, 0x10000)
	rom[0], rom[1], rom[2], rom[3] = 0x00, 0x01, 0x00, 0x00
	rom[4], rom[5], rom[6], rom[7] = 0x00, 0x00, 0x04, 0x00
	mapper := cartridge.NewPlain(rom, 0, 0)

	m := New(inst, mapper, clocks.NTSC)
	if err := m.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if m.SegaCD == nil {
		t.Fatalf("expected a Sega CD unit for instance.SegaCD")
	}
	return m
}

func TestSaveLoadRoundTripsMainCPURegisters(t *testing.T) {
	m := newTestMachine(t)
	m.CPU.Reg.D[3] = 0xDEADBEEF
	m.CPU.Reg.PC = 0x1234

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	m2 := newTestMachine(t)
	if err := m2.Load(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}
	if m2.CPU.Reg.D[3] != 0xDEADBEEF || m2.CPU.Reg.PC != 0x1234 {
		t.Fatalf("expected the 68K register file to round-trip, got D3=%#x PC=%#x", m2.CPU.Reg.D[3], m2.CPU.Reg.PC)
	}
}

func TestSaveLoadRoundTripsSegaCDGateArrayCDCPCM(t *testing.T) {
	m := newTestSegaCDMachine(t)

	m.SegaCD.GateArray.WriteWord16(regResetControl/2, 0x0001) // release SRES
	m.SegaCD.GateArray.TickStopwatch()
	m.SegaCD.GateArray.TickStopwatch()

	m.SegaCD.PCM.SelectChannel(2)
	m.SegaCD.PCM.SetEnvelope(0x7F)
	m.SegaCD.PCM.WriteRAM(100, 0x55)

	m.SegaCD.CDD.LoadDisc(1000)
	m.SegaCD.CDD.WriteCommand(0, 0x03) // play

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	m2 := newTestSegaCDMachine(t)
	if err := m2.Load(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	if m2.SegaCD.GateArray.SubCPUHeld() {
		t.Fatalf("expected the restored gate array to reflect SRES released")
	}
	if got := m2.SegaCD.GateArray.StopwatchValue(); got != 2 {
		t.Fatalf("expected the restored stopwatch counter to be 2, got %d", got)
	}
	if got := m2.SegaCD.PCM.ReadRAM(100); got != 0x55 {
		t.Fatalf("expected the restored PCM sample RAM byte to be 0x55, got %#x", got)
	}
}
