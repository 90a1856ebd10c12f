package ym2612

import "testing"

func TestWritePortLatchesAddressThenWritesData(t *testing.T) {
	c := New(7670454, 44100)

	c.WritePort(0, 0x30) // latch operator 0 of channel 0's multiple/detune register
	c.WritePort(1, 0x05) // multiple = 5, detune = 0

	if got := c.ch[0].op[0].multiple; got != 5 {
		t.Fatalf("expected multiple 5, got %d", got)
	}
}

func TestKeyOnStartsAttackAndResetsPhase(t *testing.T) {
	c := New(7670454, 44100)
	c.ch[0].op[0].phase = 12345

	c.WritePort(0, 0x28) // key on/off register
	c.WritePort(1, 0xF0) // channel 0, all four operators on

	op := &c.ch[0].op[0]
	if !op.keyOn {
		t.Fatalf("expected operator 0 to be keyed on")
	}
	if op.stage != stageAttack {
		t.Fatalf("expected attack stage immediately after key on, got %v", op.stage)
	}
	if op.phase != 0 {
		t.Fatalf("expected phase reset to 0 on key on, got %d", op.phase)
	}
}

func TestKeyOffEntersRelease(t *testing.T) {
	c := New(7670454, 44100)
	c.WritePort(0, 0x28)
	c.WritePort(1, 0xF0) // key on
	c.WritePort(0, 0x28)
	c.WritePort(1, 0x00) // key off, same channel, no operator bits set

	if got := c.ch[0].op[0].stage; got != stageRelease {
		t.Fatalf("expected release stage after key off, got %v", got)
	}
}

func TestTimerAOverflowSetsStatusBit(t *testing.T) {
	c := New(7670454, 44100)
	c.WritePort(0, 0x24)
	c.WritePort(1, 0xFF) // timer A high bits, pushes the period close to max
	c.WritePort(0, 0x25)
	c.WritePort(1, 0x03) // timer A low bits: period = 1023, counts to 1 tick from overflow
	c.WritePort(0, 0x27)
	c.WritePort(1, 0x01) // enable timer A

	for i := 0; i < 2; i++ {
		c.TickTimers()
	}

	if !c.TimerAFired() {
		t.Fatalf("expected timer A to have overflowed")
	}
	if c.Status()&0x01 == 0 {
		t.Fatalf("expected status bit 0 set after timer A overflow")
	}
}

func TestTimerControlRegisterClearsOverflowFlags(t *testing.T) {
	c := New(7670454, 44100)
	c.timerAOverflow = true

	c.WritePort(0, 0x27)
	c.WritePort(1, 0x10) // bit 4 clears the timer A overflow flag

	if c.TimerAFired() {
		t.Fatalf("expected timer A overflow flag cleared")
	}
}

func TestDACOverridesChannel6WhenEnabled(t *testing.T) {
	c := New(7670454, 44100)

	c.WritePort(0, 0x2B)
	c.WritePort(1, 0x80) // DAC enable

	c.WritePort(0, 0x2A)
	c.WritePort(1, 0x80+50) // DAC sample

	left, right := c.Sample()
	if left <= 0 {
		t.Fatalf("expected a positive DAC contribution on the left channel, got %v", left)
	}
	if left != right {
		t.Fatalf("expected equal left/right contribution with default (centred) panning, got %v/%v", left, right)
	}
}

func TestPanRegisterDisablesOneChannel(t *testing.T) {
	c := New(7670454, 44100)

	c.WritePort(0, 0xB4)
	c.WritePort(1, 0x80) // pan left only

	ch := &c.ch[0]
	if !ch.panLeft {
		t.Fatalf("expected panLeft true")
	}
	if ch.panRight {
		t.Fatalf("expected panRight false")
	}
}
