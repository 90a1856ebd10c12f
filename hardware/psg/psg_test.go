package psg

import "testing"

func TestWriteLatchesToneFrequencyAcrossTwoBytes(t *testing.T) {
	p := New(SegaVariant)

	p.Write(0x80 | 0x05) // latch channel 0, tone, low nibble = 0x5
	p.Write(0x2A)        // data byte, high 6 bits = 0x2A

	want := uint16(0x2A)<<4 | 0x05
	if got := p.ToneFrequency(0); got != want {
		t.Fatalf("expected tone frequency %#x, got %#x", want, got)
	}
}

func TestWriteLatchesVolume(t *testing.T) {
	p := New(SegaVariant)

	p.Write(0x80 | 0x10 | 0x03) // latch channel 0, volume, value 3

	if got := p.Volume(0); got != 3 {
		t.Fatalf("expected volume 3, got %d", got)
	}
}

func TestResetSilencesEveryChannel(t *testing.T) {
	p := New(SegaVariant)
	p.Write(0x9F) // channel 0 volume = 0xF, just to perturb state before reset
	p.Reset()

	for ch := 0; ch < 4; ch++ {
		if p.Volume(ch) != 0x0F {
			t.Fatalf("channel %d should be silenced (volume 0x0F) after reset, got %#x", ch, p.Volume(ch))
		}
	}
	if s := p.Sample(); s != 0 {
		t.Fatalf("expected silence immediately after reset, got %v", s)
	}
}

func TestMaxAttenuationProducesSilenceRegardlessOfToneState(t *testing.T) {
	p := New(SegaVariant)
	p.Write(0x80 | 0x01) // channel 0 tone low nibble = 1
	p.Write(0x00)        // high bits = 0, so frequency = 1
	p.Write(0x80 | 0x10 | 0x0F) // channel 0 volume = 0xF (silent)

	for i := 0; i < 16; i++ {
		p.Clock()
	}

	if s := p.Sample(); s != 0 {
		t.Fatalf("expected silence at max attenuation, got %v", s)
	}
}

func TestToneTogglesHighAfterOneFullDivide(t *testing.T) {
	p := New(SegaVariant)
	p.Write(0x80 | 0x01) // channel 0 tone low nibble = 1
	p.Write(0x00)        // frequency = 1
	p.Write(0x80 | 0x10 | 0x00) // channel 0 volume = 0 (loudest)

	for i := 0; i < 16; i++ {
		p.Clock()
	}

	if s := p.Sample(); s <= 0 {
		t.Fatalf("expected a non-zero sample once the tone toggles high, got %v", s)
	}
}
