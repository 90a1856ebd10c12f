package eventlog

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadRoundTripsSequentialWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	events := []Event{
		{Cycle: 100, Kind: KindVRAM, Address: 0x1000, Value: 0x11},
		{Cycle: 101, Kind: KindVRAM, Address: 0x1002, Value: 0x22}, // delta = autoIncrement
		{Cycle: 102, Kind: KindVRAM, Address: 0x1002, Value: 0x33}, // delta = 0
		{Cycle: 103, Kind: KindVRAM, Address: 0x1003, Value: 0x44}, // delta = 1
	}
	for _, e := range events {
		if err := w.Write(e, 2); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	r := NewReader(&buf)
	for i, want := range events {
		got, err := r.Next(2)
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("event %d: expected %+v, got %+v", i, want, got)
		}
	}
	if _, err := r.Next(2); err != io.EOF {
		t.Fatalf("expected io.EOF after the last event, got %v", err)
	}
}

func TestNextRejectsInvalidKind(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0xF0) // kind = 15, above KindRegister
	buf.Write(make([]byte, 8))

	r := NewReader(&buf)
	if _, err := r.Next(0); err == nil {
		t.Fatalf("expected an error for an out-of-range kind byte")
	}
}

func TestNextRejectsInvalidDeltaOpcode(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(uint8(KindVRAM)<<4 | 0x0F) // opcode 15, unrecognised
	buf.Write(make([]byte, 8))

	r := NewReader(&buf)
	if _, err := r.Next(0); err == nil {
		t.Fatalf("expected an error for an unrecognised delta opcode")
	}
}

func TestNextReturnsErrorOnTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(uint8(KindVRAM) << 4) // header claims a full event follows, then nothing

	r := NewReader(&buf)
	if _, err := r.Next(0); err == nil {
		t.Fatalf("expected an error for a truncated cycle field")
	}
}
