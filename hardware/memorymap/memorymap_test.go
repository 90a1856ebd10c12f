package memorymap

import (
	"errors"
	"testing"

	"github.com/kestrel-emu/megawave/hardware/memory/bus"
)

func TestReadWriteRoutesToAttachedRegion(t *testing.T) {
	m := New(24)
	ram := NewRAM(0x100)
	m.Attach(0x1000, 0x1100, ram)

	if err := m.Write8(0x1005, 0xAB); err != nil {
		t.Fatalf("write8: %v", err)
	}
	got, err := m.Read8(0x1005)
	if err != nil {
		t.Fatalf("read8: %v", err)
	}
	if got != 0xAB {
		t.Fatalf("expected 0xAB, got %#x", got)
	}
	if ram.Buf[5] != 0xAB {
		t.Fatalf("expected region-local offset 5 to hold the value, got %#x", ram.Buf[5])
	}
}

func TestUnmappedAddressReturnsAddressError(t *testing.T) {
	m := New(24)
	m.Attach(0x1000, 0x1100, NewRAM(0x100))

	_, err := m.Read8(0x2000)
	if err == nil {
		t.Fatalf("expected an error reading an unmapped address")
	}
	if !errors.Is(err, bus.AddressError) {
		t.Fatalf("expected bus.AddressError, got %v", err)
	}
}

func TestFirstAttachedRegionWinsOnOverlap(t *testing.T) {
	m := New(24)
	specific := NewRAM(0x10)
	general := NewRAM(0x100)
	m.Attach(0x1000, 0x1010, specific)
	m.Attach(0x1000, 0x2000, general)

	if err := m.Write8(0x1000, 0x42); err != nil {
		t.Fatalf("write8: %v", err)
	}
	if specific.Buf[0] != 0x42 {
		t.Fatalf("expected the first-attached (more specific) region to claim the address")
	}
	if general.Buf[0] != 0 {
		t.Fatalf("the second region should not have been written")
	}
}

func TestRAMBufferWrapsPastItsLength(t *testing.T) {
	ram := NewRAM(0x10)
	if err := ram.Write8(0x10, 0x7F); err != nil {
		t.Fatalf("write8: %v", err)
	}
	v, err := ram.Read8(0x00)
	if err != nil {
		t.Fatalf("read8: %v", err)
	}
	if v != 0x7F {
		t.Fatalf("expected a write past the buffer length to wrap to offset 0, got %#x", v)
	}
}

func TestROMBufferDiscardsWrites(t *testing.T) {
	rom := NewROM([]byte{0x11, 0x22, 0x33, 0x44})
	if err := rom.Write8(0, 0xFF); err != nil {
		t.Fatalf("write8: %v", err)
	}
	v, _ := rom.Read8(0)
	if v != 0x11 {
		t.Fatalf("expected ROM write to be silently discarded, got %#x", v)
	}
}

func TestEmptyROMBufferReadsAsOpenBus(t *testing.T) {
	rom := NewROM(nil)
	v, err := rom.Read8(0)
	if err != nil {
		t.Fatalf("read8: %v", err)
	}
	if v != 0xFF {
		t.Fatalf("expected open-bus 0xFF from an empty ROM, got %#x", v)
	}
}

func TestFuncHandlerDefaultsWhenFieldsNil(t *testing.T) {
	var f FuncHandler
	if err := f.Write8(0, 0x55); err != nil {
		t.Fatalf("write with a nil WriteByte should be a no-op, got error: %v", err)
	}
	v, err := f.Read8(0)
	if err != nil {
		t.Fatalf("read8: %v", err)
	}
	if v != 0xFF {
		t.Fatalf("expected a nil ReadByte to report open-bus 0xFF, got %#x", v)
	}
}

func TestFuncHandlerWrite16SplitsAcrossTwoWriteByteCalls(t *testing.T) {
	var written []uint32
	f := FuncHandler{
		WriteByte: func(offset uint32, value uint8) error {
			written = append(written, offset)
			return nil
		},
	}
	if err := f.Write16(0x10, 0x1234); err != nil {
		t.Fatalf("write16: %v", err)
	}
	if len(written) != 2 || written[0] != 0x10 || written[1] != 0x11 {
		t.Fatalf("expected two single-byte writes at 0x10/0x11, got %v", written)
	}
}

func TestPeek8AndPoke8DelegateToReadWrite8(t *testing.T) {
	m := New(24)
	m.Attach(0x1000, 0x1100, NewRAM(0x100))

	if err := m.Poke8(0x1000, 0x9A); err != nil {
		t.Fatalf("poke8: %v", err)
	}
	v, err := m.Peek8(0x1000)
	if err != nil {
		t.Fatalf("peek8: %v", err)
	}
	if v != 0x9A {
		t.Fatalf("expected peek8 to observe the value written by poke8, got %#x", v)
	}
}
