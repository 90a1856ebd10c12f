package savestate

import (
	"bytes"
	"testing"

	mwerrors "github.com/kestrel-emu/megawave/errors"
	"github.com/kestrel-emu/megawave/instance"
)

func TestRoundTripPreservesSystemAndSections(t *testing.T) {
	w := NewWriter(instance.Genesis)
	w.Put(SectionM68K, []byte{1, 2, 3, 4})
	w.Put(SectionVDP, []byte{9, 9})

	var buf bytes.Buffer
	if err := w.Flush(&buf); err != nil {
		t.Fatalf("flush: %v", err)
	}

	r, err := Load(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.System != instance.Genesis {
		t.Fatalf("expected system Genesis, got %v", r.System)
	}

	payload, ok := r.Find(SectionM68K)
	if !ok || !bytes.Equal(payload, []byte{1, 2, 3, 4}) {
		t.Fatalf("expected SectionM68K payload [1 2 3 4], got %v ok=%v", payload, ok)
	}
	payload, ok = r.Find(SectionVDP)
	if !ok || !bytes.Equal(payload, []byte{9, 9}) {
		t.Fatalf("expected SectionVDP payload [9 9], got %v ok=%v", payload, ok)
	}
}

func TestFindReportsMissingSection(t *testing.T) {
	w := NewWriter(instance.Genesis)
	w.Put(SectionM68K, []byte{1})

	var buf bytes.Buffer
	w.Flush(&buf)
	r, _ := Load(&buf)

	if _, ok := r.Find(SectionYM2612); ok {
		t.Fatalf("expected SectionYM2612 to be absent")
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	bad := bytes.NewReader([]byte("NOTASAVESTATEHEADERBYTES"))
	_, err := Load(bad)
	if err == nil {
		t.Fatalf("expected an error for a bad magic header")
	}
	var curated *mwerrors.Error
	if !asCurated(err, &curated) || curated.Kind != mwerrors.Protocol {
		t.Fatalf("expected a Protocol-kind error, got %v", err)
	}
}

func asCurated(err error, out **mwerrors.Error) bool {
	c, ok := err.(*mwerrors.Error)
	if ok {
		*out = c
	}
	return ok
}

func TestFieldWriterReaderRoundTrip(t *testing.T) {
	w := NewFieldWriter()
	w.U8(0xAB)
	w.U16(0x1234)
	w.U32(0xDEADBEEF)
	w.U64(0x0102030405060708)
	w.Bool(true)
	w.Bytes([]byte{1, 2, 3})

	r := NewFieldReader(w.Finish())
	if v := r.U8(); v != 0xAB {
		t.Fatalf("expected U8 0xAB, got %#x", v)
	}
	if v := r.U16(); v != 0x1234 {
		t.Fatalf("expected U16 0x1234, got %#x", v)
	}
	if v := r.U32(); v != 0xDEADBEEF {
		t.Fatalf("expected U32 0xDEADBEEF, got %#x", v)
	}
	if v := r.U64(); v != 0x0102030405060708 {
		t.Fatalf("expected U64 round trip, got %#x", v)
	}
	if v := r.Bool(); !v {
		t.Fatalf("expected Bool true")
	}
	if v := r.Bytes(3); !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Fatalf("expected trailing bytes [1 2 3], got %v", v)
	}
}

func TestFieldReaderReturnsZeroPastEnd(t *testing.T) {
	r := NewFieldReader([]byte{0x01})
	_ = r.U8()
	if v := r.U32(); v != 0 {
		t.Fatalf("expected 0 reading past the buffer's end, got %#x", v)
	}
}
