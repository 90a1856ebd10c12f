// Package savestate implements a versioned, section-tagged save-state
// file format: a magic header, a one-byte machine-type tag, then a stream
// of {id, length, payload} sections, each carrying its own internal
// version byte so an older state can be loaded with best-effort field
// mapping.
package savestate

import (
	"bufio"
	"encoding/binary"
	"io"

	mwerrors "github.com/kestrel-emu/megawave/errors"
	"github.com/kestrel-emu/megawave/instance"
)

// magic identifies a file as belonging to this emulator. Chosen fresh for
// this implementation rather than reusing another project's literal byte
// sequence.
var magic = [7]byte{'M', 'W', 'S', 'T', 'A', 'T', 'E'}

const formatVersion = 2

// SectionID names one of the serialized component blocks.
type SectionID uint8

const (
	SectionM68K SectionID = iota
	SectionZ80
	SectionVDP
	SectionYM2612
	SectionPSG
	SectionBusArbiter
	SectionIO
	SectionMainRAM
	SectionSoundRAM
	SectionMapper
	SectionTMSS
	SectionSubCPU
	SectionGateArray
	SectionCDD
	SectionCDC
	SectionDiscPosition
	SectionPCM
	SectionCDDAFader
)

// Section is one decoded block: its id and raw payload bytes. Callers
// cast/parse the payload according to the id; this package only handles
// framing, not per-component field layout.
type Section struct {
	ID      SectionID
	Payload []byte
}

// Writer accumulates sections and emits the framed file on Flush.
type Writer struct {
	system   instance.SystemType
	sections []Section
}

// NewWriter starts a save state for the given machine type.
func NewWriter(system instance.SystemType) *Writer {
	return &Writer{system: system}
}

// Put appends a section. Callers are responsible for encoding payload in
// whatever internal layout the component's own Load/Save pair agrees on;
// this package never inspects it.
func (w *Writer) Put(id SectionID, payload []byte) {
	w.sections = append(w.sections, Section{ID: id, Payload: payload})
}

// Flush writes the framed file to out.
func (w *Writer) Flush(out io.Writer) error {
	bw := bufio.NewWriter(out)

	if _, err := bw.Write(magic[:]); err != nil {
		return err
	}
	if err := bw.WriteByte(0); err != nil {
		return err
	}
	if err := bw.WriteByte(uint8(w.system)); err != nil {
		return err
	}

	for _, s := range w.sections {
		if err := bw.WriteByte(uint8(s.ID)); err != nil {
			return err
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s.Payload)))
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(s.Payload); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Reader parses a framed save-state file.
type Reader struct {
	System   instance.SystemType
	Sections []Section
}

// Load reads and validates a save-state stream, returning a Reader with
// every section decoded but not yet applied to any component.
func Load(in io.Reader) (*Reader, error) {
	br := bufio.NewReader(in)

	var gotMagic [7]byte
	if _, err := io.ReadFull(br, gotMagic[:]); err != nil {
		return nil, mwerrors.New(mwerrors.Protocol, "save-state: truncated header", err)
	}
	if gotMagic != magic {
		return nil, mwerrors.New(mwerrors.Protocol, "save-state: bad magic", nil)
	}

	if _, err := br.ReadByte(); err != nil { // reserved zero byte
		return nil, mwerrors.New(mwerrors.Protocol, "save-state: truncated header", err)
	}
	systemByte, err := br.ReadByte()
	if err != nil {
		return nil, mwerrors.New(mwerrors.Protocol, "save-state: truncated header", err)
	}

	r := &Reader{System: instance.SystemType(systemByte)}

	for {
		idByte, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, mwerrors.New(mwerrors.Protocol, "save-state: section id", err)
		}

		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, mwerrors.New(mwerrors.Protocol, "save-state: section length", err)
		}
		length := binary.LittleEndian.Uint32(lenBuf[:])

		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, mwerrors.New(mwerrors.Protocol, "save-state: section payload", err)
		}

		r.Sections = append(r.Sections, Section{ID: SectionID(idByte), Payload: payload})
	}

	return r, nil
}

// Find returns the payload of the first section matching id, if any.
func (r *Reader) Find(id SectionID) ([]byte, bool) {
	for _, s := range r.Sections {
		if s.ID == id {
			return s.Payload, true
		}
	}
	return nil, false
}

// FieldWriter is a small helper for a component's own Save method: it
// writes a sequence of fixed-width fields into a payload buffer, each
// preceded by nothing extra, so the component's Load counterpart simply
// reads them back in the same order -- the per-section "internal version
// byte" convention is just the first byte a component chooses to write
// with this helper.
type FieldWriter struct {
	buf []byte
}

func NewFieldWriter() *FieldWriter { return &FieldWriter{} }

func (f *FieldWriter) U8(v uint8)   { f.buf = append(f.buf, v) }
func (f *FieldWriter) U16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); f.buf = append(f.buf, b[:]...) }
func (f *FieldWriter) U32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); f.buf = append(f.buf, b[:]...) }
func (f *FieldWriter) U64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); f.buf = append(f.buf, b[:]...) }
func (f *FieldWriter) Bytes(v []byte) { f.buf = append(f.buf, v...) }
func (f *FieldWriter) Bool(v bool) {
	if v {
		f.U8(1)
	} else {
		f.U8(0)
	}
}

// Finish returns the accumulated payload bytes.
func (f *FieldWriter) Finish() []byte { return f.buf }

// FieldReader is FieldWriter's counterpart for a component's Load method.
type FieldReader struct {
	buf []byte
	pos int
}

func NewFieldReader(buf []byte) *FieldReader { return &FieldReader{buf: buf} }

func (f *FieldReader) U8() uint8 {
	if f.pos >= len(f.buf) {
		return 0
	}
	v := f.buf[f.pos]
	f.pos++
	return v
}

func (f *FieldReader) U16() uint16 {
	if f.pos+2 > len(f.buf) {
		f.pos = len(f.buf)
		return 0
	}
	v := binary.LittleEndian.Uint16(f.buf[f.pos:])
	f.pos += 2
	return v
}

func (f *FieldReader) U32() uint32 {
	if f.pos+4 > len(f.buf) {
		f.pos = len(f.buf)
		return 0
	}
	v := binary.LittleEndian.Uint32(f.buf[f.pos:])
	f.pos += 4
	return v
}

func (f *FieldReader) U64() uint64 {
	if f.pos+8 > len(f.buf) {
		f.pos = len(f.buf)
		return 0
	}
	v := binary.LittleEndian.Uint64(f.buf[f.pos:])
	f.pos += 8
	return v
}

func (f *FieldReader) Bytes(n int) []byte {
	if f.pos+n > len(f.buf) {
		n = len(f.buf) - f.pos
	}
	v := f.buf[f.pos : f.pos+n]
	f.pos += n
	return v
}

func (f *FieldReader) Bool() bool { return f.U8() != 0 }

// CurrentFormatVersion is the version this package itself is at, separate
// from any individual section's internal version byte; bumped only when
// the outer framing (not a component's payload layout) changes.
func CurrentFormatVersion() int { return formatVersion }
