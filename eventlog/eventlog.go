// Package eventlog implements a compact, versioned, delta-encoded trace
// of VRAM/CRAM/VSRAM byte-or-word writes and VDP register writes used for
// deterministic replay. Encoding address deltas as a single byte for the
// common cases (0, +1, or the VDP's current auto-increment value) keeps
// sequential writes cheap to store without a general-purpose compressor.
package eventlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Kind identifies what a logged event touched.
type Kind uint8

const (
	KindVRAM Kind = iota
	KindCRAM
	KindVSRAM
	KindRegister
)

// deltaOpcode values are written as a single byte ahead of an event's
// address field; codes 0-2 mean the address delta from the previous event
// of the same Kind is exactly 0, 1, or the current auto-increment value
// (supplied by the caller), avoiding a full 4-byte address in the common
// sequential-write case. Code 3 means a full address follows.
const (
	deltaZero = iota
	deltaOne
	deltaAutoIncrement
	deltaExplicit
)

// Event is one decoded log entry.
type Event struct {
	Cycle   uint64
	Kind    Kind
	Address uint32
	Value   uint16
}

// Writer appends events to an underlying stream, tracking the previous
// address per Kind to choose the cheapest delta encoding.
type Writer struct {
	w    *bufio.Writer
	last [4]uint32
	have [4]bool
}

// NewWriter wraps out for event logging. The caller is responsible for
// opening whatever sink out represents (a file, or an optional TCP client
// connection).
func NewWriter(out io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(out)}
}

// Write appends one event, autoIncrement being the VDP's current register
// value (ignored for Kinds other than VRAM/CRAM/VSRAM) used to recognise
// the deltaAutoIncrement case.
func (w *Writer) Write(e Event, autoIncrement uint32) error {
	idx := int(e.Kind)
	var opcode uint8
	var delta uint32
	if !w.have[idx] {
		opcode = deltaExplicit
		delta = e.Address
	} else {
		d := e.Address - w.last[idx]
		switch {
		case d == 0:
			opcode = deltaZero
		case d == 1:
			opcode = deltaOne
		case d == autoIncrement && autoIncrement != 0:
			opcode = deltaAutoIncrement
		default:
			opcode = deltaExplicit
			delta = e.Address
		}
	}
	w.last[idx] = e.Address
	w.have[idx] = true

	if err := w.w.WriteByte(uint8(e.Kind)<<4 | opcode); err != nil {
		return err
	}
	var cycleBuf [8]byte
	binary.LittleEndian.PutUint64(cycleBuf[:], e.Cycle)
	if _, err := w.w.Write(cycleBuf[:]); err != nil {
		return err
	}
	if opcode == deltaExplicit {
		var addrBuf [4]byte
		binary.LittleEndian.PutUint32(addrBuf[:], delta)
		if _, err := w.w.Write(addrBuf[:]); err != nil {
			return err
		}
	}
	var valBuf [2]byte
	binary.LittleEndian.PutUint16(valBuf[:], e.Value)
	_, err := w.w.Write(valBuf[:])
	return err
}

// Flush flushes any buffered bytes to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }

// Reader decodes a stream previously produced by Writer, validating
// deltas against Kind bounds and aborting replay on mismatch.
type Reader struct {
	r    *bufio.Reader
	last [4]uint32
	have [4]bool
}

// NewReader wraps in for event-log replay.
func NewReader(in io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(in)}
}

// Next decodes the next event, or returns io.EOF when the stream is
// exhausted. autoIncrement is the VDP's current register value, used to
// resolve a deltaAutoIncrement opcode the same way Writer produced it.
func (r *Reader) Next(autoIncrement uint32) (Event, error) {
	header, err := r.r.ReadByte()
	if err != nil {
		return Event{}, err
	}
	kind := Kind(header >> 4)
	opcode := header & 0x0F
	if kind > KindRegister {
		return Event{}, fmt.Errorf("eventlog: invalid kind %d", kind)
	}

	var cycleBuf [8]byte
	if _, err := io.ReadFull(r.r, cycleBuf[:]); err != nil {
		return Event{}, fmt.Errorf("eventlog: truncated cycle field: %w", err)
	}
	cycle := binary.LittleEndian.Uint64(cycleBuf[:])

	idx := int(kind)
	var addr uint32
	switch opcode {
	case deltaZero:
		addr = r.last[idx]
	case deltaOne:
		addr = r.last[idx] + 1
	case deltaAutoIncrement:
		addr = r.last[idx] + autoIncrement
	case deltaExplicit:
		var addrBuf [4]byte
		if _, err := io.ReadFull(r.r, addrBuf[:]); err != nil {
			return Event{}, fmt.Errorf("eventlog: truncated address field: %w", err)
		}
		addr = binary.LittleEndian.Uint32(addrBuf[:])
	default:
		return Event{}, fmt.Errorf("eventlog: invalid delta opcode %d", opcode)
	}
	r.last[idx] = addr
	r.have[idx] = true

	var valBuf [2]byte
	if _, err := io.ReadFull(r.r, valBuf[:]); err != nil {
		return Event{}, fmt.Errorf("eventlog: truncated value field: %w", err)
	}

	return Event{
		Cycle:   cycle,
		Kind:    kind,
		Address: addr,
		Value:   binary.LittleEndian.Uint16(valBuf[:]),
	}, nil
}
