// Package gdb implements a minimal GDB remote serial protocol (RSP) stub
// over TCP, the target the "-D" CLI flag starts. It follows the RSP
// specification's "$packet#checksum" framing over an accept-loop TCP
// server.
package gdb

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/kestrel-emu/megawave/hardware"
	"github.com/kestrel-emu/megawave/logger"
)

// Server is a single-client RSP stub bound to one Machine. Real gdbserver
// implementations handle one inferior per TCP connection; this stub does
// the same and serves connections one at a time: a second connection is
// not served until the first one closes.
type Server struct {
	machine     *hardware.Machine
	breakpoints map[uint32]bool
}

// NewServer returns a Server wired to machine.
func NewServer(machine *hardware.Machine) *Server {
	return &Server{machine: machine, breakpoints: make(map[uint32]bool)}
}

// ListenAndServe binds addr (e.g. "localhost:2345") and serves RSP
// connections until the listener is closed or accept fails.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gdb: %w", err)
	}
	defer ln.Close()
	logger.Logf("gdb", "listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("gdb: %w", err)
		}
		s.serveConn(conn)
		conn.Close()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	logger.Logf("gdb", "client connected from %s", conn.RemoteAddr())
	r := bufio.NewReader(conn)
	for {
		pkt, err := readPacket(r)
		if err != nil {
			logger.Logf("gdb", "client disconnected: %v", err)
			return
		}
		fmt.Fprint(conn, "+") // acknowledge receipt

		reply := s.handle(pkt)
		if err := writePacket(conn, reply); err != nil {
			logger.Logf("gdb", "write failed: %v", err)
			return
		}
	}
}

// handle dispatches one RSP command packet to its reply body (without the
// "$"/"#checksum" framing, which writePacket adds).
func (s *Server) handle(pkt string) string {
	if pkt == "" {
		return ""
	}
	switch pkt[0] {
	case '?':
		return "S05" // SIGTRAP: stopped, matching a freshly attached session
	case 'g':
		return s.readRegisters()
	case 'G':
		s.writeRegisters(pkt[1:])
		return "OK"
	case 'm':
		return s.readMemory(pkt[1:])
	case 'M':
		return s.writeMemory(pkt[1:])
	case 'c':
		return s.cont()
	case 's':
		return s.step()
	case 'Z':
		return s.addBreakpoint(pkt[1:])
	case 'z':
		return s.removeBreakpoint(pkt[1:])
	case 'q':
		if strings.HasPrefix(pkt, "qSupported") {
			return "PacketSize=1000"
		}
		return ""
	default:
		return "" // empty reply: "command not supported", per the RSP spec
	}
}

// readRegisters packs the register file in this stub's GDB register
// numbering: D0-D7, A0-A7, SR, PC, matching real m68k-elf-gdb's target
// description order. Nothing in this repository's test suite drives a real
// gdb client against it, so the ordering is asserted by inspection against
// the published RSP target description rather than verified against a live
// client.
func (s *Server) readRegisters() string {
	r := s.machine.CPU.Reg
	var sb strings.Builder
	for _, v := range r.D {
		fmt.Fprintf(&sb, "%08x", v)
	}
	for _, v := range r.A {
		fmt.Fprintf(&sb, "%08x", v)
	}
	fmt.Fprintf(&sb, "%08x", uint32(r.SR.Value()))
	fmt.Fprintf(&sb, "%08x", r.PC)
	return sb.String()
}

func (s *Server) writeRegisters(hex string) {
	vals := make([]uint32, 18)
	for i := range vals {
		if len(hex) < (i+1)*8 {
			break
		}
		v, err := strconv.ParseUint(hex[i*8:(i+1)*8], 16, 32)
		if err != nil {
			return
		}
		vals[i] = uint32(v)
	}
	for i := 0; i < 8; i++ {
		s.machine.CPU.Reg.D[i] = vals[i]
	}
	for i := 0; i < 8; i++ {
		s.machine.CPU.Reg.A[i] = vals[8+i]
	}
	s.machine.CPU.Reg.SR.Load(uint16(vals[16]))
	s.machine.CPU.Reg.PC = vals[17]
}

func (s *Server) readMemory(args string) string {
	addr, length, ok := parseAddrLen(args)
	if !ok {
		return "E01"
	}
	var sb strings.Builder
	for i := uint32(0); i < length; i++ {
		b, err := s.machine.CPU.Peek8(addr + i)
		if err != nil {
			return "E01"
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}

func (s *Server) writeMemory(args string) string {
	parts := strings.SplitN(args, ":", 2)
	if len(parts) != 2 {
		return "E01"
	}
	addr, length, ok := parseAddrLen(parts[0])
	if !ok {
		return "E01"
	}
	data := parts[1]
	for i := uint32(0); i < length; i++ {
		if len(data) < int(i+1)*2 {
			return "E01"
		}
		v, err := strconv.ParseUint(data[i*2:i*2+2], 16, 8)
		if err != nil {
			return "E01"
		}
		if err := s.machine.CPU.Poke8(addr+i, uint8(v)); err != nil {
			return "E01"
		}
	}
	return "OK"
}

func parseAddrLen(s string) (addr uint32, length uint32, ok bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	l, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint32(a), uint32(l), true
}

// cont free-runs the machine until an armed breakpoint's PC is reached.
// Unlike a full gdbserver, this stub cannot be interrupted mid-continue by
// a fresh packet on the same connection (RSP's out-of-band Ctrl-C byte):
// the connection is only read between packets. A remote client that wants
// to break in should rely on breakpoints rather than an async interrupt,
// a known gap noted in this package's DESIGN.md entry.
func (s *Server) cont() string {
	inst := s.machine.Instance()
	inst.DebuggerEntered = false
	for {
		if inst.ShouldExit {
			return "W00"
		}
		if err := s.machine.Step(); err != nil {
			return "E01"
		}
		if s.breakpoints[s.machine.CPU.Reg.PC] {
			return "S05"
		}
	}
}

func (s *Server) step() string {
	if err := s.machine.Step(); err != nil {
		return "E01"
	}
	return "S05"
}

func (s *Server) addBreakpoint(args string) string {
	addr, ok := firstArgAddr(args)
	if !ok {
		return "E01"
	}
	s.breakpoints[addr] = true
	return "OK"
}

func (s *Server) removeBreakpoint(args string) string {
	addr, ok := firstArgAddr(args)
	if !ok {
		return "E01"
	}
	delete(s.breakpoints, addr)
	return "OK"
}

// firstArgAddr extracts the address out of a "type,addr,kind" Z/z packet
// body; type and kind are unused since this stub only models one kind of
// breakpoint (a bare PC match).
func firstArgAddr(args string) (uint32, bool) {
	parts := strings.Split(args, ",")
	if len(parts) < 2 {
		return 0, false
	}
	a, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(a), true
}

// readPacket reads one "$...#xx"-framed RSP packet, discarding any leading
// ack/nak bytes the client sends outside of packet framing.
func readPacket(r *bufio.Reader) (string, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '$' {
			break
		}
	}
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '#' {
			break
		}
		sb.WriteByte(b)
	}
	// checksum: two trailing hex digits, not verified since this stub
	// trusts a local loopback client.
	if _, err := r.ReadByte(); err != nil {
		return "", err
	}
	if _, err := r.ReadByte(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// writePacket frames data as "$data#checksum" per the RSP spec, where the
// checksum is the modulo-256 sum of data's bytes.
func writePacket(w io.Writer, data string) error {
	var sum uint8
	for i := 0; i < len(data); i++ {
		sum += data[i]
	}
	_, err := fmt.Fprintf(w, "$%s#%02x", data, sum)
	return err
}
