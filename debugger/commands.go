package debugger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kestrel-emu/megawave/debugger/terminal"
)

// tokenise splits a command line on whitespace, upper-casing the verb so
// "step", "Step" and "STEP" all dispatch to the same handler.
func tokenise(line string) []string {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		fields[0] = strings.ToUpper(fields[0])
	}
	return fields
}

// parseAddr accepts a bare hex address ("ff0042") or a "0x"-prefixed one.
func parseAddr(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("not a hex address: %q", s)
	}
	return uint32(v), nil
}

// dispatch runs one tokenised command against the debugger's current
// state, printing through d.term and returning an error only for input
// that halts the session (io.EOF from the terminal, an underlying machine
// error) -- a malformed command prints a StyleError line and returns nil so
// the REPL keeps going: bad input is a user-facing message, not a crash.
func (d *Debugger) dispatch(fields []string) error {
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "STEP", "S":
		return d.cmdStep(fields[1:])
	case "RUN", "R":
		return d.cmdRun()
	case "HALT":
		d.inst.RequestDebugger()
		d.term.TermPrintLine(terminal.StyleFeedback, "halted")
	case "QUIT", "Q":
		d.quit = true
	case "RESET":
		if err := d.machine.Reset(); err != nil {
			return err
		}
		d.term.TermPrintLine(terminal.StyleFeedback, "machine reset")
	case "BREAK", "B":
		d.cmdBreak(fields[1:])
	case "WATCH", "W":
		d.cmdWatch(fields[1:])
	case "CLEAR":
		d.breakpoints.Clear()
		d.watches.Clear()
		d.term.TermPrintLine(terminal.StyleFeedback, "breakpoints and watches cleared")
	case "LIST":
		d.cmdList()
	case "REG":
		d.cmdReg()
	case "MEM", "M":
		d.cmdMem(fields[1:])
	case "TRACE", "T":
		d.cmdTrace()
	case "HELP", "?":
		d.cmdHelp()
	default:
		d.term.TermPrintLine(terminal.StyleError, fmt.Sprintf("unrecognised command %q (try HELP)", fields[0]))
	}
	return nil
}

func (d *Debugger) cmdStep(args []string) error {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}
	for i := 0; i < n; i++ {
		if err := d.machine.Step(); err != nil {
			return err
		}
	}
	d.cmdTrace()
	return nil
}

func (d *Debugger) cmdRun() error {
	d.inst.DebuggerEntered = false
	for {
		if d.inst.ShouldExit {
			return nil
		}
		if err := d.machine.Step(); err != nil {
			return err
		}
		if d.breakpoints.Check(d.machine.CPU.Reg.PC) {
			d.term.TermPrintLine(terminal.StyleFeedback, fmt.Sprintf("breakpoint hit at %06x", d.machine.CPU.Reg.PC))
			d.cmdTrace()
			return nil
		}
		for _, addr := range d.watches.Check() {
			d.term.TermPrintLine(terminal.StyleFeedback, fmt.Sprintf("watch fired at %06x", addr))
		}
		if d.inst.DebuggerEntered {
			// An asynchronous break (Ctrl-C, a GDB stub break packet)
			// arrived mid-run; hand control back without clearing the
			// flag ourselves -- the next RUN command clears it.
			d.term.TermPrintLine(terminal.StyleFeedback, "break")
			d.cmdTrace()
			return nil
		}
	}
}

func (d *Debugger) cmdBreak(args []string) {
	if len(args) == 0 {
		for _, a := range d.breakpoints.List() {
			d.term.TermPrintLine(terminal.StyleNormal, fmt.Sprintf("breakpoint %06x", a))
		}
		return
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		d.term.TermPrintLine(terminal.StyleError, err.Error())
		return
	}
	d.breakpoints.Add(addr)
	d.term.TermPrintLine(terminal.StyleFeedback, fmt.Sprintf("breakpoint set at %06x", addr))
}

func (d *Debugger) cmdWatch(args []string) {
	if len(args) == 0 {
		for _, a := range d.watches.List() {
			d.term.TermPrintLine(terminal.StyleNormal, fmt.Sprintf("watch %06x", a))
		}
		return
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		d.term.TermPrintLine(terminal.StyleError, err.Error())
		return
	}
	d.watches.Add(addr)
	d.term.TermPrintLine(terminal.StyleFeedback, fmt.Sprintf("watching %06x", addr))
}

func (d *Debugger) cmdList() {
	d.cmdBreak(nil)
	d.cmdWatch(nil)
}

func (d *Debugger) cmdReg() {
	r := d.machine.CPU.Reg
	for i := 0; i < 8; i++ {
		d.term.TermPrintLine(terminal.StyleNormal, fmt.Sprintf("D%d=%08x  A%d=%08x", i, r.D[i], i, r.A[i]))
	}
	d.term.TermPrintLine(terminal.StyleNormal, fmt.Sprintf("PC=%06x  SR=%04x", r.PC, r.SR.Value()))
}

func (d *Debugger) cmdMem(args []string) {
	if len(args) == 0 {
		d.term.TermPrintLine(terminal.StyleError, "MEM requires an address")
		return
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		d.term.TermPrintLine(terminal.StyleError, err.Error())
		return
	}
	n := 16
	if len(args) > 1 {
		if v, err := strconv.Atoi(args[1]); err == nil {
			n = v
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%06x:", addr)
	for i := 0; i < n; i++ {
		b, err := d.machine.CPU.Peek8(addr + uint32(i))
		if err != nil {
			d.term.TermPrintLine(terminal.StyleError, err.Error())
			return
		}
		fmt.Fprintf(&sb, " %02x", b)
	}
	d.term.TermPrintLine(terminal.StyleNormal, sb.String())
}

func (d *Debugger) cmdTrace() {
	r := d.machine.CPU.LastResult()
	d.term.TermPrintLine(terminal.StyleNormal, fmt.Sprintf("%06x  %-24s PC now %06x", r.Address, r.Mnemonic, d.machine.CPU.Reg.PC))
}

func (d *Debugger) cmdHelp() {
	for _, line := range []string{
		"STEP [n]      execute n instructions (default 1)",
		"RUN           free-run until a breakpoint, watch, or async break",
		"HALT          request an async break on the next suspension point",
		"RESET         reset the machine",
		"BREAK [addr]  list, or arm, a PC breakpoint",
		"WATCH [addr]  list, or arm, a polled memory watch",
		"CLEAR         clear every breakpoint and watch",
		"LIST          list breakpoints and watches together",
		"REG           print the current CPU register file",
		"MEM addr [n]  dump n bytes (default 16) from addr",
		"TRACE         print the most recently executed instruction",
		"QUIT          leave the debugger and resume normal execution",
	} {
		d.term.TermPrintLine(terminal.StyleHelp, line)
	}
}
