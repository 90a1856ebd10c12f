package debugger_test

import (
	"io"
	"strings"
	"testing"

	"github.com/kestrel-emu/megawave/clocks"
	"github.com/kestrel-emu/megawave/debugger"
	"github.com/kestrel-emu/megawave/debugger/terminal"
	"github.com/kestrel-emu/megawave/hardware"
	"github.com/kestrel-emu/megawave/hardware/cartridge"
	"github.com/kestrel-emu/megawave/instance"
)

// mockTerm feeds a canned line queue and records every printed line.
// No goroutine/channel plumbing is needed since this debugger's
// terminal.Input is a plain blocking call, so a simple slice-backed queue
// is enough.
type mockTerm struct {
	lines  []string
	i      int
	output []string
}

func (m *mockTerm) Initialise() error { return nil }
func (m *mockTerm) CleanUp()          {}

func (m *mockTerm) TermPrintLine(_ terminal.Style, s string) {
	m.output = append(m.output, s)
}

func (m *mockTerm) TermRead(_ terminal.Prompt) (string, error) {
	if m.i >= len(m.lines) {
		return "", io.EOF
	}
	l := m.lines[m.i]
	m.i++
	return l, nil
}

func newTestMachine(t *testing.T) *hardware.Machine {
	t.Helper()
	inst := instance.NewInstance(instance.Genesis, nil, 1)

	rom := make([]byte, 0x10000)
	rom[0], rom[1], rom[2], rom[3] = 0x00, 0x01, 0x00, 0x00
	rom[4], rom[5], rom[6], rom[7] = 0x00, 0x00, 0x04, 0x00
	mapper := cartridge.NewPlain(rom, 0, 0)

	m := hardware.New(inst, mapper, clocks.NTSC)
	if err := m.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return m
}

func TestDebuggerStepCommandAdvancesMachineWithoutError(t *testing.T) {
	m := newTestMachine(t)
	term := &mockTerm{lines: []string{"STEP", "QUIT"}}

	dbg := debugger.New(m, term)
	if err := dbg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	found := false
	for _, l := range term.output {
		if strings.Contains(l, "PC now") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected STEP to print a trace line, got %v", term.output)
	}
}

func TestDebuggerBreakCommandArmsAndListsABreakpoint(t *testing.T) {
	m := newTestMachine(t)
	term := &mockTerm{lines: []string{"BREAK 000500", "LIST", "QUIT"}}

	dbg := debugger.New(m, term)
	if err := dbg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	found := false
	for _, l := range term.output {
		if strings.Contains(l, "000500") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected LIST to show the armed breakpoint, got %v", term.output)
	}
}

func TestDebuggerRegCommandPrintsEveryDataAndAddressRegister(t *testing.T) {
	m := newTestMachine(t)
	term := &mockTerm{lines: []string{"REG", "QUIT"}}

	dbg := debugger.New(m, term)
	if err := dbg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	count := 0
	for _, l := range term.output {
		if strings.HasPrefix(l, "D") {
			count++
		}
	}
	if count != 8 {
		t.Fatalf("expected 8 data-register lines, got %d (%v)", count, term.output)
	}
}

func TestDebuggerUnrecognisedCommandReportsAnErrorLineAndKeepsGoing(t *testing.T) {
	m := newTestMachine(t)
	term := &mockTerm{lines: []string{"NONSENSE", "QUIT"}}

	dbg := debugger.New(m, term)
	if err := dbg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	found := false
	for _, l := range term.output {
		if strings.Contains(l, "unrecognised") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an unrecognised-command message, got %v", term.output)
	}
}

func TestDebuggerQuitClearsDebuggerEnteredFlag(t *testing.T) {
	m := newTestMachine(t)
	m.Instance().RequestDebugger()
	term := &mockTerm{lines: []string{"QUIT"}}

	dbg := debugger.New(m, term)
	if err := dbg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Instance().DebuggerEntered {
		t.Fatalf("expected QUIT to clear DebuggerEntered so the caller's run loop resumes")
	}
}
