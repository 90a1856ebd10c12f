// Package debugger implements an interactive line-oriented REPL: a command
// loop operating on a Machine frozen at a suspension point (see
// hardware.Machine.Step/RunFrame and instance.Instance.DebuggerEntered),
// with a command surface trimmed to stepping, breakpoints, and
// register/memory inspection, rather than a full cartridge/TV/controller
// introspection surface, which has no equivalent target in this console
// family's debugger story.
package debugger

import (
	"fmt"
	"io"

	"github.com/kestrel-emu/megawave/debugger/terminal"
	"github.com/kestrel-emu/megawave/hardware"
	"github.com/kestrel-emu/megawave/instance"
)

// Debugger owns one Machine's debug session: the terminal it talks to, and
// the breakpoint/watch state that survives across STEP/RUN commands.
type Debugger struct {
	machine *hardware.Machine
	inst    *instance.Instance
	term    terminal.Terminal

	breakpoints *Breakpoints
	watches     *Watches

	quit bool
}

// New returns a Debugger bound to machine, driven through term.
func New(machine *hardware.Machine, term terminal.Terminal) *Debugger {
	return &Debugger{
		machine:     machine,
		inst:        machine.Instance(),
		term:        term,
		breakpoints: NewBreakpoints(),
		watches:     NewWatches(machine.CPU.Peek8),
	}
}

// BreakAt arms a breakpoint before the session starts, for the "-d addr"
// CLI form that breaks immediately at a known entry point rather than
// waiting for the user to set one interactively.
func (d *Debugger) BreakAt(addr uint32) {
	d.breakpoints.Add(addr)
}

// Start runs the REPL until QUIT is entered or the terminal returns EOF,
// then restores the machine to free-running (clearing DebuggerEntered) so
// the caller's own run loop can resume.
func (d *Debugger) Start() error {
	if err := d.term.Initialise(); err != nil {
		return fmt.Errorf("debugger: %w", err)
	}
	defer d.term.CleanUp()

	d.term.TermPrintLine(terminal.StyleFeedback, "megawave debugger -- HELP for commands")
	d.cmdTrace()

	for !d.quit {
		prompt := terminal.Prompt{
			Content: fmt.Sprintf("[%06x] > ", d.machine.CPU.Reg.PC),
			Style:   terminal.StylePrompt,
		}
		line, err := d.term.TermRead(prompt)
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("debugger: %w", err)
		}

		if err := d.dispatch(tokenise(line)); err != nil {
			return err
		}
	}

	d.inst.DebuggerEntered = false
	return nil
}
