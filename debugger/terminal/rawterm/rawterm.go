// Package rawterm implements debugger/terminal.Terminal directly on stdin
// and stdout, using "github.com/pkg/term/termios" to switch the terminal
// into cbreak mode (input available character-by-character, no kernel
// line editing) so a blocked TermRead can still be interrupted by an
// asynchronous break (Ctrl-C, or a GDB stub's break packet) arriving on
// another goroutine, which canonical mode's line buffering would
// otherwise swallow until the user pressed Enter.
package rawterm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/pkg/term/termios"

	"github.com/kestrel-emu/megawave/debugger/terminal"
)

// RawTerm is the default interactive debugger terminal.
type RawTerm struct {
	input  *os.File
	output *os.File

	canonical syscall.Termios
	cbreak    syscall.Termios

	runes runeReader
}

var _ terminal.Terminal = (*RawTerm)(nil)

// New returns a RawTerm bound to stdin/stdout.
func New() *RawTerm {
	return &RawTerm{input: os.Stdin, output: os.Stdout}
}

// Initialise saves the terminal's canonical attributes and switches it into
// cbreak mode, then starts the background rune reader.
func (rt *RawTerm) Initialise() error {
	if err := termios.Tcgetattr(rt.input.Fd(), &rt.canonical); err != nil {
		return fmt.Errorf("rawterm: %w", err)
	}
	rt.cbreak = rt.canonical
	termios.Cfmakecbreak(&rt.cbreak)
	if err := termios.Tcsetattr(rt.input.Fd(), termios.TCIFLUSH, &rt.cbreak); err != nil {
		return fmt.Errorf("rawterm: %w", err)
	}
	rt.runes = initRuneReader(rt.input)
	return nil
}

// CleanUp restores the terminal's canonical attributes.
func (rt *RawTerm) CleanUp() {
	_ = termios.Tcsetattr(rt.input.Fd(), termios.TCIFLUSH, &rt.canonical)
}

// TermPrintLine writes one styled line, prefixing by style rather than
// emitting ANSI colour codes.
func (rt *RawTerm) TermPrintLine(style terminal.Style, s string) {
	switch style {
	case terminal.StyleError:
		fmt.Fprintf(rt.output, "* %s\r\n", s)
	case terminal.StyleHelp:
		fmt.Fprintf(rt.output, "  %s\r\n", s)
	default:
		fmt.Fprintf(rt.output, "%s\r\n", s)
	}
}

// TermRead prints the prompt then assembles one line from the cbreak-mode
// rune reader, handling backspace (0x7F/0x08) itself since cbreak mode
// disables the kernel's own line editing.
func (rt *RawTerm) TermRead(prompt terminal.Prompt) (string, error) {
	fmt.Fprintf(rt.output, "%s", prompt.Content)

	var line []rune
	for {
		rr, ok := <-rt.runes
		if !ok {
			return "", io.EOF
		}
		if rr.err != nil {
			return "", rr.err
		}

		switch rr.r {
		case '\n', '\r':
			fmt.Fprint(rt.output, "\r\n")
			return string(line), nil
		case 0x7F, 0x08: // backspace/delete
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(rt.output, "\b \b")
			}
		case 0x03: // Ctrl-C: discard what's typed so far and return an empty line
			fmt.Fprint(rt.output, "^C\r\n")
			return "", nil
		default:
			line = append(line, rr.r)
			fmt.Fprintf(rt.output, "%c", rr.r)
		}
	}
}

// readRune is one decoded rune (or error) from the background reader.
type readRune struct {
	r   rune
	err error
}

// runeReader streams decoded runes from a blocking reader on its own
// goroutine, to avoid a blocking ReadRune call starving a select loop
// elsewhere in the debugger.
type runeReader chan readRune

func initRuneReader(r io.Reader) runeReader {
	buffered := bufio.NewReader(r)
	ch := make(runeReader)
	go func() {
		for {
			rn, _, err := buffered.ReadRune()
			ch <- readRune{r: rn, err: err}
			if err != nil {
				close(ch)
				return
			}
		}
	}()
	return ch
}
