// Package terminal defines the interface the debugger's REPL drives any
// front-end through: the debugger never writes to os.Stdout directly, it
// always goes through a Terminal so that a plain stdin/stdout session and
// a future GUI console can share one command loop.
package terminal

// Style tags a printed line so a richer terminal can colour it; the plain
// terminal in package rawterm just prefixes error/help lines.
type Style int

const (
	StyleNormal Style = iota
	StylePrompt
	StyleError
	StyleHelp
	StyleFeedback
)

// Prompt is what TermRead displays before blocking for input; the debugger
// REPL shows the current PC.
type Prompt struct {
	Content string
	Style   Style
}

// Input defines blocking line input.
type Input interface {
	// TermRead blocks for one line of input, returning it with the
	// trailing newline stripped.
	TermRead(prompt Prompt) (string, error)
}

// Output defines single-line output tagged with a Style.
type Output interface {
	TermPrintLine(Style, string)
}

// Terminal is the full interface a debugger front-end implements.
type Terminal interface {
	Input
	Output

	// Initialise prepares the terminal (putting it into cbreak mode, if
	// the implementation needs to) and CleanUp restores it.
	Initialise() error
	CleanUp()
}
