// Package instance lifts the emulator's process-wide mutable globals
// (current system type, configuration, headless flag, Z80-enable flag) into
// a single context value passed by reference through every entry point. A
// component holds a *Instance rather than reaching for package-level state,
// which is what lets two Machines exist side by side (main game + menu ROM,
// or a regression-test harness running many ROMs) without interfering with
// each other.
package instance

import (
	"github.com/kestrel-emu/megawave/prefs"
	"github.com/kestrel-emu/megawave/random"
)

// SystemType identifies which member of the console family a Machine is
// emulating.
type SystemType int

const (
	Genesis SystemType = iota
	SegaCD
	GenesisPlayer
	SMS
	Pico
	Copera
	Coleco
	MediaPlayer
)

func (s SystemType) String() string {
	switch s {
	case Genesis:
		return "gen"
	case SegaCD:
		return "sc"
	case GenesisPlayer:
		return "genplayer"
	case SMS:
		return "sms"
	case Pico:
		return "pico"
	case Copera:
		return "copera"
	case Coleco:
		return "jag"
	case MediaPlayer:
		return "media"
	default:
		return "unknown"
	}
}

// Instance is the machine-wide context threaded through every component
// constructor. It replaces the source's process-wide globals.
type Instance struct {
	System SystemType

	// Headless suppresses anything that needs a window or audio device;
	// it is what the "-b N" flag implies.
	Headless bool

	// Z80Enabled can be forced off with "-n", matching games that never
	// use the Z80 and emulators that want to skip it for speed.
	Z80Enabled bool

	Prefs  *prefs.Node
	Random *random.Random

	// ShouldExit is polled by the harness between CPU dispatches. Setting
	// it forces the run loop to return as soon as it next checks,
	// regardless of which component is mid-slot.
	ShouldExit bool

	// DebuggerEntered mirrors ShouldExit but additionally asks the harness
	// to open a debugger session once it has unwound to a safe point.
	DebuggerEntered bool
}

// NewInstance creates an Instance with sensible defaults. Prefs may be nil,
// in which case an empty tree is created.
func NewInstance(system SystemType, p *prefs.Node, seed int64) *Instance {
	if p == nil {
		p = prefs.NewNode()
	}
	return &Instance{
		System:     system,
		Z80Enabled: true,
		Prefs:      p,
		Random:     random.NewRandom(seed),
	}
}

// RandomState reports whether hardware state that is genuinely undefined on
// real silicon (uninitialised RAM, power-on register contents) should be
// randomised rather than zeroed. Deterministic-state regression tests want
// this off; default play wants it on, matching observed console behaviour.
func (i *Instance) RandomState() bool {
	return i.Prefs.Bool("emulation.random_state", true)
}

// RequestExit sets ShouldExit, to be observed at the next suspension point.
func (i *Instance) RequestExit() {
	i.ShouldExit = true
}

// RequestDebugger sets DebuggerEntered, to be observed at the next
// suspension point. Used both by the "-d" flag's immediate break and by an
// asynchronous break (Ctrl-C at the terminal, a GDB stub's break packet)
// arriving while the harness is mid-RunFrame.
func (i *Instance) RequestDebugger() {
	i.DebuggerEntered = true
}
