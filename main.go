// Command megawave is the emulator's CLI entry point. Flag parsing uses a
// single flat flag set resolved before any component is constructed,
// built on github.com/urfave/cli rather than the standard library's flag
// package, since this binary's flag set is large enough to benefit from
// cli's built-in usage text and short/long alias support.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli"

	"github.com/kestrel-emu/megawave/audio"
	"github.com/kestrel-emu/megawave/cartridgeloader"
	"github.com/kestrel-emu/megawave/clocks"
	"github.com/kestrel-emu/megawave/debugger"
	"github.com/kestrel-emu/megawave/debugger/gdb"
	"github.com/kestrel-emu/megawave/debugger/terminal/rawterm"
	"github.com/kestrel-emu/megawave/eventlog"
	mwerrors "github.com/kestrel-emu/megawave/errors"
	"github.com/kestrel-emu/megawave/hardware"
	"github.com/kestrel-emu/megawave/hardware/cartridge"
	"github.com/kestrel-emu/megawave/instance"
	"github.com/kestrel-emu/megawave/logger"
	"github.com/kestrel-emu/megawave/prefs"
)

// deviceSampleRateHz is the audio.Mixer's output rate; the actual device
// backend is out of scope for this build (see DESIGN.md), so this only
// governs the rate WAV logs are written at.
const deviceSampleRateHz = 44100

func main() {
	app := cli.NewApp()
	app.Name = "megawave"
	app.Usage = "a cycle-accurate emulator for the Sega Mega Drive / Genesis family"
	app.Version = "0.1.0"
	app.ArgsUsage = "ROM [width] [height]"

	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "b", Usage: "headless: exit after N frames"},
		cli.StringFlag{Name: "d", Usage: "break in debugger on start (optional 'm' suffix breaks in menu ROM)"},
		cli.BoolFlag{Name: "D", Usage: "start the GDB remote-serial stub"},
		cli.StringFlag{Name: "e", Usage: "event log destination (file or host:port)"},
		cli.BoolFlag{Name: "f", Usage: "toggle fullscreen from config default"},
		cli.BoolFlag{Name: "g", Usage: "disable GL renderer"},
		cli.BoolFlag{Name: "l", Usage: "log 68K code addresses"},
		cli.StringFlag{Name: "m", Usage: "force system type (sms gg sg sc gen pico copera jag media)"},
		cli.BoolFlag{Name: "n", Usage: "disable the Z80"},
		cli.StringFlag{Name: "o", Usage: "lock-on cartridge"},
		cli.StringFlag{Name: "r", Usage: "force region (J/U/E)"},
		cli.StringFlag{Name: "s", Usage: "load save-state"},
		cli.BoolFlag{Name: "t", Usage: "force no terminal"},
		cli.BoolFlag{Name: "y", Usage: "per-channel FM WAV log"},
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	romPath := c.Args().Get(0)
	if romPath == "" {
		return cli.NewExitError("megawave: a ROM path is required", 1)
	}

	cart, err := cartridgeloader.Load(romPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	system := cart.System
	if forced := c.String("m"); forced != "" {
		system, err = parseSystemFlag(forced)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
	}

	region := clocks.NTSC
	switch c.String("r") {
	case "E":
		region = clocks.PAL
	}

	prefsPath := defaultPrefsPath()
	var tree *prefs.Node
	if node, err := prefs.Load(prefsPath); err == nil {
		tree = node
	} else {
		logger.Logf("prefs", "using defaults: %v", err)
		tree = prefs.NewNode()
	}

	inst := instance.NewInstance(system, tree, 1)
	inst.Z80Enabled = !c.Bool("n")
	inst.Headless = c.Int("b") > 0

	mapper := buildMapper(cart)
	if lockOn := c.String("o"); lockOn != "" {
		lockCart, err := cartridgeloader.Load(lockOn)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		mapper = cartridge.NewLockOn(mapper, lockCart.Data)
	}

	machine := hardware.New(inst, mapper, region)
	if err := machine.Reset(); err != nil {
		return cli.NewExitError(fmt.Sprintf("megawave: reset failed: %v", err), 1)
	}
	if machine.SegaCD != nil && cart.IsDisc {
		machine.SegaCD.CDD.LoadDisc(discFrameCount(cart))
	}

	mixer := attachMixer(machine, c.Bool("y"))
	if mixer != nil {
		defer func() {
			if err := mixer.FlushWAVLogs(wavLogDir(romPath)); err != nil {
				logger.Logf("main", "WAV log flush failed: %v", err)
			}
		}()
	}

	if dest := c.String("e"); dest != "" {
		closeLog, err := attachEventLog(machine, dest)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("megawave: event log: %v", err), 1)
		}
		defer closeLog()
	}

	if statePath := c.String("s"); statePath != "" {
		if err := loadState(machine, statePath); err != nil {
			logger.Logf("main", "save-state load failed, continuing from reset: %v", err)
		}
	}

	if c.Bool("D") {
		return gdb.NewServer(machine).ListenAndServe("localhost:2345")
	}

	if breakFlag := c.String("d"); breakFlag != "" {
		dbg := debugger.New(machine, rawterm.New())
		if addr, err := parseBreakFlag(breakFlag); err == nil {
			dbg.BreakAt(addr)
		}
		machine.Instance().RequestDebugger()
		if err := dbg.Start(); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
	}

	if frames := c.Int("b"); frames > 0 {
		return runHeadless(machine, frames)
	}

	return runInteractive(machine)
}

// parseBreakFlag interprets "-d"'s argument: a bare hex address breaks
// there, anything else (including the documented "m" menu-ROM suffix, which
// has no target in this build since the cartridge loader doesn't yet model
// a separate menu ROM) just breaks immediately at the reset vector.
func parseBreakFlag(s string) (uint32, error) {
	s = strings.TrimSuffix(strings.ToLower(s), "m")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// attachMixer builds the YM2612/PSG (and, on Sega CD titles, PCM) mixer
// and wires it as the hardware.Machine's audio sink, returning it so the
// caller can flush per-channel WAV logs on exit when logChannels ("-y")
// is set, or nil if nothing needs flushing.
func attachMixer(machine *hardware.Machine, logChannels bool) *audio.Mixer {
	mixer := audio.New(deviceSampleRateHz)
	mixer.AddSource("ym2612") // also carries Sega CD PCM output: AttachAudioSink's
	mixer.AddSource("psg")    // 3-argument shape has no separate PCM slot, see DESIGN.md
	if logChannels {
		mixer.EnableChannelLogging()
	}
	machine.AttachAudioSink(func(ymL, ymR, psgSample float32) {
		mixer.Push("ym2612", ymL, ymR)
		mixer.Push("psg", psgSample, psgSample)
	})
	if !logChannels {
		return nil
	}
	return mixer
}

// wavLogDir is where attachMixer's per-channel WAV logs land when "-y" is
// set: a "<rom>.wavlog" directory beside the ROM itself.
func wavLogDir(romPath string) string {
	dir := romPath + ".wavlog"
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// attachEventLog arms the "-e" deterministic-replay trace against dest, a
// plain file path or a "host:port" TCP destination (the optional
// live-streaming sink the flag's usage text documents). The returned
// closer flushes and closes the underlying sink; callers defer it.
func attachEventLog(machine *hardware.Machine, dest string) (func(), error) {
	var sink interface {
		Write([]byte) (int, error)
		Close() error
	}
	if host, _, err := net.SplitHostPort(dest); err == nil && host != "" {
		conn, err := net.Dial("tcp", dest)
		if err != nil {
			return nil, err
		}
		sink = conn
	} else {
		f, err := os.Create(dest)
		if err != nil {
			return nil, err
		}
		sink = f
	}

	w := eventlog.NewWriter(sink)
	machine.VDP.AttachEventLog(w)
	return func() {
		_ = w.Flush()
		_ = sink.Close()
	}, nil
}

func loadState(machine *hardware.Machine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return machine.Load(f)
}

func parseSystemFlag(s string) (instance.SystemType, error) {
	switch s {
	case "gen":
		return instance.Genesis, nil
	case "sc":
		return instance.SegaCD, nil
	case "genplayer", "media":
		return instance.MediaPlayer, nil
	case "sms", "gg", "sg":
		return instance.SMS, nil
	case "pico":
		return instance.Pico, nil
	case "copera":
		return instance.Copera, nil
	case "jag":
		return instance.Coleco, nil
	default:
		return 0, mwerrors.New(mwerrors.Fatal, fmt.Sprintf("unrecognised system type %q", s), nil)
	}
}

// discFrameCount estimates a disc image's length in CD frames (75/sec,
// 2352 bytes per raw data-track sector) from each data track's file size
// on disk; audio tracks are skipped since the CDD's head-position model
// tracks program data, not CD-DA playback position.
func discFrameCount(cart *cartridgeloader.Cartridge) int {
	const bytesPerFrame = 2352
	var frames int
	for _, tr := range cart.Tracks {
		if tr.Audio {
			continue
		}
		if info, err := os.Stat(tr.Path); err == nil {
			frames += int(info.Size()) / bytesPerFrame
		}
	}
	return frames
}

func buildMapper(cart *cartridgeloader.Cartridge) cartridge.Mapper {
	// Images over 4MiB need the bank-switching Sega mapper; everything
	// else is treated as a plain ROM with an optional SRAM window, which
	// covers the overwhelming majority of this console's library.
	if len(cart.Data) > 4*1024*1024 {
		return cartridge.NewSegaMapper(cart.Data, 64*1024)
	}
	return cartridge.NewPlain(cart.Data, 0x200001, 0x10000)
}

func defaultPrefsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "megawave.prefs"
	}
	return home + "/.megawave/prefs"
}

func runHeadless(machine *hardware.Machine, frames int) error {
	for i := 0; i < frames; i++ {
		if err := machine.RunFrame(); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
	}
	return nil
}

// runInteractive runs frame-by-frame until the process receives SIGINT
// (Ctrl-C), at which point it requests a debugger break at the next
// suspension point (see instance.Instance.DebuggerEntered) and, once
// RunFrame has unwound to report it, hands control to an interactive
// session on the controlling terminal before resuming.
func runInteractive(machine *hardware.Machine) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	defer signal.Stop(sig)
	go func() {
		for range sig {
			machine.Instance().RequestDebugger()
		}
	}()

	for {
		if err := machine.RunFrame(); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if machine.Instance().DebuggerEntered {
			if err := debugger.New(machine, rawterm.New()).Start(); err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
		}
	}
}
