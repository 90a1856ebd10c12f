package cartridgeloader

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrel-emu/megawave/instance"
)

func TestDetectSystemBySegaHeaderSignature(t *testing.T) {
	data := make([]byte, 0x200)
	copy(data[0x100:], []byte("SEGA GENESIS"))
	if got := detectSystem(data, ".bin"); got != instance.Genesis {
		t.Fatalf("expected Genesis, got %v", got)
	}
}

func TestDetectSystemBySMSHeaderSignature(t *testing.T) {
	data := make([]byte, 0x20)
	copy(data, []byte("TMR SEGA"))
	if got := detectSystem(data, ".bin"); got != instance.SMS {
		t.Fatalf("expected SMS, got %v", got)
	}
}

func TestDetectSystemFallsBackToExtension(t *testing.T) {
	data := make([]byte, 0x10)
	if got := detectSystem(data, ".col"); got != instance.Coleco {
		t.Fatalf("expected Coleco from the .col extension fallback, got %v", got)
	}
}

func TestDeinterleaveSMDRestoresNaturalByteOrder(t *testing.T) {
	data := make([]byte, 512+16384)
	data[8], data[9] = 0xAA, 0xBB
	block := data[512:]
	for i := 0; i < 8192; i++ {
		block[i] = byte(i*2 + 1)   // first half holds odd output positions
		block[8192+i] = byte(i * 2) // second half holds even output positions
	}

	out := deinterleaveSMD(data)
	if len(out) != 16384 {
		t.Fatalf("expected 16384 de-interleaved bytes, got %d", len(out))
	}
	for i := 0; i < 20; i++ {
		if out[i] != byte(i) {
			t.Fatalf("expected natural byte order at offset %d, got %d want %d", i, out[i], i)
		}
	}
}

func TestDeinterleaveSMDLeavesNonSMDDataUntouched(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	out := deinterleaveSMD(data)
	if !bytes.Equal(out, data) {
		t.Fatalf("expected data too short to be an SMD image to pass through unchanged")
	}
}

func TestLoadUnwrapsZipArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "game.zip")

	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	entry, err := zw.Create("game.bin")
	if err != nil {
		t.Fatalf("zip create entry: %v", err)
	}
	romBytes := make([]byte, 0x200)
	copy(romBytes[0x100:], []byte("SEGA"))
	if _, err := entry.Write(romBytes); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cart, err := Load(zipPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cart.Data) != len(romBytes) {
		t.Fatalf("expected %d unwrapped bytes, got %d", len(romBytes), len(cart.Data))
	}
	if cart.System != instance.Genesis {
		t.Fatalf("expected Genesis detected from the unwrapped image, got %v", cart.System)
	}
}

func TestLoadCueParsesFileEntries(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "track01.bin")
	if err := os.WriteFile(binPath, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatalf("write bin: %v", err)
	}
	cuePath := filepath.Join(dir, "game.cue")
	cueText := "FILE \"track01.bin\" BINARY\n  TRACK 01 MODE1/2352\n"
	if err := os.WriteFile(cuePath, []byte(cueText), 0o644); err != nil {
		t.Fatalf("write cue: %v", err)
	}

	cart, err := Load(cuePath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cart.IsDisc {
		t.Fatalf("expected IsDisc true for a CUE-based load")
	}
	if cart.System != instance.SegaCD {
		t.Fatalf("expected SegaCD system type, got %v", cart.System)
	}
	if len(cart.Tracks) != 1 || cart.Tracks[0].Audio {
		t.Fatalf("expected one non-audio track, got %+v", cart.Tracks)
	}
	if len(cart.Data) != 4 {
		t.Fatalf("expected the first track's bytes to be loaded, got %d bytes", len(cart.Data))
	}
}
