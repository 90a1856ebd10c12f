// Package cartridgeloader detects and decodes the media container formats
// the CLI's ROM-file argument accepts: plain ROM images, SMD-interleaved
// dumps, zip archives, gzip-compressed images, and (for Sega CD) ISO/CUE
// disc images. It never touches process-global state -- it is a pure
// path-or-bytes-in, Cartridge-value-out function.
package cartridgeloader

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrel-emu/megawave/instance"
)

// Cartridge is the decoded result of loading one media file: raw ROM (or
// disc) bytes plus whatever the detector could determine about it.
type Cartridge struct {
	Name   string
	Data   []byte
	System instance.SystemType
	IsDisc bool
	Tracks []Track // populated only for CUE/TOC-based Sega CD images
}

// Track is one entry of a parsed CUE sheet: a data or audio file plus its
// declared type.
type Track struct {
	Path  string
	Audio bool // true for WAV/OGG audio tracks, false for BIN data tracks
}

// Load reads path, unwraps any recognised container format, and detects
// the system type the decoded image targets.
func Load(path string) (*Cartridge, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cartridgeloader: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	name := filepath.Base(path)

	if ext == ".cue" {
		return loadCue(path, raw)
	}

	data, err := unwrapContainer(raw, ext)
	if err != nil {
		return nil, err
	}

	data = deinterleaveSMD(data)

	return &Cartridge{
		Name:   name,
		Data:   data,
		System: detectSystem(data, ext),
	}, nil
}

// unwrapContainer strips a zip or gzip wrapper, if present, returning the
// first recognised entry's bytes for a zip archive.
func unwrapContainer(raw []byte, ext string) ([]byte, error) {
	if len(raw) >= 4 && raw[0] == 'P' && raw[1] == 'K' && raw[2] == 0x03 && raw[3] == 0x04 {
		return unwrapZip(raw)
	}
	if len(raw) >= 2 && raw[0] == 0x1F && raw[1] == 0x8B {
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("cartridgeloader: gzip: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return raw, nil
}

var acceptedExtensions = map[string]bool{
	".bin": true, ".gen": true, ".md": true, ".smd": true,
	".sms": true, ".gg": true, ".sg": true, ".sc": true,
	".32x": true, ".col": true, ".rom": true,
}

func unwrapZip(raw []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("cartridgeloader: zip: %w", err)
	}
	for _, f := range zr.File {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !acceptedExtensions[ext] {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("cartridgeloader: zip entry %s: %w", f.Name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("cartridgeloader: zip archive has no recognised ROM entry")
}

// deinterleaveSMD detects the SMD header (a 512-byte header whose first
// byte is the block count in 16KiB units, marker byte 0xAA/0xBB at offset
// 8) and de-interleaves the following blocks, each of which stores all
// odd-offset bytes in its first half followed by all even-offset bytes in
// its second half rather than natural order.
func deinterleaveSMD(data []byte) []byte {
	if len(data) < 512+16384 {
		return data
	}
	if data[8] != 0xAA || data[9] != 0xBB {
		return data
	}

	blocks := data[512:]
	out := make([]byte, 0, len(blocks))
	for off := 0; off+16384 <= len(blocks); off += 16384 {
		block := blocks[off : off+16384]
		deint := make([]byte, 16384)
		half := 8192
		for i := 0; i < half; i++ {
			deint[i*2+1] = block[i]
			deint[i*2] = block[half+i]
		}
		out = append(out, deint...)
	}
	return out
}

// detectSystem scans known header signatures, falling back to the file
// extension and finally a reset-vector sanity check.
func detectSystem(data []byte, ext string) instance.SystemType {
	if len(data) >= 0x104 && bytes.Equal(data[0x100:0x104], []byte("SEGA")) {
		return instance.Genesis
	}
	if len(data) >= 0x10 && bytes.HasPrefix(data[0x00:], []byte("TMR SEGA")) {
		return instance.SMS
	}
	if len(data) >= 0x108 && bytes.Contains(data[0x100:0x108], []byte("SAMPLES")) {
		return instance.Pico
	}

	switch ext {
	case ".sms":
		return instance.SMS
	case ".gg":
		return instance.SMS // Game Gear shares the SMS system family at the mapper/CPU level
	case ".col":
		return instance.Coleco
	case ".sc":
		return instance.SegaCD
	}

	// Reset-vector sanity check: a 68K image's first long is the initial
	// SSP (almost always inside work RAM, 0x000000-0x00FFFFFF with the
	// high byte zero) and the second long is the initial PC, which must
	// point somewhere inside the image for this to plausibly be 68K code.
	if len(data) >= 8 {
		pc := uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])
		if pc < uint32(len(data)) {
			return instance.Genesis
		}
	}
	return instance.Genesis
}

func loadCue(path string, raw []byte) (*Cartridge, error) {
	dir := filepath.Dir(path)
	var tracks []Track
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "FILE ") {
			continue
		}
		fields := strings.SplitN(line, "\"", 3)
		if len(fields) < 2 {
			continue
		}
		fname := fields[1]
		lower := strings.ToLower(fname)
		tracks = append(tracks, Track{
			Path:  filepath.Join(dir, fname),
			Audio: strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".ogg"),
		})
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("cartridgeloader: %s: no FILE entries found", path)
	}

	first, err := os.ReadFile(tracks[0].Path)
	if err != nil {
		return nil, fmt.Errorf("cartridgeloader: %w", err)
	}

	return &Cartridge{
		Name:   filepath.Base(path),
		Data:   first,
		System: instance.SegaCD,
		IsDisc: true,
		Tracks: tracks,
	}, nil
}
