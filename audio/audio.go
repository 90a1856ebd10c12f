// Package audio mixes the YM2612 and PSG (and, when a Sega CD is
// attached, the RF5C164 PCM chip) using one ring buffer per source and a
// rate controller that computes a resample-ratio correction. The Mixer
// itself does not resample: samples stay at the rate each source pushes
// them. Per-channel
// logging to disk for the "-y" flag is handled by
// Mixer.EnableChannelLogging and Mixer.FlushWAVLogs using the third-party WAV encoder the rest of this module's dependency
// stack already pulls in for other purposes.
package audio

import (
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Source is anything that can be asked for its next instantaneous sample;
// the YM2612 and PSG chip types both satisfy a source-shaped interface
// informally (their Sample methods differ in arity), so Mixer wraps each
// with a small adapter closure rather than requiring a common interface
// those packages would otherwise need to import audio just to implement.
type Source func() (left, right float32)

// ringSize is the sample capacity of each source's lock-free handoff
// buffer; sized generously against a worst-case scheduling stall of
// several video frames.
const ringSize = 1 << 14

// ring is a single-producer/single-consumer circular buffer of stereo
// samples. The emulation thread is the sole producer; the audio-device
// callback is the sole consumer. No third-party lock-free queue in the
// example pack fits this exact fixed-size SPSC shape, so this one piece
// is a plain fixed array with two ordinary (non-atomic) indices rather
// than an unrelated generic library forced into the role.
type ring struct {
	buf        [ringSize][2]float32
	writeIndex uint64
	readIndex  uint64
}

func (r *ring) push(l, r2 float32) {
	w := r.writeIndex
	if w-r.readIndex >= ringSize {
		r.readIndex++ // drop the oldest sample rather than block the emulation thread
	}
	r.buf[w%ringSize] = [2]float32{l, r2}
	r.writeIndex = w + 1
}

func (r *ring) pop() ([2]float32, bool) {
	if r.readIndex >= r.writeIndex {
		return [2]float32{}, false
	}
	s := r.buf[r.readIndex%ringSize]
	r.readIndex++
	return s, true
}

func (r *ring) occupancy() int { return int(r.writeIndex - r.readIndex) }

// channelLog accumulates one mono source's samples for the "-y" WAV log.
type channelLog struct {
	name    string
	samples []float32
}

// Mixer combines an arbitrary number of named sources, each producing
// samples at its own native rate. It does not convert them to the device
// rate; sampleRateHz is the rate the WAV logs are written at.
type Mixer struct {
	sampleRateHz int
	sources      map[string]*ring
	gains        map[string]float32
	order        []string

	logs     []*channelLog
	logging  bool

	rateAdjust float64 // +-fraction nudged by the buffer-fullness controller
}

// New creates a Mixer targeting the given output device sample rate.
func New(sampleRateHz int) *Mixer {
	return &Mixer{
		sampleRateHz: sampleRateHz,
		sources:      make(map[string]*ring),
		gains:        make(map[string]float32),
	}
}

// AddSource registers a named audio source (e.g. "ym2612", "psg", "pcm")
// at unity gain.
func (m *Mixer) AddSource(name string) {
	m.sources[name] = &ring{}
	m.gains[name] = 1.0
	m.order = append(m.order, name)
}

// SetGain scales one source's contribution to the final mix in linear
// amplitude (not dB) for simplicity at the mix stage; callers wanting a
// dB control convert before calling this.
func (m *Mixer) SetGain(name string, gain float32) { m.gains[name] = gain }

// Push is called once per emulated sample tick for the named source,
// with that source's native-rate stereo output.
func (m *Mixer) Push(name string, left, right float32) {
	if r, ok := m.sources[name]; ok {
		r.push(left, right)
	}
	if m.logging {
		m.appendLog(name, (left+right)/2)
	}
}

func (m *Mixer) appendLog(name string, sample float32) {
	for _, l := range m.logs {
		if l.name == name {
			l.samples = append(l.samples, sample)
			return
		}
	}
}

// EnableChannelLogging arms per-source WAV logging ("-y"); it must be
// called before the first Push so every registered source gets a log.
func (m *Mixer) EnableChannelLogging() {
	m.logging = true
	for _, name := range m.order {
		m.logs = append(m.logs, &channelLog{name: name})
	}
}

// FlushWAVLogs writes one mono WAV file per logged source into dir,
// named "<source>.wav", using the third-party WAV encoder.
func (m *Mixer) FlushWAVLogs(dir string) error {
	for _, l := range m.logs {
		if err := writeMonoWAV(dir+"/"+l.name+".wav", l.samples, m.sampleRateHz); err != nil {
			return err
		}
	}
	return nil
}

func writeMonoWAV(path string, samples []float32, rateHz int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rateHz, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: rateHz},
		Data:   make([]int, len(samples)),
	}
	for i, s := range samples {
		v := int(s * 32767)
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		buf.Data[i] = v
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Mix drains one sample from every registered source (by priority order:
// the oldest-pushed samples, matching playback order), applies each
// source's gain, and returns the combined stereo pair. A source with no
// sample ready yet (an underrun) contributes silence for that tick rather
// than stalling the whole mix.
func (m *Mixer) Mix() (left, right float32) {
	for _, name := range m.order {
		r := m.sources[name]
		s, ok := r.pop()
		if !ok {
			continue
		}
		g := m.gains[name]
		left += s[0] * g
		right += s[1] * g
	}
	return left, right
}

// AdjustForOccupancy implements the rate controller: it measures the
// fullest source ring's occupancy against the ring capacity and nudges
// RateAdjust by up to maxAdjust, to be applied by the caller as a
// resample-ratio correction between the chips' native rate and the
// device rate.
func (m *Mixer) AdjustForOccupancy(maxAdjust float64) float64 {
	var maxFrac float64
	for _, name := range m.order {
		occ := m.sources[name].occupancy()
		frac := float64(occ) / float64(ringSize)
		if frac > maxFrac {
			maxFrac = frac
		}
	}
	// Target is half-full; drift above or below nudges the rate within
	// +-maxAdjust to bring occupancy back toward the midpoint over many
	// frames rather than snapping it, avoiding audible pitch jumps.
	target := 0.5
	m.rateAdjust = (maxFrac - target) * maxAdjust * 2
	if m.rateAdjust > maxAdjust {
		m.rateAdjust = maxAdjust
	}
	if m.rateAdjust < -maxAdjust {
		m.rateAdjust = -maxAdjust
	}
	return m.rateAdjust
}
