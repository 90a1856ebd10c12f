package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMixCombinesSourcesWithGain(t *testing.T) {
	m := New(44100)
	m.AddSource("ym2612")
	m.AddSource("psg")
	m.SetGain("psg", 0.5)

	m.Push("ym2612", 1.0, 1.0)
	m.Push("psg", 2.0, 2.0)

	left, right := m.Mix()
	want := float32(1.0 + 2.0*0.5)
	if left != want || right != want {
		t.Fatalf("expected %v/%v, got %v/%v", want, want, left, right)
	}
}

func TestMixContributesSilenceOnUnderrun(t *testing.T) {
	m := New(44100)
	m.AddSource("ym2612")

	left, right := m.Mix()
	if left != 0 || right != 0 {
		t.Fatalf("expected silence when no sample has been pushed yet, got %v/%v", left, right)
	}
}

func TestRingDropsOldestSampleWhenFull(t *testing.T) {
	m := New(44100)
	m.AddSource("ym2612")

	for i := 0; i < ringSize+10; i++ {
		m.Push("ym2612", float32(i), float32(i))
	}

	left, _ := m.Mix()
	if left < 10 {
		t.Fatalf("expected the oldest samples to have been dropped, got first surviving sample %v", left)
	}
}

func TestAdjustForOccupancyStaysWithinBounds(t *testing.T) {
	m := New(44100)
	m.AddSource("ym2612")
	for i := 0; i < ringSize; i++ {
		m.Push("ym2612", 0, 0)
	}

	adjust := m.AdjustForOccupancy(0.02)
	if adjust > 0.02 || adjust < -0.02 {
		t.Fatalf("expected the rate adjustment to stay within +-0.02, got %v", adjust)
	}
	if adjust <= 0 {
		t.Fatalf("expected a positive adjustment when the ring is nearly full, got %v", adjust)
	}
}

func TestFlushWAVLogsWritesOneFilePerSource(t *testing.T) {
	m := New(8000)
	m.AddSource("ym2612")
	m.EnableChannelLogging()
	m.Push("ym2612", 0.5, 0.5)
	m.Push("ym2612", -0.5, -0.5)

	dir := t.TempDir()
	if err := m.FlushWAVLogs(dir); err != nil {
		t.Fatalf("flush: %v", err)
	}

	path := filepath.Join(dir, "ym2612.wav")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected a WAV file at %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected a non-empty WAV file")
	}
}
