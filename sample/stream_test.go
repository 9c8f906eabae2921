package sample_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/padgrid/padgrid"
	"github.com/padgrid/padgrid/sample"
)

// streamAt polls At until the prefetcher has delivered the frames behind
// pos.
func streamAt(t *testing.T, s *sample.Stream, pos float64) [2]float32 {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if smp, ok := s.At(pos); ok {
			return smp
		}
		if time.Now().After(deadline) {
			t.Fatalf("frame %v was never delivered", pos)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStreamReadsMatchLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	writeWAV(t, path, rampFrames(40000), 44100, 2, 16)
	want, err := sample.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s, err := sample.OpenStream(path)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer s.Close()
	if s.SampleRate() != 44100 {
		t.Errorf("sample rate = %v, want 44100", s.SampleRate())
	}
	if s.NumFrames() != 40000 {
		t.Errorf("NumFrames = %v, want 40000", s.NumFrames())
	}
	s.Start()
	// positions on both sides of the chunk boundaries, read in playback
	// order
	for _, pos := range []float64{0, 1, 100.5, 5000.25, 16383, 16384, 16500.75, 32768, 39998, 39999} {
		got := streamAt(t, s, pos)
		wantSmp := want.At(pos)
		if math.Abs(float64(got[0]-wantSmp[0])) > 1e-6 || math.Abs(float64(got[1]-wantSmp[1])) > 1e-6 {
			t.Errorf("At(%v) = %v, want %v", pos, got, wantSmp)
		}
	}
}

func TestStreamSeeks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	writeWAV(t, path, rampFrames(60000), 44100, 2, 16)
	want, err := sample.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s, err := sample.OpenStream(path)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer s.Close()
	s.Start()
	streamAt(t, s, 0)
	// jump far past the prefetch window
	if got, wantSmp := streamAt(t, s, 50000), want.At(50000); got != wantSmp {
		t.Errorf("At(50000) after jump = %v, want %v", got, wantSmp)
	}
	if s.Underruns() == 0 {
		t.Errorf("jump outside the window did not count an underrun")
	}
	// and back again
	if got, wantSmp := streamAt(t, s, 5), want.At(5); got != wantSmp {
		t.Errorf("At(5) after jump back = %v, want %v", got, wantSmp)
	}
	// a retrigger rewinds cleanly
	s.Start()
	if got, wantSmp := streamAt(t, s, 0), want.At(0); got != wantSmp {
		t.Errorf("At(0) after restart = %v, want %v", got, wantSmp)
	}
}

func TestStreamUnderrunCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	writeWAV(t, path, rampFrames(40000), 44100, 2, 16)
	s, err := sample.OpenStream(path)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer s.Close()
	// nothing has been requested yet, so the first read cannot be served
	if _, ok := s.At(32768); ok {
		t.Fatalf("read of an unfetched chunk reported ok")
	}
	if got := s.Underruns(); got != 1 {
		t.Errorf("underruns = %v, want 1", got)
	}
	streamAt(t, s, 32768) // the read itself requested the chunk
}

func TestStreamEnded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.wav")
	writeWAV(t, path, rampFrames(20000), 44100, 2, 16)
	s, err := sample.OpenStream(path)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer s.Close()
	if s.Ended(19999) {
		t.Errorf("Ended(19999) on a 20000-frame stream")
	}
	if !s.Ended(19999.5) {
		t.Errorf("not Ended(19999.5) on a 20000-frame stream")
	}
	before := s.Underruns()
	if _, ok := s.At(20010); ok {
		t.Errorf("read past the end reported ok")
	}
	if s.Underruns() != before {
		t.Errorf("read past the end counted as an underrun")
	}
}

func TestStreamClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	writeWAV(t, path, rampFrames(40000), 44100, 2, 16)
	s, err := sample.OpenStream(path)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	s.Start()
	streamAt(t, s, 0)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	// delivered chunks stay readable after close
	if _, ok := s.At(0); !ok {
		t.Errorf("delivered frame unreadable after Close")
	}
	// unfetched frames read as silence, without blocking
	if _, ok := s.At(33000); ok {
		t.Errorf("unfetched frame readable after Close")
	}
}

func TestStreamMemoryUsageIndependentOfFileSize(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.wav")
	long := filepath.Join(dir, "long.wav")
	writeWAV(t, short, rampFrames(20000), 44100, 2, 16)
	writeWAV(t, long, rampFrames(200000), 44100, 2, 16)
	s1, err := sample.OpenStream(short)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer s1.Close()
	s2, err := sample.OpenStream(long)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer s2.Close()
	if s1.MemoryUsage() <= 0 || s1.MemoryUsage() != s2.MemoryUsage() {
		t.Errorf("window sizes differ: %v vs %v", s1.MemoryUsage(), s2.MemoryUsage())
	}
	if full := int64(200000 * 8); s2.MemoryUsage() >= full {
		t.Errorf("streamed window %v is no smaller than the decoded file %v", s2.MemoryUsage(), full)
	}
}

func TestOpenStreamErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := sample.OpenStream(filepath.Join(dir, "missing.wav")); !errors.Is(err, padgrid.ErrIOFailure) {
		t.Errorf("missing file: err = %v, want ErrIOFailure", err)
	}
	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("not a wav"), 0644); err != nil {
		t.Fatalf("could not write %v: %v", garbage, err)
	}
	if _, err := sample.OpenStream(garbage); !errors.Is(err, padgrid.ErrDecodeFailure) {
		t.Errorf("garbage file: err = %v, want ErrDecodeFailure", err)
	}
	// float wav files cannot be streamed, only decoded to memory
	floatData, err := padgrid.Wav(rampFrames(100), false, 44100)
	if err != nil {
		t.Fatalf("could not build float wav: %v", err)
	}
	floatPath := filepath.Join(dir, "float.wav")
	if err := os.WriteFile(floatPath, floatData, 0644); err != nil {
		t.Fatalf("could not write %v: %v", floatPath, err)
	}
	if _, err := sample.OpenStream(floatPath); !errors.Is(err, padgrid.ErrDecodeFailure) {
		t.Errorf("float file: err = %v, want ErrDecodeFailure", err)
	}
}
