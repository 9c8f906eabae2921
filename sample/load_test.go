package sample_test

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/padgrid/padgrid"
	"github.com/padgrid/padgrid/sample"
)

// writeWAV encodes frames as an integer PCM wav file. 8-bit samples are
// written unsigned, as the format requires.
func writeWAV(t *testing.T, path string, frames padgrid.AudioBuffer, sampleRate, channels, bits int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("could not create %v: %v", path, err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, bits, channels, 1)
	scale := float64(int64(1)<<(bits-1) - 1)
	data := make([]int, 0, len(frames)*channels)
	for _, frame := range frames {
		for chn := 0; chn < channels; chn++ {
			v := int(math.Round(float64(frame[chn%2]) * scale))
			if bits == 8 {
				v += 128
			}
			data = append(data, v)
		}
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bits,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("could not encode %v: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("could not finalize %v: %v", path, err)
	}
}

func rampFrames(n int) padgrid.AudioBuffer {
	frames := make(padgrid.AudioBuffer, n)
	for i := range frames {
		v := float32(i) / float32(n)
		frames[i] = [2]float32{v, -v}
	}
	return frames
}

func TestLoadWAVBitDepths(t *testing.T) {
	for _, c := range []struct {
		bits      int
		tolerance float64
	}{
		{8, 0.02},
		{16, 1e-3},
		{24, 1e-5},
	} {
		t.Run(fmt.Sprintf("%vbit", c.bits), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ramp.wav")
			want := rampFrames(1000)
			writeWAV(t, path, want, 44100, 2, c.bits)
			d, err := sample.Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if d.SampleRate != 44100 {
				t.Errorf("sample rate = %v, want 44100", d.SampleRate)
			}
			if d.NumFrames() != len(want) {
				t.Fatalf("decoded %v frames, want %v", d.NumFrames(), len(want))
			}
			for i, frame := range want {
				got := d.Frames[i]
				if math.Abs(float64(got[0]-frame[0])) > c.tolerance || math.Abs(float64(got[1]-frame[1])) > c.tolerance {
					t.Fatalf("frame %v = %v, want %v (within %v)", i, got, frame, c.tolerance)
				}
			}
		})
	}
}

func TestLoadWAVMonoSpreadsToStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	writeWAV(t, path, rampFrames(500), 22050, 1, 16)
	d, err := sample.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if d.NumFrames() != 500 {
		t.Fatalf("decoded %v frames, want 500", d.NumFrames())
	}
	for i, frame := range d.Frames {
		if frame[0] != frame[1] {
			t.Fatalf("mono frame %v decoded as (%v, %v)", i, frame[0], frame[1])
		}
	}
}

func TestLoadFloatWAV(t *testing.T) {
	want := rampFrames(300)
	data, err := padgrid.Wav(want, false, 48000)
	if err != nil {
		t.Fatalf("could not build float wav: %v", err)
	}
	path := filepath.Join(t.TempDir(), "float.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("could not write %v: %v", path, err)
	}
	d, err := sample.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if d.SampleRate != 48000 || d.NumFrames() != len(want) {
		t.Fatalf("decoded %v frames at %v Hz, want %v at 48000", d.NumFrames(), d.SampleRate, len(want))
	}
	for i, frame := range want {
		if d.Frames[i] != frame {
			t.Fatalf("frame %v = %v, want %v", i, d.Frames[i], frame)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := sample.Load(filepath.Join(dir, "missing.wav")); !errors.Is(err, padgrid.ErrIOFailure) {
		t.Errorf("missing file: err = %v, want ErrIOFailure", err)
	}
	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("this is not audio data"), 0644); err != nil {
		t.Fatalf("could not write %v: %v", garbage, err)
	}
	if _, err := sample.Load(garbage); !errors.Is(err, padgrid.ErrDecodeFailure) {
		t.Errorf("garbage file: err = %v, want ErrDecodeFailure", err)
	}
	unknown := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(unknown, []byte("lyrics"), 0644); err != nil {
		t.Fatalf("could not write %v: %v", unknown, err)
	}
	if _, err := sample.Load(unknown); !errors.Is(err, padgrid.ErrDecodeFailure) {
		t.Errorf("unknown extension: err = %v, want ErrDecodeFailure", err)
	}
}
