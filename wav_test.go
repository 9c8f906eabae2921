package padgrid_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/padgrid/padgrid"
)

func sineBuffer(n int) padgrid.AudioBuffer {
	buffer := make(padgrid.AudioBuffer, n)
	for i := range buffer {
		buffer[i][0] = float32(math.Sin(2 * math.Pi * float64(i) / 64))
		buffer[i][1] = float32(math.Cos(2 * math.Pi * float64(i) / 64))
	}
	return buffer
}

func TestWavPCM16(t *testing.T) {
	buffer := sineBuffer(512)
	data, err := padgrid.Wav(buffer, true, 44100)
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		t.Fatalf("Wav did not produce a valid wav file")
	}
	if err := d.FwdToPCM(); err != nil {
		t.Fatalf("could not locate PCM data: %v", err)
	}
	if d.WavAudioFormat != 1 {
		t.Errorf("audio format = %v, want 1 (PCM)", d.WavAudioFormat)
	}
	if d.BitDepth != 16 || d.NumChans != 2 || d.SampleRate != 44100 {
		t.Errorf("format = %v bit, %v ch, %v Hz, want 16 bit, 2 ch, 44100 Hz", d.BitDepth, d.NumChans, d.SampleRate)
	}
	if frames := int(d.PCMLen()) / 4; frames != len(buffer) {
		t.Fatalf("file contains %v frames, want %v", frames, len(buffer))
	}
	decoded := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 44100},
		Data:           make([]int, len(buffer)*2),
		SourceBitDepth: 16,
	}
	if _, err := d.PCMBuffer(decoded); err != nil {
		t.Fatalf("could not decode PCM data: %v", err)
	}
	for i, frame := range buffer {
		for chn := 0; chn < 2; chn++ {
			got := float64(decoded.Data[2*i+chn]) / math.MaxInt16
			if math.Abs(got-float64(frame[chn])) > 1e-3 {
				t.Fatalf("sample %v ch %v = %v, want %v", i, chn, got, frame[chn])
			}
		}
	}
}

func TestWavFloat(t *testing.T) {
	buffer := sineBuffer(256)
	data, err := padgrid.Wav(buffer, false, 48000)
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		t.Fatalf("Wav did not produce a valid wav file")
	}
	if err := d.FwdToPCM(); err != nil {
		t.Fatalf("could not locate PCM data: %v", err)
	}
	if d.WavAudioFormat != 3 {
		t.Errorf("audio format = %v, want 3 (IEEE float)", d.WavAudioFormat)
	}
	if d.BitDepth != 32 || d.NumChans != 2 || d.SampleRate != 48000 {
		t.Errorf("format = %v bit, %v ch, %v Hz, want 32 bit, 2 ch, 48000 Hz", d.BitDepth, d.NumChans, d.SampleRate)
	}
	raw, err := io.ReadAll(d.PCMChunk)
	if err != nil {
		t.Fatalf("could not read PCM data: %v", err)
	}
	if len(raw) != len(buffer)*8 {
		t.Fatalf("PCM data is %v bytes, want %v", len(raw), len(buffer)*8)
	}
	samples := make([]float32, len(buffer)*2)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, samples); err != nil {
		t.Fatalf("could not parse PCM data: %v", err)
	}
	for i, frame := range buffer {
		// the float path stores the samples verbatim
		if samples[2*i] != frame[0] || samples[2*i+1] != frame[1] {
			t.Fatalf("sample %v = (%v, %v), want %v", i, samples[2*i], samples[2*i+1], frame)
		}
	}
}

func TestRaw(t *testing.T) {
	buffer := sineBuffer(128)
	data, err := padgrid.Raw(buffer, true)
	if err != nil {
		t.Fatalf("Raw failed: %v", err)
	}
	if len(data) != len(buffer)*4 {
		t.Errorf("pcm16 raw data is %v bytes, want %v", len(data), len(buffer)*4)
	}
	data, err = padgrid.Raw(buffer, false)
	if err != nil {
		t.Fatalf("Raw failed: %v", err)
	}
	if len(data) != len(buffer)*8 {
		t.Fatalf("float raw data is %v bytes, want %v", len(data), len(buffer)*8)
	}
	samples := make([]float32, len(buffer)*2)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, samples); err != nil {
		t.Fatalf("could not parse raw data: %v", err)
	}
	if samples[2] != buffer[1][0] || samples[3] != buffer[1][1] {
		t.Errorf("raw frame 1 = (%v, %v), want %v", samples[2], samples[3], buffer[1])
	}
}
