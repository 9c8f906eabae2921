package sample

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"github.com/padgrid/padgrid"
)

// Load decodes the whole file into memory. The format is picked by file
// extension; wav, mp3 and flac are supported.
func Load(path string) (*Data, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return LoadWAV(path)
	case ".mp3":
		return LoadMP3(path)
	case ".flac":
		return LoadFLAC(path)
	}
	return nil, fmt.Errorf("unsupported sample format %v: %w", filepath.Ext(path), padgrid.ErrDecodeFailure)
}

// LoadWAV decodes a wav file, either integer PCM or 32-bit float.
func LoadWAV(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %v: %v: %w", path, err, padgrid.ErrIOFailure)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file %v: %w", path, padgrid.ErrDecodeFailure)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("could not locate PCM data in %v: %v: %w", path, err, padgrid.ErrDecodeFailure)
	}
	format := d.Format()
	bits := int(d.SampleBitDepth())
	if format.NumChannels < 1 || bits == 0 {
		return nil, fmt.Errorf("unknown wav format in %v: %w", path, padgrid.ErrDecodeFailure)
	}
	if d.WavAudioFormat == 3 {
		return loadFloatWAV(path, d, format.NumChannels, format.SampleRate)
	}
	bytesPerSample := (bits-1)/8 + 1
	nsamples := int(d.PCMLen()) / bytesPerSample
	if nsamples <= 0 {
		return nil, fmt.Errorf("wav file %v contains no samples: %w", path, padgrid.ErrDecodeFailure)
	}
	buf := &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, nsamples),
		SourceBitDepth: bits,
	}
	if _, err := d.PCMBuffer(buf); err != nil {
		return nil, fmt.Errorf("could not decode %v: %v: %w", path, err, padgrid.ErrDecodeFailure)
	}
	scale := float32(int64(1) << (bits - 1))
	offset := 0
	if bits == 8 { // 8-bit wav data is unsigned
		offset = 128
	}
	frames := make(padgrid.AudioBuffer, 0, nsamples/format.NumChannels)
	for i := 0; i+format.NumChannels <= len(buf.Data); i += format.NumChannels {
		l := (float32(buf.Data[i]) - float32(offset)) / scale
		r := l
		if format.NumChannels > 1 {
			r = (float32(buf.Data[i+1]) - float32(offset)) / scale
		}
		frames = append(frames, [2]float32{l, r})
	}
	return &Data{Frames: frames, SampleRate: format.SampleRate, SourcePath: path}, nil
}

// loadFloatWAV reads the PCM chunk of an IEEE-float wav directly, as the
// go-audio decoder only handles integer formats.
func loadFloatWAV(path string, d *wav.Decoder, channels, rate int) (*Data, error) {
	raw, err := io.ReadAll(d.PCMChunk)
	if err != nil {
		return nil, fmt.Errorf("could not read float PCM data from %v: %v: %w", path, err, padgrid.ErrDecodeFailure)
	}
	nsamples := len(raw) / 4
	samples := make([]float32, nsamples)
	if err := binary.Read(bytes.NewReader(raw[:nsamples*4]), binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("could not decode float PCM data from %v: %v: %w", path, err, padgrid.ErrDecodeFailure)
	}
	frames := make(padgrid.AudioBuffer, 0, nsamples/channels)
	for i := 0; i+channels <= len(samples); i += channels {
		l := samples[i]
		r := l
		if channels > 1 {
			r = samples[i+1]
		}
		frames = append(frames, [2]float32{l, r})
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("wav file %v contains no samples: %w", path, padgrid.ErrDecodeFailure)
	}
	return &Data{Frames: frames, SampleRate: rate, SourcePath: path}, nil
}

// LoadMP3 decodes an mp3 file. The decoder always outputs 16-bit stereo at
// the source sample rate.
func LoadMP3(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %v: %v: %w", path, err, padgrid.ErrIOFailure)
	}
	defer f.Close()
	d, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("could not decode %v: %v: %w", path, err, padgrid.ErrDecodeFailure)
	}
	var pcm bytes.Buffer
	if n := d.Length(); n > 0 {
		pcm.Grow(int(n))
	}
	if _, err := io.Copy(&pcm, d); err != nil {
		return nil, fmt.Errorf("could not decode %v: %v: %w", path, err, padgrid.ErrDecodeFailure)
	}
	raw := pcm.Bytes()
	frames := make(padgrid.AudioBuffer, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		l := float32(int16(binary.LittleEndian.Uint16(raw[i:]))) / 32768
		r := float32(int16(binary.LittleEndian.Uint16(raw[i+2:]))) / 32768
		frames = append(frames, [2]float32{l, r})
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("mp3 file %v contains no samples: %w", path, padgrid.ErrDecodeFailure)
	}
	return &Data{Frames: frames, SampleRate: d.SampleRate(), SourcePath: path}, nil
}

// LoadFLAC decodes a flac file frame by frame.
func LoadFLAC(path string) (*Data, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("could not open %v: %v: %w", path, err, padgrid.ErrIOFailure)
		}
		return nil, fmt.Errorf("could not decode %v: %v: %w", path, err, padgrid.ErrDecodeFailure)
	}
	defer stream.Close()
	info := stream.Info
	if info.NChannels < 1 || info.BitsPerSample < 1 {
		return nil, fmt.Errorf("unknown flac format in %v: %w", path, padgrid.ErrDecodeFailure)
	}
	scale := float32(int64(1) << (info.BitsPerSample - 1))
	frames := make(padgrid.AudioBuffer, 0, info.NSamples)
	for {
		fr, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not decode %v: %v: %w", path, err, padgrid.ErrDecodeFailure)
		}
		if len(fr.Subframes) == 0 {
			continue
		}
		n := len(fr.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			l := float32(fr.Subframes[0].Samples[i]) / scale
			r := l
			if len(fr.Subframes) > 1 {
				r = float32(fr.Subframes[1].Samples[i]) / scale
			}
			frames = append(frames, [2]float32{l, r})
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("flac file %v contains no samples: %w", path, padgrid.ErrDecodeFailure)
	}
	return &Data{Frames: frames, SampleRate: int(info.SampleRate), SourcePath: path}, nil
}
