package sample

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/padgrid/padgrid"
)

const (
	streamChunkFrames = 16384
	streamQueueDepth  = 4
)

type (
	// Stream plays an integer-PCM wav file from disk without decoding it
	// fully, keeping only a window of two decoded chunks in memory. A
	// prefetch goroutine owns the file handle and the decoder; the render
	// goroutine asks for chunks over a request channel and receives them
	// over a delivery channel, so neither side ever blocks the other. If
	// the render position outruns the prefetcher the stream goes silent
	// for the missing frames and counts an underrun.
	//
	// The render-side methods (Start, At, Ended) must only be called from
	// one goroutine at a time.
	Stream struct {
		path       string
		sampleRate int
		nframes    int64

		requests chan int64
		delivery chan *streamChunk
		closed   chan struct{}
		finished chan struct{}

		// state owned by the render goroutine
		cur     *streamChunk
		next    *streamChunk
		pending int64 // start frame of the requested chunk, -1 if none

		underruns atomic.Int64
	}

	streamChunk struct {
		start  int64
		frames padgrid.AudioBuffer
	}

	// streamDecoder is the prefetch goroutine's decoding state.
	streamDecoder struct {
		f         *os.File
		d         *wav.Decoder
		channels  int
		bits      int
		nframes   int64
		nextFrame int64
	}
)

// OpenStream opens a wav file for streamed playback and starts its prefetch
// goroutine. Only integer PCM wav files can be streamed; other files should
// be loaded to memory instead.
func OpenStream(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %v: %v: %w", path, err, padgrid.ErrIOFailure)
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("invalid wav file %v: %w", path, padgrid.ErrDecodeFailure)
	}
	if err := d.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not locate PCM data in %v: %v: %w", path, err, padgrid.ErrDecodeFailure)
	}
	format := d.Format()
	bits := int(d.SampleBitDepth())
	if d.WavAudioFormat != 1 || format.NumChannels < 1 || bits == 0 {
		f.Close()
		return nil, fmt.Errorf("wav file %v cannot be streamed: %w", path, padgrid.ErrDecodeFailure)
	}
	bytesPerSample := (bits-1)/8 + 1
	nframes := d.PCMLen() / int64(bytesPerSample) / int64(format.NumChannels)
	if nframes <= 0 {
		f.Close()
		return nil, fmt.Errorf("wav file %v contains no samples: %w", path, padgrid.ErrDecodeFailure)
	}
	s := &Stream{
		path:       path,
		sampleRate: format.SampleRate,
		nframes:    nframes,
		requests:   make(chan int64, streamQueueDepth),
		delivery:   make(chan *streamChunk, streamQueueDepth),
		closed:     make(chan struct{}),
		finished:   make(chan struct{}),
		pending:    -1,
	}
	dec := &streamDecoder{
		f:         f,
		channels:  format.NumChannels,
		bits:      bits,
		nframes:   nframes,
		nextFrame: -1, // forces a rewind before the first chunk
	}
	go s.prefetch(dec)
	return s, nil
}

func (s *Stream) SampleRate() int  { return s.sampleRate }
func (s *Stream) NumFrames() int64 { return s.nframes }
func (s *Stream) Path() string     { return s.path }

// MemoryUsage reports the resident window size, not the file size.
func (s *Stream) MemoryUsage() int64 {
	return int64(streamQueueDepth+2) * streamChunkFrames * 8
}

// Underruns returns how many reads found their frames not yet decoded.
func (s *Stream) Underruns() int64 {
	return s.underruns.Load()
}

// Close stops the prefetch goroutine and closes the file. Safe to call
// while the render goroutine is still reading; already-delivered chunks
// stay valid and reads past them report underruns.
func (s *Stream) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	<-s.finished
	return nil
}

// Start rewinds the stream cursor to the beginning and primes the
// prefetcher. Called on (re)trigger.
func (s *Stream) Start() {
	s.cur, s.next = nil, nil
	for {
		select {
		case <-s.delivery:
		default:
			s.pending = -1
			s.request(0)
			return
		}
	}
}

// At returns the interpolated frame at the fractional source position. The
// second return is false when the frames are not decoded yet (underrun) or
// the position is past the end.
func (s *Stream) At(pos float64) ([2]float32, bool) {
	lo := int64(math.Floor(pos))
	if lo < 0 || lo >= s.nframes {
		return [2]float32{}, false
	}
	s.drainDelivery()
	if s.cur != nil && lo >= s.cur.start+int64(len(s.cur.frames)) && s.next != nil && lo >= s.next.start {
		s.cur, s.next = s.next, nil
	}
	a, ok := s.frameAt(lo)
	if !ok {
		s.underruns.Add(1)
		s.request(lo - lo%streamChunkFrames)
		return [2]float32{}, false
	}
	s.requestAhead()
	b, ok := s.frameAt(lo + 1)
	if !ok {
		b = a
	}
	t := float32(pos - float64(lo))
	return [2]float32{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
	}, true
}

// Ended reports whether the position has moved past the last frame.
func (s *Stream) Ended(pos float64) bool {
	return pos > float64(s.nframes-1)
}

func (s *Stream) frameAt(abs int64) ([2]float32, bool) {
	if c := s.cur; c != nil && abs >= c.start && abs < c.start+int64(len(c.frames)) {
		return c.frames[abs-c.start], true
	}
	if c := s.next; c != nil && abs >= c.start && abs < c.start+int64(len(c.frames)) {
		return c.frames[abs-c.start], true
	}
	return [2]float32{}, false
}

func (s *Stream) drainDelivery() {
	for {
		select {
		case chunk := <-s.delivery:
			requested := chunk.start == s.pending
			if requested {
				s.pending = -1
			}
			switch {
			case s.cur != nil && chunk.start == s.cur.start+int64(len(s.cur.frames)):
				s.next = chunk
			case s.cur == nil || requested:
				// either the first chunk after a rewind or a recovery
				// chunk after the cursor jumped outside the window
				s.cur = chunk
				s.next = nil
			}
		default:
			return
		}
	}
}

func (s *Stream) requestAhead() {
	if s.next != nil || s.cur == nil {
		return
	}
	ahead := s.cur.start + int64(len(s.cur.frames))
	if ahead >= s.nframes {
		return
	}
	s.request(ahead)
}

func (s *Stream) request(start int64) {
	if s.pending == start {
		return
	}
	select {
	case s.requests <- start:
		s.pending = start
	default:
	}
}

// prefetch runs in its own goroutine, decoding requested chunks until the
// stream is closed.
func (s *Stream) prefetch(dec *streamDecoder) {
	defer close(s.finished)
	defer dec.f.Close()
	for {
		select {
		case <-s.closed:
			return
		case start := <-s.requests:
			if start < 0 || start >= s.nframes {
				continue
			}
			chunk, err := dec.decodeChunk(start)
			if err != nil {
				continue // the reader keeps silence for the missing frames
			}
			select {
			case s.delivery <- chunk:
			case <-s.closed:
				return
			}
		}
	}
}

func (dec *streamDecoder) decodeChunk(start int64) (*streamChunk, error) {
	if dec.nextFrame != start {
		if err := dec.rewind(); err != nil {
			return nil, err
		}
		if err := dec.skip(start); err != nil {
			return nil, err
		}
	}
	want := int64(streamChunkFrames)
	if re := dec.nframes - start; re < want {
		want = re
	}
	frames, err := dec.read(int(want))
	if err != nil {
		return nil, err
	}
	dec.nextFrame = start + int64(len(frames))
	return &streamChunk{start: start, frames: frames}, nil
}

func (dec *streamDecoder) rewind() error {
	if _, err := dec.f.Seek(0, 0); err != nil {
		return err
	}
	dec.d = wav.NewDecoder(dec.f)
	if err := dec.d.FwdToPCM(); err != nil {
		return err
	}
	dec.nextFrame = 0
	return nil
}

func (dec *streamDecoder) skip(to int64) error {
	for dec.nextFrame < to {
		n := to - dec.nextFrame
		if n > streamChunkFrames {
			n = streamChunkFrames
		}
		if _, err := dec.read(int(n)); err != nil {
			return err
		}
		dec.nextFrame += n
	}
	return nil
}

func (dec *streamDecoder) read(nframes int) (padgrid.AudioBuffer, error) {
	if dec.d == nil {
		if err := dec.rewind(); err != nil {
			return nil, err
		}
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: dec.channels, SampleRate: dec.sampleRateHint()},
		Data:           make([]int, nframes*dec.channels),
		SourceBitDepth: dec.bits,
	}
	if _, err := dec.d.PCMBuffer(buf); err != nil {
		return nil, err
	}
	scale := float32(int64(1) << (dec.bits - 1))
	offset := 0
	if dec.bits == 8 {
		offset = 128
	}
	frames := make(padgrid.AudioBuffer, 0, nframes)
	for i := 0; i+dec.channels <= len(buf.Data); i += dec.channels {
		l := (float32(buf.Data[i]) - float32(offset)) / scale
		r := l
		if dec.channels > 1 {
			r = (float32(buf.Data[i+1]) - float32(offset)) / scale
		}
		frames = append(frames, [2]float32{l, r})
	}
	return frames, nil
}

func (dec *streamDecoder) sampleRateHint() int {
	if dec.d != nil && dec.d.Format() != nil {
		return dec.d.Format().SampleRate
	}
	return 0
}
