package engine

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/padgrid/padgrid"
)

// recQueueDepth is how many rendered chunks the recorder queue holds before
// the render side starts dropping them. The writer goroutine keeps up under
// normal disk load; the queue absorbs stalls of a few seconds.
const recQueueDepth = 256

// recording is one capture session of the output bus. The render goroutine
// copies each mixed chunk into a pooled buffer and trySends it on data; the
// writer goroutine encodes them to a 16-bit PCM wav file. Stopping closes
// closeCh; the writer drains what was already queued, finalizes the wav
// header and closes done.
type recording struct {
	path    string
	data    chan *padgrid.AudioBuffer
	closeCh chan struct{}
	done    chan struct{}

	frames   atomic.Int64 // frames written to the file so far
	stopping atomic.Bool

	f   *os.File
	enc *wav.Encoder
	err error // terminal writer error, readable after done is closed

	ints   []int
	format *audio.Format
}

// StartRecording begins capturing the output bus to a 16-bit PCM wav file
// at the engine rate. Capture starts from the next rendered block.
func (e *Engine) StartRecording(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if e.rec != nil {
		return padgrid.ErrAlreadyRecording
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %v: %v: %w", path, err, padgrid.ErrIOFailure)
	}
	r := &recording{
		path:    path,
		data:    make(chan *padgrid.AudioBuffer, recQueueDepth),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		f:       f,
		enc:     wav.NewEncoder(f, e.cfg.SampleRate, 16, 2, 1),
		format:  &audio.Format{NumChannels: 2, SampleRate: e.cfg.SampleRate},
	}
	go r.run(e)
	e.rec = r
	e.toRender <- msgRecStart{rec: r}
	return nil
}

// StopRecording detaches the render tap, waits for the writer to drain the
// queue and finalize the file, and returns the writer's error if it had
// one. The wav header carries the correct data length once this returns.
func (e *Engine) StopRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.rec
	if r == nil {
		return padgrid.ErrNotRecording
	}
	e.rec = nil
	if !e.closed {
		e.toRender <- msgRecStop{}
	}
	r.stopping.Store(true)
	close(r.closeCh)
	<-r.done
	e.lastRec = r
	if r.err != nil {
		return fmt.Errorf("recording %v: %v: %w", r.path, r.err, padgrid.ErrIOFailure)
	}
	return nil
}

// IsRecording reports whether a capture session is active.
func (e *Engine) IsRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec != nil
}

// RecordingDurationMs returns how much audio the active session has written
// to disk so far, in milliseconds. Between sessions it reports the length
// of the last finished one.
func (e *Engine) RecordingDurationMs() int64 {
	e.mu.Lock()
	r := e.rec
	if r == nil {
		r = e.lastRec
	}
	e.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.frames.Load() * 1000 / int64(e.cfg.SampleRate)
}

// DroppedBlockCount returns how many rendered chunks were dropped because
// the recorder queue was full, over the life of the engine.
func (e *Engine) DroppedBlockCount() int64 {
	return e.recDropped.Load()
}

// tapRecorder forwards one rendered chunk to the writer goroutine. Render
// side; a full queue drops the chunk rather than blocking.
func (e *Engine) tapRecorder(chunk padgrid.AudioBuffer) {
	r := e.render.rec
	if r == nil || len(chunk) == 0 {
		return
	}
	bufPtr := e.getAudioBuffer()
	*bufPtr = append(*bufPtr, chunk...)
	if !trySend(r.data, bufPtr) {
		e.putAudioBuffer(bufPtr)
		if !r.stopping.Load() {
			e.recDropped.Add(1)
		}
	}
}

func (r *recording) run(e *Engine) {
	defer close(r.done)
	for {
		select {
		case buf := <-r.data:
			r.write(e, buf)
		case <-r.closeCh:
			for {
				select {
				case buf := <-r.data:
					r.write(e, buf)
				default:
					r.finish()
					return
				}
			}
		}
	}
}

func (r *recording) write(e *Engine, buf *padgrid.AudioBuffer) {
	defer e.putAudioBuffer(buf)
	if r.err != nil || len(*buf) == 0 {
		return
	}
	setSliceLength(&r.ints, len(*buf)*2)
	for i, smp := range *buf {
		r.ints[2*i] = pcm16(smp[0])
		r.ints[2*i+1] = pcm16(smp[1])
	}
	ib := &audio.IntBuffer{Format: r.format, Data: r.ints, SourceBitDepth: 16}
	if err := r.enc.Write(ib); err != nil {
		r.err = err
		return
	}
	r.frames.Add(int64(len(*buf)))
}

// finish backpatches the wav header with the final data length.
func (r *recording) finish() {
	if err := r.enc.Close(); err != nil && r.err == nil {
		r.err = err
	}
	if err := r.f.Close(); err != nil && r.err == nil {
		r.err = err
	}
}

func pcm16(x float32) int {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int(x * 32767)
}
