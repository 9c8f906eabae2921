// Package oto adapts the ebitengine/oto/v3 playback library to the
// padgrid.AudioContext interface. oto pulls samples through an io.Reader on
// its own goroutine; the adapter bridges the engine's pushed blocks to that
// reader with a small channel, which also paces the render loop against
// real time.
package oto

import (
	"fmt"
	"io"
	"math"

	"github.com/ebitengine/oto/v3"

	"github.com/padgrid/padgrid"
)

type (
	Context struct {
		ctx        *oto.Context
		sampleRate int
	}

	Output struct {
		player *oto.Player
		reader *blockReader
	}

	// blockReader turns pushed sample blocks into the io.Reader oto pulls
	// from. Consumed block buffers are recycled through free so steady
	// playback does not allocate.
	blockReader struct {
		blocks chan []byte
		free   chan []byte
		cur    []byte
		curBuf []byte
	}
)

const blockQueueDepth = 8

// NewContext opens the audio device at the given rate, stereo 16-bit, and
// waits until it is ready.
func NewContext(sampleRate int) (*Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate}, nil
}

// Output starts a player and returns the sink feeding it. WriteAudio blocks
// while the queue is full, so a tight render loop is slowed down to the
// device's pace.
func (c *Context) Output() padgrid.AudioSink {
	r := &blockReader{
		blocks: make(chan []byte, blockQueueDepth),
		free:   make(chan []byte, blockQueueDepth),
	}
	player := c.ctx.NewPlayer(r)
	player.Play()
	return &Output{player: player, reader: r}
}

func (c *Context) Close() error {
	// oto v3 contexts cannot be closed, only suspended
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

// WriteAudio converts the block to 16-bit little-endian and queues it for
// the device. Do not call after Close.
func (o *Output) WriteAudio(buffer padgrid.AudioBuffer) error {
	var b []byte
	select {
	case b = <-o.reader.free:
	default:
	}
	o.reader.blocks <- floatBufferTo16BitLE(buffer, b[:0])
	return nil
}

func (o *Output) Close() error {
	close(o.reader.blocks)
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

func (r *blockReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		if r.curBuf != nil {
			select {
			case r.free <- r.curBuf:
			default:
			}
			r.curBuf = nil
		}
		b, ok := <-r.blocks
		if !ok {
			return 0, io.EOF
		}
		r.cur, r.curBuf = b, b
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

// floatBufferTo16BitLE converts stereo float frames to interleaved 16-bit
// little-endian samples, appending to dst.
func floatBufferTo16BitLE(buffer padgrid.AudioBuffer, dst []byte) []byte {
	for _, frame := range buffer {
		for _, v := range frame {
			var uv int16
			if v < -1.0 {
				uv = -math.MaxInt16
			} else if v > 1.0 {
				uv = math.MaxInt16
			} else {
				uv = int16(v * math.MaxInt16)
			}
			dst = append(dst, byte(uv), byte(uint16(uv)>>8))
		}
	}
	return dst
}
