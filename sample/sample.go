// Package sample loads audio files into the formats the engine mixes from:
// fully decoded in-memory buffers and streamed disk handles.
package sample

import (
	"math"

	"github.com/padgrid/padgrid"
)

// Data is a fully decoded sample, stored as stereo frames at the native rate
// of the source file. Mono sources are spread to both channels at load time;
// sources with more than two channels keep their first two. Data is
// immutable after loading, so it can be shared freely with the render
// goroutine.
type Data struct {
	Frames     padgrid.AudioBuffer
	SampleRate int
	SourcePath string
}

// NumFrames returns the number of stereo frames.
func (d *Data) NumFrames() int {
	return len(d.Frames)
}

// MemoryUsage returns the decoded size in bytes.
func (d *Data) MemoryUsage() int64 {
	return int64(len(d.Frames)) * 8
}

// At returns the frame at the fractional position, linearly interpolating
// between the two neighbouring frames. Positions before the start clamp to
// the first frame, positions past the end return the last frame; callers
// should stop reading once Ended reports true.
func (d *Data) At(pos float64) [2]float32 {
	if pos < 0 {
		pos = 0
	}
	lo := int(math.Floor(pos))
	if lo >= len(d.Frames)-1 {
		return d.Frames[len(d.Frames)-1]
	}
	a, b := d.Frames[lo], d.Frames[lo+1]
	t := float32(pos - float64(lo))
	return [2]float32{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
	}
}

// Ended reports whether the position has moved past the last frame.
func (d *Data) Ended(pos float64) bool {
	return pos > float64(len(d.Frames)-1)
}
