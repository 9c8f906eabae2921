package engine

import (
	"fmt"
	"math"

	"github.com/padgrid/padgrid"
)

// clock keeps the sequencer position in samples. The step length is
// fractional; the remainder is carried over every boundary instead of being
// rounded away, so the step grid stays exactly on time over long runs.
type clock struct {
	sampleRate   int
	stepsPerBeat int
	bpm          int
	steps        int
	step         int
	phase        float64 // samples rendered since the last step boundary
	playing      bool
}

func (c *clock) samplesPerStep() float64 {
	return padgrid.SamplesPerStep(c.sampleRate, c.bpm, c.stepsPerBeat)
}

// start begins playing from step 0. The phase is preloaded with exactly one
// step length so that the first boundary check fires step 0 on the first
// rendered sample of the next block.
func (c *clock) start(bpm, steps int) {
	c.bpm = bpm
	c.steps = steps
	c.step = steps - 1
	c.phase = c.samplesPerStep()
	c.playing = true
}

func (c *clock) stop() { c.playing = false }

// setBPM changes the tempo without resetting the phase, keeping the position
// within the current step. If the new step length is shorter than the
// accumulated phase, the following boundary checks catch up one step at a
// time.
func (c *clock) setBPM(bpm int) { c.bpm = bpm }

func (c *clock) boundary() bool {
	return c.playing && c.phase >= c.samplesPerStep()
}

// advance moves to the next step and returns it. The fractional part of the
// boundary position carries into the new step.
func (c *clock) advance() int {
	c.phase -= c.samplesPerStep()
	c.step++
	if c.step >= c.steps {
		c.step = 0
	}
	return c.step
}

// framesUntilStep returns how many whole frames can be rendered before the
// next step boundary, at most max.
func (c *clock) framesUntilStep(max int) int {
	if !c.playing {
		return max
	}
	f := int(math.Ceil(c.samplesPerStep() - c.phase))
	if f < 0 {
		f = 0
	}
	if f > max {
		f = max
	}
	return f
}

func (c *clock) tick(frames int) {
	if c.playing {
		c.phase += float64(frames)
	}
}

// StartSequencer starts grid playback from step 0 at the given tempo. bpm is
// clamped to [padgrid.MinBPM, padgrid.MaxBPM]; steps is the cycle length the
// current step wraps at. The transport change applies at the start of the
// next Process block and the step 0 triggers land on its first frame.
func (e *Engine) StartSequencer(bpm, steps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if steps < 1 || steps > padgrid.MaxSteps {
		return fmt.Errorf("sequencer length %d: %w", steps, padgrid.ErrInvalidIndex)
	}
	bpm = padgrid.ClampBPM(bpm)
	e.bpm = bpm
	e.steps = steps
	e.playing = true
	e.curStep.Store(0)
	e.toRender <- msgTransport{playing: true, bpm: bpm, steps: steps}
	return nil
}

// StopSequencer stops the step clock. Voices that are already sounding play
// to their end; use StopAllVoices to silence them.
func (e *Engine) StopSequencer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.playing = false
	e.toRender <- msgTransport{playing: false, bpm: e.bpm, steps: e.steps}
}

// SetBPM changes the tempo, clamped to [padgrid.MinBPM, padgrid.MaxBPM]. A
// change while playing keeps the phase within the current step.
func (e *Engine) SetBPM(bpm int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	e.bpm = padgrid.ClampBPM(bpm)
	e.toRender <- msgBPM{bpm: e.bpm}
	return nil
}

// BPM returns the current tempo.
func (e *Engine) BPM() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bpm
}

// Playing reports whether the sequencer is running.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// CurrentStep returns the most recently triggered step. It is published by
// the render goroutine, so it lags the control calls by at most one block.
func (e *Engine) CurrentStep() int {
	return int(e.curStep.Load())
}
