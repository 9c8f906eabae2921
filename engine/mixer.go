package engine

import (
	"fmt"
	"math"

	"github.com/padgrid/padgrid"
)

// volumeThreshold is how close a smoothed gain must get to its target
// before it snaps there. A releasing voice retires once its level falls
// under it.
const volumeThreshold = 1e-4

const (
	minSmoothingMs = 1
	maxSmoothingMs = 100
)

// voice is the playback state of one slot. There is at most one voice per
// slot; triggering a sounding slot restarts it from the beginning. The voice
// pins the slotData it was triggered with, so a concurrent slot replacement
// never changes the data under a playing voice.
type voice struct {
	snap      *slotData
	pos       float64 // fractional read position in source frames
	rate      float64 // source frames per output frame
	gain      float32 // level the voice ramps to while sustained
	level     float32
	releasing bool
	active    bool
}

// trigger starts the slot's voice with the given effective parameters.
// Render side; triggers on empty slots are counted, not errors.
func (e *Engine) trigger(slot int, gain, pitch float64) {
	if slot < 0 || slot >= len(e.render.voices) {
		e.skipped.Add(1)
		return
	}
	sd := e.slots[slot].Load()
	if sd == nil {
		e.skipped.Add(1)
		return
	}
	if sd.stream != nil {
		sd.stream.Start()
	}
	v := &e.render.voices[slot]
	level := v.level
	if !v.active {
		level = 0
	}
	*v = voice{
		snap:   sd,
		rate:   pitch * float64(sd.sourceRate()) / float64(e.cfg.SampleRate),
		gain:   float32(gain),
		level:  level,
		active: true,
	}
	if n := e.render.countActive(); n > int(e.peakVoices.Load()) {
		e.peakVoices.Store(int32(n))
	}
}

// releaseVoice starts the fall ramp of the slot's voice; the voice retires
// once the ramp reaches silence. Render side.
func (e *Engine) releaseVoice(slot int) {
	if slot < 0 || slot >= len(e.render.voices) {
		return
	}
	if v := &e.render.voices[slot]; v.active {
		v.releasing = true
	}
}

// renderChunk renders one clock-bounded span of the block: zeroes it, mixes
// every active voice into it and applies the smoothed master gain.
func (e *Engine) renderChunk(buf padgrid.AudioBuffer) {
	if len(buf) == 0 {
		return
	}
	for i := range buf {
		buf[i] = [2]float32{}
	}
	rs := &e.render
	for i := range rs.voices {
		if rs.voices[i].active {
			rs.voices[i].mix(buf, rs)
		}
	}
	if rs.masterLevel == rs.masterTarget && rs.masterLevel == 1 {
		return
	}
	for i := range buf {
		coef := rs.riseCoef
		if rs.masterTarget < rs.masterLevel {
			coef = rs.fallCoef
		}
		rs.masterLevel += (rs.masterTarget - rs.masterLevel) * coef
		if d := rs.masterTarget - rs.masterLevel; d < volumeThreshold && d > -volumeThreshold {
			rs.masterLevel = rs.masterTarget
		}
		buf[i][0] *= rs.masterLevel
		buf[i][1] *= rs.masterLevel
	}
}

// mix adds the voice's samples into buf, advancing the read position by the
// pitch rate and ramping the gain one pole per frame. Underruns of a
// streamed source keep advancing so the voice stays on the timeline and
// recovers in sync.
func (v *voice) mix(buf padgrid.AudioBuffer, rs *renderState) {
	for i := range buf {
		target := v.gain
		if v.releasing {
			target = 0
		}
		coef := rs.riseCoef
		if target < v.level {
			coef = rs.fallCoef
		}
		v.level += (target - v.level) * coef
		if d := target - v.level; d < volumeThreshold && d > -volumeThreshold {
			v.level = target
		}
		if v.releasing && v.level <= volumeThreshold {
			v.retire()
			return
		}
		var smp [2]float32
		if v.snap.data != nil {
			if v.snap.data.Ended(v.pos) {
				v.retire()
				return
			}
			smp = v.snap.data.At(v.pos)
		} else {
			if v.snap.stream.Ended(v.pos) {
				v.retire()
				return
			}
			smp, _ = v.snap.stream.At(v.pos)
		}
		buf[i][0] += smp[0] * v.level
		buf[i][1] += smp[1] * v.level
		v.pos += v.rate
	}
}

func (v *voice) retire() {
	*v = voice{}
}

func (rs *renderState) countActive() int {
	n := 0
	for i := range rs.voices {
		if rs.voices[i].active {
			n++
		}
	}
	return n
}

func (rs *renderState) setSmoothing(riseMs, fallMs float64) {
	rs.riseCoef = smoothingCoef(riseMs, rs.clock.sampleRate)
	rs.fallCoef = smoothingCoef(fallMs, rs.clock.sampleRate)
}

// smoothingCoef converts a time constant in milliseconds to a one-pole
// per-frame coefficient at the given rate.
func smoothingCoef(ms float64, sampleRate int) float32 {
	return float32(1 - math.Exp(-1000/(ms*float64(sampleRate))))
}

func clampSmoothingMs(ms float64) float64 {
	if ms < minSmoothingMs {
		return minSmoothingMs
	}
	if ms > maxSmoothingMs {
		return maxSmoothingMs
	}
	return ms
}

// PlaySlot triggers the slot by hand with its bank parameters, exactly like
// a grid cell with no overrides.
func (e *Engine) PlaySlot(slot int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if slot < 0 || slot >= len(e.slots) {
		return fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	if e.slots[slot].Load() == nil {
		return fmt.Errorf("slot %d: %w", slot, padgrid.ErrNotLoaded)
	}
	b := e.bank[slot]
	e.toRender <- msgTrigger{slot: slot, gain: b.Volume, pitch: b.Pitch}
	return nil
}

// PreviewSlot triggers the slot by hand with explicit volume and pitch,
// bypassing the bank parameters.
func (e *Engine) PreviewSlot(slot int, volume, pitch float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if slot < 0 || slot >= len(e.slots) {
		return fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	if e.slots[slot].Load() == nil {
		return fmt.Errorf("slot %d: %w", slot, padgrid.ErrNotLoaded)
	}
	e.toRender <- msgTrigger{
		slot:  slot,
		gain:  padgrid.ClampVolume(volume),
		pitch: padgrid.ClampPitch(pitch),
	}
	return nil
}

// PreviewCell triggers the cell by hand, with the same parameters the
// sequencer would use when it reaches the cell. An empty cell is a no-op,
// as it would be for the sequencer.
func (e *Engine) PreviewCell(step, column int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if _, ok := e.gridIndex(step, column); !ok {
		return fmt.Errorf("cell %d,%d: %w", step, column, padgrid.ErrInvalidIndex)
	}
	cell := e.grid.Get(step, column)
	slot, ok := cell.Slot.Unpack()
	if !ok {
		return nil
	}
	b := e.bankFor(slot)
	e.toRender <- msgTrigger{
		slot:  slot,
		gain:  b.TriggerGain(cell),
		pitch: b.TriggerPitch(cell),
	}
	return nil
}

// StopSlot winds down the voice playing the slot. Stopping a silent slot is
// a no-op.
func (e *Engine) StopSlot(slot int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if slot < 0 || slot >= len(e.slots) {
		return fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	e.toRender <- msgStopSlot{slot: slot}
	return nil
}

// StopAllVoices winds down every sounding voice. The sequencer keeps
// running; use StopSequencer to halt it.
func (e *Engine) StopAllVoices() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.toRender <- msgStopAll{}
}

// SetMasterVolume sets the output bus gain, clamped to 0..1. The change
// ramps with the configured smoothing times.
func (e *Engine) SetMasterVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.master = padgrid.ClampVolume(volume)
	e.toRender <- msgMaster{volume: e.master}
}

// MasterVolume returns the output bus gain target.
func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.master
}

// SetSmoothingRiseTime sets the gain ramp time constant for rising levels,
// clamped to [1, 100] milliseconds.
func (e *Engine) SetSmoothingRiseTime(ms float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.riseMs = clampSmoothingMs(ms)
	e.toRender <- msgSmoothing{riseMs: e.riseMs, fallMs: e.fallMs}
}

// SetSmoothingFallTime sets the gain ramp time constant for falling levels,
// clamped to [1, 100] milliseconds.
func (e *Engine) SetSmoothingFallTime(ms float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.fallMs = clampSmoothingMs(ms)
	e.toRender <- msgSmoothing{riseMs: e.riseMs, fallMs: e.fallMs}
}

// SmoothingRiseTime returns the rise time constant in milliseconds.
func (e *Engine) SmoothingRiseTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.riseMs
}

// SmoothingFallTime returns the fall time constant in milliseconds.
func (e *Engine) SmoothingFallTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallMs
}

// ActiveVoiceCount returns how many voices were sounding at the end of the
// last rendered block.
func (e *Engine) ActiveVoiceCount() int {
	return int(e.activeVoices.Load())
}

// PeakVoiceCount returns the highest number of simultaneously sounding
// voices seen so far.
func (e *Engine) PeakVoiceCount() int {
	return int(e.peakVoices.Load())
}

// SkippedTriggerCount returns how many triggers landed on slots with no
// sample and were skipped.
func (e *Engine) SkippedTriggerCount() int64 {
	return e.skipped.Load()
}
