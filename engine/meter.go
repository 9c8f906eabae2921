package engine

import (
	"math"

	"github.com/viterin/vek/vek32"

	"github.com/padgrid/padgrid"
)

// finishBlock publishes the per-block observability after the block has
// rendered: the voice count and the output peak/RMS meters. Render side.
func (e *Engine) finishBlock(buf padgrid.AudioBuffer) {
	e.activeVoices.Store(int32(e.render.countActive()))
	e.meterBlock(buf)
}

// meterBlock measures the mixed output, deinterleaving each channel into a
// scratch plane and reducing it with the vectorized kernels. Results are
// published as atomics for the control side to poll.
func (e *Engine) meterBlock(buf padgrid.AudioBuffer) {
	if len(buf) == 0 {
		return
	}
	rs := &e.render
	setSliceLength(&rs.tmp, len(buf))
	setSliceLength(&rs.tmp2, len(buf))
	for chn := 0; chn < 2; chn++ {
		// deinterleave the channel
		for i := 0; i < len(buf); i++ {
			rs.tmp[i] = buf[i][chn]
		}
		power := vek32.Mul_Into(rs.tmp2, rs.tmp, rs.tmp)
		rms := float32(math.Sqrt(float64(vek32.Mean(power))))
		vek32.Abs_Inplace(rs.tmp)
		peak := vek32.Max(rs.tmp)
		e.rmsBits[chn].Store(math.Float32bits(rms))
		e.peakBits[chn].Store(math.Float32bits(peak))
	}
}

func setSliceLength[T any](slice *[]T, length int) {
	if len(*slice) < length {
		*slice = append(*slice, make([]T, length-len(*slice))...)
	}
	*slice = (*slice)[:length]
}

// OutputPeak returns the per-channel absolute peak of the last rendered
// block.
func (e *Engine) OutputPeak() (left, right float32) {
	return math.Float32frombits(e.peakBits[0].Load()),
		math.Float32frombits(e.peakBits[1].Load())
}

// OutputRMS returns the per-channel RMS level of the last rendered block.
func (e *Engine) OutputRMS() (left, right float32) {
	return math.Float32frombits(e.rmsBits[0].Load()),
		math.Float32frombits(e.rmsBits[1].Load())
}
