package sample_test

import (
	"testing"

	"github.com/padgrid/padgrid"
	"github.com/padgrid/padgrid/sample"
)

func TestDataAt(t *testing.T) {
	d := &sample.Data{
		Frames:     padgrid.AudioBuffer{{0, 0}, {1, -1}, {0.5, 0.25}},
		SampleRate: 44100,
	}
	for _, c := range []struct {
		pos  float64
		want [2]float32
	}{
		{0, [2]float32{0, 0}},
		{1, [2]float32{1, -1}},
		{0.5, [2]float32{0.5, -0.5}},
		{1.5, [2]float32{0.75, -0.375}},
		{-3, [2]float32{0, 0}}, // before the start clamps to the first frame
		{2, [2]float32{0.5, 0.25}},
		{9, [2]float32{0.5, 0.25}}, // past the end returns the last frame
	} {
		if got := d.At(c.pos); got != c.want {
			t.Errorf("At(%v) = %v, want %v", c.pos, got, c.want)
		}
	}
	if d.Ended(2) {
		t.Errorf("Ended(2) on a 3-frame sample")
	}
	if !d.Ended(2.1) {
		t.Errorf("not Ended(2.1) on a 3-frame sample")
	}
	if d.MemoryUsage() != 24 {
		t.Errorf("MemoryUsage = %v, want 24", d.MemoryUsage())
	}
}
