package padgrid_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/padgrid/padgrid"
)

func writeProject(t *testing.T, dir, yml string) string {
	t.Helper()
	path := filepath.Join(dir, "project.yml")
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatalf("could not write project file: %v", err)
	}
	return path
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "loop.wav")
	path := writeProject(t, dir, `
bpm: 140
steps: 8
kit:
  - slot: 0
    path: kick.wav
  - slot: 1
    path: `+abs+`
    stream: true
    volume: 0.5
    pitch: 2
cells:
  - step: 0
    column: 0
    slot: 0
  - step: 4
    column: 1
    slot: 1
    pitch: 0.5
`)
	p, err := padgrid.LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}
	if p.BPM != 140 || p.Steps != 8 {
		t.Errorf("transport = %v bpm, %v steps, want 140, 8", p.BPM, p.Steps)
	}
	if p.Columns != padgrid.DefaultColumns || p.StepsPerBeat != padgrid.DefaultStepsPerBeat {
		t.Errorf("defaults not filled in: columns %v, stepsperbeat %v", p.Columns, p.StepsPerBeat)
	}
	if want := filepath.Join(dir, "kick.wav"); p.Kit[0].Path != want {
		t.Errorf("relative path resolved to %v, want %v", p.Kit[0].Path, want)
	}
	if p.Kit[1].Path != abs {
		t.Errorf("absolute path rewritten to %v", p.Kit[1].Path)
	}
	if !p.Kit[1].Stream || p.Kit[1].Volume == nil || *p.Kit[1].Volume != 0.5 || p.Kit[1].Pitch == nil || *p.Kit[1].Pitch != 2 {
		t.Errorf("kit slot 1 params lost: %+v", p.Kit[1])
	}
}

func TestLoadProjectDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "kit:\n  - slot: 0\n    path: kick.wav\n")
	p, err := padgrid.LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}
	if p.BPM != padgrid.DefaultBPM || p.Steps != padgrid.DefaultSteps ||
		p.Columns != padgrid.DefaultColumns || p.StepsPerBeat != padgrid.DefaultStepsPerBeat {
		t.Errorf("defaults = %v/%v/%v/%v, want %v/%v/%v/%v",
			p.BPM, p.Steps, p.Columns, p.StepsPerBeat,
			padgrid.DefaultBPM, padgrid.DefaultSteps, padgrid.DefaultColumns, padgrid.DefaultStepsPerBeat)
	}
}

func TestLoadProjectErrors(t *testing.T) {
	dir := t.TempDir()
	for _, c := range []struct {
		name string
		yml  string
	}{
		{"bpm out of range", "bpm: 999\nkit:\n  - slot: 0\n    path: a.wav\n"},
		{"bpm negative", "bpm: -5\nkit:\n  - slot: 0\n    path: a.wav\n"},
		{"steps out of range", "steps: 99999\nkit:\n  - slot: 0\n    path: a.wav\n"},
		{"no kit", "bpm: 120\n"},
		{"negative slot", "kit:\n  - slot: -1\n    path: a.wav\n"},
		{"missing sample path", "kit:\n  - slot: 0\n"},
		{"cell outside grid", "steps: 4\nkit:\n  - slot: 0\n    path: a.wav\ncells:\n  - step: 4\n    column: 0\n    slot: 0\n"},
		{"malformed yaml", "bpm: [\n"},
	} {
		path := writeProject(t, dir, c.yml)
		if _, err := padgrid.LoadProject(path); err == nil {
			t.Errorf("%v: LoadProject accepted an invalid project", c.name)
		}
	}
	if _, err := padgrid.LoadProject(filepath.Join(dir, "does-not-exist.yml")); err == nil {
		t.Errorf("LoadProject succeeded on a missing file")
	}
}

func TestProjectGrid(t *testing.T) {
	p := padgrid.Project{
		BPM:   120,
		Steps: 8,
		Kit:   []padgrid.KitSlot{{Slot: 0, Path: "a.wav"}},
		Cells: []padgrid.CellSpec{
			{Step: 0, Column: 0, Slot: 0},
			{Step: 4, Column: 1, Slot: 0, Volume: ptr(0.5), Pitch: ptr(2.0)},
		},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	g := p.Grid()
	if g.Steps != 8 || g.Columns != padgrid.DefaultColumns {
		t.Fatalf("grid is %vx%v, want 8x%v", g.Steps, g.Columns, padgrid.DefaultColumns)
	}
	if !g.Get(0, 0).Slot.Equals(0) {
		t.Errorf("cell (0,0) not assigned")
	}
	cell := g.Get(4, 1)
	if !cell.Slot.Equals(0) {
		t.Errorf("cell (4,1) not assigned")
	}
	if v, ok := cell.Volume.Unpack(); !ok || v != 0.5 {
		t.Errorf("cell (4,1) volume = %v (set %v), want 0.5", v, ok)
	}
	if v, ok := cell.Pitch.Unpack(); !ok || v != 2 {
		t.Errorf("cell (4,1) pitch = %v (set %v), want 2", v, ok)
	}
	if !g.Get(1, 0).Slot.Empty() {
		t.Errorf("unlisted cell got assigned")
	}
}

func ptr(f float64) *float64 { return &f }
