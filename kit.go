package padgrid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type (
	// Project is the on-disk document format: a kit of samples, the grid
	// arrangement and the transport settings, all in one yaml file.
	Project struct {
		BPM          int
		Steps        int
		Columns      int `yaml:",omitempty"`
		StepsPerBeat int `yaml:",omitempty"`
		Kit          []KitSlot
		Cells        []CellSpec `yaml:",omitempty"`
	}

	// KitSlot assigns a sample file to a pad slot, with optional bank
	// defaults. Stream requests streamed loading instead of decoding the
	// whole file to memory.
	KitSlot struct {
		Slot   int
		Path   string
		Stream bool     `yaml:",omitempty"`
		Volume *float64 `yaml:",omitempty"`
		Pitch  *float64 `yaml:",omitempty"`
	}

	// CellSpec places a slot on the grid. Volume and Pitch are the optional
	// cell overrides.
	CellSpec struct {
		Step   int
		Column int
		Slot   int
		Volume *float64 `yaml:",omitempty"`
		Pitch  *float64 `yaml:",omitempty"`
	}
)

// LoadProject reads and validates a project yaml file. Relative sample paths
// are resolved against the directory of the project file.
func LoadProject(path string) (*Project, error) {
	inputBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read project file %v: %w", path, err)
	}
	var project Project
	if err := yaml.Unmarshal(inputBytes, &project); err != nil {
		return nil, fmt.Errorf("could not parse project file %v: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i, s := range project.Kit {
		if s.Path != "" && !filepath.IsAbs(s.Path) {
			project.Kit[i].Path = filepath.Join(dir, s.Path)
		}
	}
	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project file %v: %w", path, err)
	}
	return &project, nil
}

// Validate checks that the project makes sense: BPM and dimensions in range,
// every kit slot and cell within bounds. Missing dimensions get defaults
// rather than errors.
func (p *Project) Validate() error {
	if p.BPM == 0 {
		p.BPM = DefaultBPM
	}
	if p.BPM < MinBPM || p.BPM > MaxBPM {
		return fmt.Errorf("BPM should be %v..%v, was %v", MinBPM, MaxBPM, p.BPM)
	}
	if p.Steps == 0 {
		p.Steps = DefaultSteps
	}
	if p.Steps < 1 || p.Steps > MaxSteps {
		return fmt.Errorf("steps should be 1..%v, was %v", MaxSteps, p.Steps)
	}
	if p.Columns == 0 {
		p.Columns = DefaultColumns
	}
	if p.Columns < 1 || p.Columns > MaxColumns {
		return fmt.Errorf("columns should be 1..%v, was %v", MaxColumns, p.Columns)
	}
	if p.StepsPerBeat == 0 {
		p.StepsPerBeat = DefaultStepsPerBeat
	}
	if len(p.Kit) == 0 {
		return errors.New("project contains no kit slots")
	}
	for _, s := range p.Kit {
		if s.Slot < 0 {
			return fmt.Errorf("kit slot %v is negative", s.Slot)
		}
		if s.Path == "" {
			return fmt.Errorf("kit slot %v has no sample path", s.Slot)
		}
	}
	for _, c := range p.Cells {
		if c.Step < 0 || c.Step >= p.Steps || c.Column < 0 || c.Column >= p.Columns {
			return fmt.Errorf("cell (%v,%v) outside the %vx%v grid", c.Step, c.Column, p.Steps, p.Columns)
		}
	}
	return nil
}

// Grid builds the Grid the project describes.
func (p *Project) Grid() Grid {
	g := NewGrid(p.Steps, p.Columns)
	for _, c := range p.Cells {
		g.SetSlot(c.Step, c.Column, c.Slot)
		if c.Volume != nil {
			g.SetVolume(c.Step, c.Column, *c.Volume)
		}
		if c.Pitch != nil {
			g.SetPitch(c.Step, c.Column, *c.Pitch)
		}
	}
	return g
}
