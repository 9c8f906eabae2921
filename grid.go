package padgrid

type (
	// Grid is the arrangement of sample triggers on the step/column matrix.
	// It is a plain value: mutating methods touch only the receiver, and
	// out-of-range coordinates are ignored on writes and return an empty
	// Cell on reads. Validation against the engine's configured dimensions
	// happens at the control API, not here.
	//
	// A multi-grid layout is purely an addressing convention of the caller:
	// grid g, column c maps to column g*columnsPerGrid+c of a single wide
	// Grid.
	Grid struct {
		Steps   int
		Columns int

		// Cells is the step-major cell matrix, len Steps*Columns.
		Cells []Cell `yaml:",flow"`
	}

	// Cell is one position of the Grid. A cell triggers when it has a slot
	// assigned; Volume and Pitch optionally shape that trigger. An unset
	// Volume plays at the bank gain as is, an unset Pitch falls back to the
	// bank pitch.
	Cell struct {
		Slot   OptionalInt
		Volume OptionalFloat
		Pitch  OptionalFloat
	}
)

// NewGrid returns an empty grid with the given dimensions, clamped to
// 1..MaxSteps and 1..MaxColumns.
func NewGrid(steps, columns int) Grid {
	steps = clampInt(steps, 1, MaxSteps)
	columns = clampInt(columns, 1, MaxColumns)
	return Grid{
		Steps:   steps,
		Columns: columns,
		Cells:   make([]Cell, steps*columns),
	}
}

func (g *Grid) index(step, column int) (int, bool) {
	if step < 0 || step >= g.Steps || column < 0 || column >= g.Columns {
		return 0, false
	}
	return step*g.Columns + column, true
}

// Get returns the cell at the position, or an empty Cell if the position is
// out of range.
func (g *Grid) Get(step, column int) Cell {
	if i, ok := g.index(step, column); ok {
		return g.Cells[i]
	}
	return Cell{}
}

// Set replaces the cell at the position; out-of-range positions are ignored.
func (g *Grid) Set(step, column int, cell Cell) {
	if i, ok := g.index(step, column); ok {
		g.Cells[i] = cell
	}
}

// SetSlot assigns a sample slot to the cell, keeping its volume and pitch.
func (g *Grid) SetSlot(step, column, slot int) {
	if i, ok := g.index(step, column); ok {
		g.Cells[i].Slot = NewOptionalInt(slot)
	}
}

// SetVolume sets the gain multiplier of the cell.
func (g *Grid) SetVolume(step, column int, volume float64) {
	if i, ok := g.index(step, column); ok {
		g.Cells[i].Volume = NewOptionalFloat(ClampVolume(volume))
	}
}

// SetPitch sets the pitch ratio override of the cell.
func (g *Grid) SetPitch(step, column int, pitch float64) {
	if i, ok := g.index(step, column); ok {
		g.Cells[i].Pitch = NewOptionalFloat(ClampPitch(pitch))
	}
}

// Clear empties the cell, dropping the slot assignment and both overrides.
func (g *Grid) Clear(step, column int) {
	if i, ok := g.index(step, column); ok {
		g.Cells[i] = Cell{}
	}
}

// ClearAll empties every cell, keeping the dimensions.
func (g *Grid) ClearAll() {
	for i := range g.Cells {
		g.Cells[i] = Cell{}
	}
}

// Copy makes a deep copy of the Grid.
func (g *Grid) Copy() Grid {
	cells := make([]Cell, len(g.Cells))
	copy(cells, g.Cells)
	return Grid{Steps: g.Steps, Columns: g.Columns, Cells: cells}
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
