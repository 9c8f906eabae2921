// Package engine implements the real-time step-sequencer core: sample
// slots, the step clock, the voice mixer and the output recorder, behind a
// control surface that is safe to call from any goroutine while another
// drives Process.
//
// The split is strict: control methods mutate state guarded by a mutex and
// forward changes to the render side as messages; Process applies all
// pending messages at the start of each block and then renders without
// taking a lock, allocating, or touching the disk. Status travels back
// through atomics.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/padgrid/padgrid"
)

type (
	// Config carries the construction parameters of an Engine. The zero
	// value of a field selects its default.
	Config struct {
		SampleRate   int // render rate, default padgrid.DefaultSampleRate
		Channels     int // only 2 is supported
		Slots        int // sample slots, default padgrid.DefaultSlots
		Steps        int // grid rows, default padgrid.DefaultSteps
		Columns      int // grid columns, default padgrid.DefaultColumns
		StepsPerBeat int // step resolution, default 4 (sixteenth notes)
		BPM          int // initial tempo, default padgrid.DefaultBPM

		// MaxMemoryBytes bounds the total decoded sample memory; loads
		// beyond it fail with padgrid.ErrMemoryLimit. Default
		// padgrid.DefaultMaxMemory.
		MaxMemoryBytes int64

		// SmoothingRiseMs and SmoothingFallMs are the initial gain ramp
		// time constants, defaults 6 and 12.
		SmoothingRiseMs float64
		SmoothingFallMs float64
	}

	// Engine is a step sequencer mixing sample slots onto a stereo bus. All
	// exported methods may be called from any goroutine; Process itself
	// must be driven by a single goroutine at a time, normally the audio
	// backend's pull callback.
	Engine struct {
		cfg Config

		// control-side state, guarded by mu. The render path never takes
		// mu; everything it needs crosses over through toRender, the slot
		// pointers, or the atomics below.
		mu      sync.Mutex
		closed  bool
		grid    padgrid.Grid
		bank    []padgrid.BankParams
		playing bool
		bpm     int
		steps   int
		master  float64
		riseMs  float64
		fallMs  float64
		rec     *recording
		lastRec *recording

		toRender   chan any
		bufferPool sync.Pool

		// slots are the published samples, read by the render path at
		// trigger time. Entries are immutable; a load or unload publishes
		// a new pointer.
		slots []atomic.Pointer[slotData]

		totalMem   atomic.Int64
		recDropped atomic.Int64

		// published by the render goroutine
		curStep      atomic.Int32
		activeVoices atomic.Int32
		peakVoices   atomic.Int32
		skipped      atomic.Int64
		peakBits     [2]atomic.Uint32
		rmsBits      [2]atomic.Uint32

		render renderState
	}

	// renderState is owned by the goroutine driving Process. The grid and
	// bank fields are snapshots shipped from the control side; they are
	// replaced wholesale, never mutated in place.
	renderState struct {
		clock        clock
		grid         *padgrid.Grid
		bank         []padgrid.BankParams
		voices       []voice
		masterLevel  float32
		masterTarget float32
		riseCoef     float32
		fallCoef     float32
		rec          *recording
		tmp          []float32
		tmp2         []float32
	}
)

// numRenderTries bounds the chunking loop of one Process call, so a
// degenerate clock state cannot spin it forever.
const numRenderTries = 10000

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = padgrid.DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = 2
	}
	if c.Slots <= 0 {
		c.Slots = padgrid.DefaultSlots
	}
	if c.Steps <= 0 {
		c.Steps = padgrid.DefaultSteps
	}
	if c.Columns <= 0 {
		c.Columns = padgrid.DefaultColumns
	}
	if c.StepsPerBeat <= 0 {
		c.StepsPerBeat = padgrid.DefaultStepsPerBeat
	}
	if c.BPM <= 0 {
		c.BPM = padgrid.DefaultBPM
	}
	c.BPM = padgrid.ClampBPM(c.BPM)
	if c.MaxMemoryBytes <= 0 {
		c.MaxMemoryBytes = padgrid.DefaultMaxMemory
	}
	if c.SmoothingRiseMs <= 0 {
		c.SmoothingRiseMs = 6
	}
	if c.SmoothingFallMs <= 0 {
		c.SmoothingFallMs = 12
	}
	c.SmoothingRiseMs = clampSmoothingMs(c.SmoothingRiseMs)
	c.SmoothingFallMs = clampSmoothingMs(c.SmoothingFallMs)
	return c
}

// New constructs an Engine from the config. The engine renders nothing
// until something drives Process.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.Channels != 2 {
		return nil, fmt.Errorf("engine renders stereo only, not %d channels", cfg.Channels)
	}
	e := &Engine{
		cfg:      cfg,
		grid:     padgrid.NewGrid(cfg.Steps, cfg.Columns),
		bank:     make([]padgrid.BankParams, cfg.Slots),
		bpm:      cfg.BPM,
		master:   1,
		riseMs:   cfg.SmoothingRiseMs,
		fallMs:   cfg.SmoothingFallMs,
		toRender: make(chan any, 1024),
		bufferPool: sync.Pool{
			New: func() any { return &padgrid.AudioBuffer{} },
		},
		slots: make([]atomic.Pointer[slotData], cfg.Slots),
	}
	e.cfg.Steps = e.grid.Steps // NewGrid clamps the dimensions
	e.cfg.Columns = e.grid.Columns
	e.steps = e.grid.Steps
	for i := range e.bank {
		e.bank[i] = padgrid.DefaultBankParams()
	}
	renderGrid := e.grid.Copy()
	e.render = renderState{
		clock: clock{
			sampleRate:   cfg.SampleRate,
			stepsPerBeat: cfg.StepsPerBeat,
			bpm:          cfg.BPM,
			steps:        e.grid.Steps,
		},
		grid:         &renderGrid,
		bank:         append([]padgrid.BankParams(nil), e.bank...),
		voices:       make([]voice, cfg.Slots),
		masterLevel:  1,
		masterTarget: 1,
	}
	e.render.setSmoothing(e.riseMs, e.fallMs)
	return e, nil
}

// Close stops any recording, unloads every slot and marks the engine
// closed; control methods return padgrid.ErrNotInitialized afterwards. The
// caller must stop driving Process first.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	rec := e.rec
	e.mu.Unlock()
	var firstErr error
	if rec != nil {
		if err := e.StopRecording(); err != nil && !errors.Is(err, padgrid.ErrNotRecording) {
			firstErr = err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.slots {
		if old := e.slots[i].Swap(nil); old != nil {
			e.totalMem.Add(-old.mem)
			if old.stream != nil {
				old.stream.Close()
			}
		}
	}
	return firstErr
}

// Process renders the next block of audio into buffer, applying all
// commands queued since the previous block first. The buffer is completely
// overwritten. Process never blocks, allocates from the heap only through
// the buffer pool, and must not be called concurrently with itself.
func (e *Engine) Process(buffer padgrid.AudioBuffer) {
	e.processMessages()
	full := buffer
	for i := 0; i < numRenderTries; i++ {
		if e.render.clock.boundary() {
			e.advanceStep()
		}
		n := e.render.clock.framesUntilStep(len(buffer))
		e.renderChunk(buffer[:n])
		e.tapRecorder(buffer[:n])
		e.render.clock.tick(n)
		buffer = buffer[n:]
		if len(buffer) == 0 {
			e.finishBlock(full)
			return
		}
	}
	// the clock state could not fill the buffer; keep running with the
	// remainder silent rather than spinning
	for i := range buffer {
		buffer[i] = [2]float32{}
	}
	e.render.clock.phase = 0
	e.finishBlock(full)
}

// advanceStep moves the clock one step and fires the triggers of the new
// step's row. Render side, called exactly at the step boundary.
func (e *Engine) advanceStep() {
	step := e.render.clock.advance()
	e.curStep.Store(int32(step))
	g := e.render.grid
	if g == nil {
		return
	}
	for col := 0; col < g.Columns; col++ {
		cell := g.Get(step, col)
		slot, ok := cell.Slot.Unpack()
		if !ok {
			continue
		}
		b := padgrid.DefaultBankParams()
		if slot >= 0 && slot < len(e.render.bank) {
			b = e.render.bank[slot]
		}
		e.trigger(slot, b.TriggerGain(cell), b.TriggerPitch(cell))
	}
}

func (e *Engine) gridIndex(step, column int) (int, bool) {
	if step < 0 || step >= e.grid.Steps || column < 0 || column >= e.grid.Columns {
		return 0, false
	}
	return step*e.grid.Columns + column, true
}

func (e *Engine) bankFor(slot int) padgrid.BankParams {
	if slot >= 0 && slot < len(e.bank) {
		return e.bank[slot]
	}
	return padgrid.DefaultBankParams()
}

// shipGrid sends the render side a fresh snapshot of the grid. Callers
// hold e.mu.
func (e *Engine) shipGrid() {
	g := e.grid.Copy()
	e.toRender <- msgGrid{grid: &g}
}

// SetCell assigns the sample slot to the grid cell, keeping any volume and
// pitch overrides the cell already has.
func (e *Engine) SetCell(step, column, slot int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if _, ok := e.gridIndex(step, column); !ok {
		return fmt.Errorf("cell %d,%d: %w", step, column, padgrid.ErrInvalidIndex)
	}
	if slot < 0 || slot >= len(e.slots) {
		return fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	e.grid.SetSlot(step, column, slot)
	e.shipGrid()
	return nil
}

// ClearCell empties the grid cell, dropping the slot assignment and both
// overrides.
func (e *Engine) ClearCell(step, column int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if _, ok := e.gridIndex(step, column); !ok {
		return fmt.Errorf("cell %d,%d: %w", step, column, padgrid.ErrInvalidIndex)
	}
	e.grid.Clear(step, column)
	e.shipGrid()
	return nil
}

// ClearAllCells empties the whole grid.
func (e *Engine) ClearAllCells() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.grid.ClearAll()
	e.shipGrid()
}

// SetCellVolume sets the cell's gain multiplier, clamped to 0..1.
func (e *Engine) SetCellVolume(step, column int, volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if _, ok := e.gridIndex(step, column); !ok {
		return fmt.Errorf("cell %d,%d: %w", step, column, padgrid.ErrInvalidIndex)
	}
	e.grid.SetVolume(step, column, volume)
	e.shipGrid()
	return nil
}

// SetCellPitch sets the cell's pitch ratio override, clamped to
// [padgrid.MinPitch, padgrid.MaxPitch].
func (e *Engine) SetCellPitch(step, column int, pitch float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if _, ok := e.gridIndex(step, column); !ok {
		return fmt.Errorf("cell %d,%d: %w", step, column, padgrid.ErrInvalidIndex)
	}
	e.grid.SetPitch(step, column, pitch)
	e.shipGrid()
	return nil
}

// CellVolume returns the gain a trigger of the cell would use: the cell's
// override (1 when unset) times the assigned slot's bank volume. For a cell
// with no slot the bank factor is 1.
func (e *Engine) CellVolume(step, column int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, padgrid.ErrNotInitialized
	}
	if _, ok := e.gridIndex(step, column); !ok {
		return 0, fmt.Errorf("cell %d,%d: %w", step, column, padgrid.ErrInvalidIndex)
	}
	cell := e.grid.Get(step, column)
	b := padgrid.DefaultBankParams()
	if slot, ok := cell.Slot.Unpack(); ok {
		b = e.bankFor(slot)
	}
	return b.TriggerGain(cell), nil
}

// CellPitch returns the pitch ratio a trigger of the cell would use: the
// cell's override if set, the assigned slot's bank pitch otherwise. For a
// cell with no slot the bank fallback is 1.
func (e *Engine) CellPitch(step, column int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, padgrid.ErrNotInitialized
	}
	if _, ok := e.gridIndex(step, column); !ok {
		return 0, fmt.Errorf("cell %d,%d: %w", step, column, padgrid.ErrInvalidIndex)
	}
	cell := e.grid.Get(step, column)
	b := padgrid.DefaultBankParams()
	if slot, ok := cell.Slot.Unpack(); ok {
		b = e.bankFor(slot)
	}
	return b.TriggerPitch(cell), nil
}

// Grid returns a copy of the current grid.
func (e *Engine) Grid() padgrid.Grid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Copy()
}

// SetGrid replaces the whole grid, validating the dimensions against the
// engine's configuration.
func (e *Engine) SetGrid(g padgrid.Grid) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if g.Steps < 1 || g.Steps > padgrid.MaxSteps || g.Columns < 1 || g.Columns > e.cfg.Columns {
		return fmt.Errorf("grid %dx%d: %w", g.Steps, g.Columns, padgrid.ErrInvalidIndex)
	}
	if len(g.Cells) != g.Steps*g.Columns {
		return fmt.Errorf("grid has %d cells, want %d: %w", len(g.Cells), g.Steps*g.Columns, padgrid.ErrInvalidIndex)
	}
	e.grid = g.Copy()
	e.shipGrid()
	return nil
}

// SampleRate returns the engine's render rate.
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

// Slots returns the number of sample slots.
func (e *Engine) Slots() int { return len(e.slots) }
