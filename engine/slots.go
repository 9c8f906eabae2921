package engine

import (
	"errors"
	"fmt"

	"github.com/padgrid/padgrid"
	"github.com/padgrid/padgrid/sample"
)

// LoadMode selects how a slot keeps its sample.
type LoadMode int

const (
	// LoadModeMemory decodes the whole file up front; playback touches only
	// memory.
	LoadModeMemory LoadMode = iota
	// LoadModeStreamed keeps a small window of the file decoded, refilled
	// from disk by a prefetch goroutine. Falls back to LoadModeMemory for
	// files that cannot be streamed (anything but integer PCM wav).
	LoadModeStreamed
)

// slotData is the immutable published state of one sample slot. The render
// goroutine loads it through an atomic pointer and trusts every field; a
// slot changes by publishing a fresh slotData, never by mutating one.
type slotData struct {
	data   *sample.Data
	stream *sample.Stream
	path   string
	mode   LoadMode
	mem    int64
}

func (s *slotData) sourceRate() int {
	if s.stream != nil {
		return s.stream.SampleRate()
	}
	return s.data.SampleRate
}

// LoadSlot loads the audio file into the slot, replacing whatever was there.
// A voice playing the previous sample winds down at the next block boundary.
// Loads that would push the total decoded memory over the configured budget
// fail with padgrid.ErrMemoryLimit and leave the slot unchanged.
func (e *Engine) LoadSlot(slot int, path string, mode LoadMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if slot < 0 || slot >= len(e.slots) {
		return fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	sd := &slotData{path: path, mode: mode}
	if mode == LoadModeStreamed {
		stream, err := sample.OpenStream(path)
		switch {
		case err == nil:
			sd.stream = stream
			sd.mem = stream.MemoryUsage()
		case errors.Is(err, padgrid.ErrIOFailure):
			return err
		default:
			// not streamable; decode it fully instead
			sd.mode = LoadModeMemory
		}
	}
	if sd.stream == nil {
		data, err := sample.Load(path)
		if err != nil {
			return err
		}
		sd.data = data
		sd.mem = data.MemoryUsage()
	}
	var oldMem int64
	if old := e.slots[slot].Load(); old != nil {
		oldMem = old.mem
	}
	if e.totalMem.Load()-oldMem+sd.mem > e.cfg.MaxMemoryBytes {
		if sd.stream != nil {
			sd.stream.Close()
		}
		return fmt.Errorf("loading %v (%d bytes): %w", path, sd.mem, padgrid.ErrMemoryLimit)
	}
	e.publishSlot(slot, sd)
	return nil
}

// UnloadSlot empties the slot. The voice playing it winds down at the next
// block boundary; the decoded data is reclaimed once no voice references it.
func (e *Engine) UnloadSlot(slot int) error {
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
	e.publishSlot(slot, nil)
	return nil
}

// publishSlot swaps the published sample under the slot, settles the memory
// accounting and tells the mixer. Callers hold e.mu.
func (e *Engine) publishSlot(slot int, sd *slotData) {
	old := e.slots[slot].Swap(sd)
	var oldMem, newMem int64
	if old != nil {
		oldMem = old.mem
	}
	if sd != nil {
		newMem = sd.mem
	}
	e.totalMem.Add(newMem - oldMem)
	if old != nil && old.stream != nil {
		// safe while a voice still reads it; reads turn silent
		old.stream.Close()
	}
	e.toRender <- msgSlotChanged{slot: slot}
}

// SlotLoaded reports whether the slot has a sample. Out-of-range slots
// report false.
func (e *Engine) SlotLoaded(slot int) bool {
	if slot < 0 || slot >= len(e.slots) {
		return false
	}
	return e.slots[slot].Load() != nil
}

// SlotMemoryUsage returns the bytes held by the slot: the decoded size in
// memory mode, the resident window size in streamed mode.
func (e *Engine) SlotMemoryUsage(slot int) (int64, error) {
	if slot < 0 || slot >= len(e.slots) {
		return 0, fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	sd := e.slots[slot].Load()
	if sd == nil {
		return 0, nil
	}
	return sd.mem, nil
}

// TotalMemoryUsage returns the bytes held by all loaded slots.
func (e *Engine) TotalMemoryUsage() int64 {
	return e.totalMem.Load()
}

// AvailableMemoryCapacity returns how many more bytes of sample data can be
// loaded before hitting the configured budget.
func (e *Engine) AvailableMemoryCapacity() int64 {
	if free := e.cfg.MaxMemoryBytes - e.totalMem.Load(); free > 0 {
		return free
	}
	return 0
}

// SetBankVolume sets the slot's default gain, clamped to 0..1. Cells
// without a volume override trigger at this gain; cells with one multiply
// it.
func (e *Engine) SetBankVolume(slot int, volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if slot < 0 || slot >= len(e.bank) {
		return fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	e.bank[slot].Volume = padgrid.ClampVolume(volume)
	e.toRender <- msgBank{slot: slot, params: e.bank[slot]}
	return nil
}

// BankVolume returns the slot's default gain.
func (e *Engine) BankVolume(slot int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, padgrid.ErrNotInitialized
	}
	if slot < 0 || slot >= len(e.bank) {
		return 0, fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	return e.bank[slot].Volume, nil
}

// SetBankPitch sets the slot's default pitch ratio, clamped to
// [padgrid.MinPitch, padgrid.MaxPitch]. Cells without a pitch override
// trigger at this ratio.
func (e *Engine) SetBankPitch(slot int, pitch float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return padgrid.ErrNotInitialized
	}
	if slot < 0 || slot >= len(e.bank) {
		return fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	e.bank[slot].Pitch = padgrid.ClampPitch(pitch)
	e.toRender <- msgBank{slot: slot, params: e.bank[slot]}
	return nil
}

// BankPitch returns the slot's default pitch ratio.
func (e *Engine) BankPitch(slot int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, padgrid.ErrNotInitialized
	}
	if slot < 0 || slot >= len(e.bank) {
		return 0, fmt.Errorf("slot %d: %w", slot, padgrid.ErrInvalidIndex)
	}
	return e.bank[slot].Pitch, nil
}
