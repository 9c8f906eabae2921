package padgrid

// BankParams are the per-slot playback defaults. Every trigger of the slot
// starts from these: the cell's volume multiplies Volume, the cell's pitch,
// when set, replaces Pitch.
type BankParams struct {
	Volume float64
	Pitch  float64
}

// DefaultBankParams plays at full gain and original speed.
func DefaultBankParams() BankParams {
	return BankParams{Volume: 1, Pitch: 1}
}

// Clamp returns the params brought into the supported ranges.
func (b BankParams) Clamp() BankParams {
	return BankParams{
		Volume: ClampVolume(b.Volume),
		Pitch:  ClampPitch(b.Pitch),
	}
}

// TriggerGain is the effective gain of a cell triggering this bank slot.
func (b BankParams) TriggerGain(cell Cell) float64 {
	return ClampVolume(cell.Volume.Or(1) * b.Volume)
}

// TriggerPitch is the effective pitch ratio of a cell triggering this bank
// slot.
func (b BankParams) TriggerPitch(cell Cell) float64 {
	return ClampPitch(cell.Pitch.Or(b.Pitch))
}
