package padgrid

// AudioBuffer is a buffer of stereo audio samples of variable length, each
// sample represented by [2]float32. [0] is left channel, [1] is right.
type AudioBuffer [][2]float32

type AudioSink interface {
	WriteAudio(buffer AudioBuffer) error
	Close() error
}

type AudioContext interface {
	Output() AudioSink
	Close() error
}

const (
	// DefaultSampleRate is the render rate of the engine unless configured
	// otherwise. Samples recorded at other rates are resampled on the fly.
	DefaultSampleRate = 48000

	// DefaultSlots is the number of sample slots, one per pad A..Z.
	DefaultSlots = 26

	// DefaultColumns is the number of grid columns when not configured.
	DefaultColumns = 16

	// DefaultSteps is the number of steps in a freshly constructed grid.
	DefaultSteps = 16

	// DefaultStepsPerBeat makes a step a sixteenth note.
	DefaultStepsPerBeat = 4

	DefaultBPM = 120

	// MaxSteps and MaxColumns bound the grid dimensions.
	MaxSteps   = 2048
	MaxColumns = 16

	MinBPM = 1
	MaxBPM = 300

	// MinPitch and MaxPitch bound all pitch ratios, five octaves either way.
	MinPitch = 0.03125
	MaxPitch = 32.0

	// DefaultMaxMemory is the total decoded-sample budget for memory-mode
	// slots, unless configured otherwise.
	DefaultMaxMemory = 100 * 1024 * 1024
)

// SamplesPerStep returns the length of a sequencer step in samples at the
// given sample rate. The result is fractional; the clock accumulates the
// fraction so that step boundaries never drift.
func SamplesPerStep(sampleRate, bpm, stepsPerBeat int) float64 {
	if divisor := bpm * stepsPerBeat; divisor > 0 {
		return float64(sampleRate) * 60 / float64(divisor)
	}
	return 0
}

// ClampBPM clamps bpm to the supported range.
func ClampBPM(bpm int) int {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

// ClampPitch clamps a pitch ratio to the supported range. The zero value is
// mapped to 1 so that uninitialized parameters play at the original speed.
func ClampPitch(pitch float64) float64 {
	if pitch == 0 {
		return 1
	}
	if pitch < MinPitch {
		return MinPitch
	}
	if pitch > MaxPitch {
		return MaxPitch
	}
	return pitch
}

// ClampVolume clamps a gain value to 0..1.
func ClampVolume(volume float64) float64 {
	if volume < 0 {
		return 0
	}
	if volume > 1 {
		return 1
	}
	return volume
}
