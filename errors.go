package padgrid

import "errors"

// Sentinel errors returned by the control API. Callers can test for them
// with errors.Is; most are returned wrapped with the offending index or
// path for context.
var (
	ErrInvalidIndex     = errors.New("index out of range")
	ErrNotLoaded        = errors.New("slot has no sample loaded")
	ErrNotInitialized   = errors.New("engine is closed")
	ErrDecodeFailure    = errors.New("sample could not be decoded")
	ErrIOFailure        = errors.New("i/o failure")
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrMemoryLimit      = errors.New("sample memory budget exceeded")
)
