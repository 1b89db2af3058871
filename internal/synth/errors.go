package synth

import "errors"

var (
	// ErrExperimentComplete signals that every configured epoch has been generated.
	// The orchestrator converts it into the completed status.
	ErrExperimentComplete = errors.New("experiment already reached num_epochs")
	ErrNotCompleted       = errors.New("experiment is not completed")
	ErrOutOfRange         = errors.New("slice index out of range")
	ErrInvalidEpoch       = errors.New("epoch must be >= 1")
	ErrUnknownMethod      = errors.New("unknown pretraining method")
	ErrInvalidSampleCount = errors.New("invalid sample count")
	ErrInvalidCatalogue   = errors.New("invalid generator catalogue")
)
