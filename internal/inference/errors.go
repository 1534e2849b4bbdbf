package inference

import (
	"errors"
	"fmt"
)

// ErrInferenceFailure matches every *InferenceError via errors.Is
var ErrInferenceFailure = errors.New("inference failure")

// Components named in an InferenceError
const (
	ComponentTranscription = "transcription"
	ComponentDiarization   = "diarization"
	ComponentValidation    = "validation"
)

// InferenceError reports a failed or malformed collaborator call for one chunk
type InferenceError struct {
	Component  string
	ChunkIndex int
	Err        error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failure in %s (chunk %d): %v", e.Component, e.ChunkIndex, e.Err)
}

// Unwrap returns the underlying cause
func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInferenceFailure) true
func (e *InferenceError) Is(target error) bool {
	return target == ErrInferenceFailure
}
