package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/multiviral/api/internal/store"
)

var (
	// ErrAcquisition covers bad or unsupported sources and download failures
	ErrAcquisition = errors.New("acquisition failed")

	// ErrExtraction indicates the media could not be converted to audio
	ErrExtraction = errors.New("audio extraction failed")

	// ErrTranscription indicates every transcription tier failed
	ErrTranscription = errors.New("transcription failed")

	// ErrGeneration is reserved for the authoritative generation tier
	ErrGeneration = errors.New("content generation failed")

	// ErrParse indicates provider output was not recoverable as the content bundle
	ErrParse = errors.New("unparseable provider output")

	// ErrConflict indicates a start was requested from a non-startable status
	ErrConflict = errors.New("invalid state transition")

	// ErrNotFound indicates an unknown job identifier
	ErrNotFound = store.ErrNotFound
)

// StageError is a stage-aware pipeline failure. Message is the one-line
// text surfaced through the status interface.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func stageError(stage string, kind error, message string, cause error) *StageError {
	if cause == nil {
		return &StageError{Stage: stage, Message: message, Err: kind}
	}
	return &StageError{Stage: stage, Message: message, Err: fmt.Errorf("%w: %w", kind, cause)}
}

// userMessage flattens an error into the single line stored on the job.
func userMessage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return oneLine(se.Message)
	}
	return oneLine(err.Error())
}

const maxErrorMessage = 300

func oneLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			s = s[:i]
			break
		}
	}
	if r := []rune(s); len(r) > maxErrorMessage {
		s = string(r[:maxErrorMessage]) + "..."
	}
	return strings.TrimSpace(s)
}
