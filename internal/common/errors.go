package common

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline stage an error originated from.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageStructure Stage = "structure"
	StageFill      Stage = "fill"
)

// Kind is the stable, machine-readable failure classification surfaced to
// callers. The boundary maps kinds to transport status codes.
type Kind string

const (
	KindUnsupportedFormat    Kind = "UNSUPPORTED_FORMAT"
	KindCorruptDocument      Kind = "CORRUPT_DOCUMENT"
	KindNoExtractableText    Kind = "NO_EXTRACTABLE_TEXT"
	KindStructuringFailed    Kind = "STRUCTURING_FAILED"
	KindUpstreamUnavailable  Kind = "UPSTREAM_UNAVAILABLE"
	KindIncompleteExtraction Kind = "INCOMPLETE_EXTRACTION"
	KindTemplateNotFound     Kind = "TEMPLATE_NOT_FOUND"
	KindMappingMismatch      Kind = "MAPPING_MISMATCH"
	KindTimeout              Kind = "TIMEOUT"
)

// StageError is a failure tagged with its originating stage and kind.
// Stages return these directly; the orchestrator propagates them untouched.
type StageError struct {
	Stage   Stage
	Kind    Kind
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Stage, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

func NewStageError(stage Stage, kind Kind, message string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Message: message, Cause: cause}
}

func StageErrorf(stage Stage, kind Kind, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the failure kind carried by err, or "" if err is not a
// StageError.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// StageOf returns the originating stage carried by err, or "" if err is not
// a StageError.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
