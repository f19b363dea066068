package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies stage failures for the terminal message and tests.
type ErrorKind string

const (
	// KindInputOverflow: the assembled prompt exceeded the budget and the
	// single condensation retry also overflowed.
	KindInputOverflow ErrorKind = "input-overflow"

	// KindStructuralNonconformance: writer/quality output failed
	// validation after the bounded repair loop.
	KindStructuralNonconformance ErrorKind = "structural-nonconformance"

	// KindCapabilityFailure: the generation capability errored or timed
	// out after bounded retries.
	KindCapabilityFailure ErrorKind = "capability-failure"

	// KindDependencyUnmet: a declared upstream artifact is missing.
	KindDependencyUnmet ErrorKind = "dependency-unmet"
)

// ErrDependencyUnmet is wrapped inside DependencyUnmet stage errors.
var ErrDependencyUnmet = errors.New("pipeline: dependency unmet")

// StageError is the single error type stage failures surface as. The run
// halts at the failing stage but stays resumable.
type StageError struct {
	Stage StageID
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AsStageError extracts a StageError from an error chain.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
