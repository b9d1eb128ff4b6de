package peer

import (
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// Phase is the lifecycle state of a run.
type Phase string

const (
	PhaseInit     Phase = "INIT"
	PhaseIterate  Phase = "ITERATE"
	PhaseFinalize Phase = "FINALIZE"
)

// FaultClass classifies the errors that abort a run.
type FaultClass string

const (
	RangeViolation       FaultClass = "RangeViolation"
	ProtocolAbort        FaultClass = "ProtocolAbort"
	InvalidConfiguration FaultClass = "InvalidConfiguration"
)

var (
	// ErrRangeViolation is returned when a value exceeds the agreed bit length.
	ErrRangeViolation = xerrors.New("range violation")
	// ErrProtocolAbort is returned when a run can not complete.
	ErrProtocolAbort = xerrors.New("protocol abort")
	// ErrInvalidConfiguration is returned when parameters are rejected before
	// the first round.
	ErrInvalidConfiguration = xerrors.New("invalid configuration")

	// ErrPartyUnavailable is returned when a party did not answer in time.
	ErrPartyUnavailable = xerrors.New("party unavailable")
	// ErrShareInconsistency is returned when received shares do not lie on a
	// polynomial of the expected degree.
	ErrShareInconsistency = xerrors.New("share inconsistency")
)

// Classify returns the fault class of err.
func Classify(err error) FaultClass {
	switch {
	case errors.Is(err, ErrRangeViolation):
		return RangeViolation
	case errors.Is(err, ErrInvalidConfiguration):
		return InvalidConfiguration
	default:
		return ProtocolAbort
	}
}

// ClassError returns the sentinel error of a fault class.
func ClassError(class FaultClass) error {
	switch class {
	case RangeViolation:
		return ErrRangeViolation
	case InvalidConfiguration:
		return ErrInvalidConfiguration
	default:
		return ErrProtocolAbort
	}
}

// RunError is the error returned by a run that aborted.
type RunError struct {
	RunID string
	Phase Phase
	Class FaultClass
	Err   error
}

// NewRunError wraps err into a RunError. An error that already is a RunError
// is returned as is.
func NewRunError(runID string, phase Phase, err error) *RunError {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr
	}

	return &RunError{
		RunID: runID,
		Phase: phase,
		Class: Classify(err),
		Err:   err,
	}
}

// Error implements error.
func (e *RunError) Error() string {
	return fmt.Sprintf("run %s aborted during %s (%s): %v", e.RunID, e.Phase, e.Class, e.Err)
}

// Unwrap returns the cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's class.
func (e *RunError) Is(target error) bool {
	return target == ClassError(e.Class)
}
