package intake

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrFieldPopulated  = errors.New("field already populated")
	ErrUnknownField    = errors.New("unknown field path")
	ErrPhaseRegression = errors.New("phase regression")
	ErrEmptyPatientID  = errors.New("patient_id is required")
)

// PersistenceError reports a failed save. The turn's result is retained
// and a retry of the same utterance resumes from it.
type PersistenceError struct {
	PatientID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist record %s: %v", e.PatientID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Retryable is always true for persistence failures.
func (e *PersistenceError) Retryable() bool { return true }
