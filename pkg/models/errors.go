package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable error classification returned in API
// responses so callers can branch without parsing messages.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation_error"
	KindDuplicateSlot     ErrorKind = "duplicate_slot"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindAssignmentLost    ErrorKind = "concurrent_assignment_lost"
	KindNotFound          ErrorKind = "not_found"
	KindUnavailable       ErrorKind = "dependency_unavailable"
	KindInternal          ErrorKind = "internal_error"
)

var (
	// ErrSlotTaken is returned when a conditional assignment finds the slot
	// already claimed by a concurrent writer. Callers should refresh and pick
	// another vacancy.
	ErrSlotTaken = errors.New("slot no longer available")

	// ErrDuplicateSlot marks a generation conflict on an existing
	// (patient, day, type) combination. Treated as a skip, never a failure.
	ErrDuplicateSlot = errors.New("slot already exists for patient, day and type")

	// ErrSlotNotFound is returned when a shift id does not resolve to a row.
	ErrSlotNotFound = errors.New("shift slot not found")

	// ErrPatientNotFound is returned when a patient reference does not exist.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrStoreUnavailable wraps data-store connectivity failures. Retryable.
	ErrStoreUnavailable = errors.New("data store unavailable")
)

// ValidationError rejects malformed input before any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidTransitionError names the current and requested state of a rejected
// lifecycle transition. The slot is left untouched.
type InvalidTransitionError struct {
	From ShiftStatus
	To   ShiftStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// KindOf maps an error from the scheduling core to its API classification.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	var te *InvalidTransitionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &te):
		return KindInvalidTransition
	case errors.Is(err, ErrSlotTaken):
		return KindAssignmentLost
	case errors.Is(err, ErrDuplicateSlot):
		return KindDuplicateSlot
	case errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrPatientNotFound):
		return KindNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return KindUnavailable
	}
	return KindInternal
}
