package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrVersionConflict means a concurrent mutation committed first;
	// the caller should reload and retry.
	ErrVersionConflict = errors.New("appointment was modified concurrently")
	ErrSlotConflict    = errors.New("time slot is already booked")
	ErrRuleViolation   = errors.New("scheduling rule violated")
	ErrInvalidStatus   = errors.New("invalid appointment status")
)

// RuleViolation names the business rule a candidate slot broke.
type RuleViolation string

const (
	ViolationOutsideOperatingHours  RuleViolation = "OutsideOperatingHours"
	ViolationInsufficientLeadTime   RuleViolation = "InsufficientLeadTime"
	ViolationRescheduleLimitReached RuleViolation = "RescheduleLimitExceeded"
	ViolationTooCloseToCutoff       RuleViolation = "TooCloseToCutoff"
	ViolationInvalidDuration        RuleViolation = "InvalidDuration"
)

// RuleError is returned by the validation pipeline; the message carries
// the offending constraint values.
type RuleError struct {
	Violation RuleViolation
	Message   string
}

func (e *RuleError) Error() string {
	return e.Message
}

func (e *RuleError) Is(target error) bool {
	return target == ErrRuleViolation
}

// SlotConflictError identifies which party already holds an overlapping
// active appointment.
type SlotConflictError struct {
	Party Party
}

func (e *SlotConflictError) Error() string {
	if e.Party == PartyRequester {
		return "requester already has an appointment in this time slot"
	}
	return "provider is not available in this time slot"
}

func (e *SlotConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}

// TransitionError reports an operation that is not legal from the
// appointment's current status.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition appointment from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStatus
}
