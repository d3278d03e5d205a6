// Package integration holds the clients for the collaborating services:
// party eligibility lookups, the lifecycle event notifier, and the
// billing/prescription callbacks fired on completion. Everything here is
// an external dependency of the scheduling engine; only the eligibility
// lookups may fail a scheduling operation, and only under the fail-closed
// policy.
package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/appointment-service/internal/domain/appointment"
)

var (
	ErrPartyNotEligible = errors.New("party is not eligible for booking")
	// ErrDependencyUnavailable is surfaced only under the fail-closed
	// eligibility policy; fail-open logs a warning instead.
	ErrDependencyUnavailable = errors.New("required collaborator service is unavailable")
)

// EligibilityError reports which party failed the eligibility check and why.
type EligibilityError struct {
	Party  appointment.Party
	Reason string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("%s not eligible: %s", e.Party, e.Reason)
}

func (e *EligibilityError) Is(target error) bool {
	return target == ErrPartyNotEligible
}

type EventType string

const (
	EventScheduled   EventType = "appointment.scheduled"
	EventRescheduled EventType = "appointment.rescheduled"
	EventCancelled   EventType = "appointment.cancelled"
	EventCompleted   EventType = "appointment.completed"
)

type Slot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Event is the lifecycle record handed to the notification service.
// Delivery is best-effort and at-most-once; it never rolls back the
// transaction that produced it.
type Event struct {
	Type            EventType          `json:"event_type"`
	AppointmentID   uuid.UUID          `json:"appointment_id"`
	ProviderID      uuid.UUID          `json:"provider_id"`
	RequesterID     uuid.UUID          `json:"requester_id"`
	ResourceGroupID *uuid.UUID         `json:"resource_group_id,omitempty"`
	Slot            *Slot              `json:"slot,omitempty"`
	OldSlot         *Slot              `json:"old_slot,omitempty"`
	NewSlot         *Slot              `json:"new_slot,omitempty"`
	Status          appointment.Status `json:"status"`
	Version         int                `json:"version,omitempty"`
	RescheduleCount int                `json:"reschedule_count,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`
}

// PartyDirectory answers "may this party hold an appointment right now".
type PartyDirectory interface {
	VerifyRequester(ctx context.Context, requesterID uuid.UUID) error
	VerifyProvider(ctx context.Context, providerID uuid.UUID, resourceGroupID *uuid.UUID) error
}

// EventNotifier dispatches lifecycle events. The boolean result is a
// delivery flag for observability; callers must not treat false as an
// operation failure.
type EventNotifier interface {
	Emit(ctx context.Context, ev Event) bool
}

type Bill struct {
	BillID      string  `json:"bill_id"`
	TotalAmount float64 `json:"total_amount"`
}

type Prescription struct {
	PrescriptionID string `json:"prescription_id"`
	Medication     string `json:"medication"`
	Dosage         string `json:"dosage"`
	Days           int    `json:"days"`
}

// BillingClient creates a bill when an appointment completes. Best-effort:
// the scheduling engine records failure but never propagates it.
type BillingClient interface {
	CreateBill(ctx context.Context, requesterID, appointmentID uuid.UUID) (*Bill, error)
}

type PrescriptionClient interface {
	CreatePrescription(ctx context.Context, appointmentID, requesterID, providerID uuid.UUID) (*Prescription, error)
}
