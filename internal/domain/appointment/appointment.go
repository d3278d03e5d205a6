package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// State transition possibilities:
//
//	SCHEDULED → CONFIRMED → COMPLETED
//	SCHEDULED/CONFIRMED → SCHEDULED (reschedule, provider must re-confirm)
//	SCHEDULED/CONFIRMED → CANCELLED
//	SCHEDULED/CONFIRMED → NO_SHOW
//
// COMPLETED, CANCELLED and NO_SHOW are terminal.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// IsActive reports whether an appointment in this status occupies its
// slot. Only active appointments participate in conflict detection,
// which is why cancelling immediately frees the slot.
func (s Status) IsActive() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Party identifies which side of a booking a resource belongs to.
type Party string

const (
	PartyProvider  Party = "provider"
	PartyRequester Party = "requester"
)

type Appointment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	ProviderID  uuid.UUID `gorm:"column:provider_id;type:uuid;not null;index"`
	RequesterID uuid.UUID `gorm:"column:requester_id;type:uuid;not null;index"`
	// ResourceGroupID is checked against the provider at booking time
	// only; rescheduling changes the slot, never the parties.
	ResourceGroupID *uuid.UUID `gorm:"column:resource_group_id;type:uuid"`

	StartTime    time.Time `gorm:"column:start_time;not null;index"`
	DurationMins int       `gorm:"column:duration_mins;not null;default:30"`
	Status       Status    `gorm:"column:status;type:varchar(20);not null;default:'SCHEDULED';index"`

	RescheduleCount int `gorm:"column:reschedule_count;not null;default:0"`
	// Version is the optimistic-concurrency token; it increases by one
	// on every committed mutation and never otherwise.
	Version int `gorm:"column:version;not null;default:1"`

	Reason string `gorm:"column:reason;type:text"`
	Notes  string `gorm:"column:notes;type:text"`

	CancelledAt *time.Time `gorm:"column:cancelled_at"`
}

func (Appointment) TableName() string {
	return "scheduling.appointments"
}

// EndsAt returns the exclusive end of the slot: the interval is
// [StartTime, EndsAt).
func (a *Appointment) EndsAt() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMins) * time.Minute)
}

// OverlapsInterval applies the half-open overlap rule: [a,b) and [c,d)
// intersect iff a < d && c < b. Back-to-back slots do not overlap.
func (a *Appointment) OverlapsInterval(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndsAt())
}

func (a *Appointment) CanTransitionTo(next Status) bool {
	allowed := map[Status][]Status{
		StatusScheduled: {StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow},
		StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
		StatusCompleted: {},
		StatusCancelled: {},
		StatusNoShow:    {},
	}

	for _, s := range allowed[a.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// Confirm moves a SCHEDULED appointment to CONFIRMED.
func (a *Appointment) Confirm() error {
	if a.Status != StatusScheduled {
		return &TransitionError{From: a.Status, To: StatusConfirmed}
	}
	a.Status = StatusConfirmed
	a.Version++
	return nil
}

func (a *Appointment) Complete() error {
	if !a.CanTransitionTo(StatusCompleted) {
		return &TransitionError{From: a.Status, To: StatusCompleted}
	}
	a.Status = StatusCompleted
	a.Version++
	return nil
}

// Cancel marks the appointment cancelled and appends the reason to the
// notes. Cancelled rows are kept for history, never deleted.
func (a *Appointment) Cancel(reason string, now time.Time) error {
	if !a.CanTransitionTo(StatusCancelled) {
		return &TransitionError{From: a.Status, To: StatusCancelled}
	}
	a.Status = StatusCancelled
	cancelledAt := now
	a.CancelledAt = &cancelledAt
	a.Version++
	if reason != "" {
		a.Notes = strings.TrimSpace(a.Notes + "\nCancellation reason: " + reason)
	}
	return nil
}

func (a *Appointment) MarkNoShow() error {
	if !a.CanTransitionTo(StatusNoShow) {
		return &TransitionError{From: a.Status, To: StatusNoShow}
	}
	a.Status = StatusNoShow
	a.Version++
	return nil
}

// Reschedule replaces the slot and resets the status to SCHEDULED so the
// provider has to re-confirm. Guard checks (quota, cutoff, conflicts)
// belong to the scheduling service; only the transition guard lives here.
func (a *Appointment) Reschedule(newStart time.Time, durationMins int) error {
	if !a.Status.IsActive() {
		return &TransitionError{From: a.Status, To: StatusScheduled}
	}
	a.StartTime = newStart
	a.DurationMins = durationMins
	a.Status = StatusScheduled
	a.RescheduleCount++
	a.Version++
	return nil
}

type BookCommand struct {
	ProviderID      uuid.UUID
	RequesterID     uuid.UUID
	ResourceGroupID *uuid.UUID
	StartTime       time.Time
	DurationMins    int
	Reason          string
	Notes           string
}

type RescheduleCommand struct {
	StartTime    time.Time
	DurationMins *int // nil keeps the current duration
	Reason       string
	Notes        string
	// ExpectedVersion, when set, rejects the mutation with
	// ErrVersionConflict if a concurrent change happened first.
	ExpectedVersion *int
}

type CancelCommand struct {
	Reason          string
	ExpectedVersion *int
}

// ListQuery filters the per-party read accessors.
type ListQuery struct {
	Status *Status
	From   *time.Time
	To     *time.Time
}
