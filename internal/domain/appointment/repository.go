package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// InTx runs fn against a repository bound to a single serializable
	// transaction. Conflict checks and the write they guard must share
	// one transaction, otherwise two concurrent bookings can both pass
	// the check and both commit.
	InTx(ctx context.Context, fn func(tx Repository) error) error

	// Create persists a new appointment and fills in its ID.
	Create(ctx context.Context, a *Appointment) error

	// GetByID returns ErrAppointmentNotFound when no row exists.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Update persists a mutated appointment, guarded by the version the
	// row held before the mutation. Returns ErrVersionConflict when the
	// stored version no longer matches.
	Update(ctx context.Context, a *Appointment, previousVersion int) error

	// ListActiveByParty returns all SCHEDULED/CONFIRMED appointments
	// held by one side of a booking, optionally excluding one row (used
	// during reschedule so an appointment cannot conflict with itself).
	ListActiveByParty(ctx context.Context, party Party, partyID uuid.UUID, excludeID *uuid.UUID) ([]*Appointment, error)

	// ListByParty is the read accessor behind the provider/requester
	// listing endpoints, ordered by start time.
	ListByParty(ctx context.Context, party Party, partyID uuid.UUID, q *ListQuery) ([]*Appointment, error)
}
