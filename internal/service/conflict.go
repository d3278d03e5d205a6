package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/appointment-service/internal/domain/appointment"
)

// checkSlotFree verifies neither party holds an active appointment
// overlapping [start, start+duration). The provider side is checked
// first so double-booked staff is the error a caller sees when both
// sides collide. Must run inside the same transaction as the write it
// guards.
func checkSlotFree(ctx context.Context, repo appointment.Repository, candidate *appointment.Appointment, excludeID *uuid.UUID) error {
	start := candidate.StartTime
	end := candidate.EndsAt()

	if err := checkPartyFree(ctx, repo, appointment.PartyProvider, candidate.ProviderID, start, end, excludeID); err != nil {
		return err
	}
	return checkPartyFree(ctx, repo, appointment.PartyRequester, candidate.RequesterID, start, end, excludeID)
}

func checkPartyFree(ctx context.Context, repo appointment.Repository, party appointment.Party, partyID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) error {
	existing, err := repo.ListActiveByParty(ctx, party, partyID, excludeID)
	if err != nil {
		return err
	}
	for _, a := range existing {
		if a.OverlapsInterval(start, end) {
			return &appointment.SlotConflictError{Party: party}
		}
	}
	return nil
}
