package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicops/appointment-service/internal/config"
	"github.com/clinicops/appointment-service/internal/domain/appointment"
	"github.com/clinicops/appointment-service/internal/integration"
	"github.com/clinicops/appointment-service/internal/locking"
)

// SchedulingService is the appointment engine. Every mutating operation
// follows the same shape: validate against the rule pipeline, then run
// the conflict check and the write inside one serializable transaction,
// then fire best-effort side effects after the commit. Side effects can
// fail; committed state never depends on them.
type SchedulingService struct {
	repo          appointment.Repository
	directory     integration.PartyDirectory
	notifier      integration.EventNotifier
	billing       integration.BillingClient
	prescriptions integration.PrescriptionClient
	locker        locking.Locker
	cfg           config.SchedulingConfig
	logger        *zap.Logger

	// now is swapped out in tests to pin the lead-time and cutoff rules.
	now func() time.Time
}

func NewSchedulingService(
	repo appointment.Repository,
	directory integration.PartyDirectory,
	notifier integration.EventNotifier,
	billing integration.BillingClient,
	prescriptions integration.PrescriptionClient,
	locker locking.Locker,
	cfg config.SchedulingConfig,
	logger *zap.Logger,
) *SchedulingService {
	return &SchedulingService{
		repo:          repo,
		directory:     directory,
		notifier:      notifier,
		billing:       billing,
		prescriptions: prescriptions,
		locker:        locker,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// Book creates a new SCHEDULED appointment. Eligibility lookups run
// before the transaction; the slot conflict check and the insert share
// a serializable transaction so two concurrent requests for the same
// slot cannot both succeed.
func (s *SchedulingService) Book(ctx context.Context, cmd appointment.BookCommand) (*appointment.Appointment, error) {
	duration := cmd.DurationMins
	if duration == 0 {
		duration = s.cfg.DefaultDuration
	}
	now := s.now()

	if err := runChecks(
		func() error { return checkDuration(duration, s.cfg) },
		func() error { return checkOperatingHours(cmd.StartTime, s.cfg) },
		func() error { return checkLeadTime(cmd.StartTime, now, s.cfg) },
	); err != nil {
		return nil, err
	}

	if err := s.directory.VerifyRequester(ctx, cmd.RequesterID); err != nil {
		return nil, err
	}
	if err := s.directory.VerifyProvider(ctx, cmd.ProviderID, cmd.ResourceGroupID); err != nil {
		return nil, err
	}

	appt := &appointment.Appointment{
		ProviderID:      cmd.ProviderID,
		RequesterID:     cmd.RequesterID,
		ResourceGroupID: cmd.ResourceGroupID,
		StartTime:       cmd.StartTime.UTC(),
		DurationMins:    duration,
		Status:          appointment.StatusScheduled,
		Version:         1,
		Reason:          cmd.Reason,
		Notes:           cmd.Notes,
	}

	err := s.withProviderLock(ctx, cmd.ProviderID, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(tx appointment.Repository) error {
			if err := checkSlotFree(ctx, tx, appt, nil); err != nil {
				return err
			}
			return tx.Create(ctx, appt)
		})
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, integration.Event{
		Type:            integration.EventScheduled,
		AppointmentID:   appt.ID,
		ProviderID:      appt.ProviderID,
		RequesterID:     appt.RequesterID,
		ResourceGroupID: appt.ResourceGroupID,
		Slot:            slotOf(appt),
		Status:          appt.Status,
		Version:         appt.Version,
	})

	return appt, nil
}

// Reschedule moves an existing appointment to a new slot. The record is
// re-read inside the transaction, so the quota, cutoff and version
// checks always see the committed state, not the state the caller last
// fetched.
func (s *SchedulingService) Reschedule(ctx context.Context, id uuid.UUID, cmd appointment.RescheduleCommand) (*appointment.Appointment, error) {
	var (
		appt    *appointment.Appointment
		oldSlot *integration.Slot
	)
	now := s.now()

	run := func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(tx appointment.Repository) error {
			current, err := tx.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if err := checkExpectedVersion(current, cmd.ExpectedVersion); err != nil {
				return err
			}
			if !current.Status.IsActive() {
				return &appointment.TransitionError{From: current.Status, To: appointment.StatusScheduled}
			}

			duration := current.DurationMins
			if cmd.DurationMins != nil {
				duration = *cmd.DurationMins
			}

			if err := runChecks(
				func() error { return checkDuration(duration, s.cfg) },
				func() error { return checkOperatingHours(cmd.StartTime, s.cfg) },
				func() error { return checkLeadTime(cmd.StartTime, now, s.cfg) },
				func() error { return checkRescheduleQuota(current.RescheduleCount, s.cfg) },
				func() error { return checkRescheduleCutoff(current.StartTime, now, s.cfg) },
			); err != nil {
				return err
			}

			oldSlot = slotOf(current)
			previousVersion := current.Version

			if err := current.Reschedule(cmd.StartTime.UTC(), duration); err != nil {
				return err
			}
			if cmd.Reason != "" {
				current.Reason = cmd.Reason
			}
			if cmd.Notes != "" {
				current.Notes = cmd.Notes
			}

			if err := checkSlotFree(ctx, tx, current, &current.ID); err != nil {
				return err
			}
			if err := tx.Update(ctx, current, previousVersion); err != nil {
				return err
			}
			appt = current
			return nil
		})
	}

	// The provider lock key is only known after the row is loaded, so a
	// short read precedes the locked section.
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.withProviderLock(ctx, current.ProviderID, run); err != nil {
		return nil, err
	}

	s.emit(ctx, integration.Event{
		Type:            integration.EventRescheduled,
		AppointmentID:   appt.ID,
		ProviderID:      appt.ProviderID,
		RequesterID:     appt.RequesterID,
		ResourceGroupID: appt.ResourceGroupID,
		OldSlot:         oldSlot,
		NewSlot:         slotOf(appt),
		Status:          appt.Status,
		Version:         appt.Version,
		RescheduleCount: appt.RescheduleCount,
	})

	return appt, nil
}

// Cancel releases the slot immediately: the row flips to CANCELLED and
// stops participating in conflict detection. Cancelled rows are kept.
func (s *SchedulingService) Cancel(ctx context.Context, id uuid.UUID, cmd appointment.CancelCommand) (*appointment.Appointment, error) {
	now := s.now()
	appt, err := s.mutate(ctx, id, cmd.ExpectedVersion, func(a *appointment.Appointment) error {
		return a.Cancel(cmd.Reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, integration.Event{
		Type:          integration.EventCancelled,
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		RequesterID:   appt.RequesterID,
		Slot:          slotOf(appt),
		Status:        appt.Status,
		Version:       appt.Version,
		CancelledAt:   appt.CancelledAt,
	})

	return appt, nil
}

// Confirm acknowledges a SCHEDULED appointment.
func (s *SchedulingService) Confirm(ctx context.Context, id uuid.UUID, expectedVersion *int) (*appointment.Appointment, error) {
	return s.mutate(ctx, id, expectedVersion, func(a *appointment.Appointment) error {
		return a.Confirm()
	})
}

// MarkNoShow records that the requester never arrived.
func (s *SchedulingService) MarkNoShow(ctx context.Context, id uuid.UUID, expectedVersion *int) (*appointment.Appointment, error) {
	return s.mutate(ctx, id, expectedVersion, func(a *appointment.Appointment) error {
		return a.MarkNoShow()
	})
}

// CompleteResult reports which post-completion side effects succeeded.
// The appointment itself is committed regardless.
type CompleteResult struct {
	Appointment  *appointment.Appointment
	Bill         *integration.Bill
	Prescription *integration.Prescription
}

// Complete closes out an appointment and then fires billing and
// prescription creation. Both are best-effort: a failure is logged and
// reflected in the result, never propagated.
func (s *SchedulingService) Complete(ctx context.Context, id uuid.UUID, expectedVersion *int) (*CompleteResult, error) {
	appt, err := s.mutate(ctx, id, expectedVersion, func(a *appointment.Appointment) error {
		return a.Complete()
	})
	if err != nil {
		return nil, err
	}

	res := &CompleteResult{Appointment: appt}

	if s.billing != nil {
		bill, err := s.billing.CreateBill(ctx, appt.RequesterID, appt.ID)
		if err != nil {
			s.logger.Warn("billing callback failed",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err))
		} else {
			res.Bill = bill
		}
	}

	if s.prescriptions != nil {
		rx, err := s.prescriptions.CreatePrescription(ctx, appt.ID, appt.RequesterID, appt.ProviderID)
		if err != nil {
			s.logger.Warn("prescription callback failed",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err))
		} else {
			res.Prescription = rx
		}
	}

	s.emit(ctx, integration.Event{
		Type:          integration.EventCompleted,
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		RequesterID:   appt.RequesterID,
		Slot:          slotOf(appt),
		Status:        appt.Status,
		Version:       appt.Version,
	})

	return res, nil
}

func (s *SchedulingService) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *SchedulingService) ListByProvider(ctx context.Context, providerID uuid.UUID, q *appointment.ListQuery) ([]*appointment.Appointment, error) {
	return s.repo.ListByParty(ctx, appointment.PartyProvider, providerID, q)
}

func (s *SchedulingService) ListByRequester(ctx context.Context, requesterID uuid.UUID, q *appointment.ListQuery) ([]*appointment.Appointment, error) {
	return s.repo.ListByParty(ctx, appointment.PartyRequester, requesterID, q)
}

// mutate is the shared load-check-apply-update path for the lifecycle
// transitions that do not touch the slot and therefore need no conflict
// check or provider lock.
func (s *SchedulingService) mutate(ctx context.Context, id uuid.UUID, expectedVersion *int, apply func(*appointment.Appointment) error) (*appointment.Appointment, error) {
	var appt *appointment.Appointment
	err := s.repo.InTx(ctx, func(tx appointment.Repository) error {
		current, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := checkExpectedVersion(current, expectedVersion); err != nil {
			return err
		}
		previousVersion := current.Version
		if err := apply(current); err != nil {
			return err
		}
		if err := tx.Update(ctx, current, previousVersion); err != nil {
			return err
		}
		appt = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *SchedulingService) withProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithProviderLock(ctx, providerID, fn)
}

func (s *SchedulingService) emit(ctx context.Context, ev integration.Event) {
	if s.notifier == nil {
		return
	}
	if delivered := s.notifier.Emit(ctx, ev); !delivered {
		s.logger.Warn("lifecycle event not delivered",
			zap.String("event_type", string(ev.Type)),
			zap.String("appointment_id", ev.AppointmentID.String()))
	}
}

func checkExpectedVersion(a *appointment.Appointment, expected *int) error {
	if expected != nil && *expected != a.Version {
		return appointment.ErrVersionConflict
	}
	return nil
}

func slotOf(a *appointment.Appointment) *integration.Slot {
	return &integration.Slot{StartTime: a.StartTime, EndTime: a.EndsAt()}
}
