package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicops/appointment-service/internal/domain/appointment"
)

type appointmentRepo struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) appointment.Repository {
	return &appointmentRepo{db: db}
}

// InTx runs fn against a repository bound to one SERIALIZABLE
// transaction. Serializable isolation makes the overlap check and the
// insert/update atomic with respect to concurrent bookings; postgres
// aborts one of two racing transactions instead of letting both commit.
func (r *appointmentRepo) InTx(ctx context.Context, fn func(tx appointment.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&appointmentRepo{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (r *appointmentRepo) Create(ctx context.Context, a *appointment.Appointment) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("creating appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("loading appointment: %w", err)
	}
	return &a, nil
}

// Update writes the mutated row guarded by the version it held before
// the mutation. Zero rows affected means another transaction committed
// first.
func (r *appointmentRepo) Update(ctx context.Context, a *appointment.Appointment, previousVersion int) error {
	res := r.db.WithContext(ctx).
		Model(&appointment.Appointment{}).
		Where("id = ? AND version = ?", a.ID, previousVersion).
		Updates(map[string]any{
			"start_time":       a.StartTime,
			"duration_mins":    a.DurationMins,
			"status":           a.Status,
			"reschedule_count": a.RescheduleCount,
			"version":          a.Version,
			"reason":           a.Reason,
			"notes":            a.Notes,
			"cancelled_at":     a.CancelledAt,
		})
	if res.Error != nil {
		return fmt.Errorf("updating appointment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return appointment.ErrVersionConflict
	}
	return nil
}

func (r *appointmentRepo) ListActiveByParty(ctx context.Context, party appointment.Party, partyID uuid.UUID, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	q := r.db.WithContext(ctx).
		Where(partyColumn(party)+" = ?", partyID).
		Where("status IN ?", []appointment.Status{appointment.StatusScheduled, appointment.StatusConfirmed})
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var rows []*appointment.Appointment
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing active appointments: %w", err)
	}
	return rows, nil
}

func (r *appointmentRepo) ListByParty(ctx context.Context, party appointment.Party, partyID uuid.UUID, q *appointment.ListQuery) ([]*appointment.Appointment, error) {
	query := r.db.WithContext(ctx).
		Where(partyColumn(party)+" = ?", partyID).
		Order("start_time ASC")

	if q != nil {
		if q.Status != nil {
			query = query.Where("status = ?", *q.Status)
		}
		if q.From != nil {
			query = query.Where("start_time >= ?", *q.From)
		}
		if q.To != nil {
			query = query.Where("start_time < ?", *q.To)
		}
	}

	var rows []*appointment.Appointment
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}
	return rows, nil
}

func partyColumn(party appointment.Party) string {
	if party == appointment.PartyRequester {
		return "requester_id"
	}
	return "provider_id"
}
