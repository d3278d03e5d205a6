package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clinicops/appointment-service/internal/domain"
	"github.com/clinicops/appointment-service/internal/service"
)

type auditRepo struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) service.AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("persisting audit entry: %w", err)
	}
	return nil
}
