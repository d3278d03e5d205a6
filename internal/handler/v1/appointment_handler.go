package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicops/appointment-service/internal/domain"
	"github.com/clinicops/appointment-service/internal/domain/appointment"
	"github.com/clinicops/appointment-service/internal/service"
	"github.com/clinicops/appointment-service/pkg/metrics"
)

type AppointmentHandler struct {
	scheduling *service.SchedulingService
	audit      *service.AuditService
	metrics    *metrics.Collector
	log        *zap.Logger
}

func NewAppointmentHandler(scheduling *service.SchedulingService, audit *service.AuditService, collector *metrics.Collector, log *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		scheduling: scheduling,
		audit:      audit,
		metrics:    collector,
		log:        log,
	}
}

type bookRequest struct {
	ProviderID      uuid.UUID  `json:"provider_id" binding:"required"`
	RequesterID     uuid.UUID  `json:"requester_id"`
	ResourceGroupID *uuid.UUID `json:"resource_group_id"`
	StartTime       time.Time  `json:"start_time" binding:"required"`
	DurationMins    int        `json:"duration_mins"`
	Reason          string     `json:"reason"`
	Notes           string     `json:"notes"`
}

type rescheduleRequest struct {
	StartTime       time.Time `json:"start_time" binding:"required"`
	DurationMins    *int      `json:"duration_mins"`
	Reason          string    `json:"reason"`
	Notes           string    `json:"notes"`
	ExpectedVersion *int      `json:"expected_version"`
}

type cancelRequest struct {
	Reason          string `json:"reason"`
	ExpectedVersion *int   `json:"expected_version"`
}

type transitionRequest struct {
	ExpectedVersion *int `json:"expected_version"`
}

func (h *AppointmentHandler) Book(c *gin.Context) {
	var req bookRequest
	if !bindJSON(c, &req) {
		return
	}

	claims := claimsFrom(c)
	cmd := appointment.BookCommand{
		ProviderID:      req.ProviderID,
		RequesterID:     req.RequesterID,
		ResourceGroupID: req.ResourceGroupID,
		StartTime:       req.StartTime,
		DurationMins:    req.DurationMins,
		Reason:          req.Reason,
		Notes:           req.Notes,
	}

	// Requesters always book for themselves; staff book on anyone's behalf.
	if claims.Role == domain.RoleRequester {
		if claims.RequesterID == nil {
			respondServiceError(c, service.ErrForbidden)
			return
		}
		cmd.RequesterID = *claims.RequesterID
	} else if cmd.RequesterID == uuid.Nil {
		respondError(c, http.StatusBadRequest, "requester_id is required")
		return
	}

	appt, err := h.scheduling.Book(c.Request.Context(), cmd)
	if err != nil {
		h.observeRejection(err)
		respondServiceError(c, err)
		return
	}

	h.metrics.AppointmentsBooked.Inc()
	h.recordAudit(c, claims, domain.ActionCreate, appt.ID)
	respondCreated(c, appt)
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	appt, err := h.scheduling.GetByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if err := h.authorize(c, appt); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, appt)
}

func (h *AppointmentHandler) Reschedule(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req rescheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	if !h.authorizeByID(c, id) {
		return
	}

	appt, err := h.scheduling.Reschedule(c.Request.Context(), id, appointment.RescheduleCommand{
		StartTime:       req.StartTime,
		DurationMins:    req.DurationMins,
		Reason:          req.Reason,
		Notes:           req.Notes,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.observeRejection(err)
		respondServiceError(c, err)
		return
	}

	h.metrics.AppointmentsRescheduled.Inc()
	h.recordAudit(c, claimsFrom(c), domain.ActionUpdate, appt.ID)
	respondOK(c, appt)
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if !h.authorizeByID(c, id) {
		return
	}

	appt, err := h.scheduling.Cancel(c.Request.Context(), id, appointment.CancelCommand{
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.metrics.AppointmentsCancelled.Inc()
	h.recordAudit(c, claimsFrom(c), domain.ActionUpdate, appt.ID)
	respondOK(c, appt)
}

func (h *AppointmentHandler) Confirm(c *gin.Context) {
	h.transition(c, h.scheduling.Confirm)
}

func (h *AppointmentHandler) MarkNoShow(c *gin.Context) {
	h.transition(c, h.scheduling.MarkNoShow)
}

func (h *AppointmentHandler) Complete(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if !h.authorizeByID(c, id) {
		return
	}

	res, err := h.scheduling.Complete(c.Request.Context(), id, req.ExpectedVersion)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.metrics.AppointmentsCompleted.Inc()
	h.recordAudit(c, claimsFrom(c), domain.ActionUpdate, res.Appointment.ID)
	respondOK(c, gin.H{
		"appointment":  res.Appointment,
		"bill":         res.Bill,
		"prescription": res.Prescription,
	})
}

func (h *AppointmentHandler) ListByProvider(c *gin.Context) {
	providerID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	q, ok := parseListQuery(c)
	if !ok {
		return
	}

	claims := claimsFrom(c)
	if claims.Role == domain.RoleProvider && (claims.ProviderID == nil || *claims.ProviderID != providerID) {
		respondServiceError(c, service.ErrForbidden)
		return
	}
	if claims.Role == domain.RoleRequester {
		respondServiceError(c, service.ErrForbidden)
		return
	}

	rows, err := h.scheduling.ListByProvider(c.Request.Context(), providerID, q)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rows)
}

func (h *AppointmentHandler) ListByRequester(c *gin.Context) {
	requesterID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	q, ok := parseListQuery(c)
	if !ok {
		return
	}

	claims := claimsFrom(c)
	if claims.Role == domain.RoleRequester && (claims.RequesterID == nil || *claims.RequesterID != requesterID) {
		respondServiceError(c, service.ErrForbidden)
		return
	}

	rows, err := h.scheduling.ListByRequester(c.Request.Context(), requesterID, q)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rows)
}

func (h *AppointmentHandler) transition(c *gin.Context, op func(context.Context, uuid.UUID, *int) (*appointment.Appointment, error)) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if !h.authorizeByID(c, id) {
		return
	}

	appt, err := op(c.Request.Context(), id, req.ExpectedVersion)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.recordAudit(c, claimsFrom(c), domain.ActionUpdate, appt.ID)
	respondOK(c, appt)
}

// authorize enforces ownership: providers and requesters may only touch
// appointments on their own side; staff roles see everything.
func (h *AppointmentHandler) authorize(c *gin.Context, appt *appointment.Appointment) error {
	claims := claimsFrom(c)
	if claims == nil {
		return service.ErrForbidden
	}
	switch claims.Role {
	case domain.RoleAdmin, domain.RoleReceptionist:
		return nil
	case domain.RoleProvider:
		if claims.ProviderID != nil && *claims.ProviderID == appt.ProviderID {
			return nil
		}
	case domain.RoleRequester:
		if claims.RequesterID != nil && *claims.RequesterID == appt.RequesterID {
			return nil
		}
	}
	return service.ErrForbidden
}

func (h *AppointmentHandler) authorizeByID(c *gin.Context, id uuid.UUID) bool {
	appt, err := h.scheduling.GetByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return false
	}
	if err := h.authorize(c, appt); err != nil {
		respondServiceError(c, err)
		return false
	}
	return true
}

// observeRejection feeds the scheduling rejection counters. The metrics
// live here rather than in the service so unit tests can construct
// services without touching the global prometheus registry.
func (h *AppointmentHandler) observeRejection(err error) {
	var ruleErr *appointment.RuleError
	if errors.As(err, &ruleErr) {
		h.metrics.RuleRejectionsTotal.WithLabelValues(string(ruleErr.Violation)).Inc()
		return
	}
	var conflictErr *appointment.SlotConflictError
	if errors.As(err, &conflictErr) {
		h.metrics.SlotConflictsTotal.WithLabelValues(string(conflictErr.Party)).Inc()
	}
}

func (h *AppointmentHandler) recordAudit(c *gin.Context, claims *domain.Claims, action domain.AuditAction, apptID uuid.UUID) {
	if h.audit == nil || claims == nil {
		return
	}
	h.audit.Record(service.AuditEntry{
		UserID:       claims.UserID,
		UserRole:     claims.Role,
		Action:       action,
		ResourceType: "appointment",
		ResourceID:   apptID.String(),
		IPAddress:    c.ClientIP(),
		RequestID:    c.GetString(requestIDKey),
	})
}
