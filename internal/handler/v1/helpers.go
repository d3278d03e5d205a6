package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicops/appointment-service/internal/domain/appointment"
	"github.com/clinicops/appointment-service/internal/integration"
	"github.com/clinicops/appointment-service/internal/locking"
	"github.com/clinicops/appointment-service/internal/service"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// respondServiceError maps the engine's error taxonomy onto HTTP. Rule
// violations are 422s carrying the violation name as a machine-readable
// code; conflicts of every kind (slot, version, transition, busy
// calendar) are 409s the client may retry after reloading.
func respondServiceError(c *gin.Context, err error) {
	var ruleErr *appointment.RuleError
	if errors.As(err, &ruleErr) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ruleErr.Message,
			Code:  string(ruleErr.Violation),
		})
		return
	}

	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, appointment.ErrSlotConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "SLOT_CONFLICT"})

	case errors.Is(err, appointment.ErrVersionConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "VERSION_CONFLICT"})

	case errors.Is(err, appointment.ErrInvalidStatus):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INVALID_TRANSITION"})

	case errors.Is(err, locking.ErrLockBusy):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "CALENDAR_BUSY"})

	case errors.Is(err, integration.ErrPartyNotEligible):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "PARTY_NOT_ELIGIBLE"})

	case errors.Is(err, integration.ErrDependencyUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})

	case errors.Is(err, service.ErrAccountDisabled):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "account is disabled"})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body; the lifecycle transition
// endpoints work without one.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, obj)
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// parseListQuery reads the optional status/from/to filters shared by
// the listing endpoints. Timestamps are RFC 3339.
func parseListQuery(c *gin.Context) (*appointment.ListQuery, bool) {
	q := &appointment.ListQuery{}

	if raw := c.Query("status"); raw != "" {
		status := appointment.Status(raw)
		if !status.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status filter")
			return nil, false
		}
		q.Status = &status
	}

	for param, dst := range map[string]**time.Time{"from": &q.From, "to": &q.To} {
		if raw := c.Query(param); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				respondError(c, http.StatusBadRequest, "invalid "+param+": must be RFC 3339")
				return nil, false
			}
			*dst = &t
		}
	}

	return q, true
}
