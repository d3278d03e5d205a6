package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicops/appointment-service/internal/domain/appointment"
	"github.com/clinicops/appointment-service/internal/integration"
	"github.com/clinicops/appointment-service/internal/locking"
	"github.com/clinicops/appointment-service/internal/service"
)

func TestRespondServiceErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not found",
			err:        appointment.ErrAppointmentNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "rule violation carries the violation code",
			err:        &appointment.RuleError{Violation: appointment.ViolationInsufficientLeadTime, Message: "too soon"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "InsufficientLeadTime",
		},
		{
			name:       "slot conflict",
			err:        &appointment.SlotConflictError{Party: appointment.PartyProvider},
			wantStatus: http.StatusConflict,
			wantCode:   "SLOT_CONFLICT",
		},
		{
			name:       "version conflict",
			err:        appointment.ErrVersionConflict,
			wantStatus: http.StatusConflict,
			wantCode:   "VERSION_CONFLICT",
		},
		{
			name:       "illegal transition",
			err:        &appointment.TransitionError{From: appointment.StatusCancelled, To: appointment.StatusConfirmed},
			wantStatus: http.StatusConflict,
			wantCode:   "INVALID_TRANSITION",
		},
		{
			name:       "busy calendar",
			err:        locking.ErrLockBusy,
			wantStatus: http.StatusConflict,
			wantCode:   "CALENDAR_BUSY",
		},
		{
			name:       "ineligible party",
			err:        &integration.EligibilityError{Party: appointment.PartyRequester, Reason: "not active"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "PARTY_NOT_ELIGIBLE",
		},
		{
			name:       "dependency unavailable",
			err:        integration.ErrDependencyUnavailable,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "forbidden",
			err:        service.ErrForbidden,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "bad credentials",
			err:        service.ErrInvalidCredentials,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			respondServiceError(c, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				var body ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Code)
			}
		})
	}
}
