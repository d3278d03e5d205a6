package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicops/appointment-service/internal/config"
	"github.com/clinicops/appointment-service/internal/domain/appointment"
)

func testSchedulingConfig() config.SchedulingConfig {
	return config.SchedulingConfig{
		OpenHour:         9,
		CloseHour:        17,
		MinLeadTime:      2 * time.Hour,
		RescheduleCutoff: time.Hour,
		MaxReschedules:   2,
		MinDurationMins:  5,
		MaxDurationMins:  480,
		DefaultDuration:  30,
	}
}

func violationOf(t *testing.T, err error) appointment.RuleViolation {
	t.Helper()
	var ruleErr *appointment.RuleError
	require.True(t, errors.As(err, &ruleErr), "expected a rule error, got %v", err)
	return ruleErr.Violation
}

func TestCheckOperatingHours(t *testing.T) {
	cfg := testSchedulingConfig()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		hour int
		min  int
		ok   bool
	}{
		{"opening hour", 9, 0, true},
		{"just before opening", 8, 59, false},
		{"last bookable hour", 16, 59, true},
		{"closing hour", 17, 0, false},
		{"evening", 20, 0, false},
		{"midnight", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := day.Add(time.Duration(tt.hour)*time.Hour + time.Duration(tt.min)*time.Minute)
			err := checkOperatingHours(start, cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, appointment.ViolationOutsideOperatingHours, violationOf(t, err))
			}
		})
	}
}

func TestCheckOperatingHoursNormalizesToUTC(t *testing.T) {
	cfg := testSchedulingConfig()
	// 14:30 UTC expressed in a +05:30 zone; the zone must not matter.
	loc := time.FixedZone("IST", 5*3600+1800)
	start := time.Date(2026, 3, 2, 20, 0, 0, 0, loc)

	assert.NoError(t, checkOperatingHours(start, cfg))
}

func TestCheckLeadTimeBoundary(t *testing.T) {
	cfg := testSchedulingConfig()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	assert.NoError(t, checkLeadTime(now.Add(2*time.Hour), now, cfg), "exactly the minimum lead time is allowed")
	assert.NoError(t, checkLeadTime(now.Add(3*time.Hour), now, cfg))

	err := checkLeadTime(now.Add(2*time.Hour-time.Second), now, cfg)
	assert.Equal(t, appointment.ViolationInsufficientLeadTime, violationOf(t, err))

	err = checkLeadTime(now.Add(-time.Hour), now, cfg)
	assert.Equal(t, appointment.ViolationInsufficientLeadTime, violationOf(t, err))
}

func TestCheckDuration(t *testing.T) {
	cfg := testSchedulingConfig()

	assert.NoError(t, checkDuration(5, cfg))
	assert.NoError(t, checkDuration(30, cfg))
	assert.NoError(t, checkDuration(480, cfg))

	for _, d := range []int{0, 4, 481, -30} {
		err := checkDuration(d, cfg)
		assert.Equal(t, appointment.ViolationInvalidDuration, violationOf(t, err), "duration %d", d)
	}
}

func TestCheckRescheduleQuota(t *testing.T) {
	cfg := testSchedulingConfig()

	assert.NoError(t, checkRescheduleQuota(0, cfg))
	assert.NoError(t, checkRescheduleQuota(1, cfg))

	err := checkRescheduleQuota(2, cfg)
	assert.Equal(t, appointment.ViolationRescheduleLimitReached, violationOf(t, err))
}

func TestCheckRescheduleCutoff(t *testing.T) {
	cfg := testSchedulingConfig()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	assert.NoError(t, checkRescheduleCutoff(now.Add(time.Hour), now, cfg), "exactly the cutoff is allowed")
	assert.NoError(t, checkRescheduleCutoff(now.Add(26*time.Hour), now, cfg))

	err := checkRescheduleCutoff(now.Add(59*time.Minute), now, cfg)
	assert.Equal(t, appointment.ViolationTooCloseToCutoff, violationOf(t, err))

	err = checkRescheduleCutoff(now.Add(-time.Minute), now, cfg)
	assert.Equal(t, appointment.ViolationTooCloseToCutoff, violationOf(t, err))
}

func TestRunChecksShortCircuits(t *testing.T) {
	first := errors.New("first")
	calls := 0

	err := runChecks(
		func() error { calls++; return nil },
		func() error { calls++; return first },
		func() error { calls++; return errors.New("never reached") },
	)

	assert.Equal(t, first, err)
	assert.Equal(t, 2, calls)
}
