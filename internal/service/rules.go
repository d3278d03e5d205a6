package service

import (
	"fmt"
	"time"

	"github.com/clinicops/appointment-service/internal/config"
	"github.com/clinicops/appointment-service/internal/domain/appointment"
)

// The booking rules are pure functions over (candidate, now, config) so
// they can be tested and reordered independently. The scheduling service
// runs them as an ordered, short-circuiting pipeline: the first failure
// is the one the caller sees, so the cheapest and most specific checks
// go first.

func checkDuration(durationMins int, cfg config.SchedulingConfig) error {
	if durationMins < cfg.MinDurationMins || durationMins > cfg.MaxDurationMins {
		return &appointment.RuleError{
			Violation: appointment.ViolationInvalidDuration,
			Message:   fmt.Sprintf("duration must be between %d and %d minutes, got %d", cfg.MinDurationMins, cfg.MaxDurationMins, durationMins),
		}
	}
	return nil
}

// checkOperatingHours verifies the slot starts inside [OpenHour, CloseHour)
// on the clinic's UTC calendar.
func checkOperatingHours(start time.Time, cfg config.SchedulingConfig) error {
	hour := start.UTC().Hour()
	if hour < cfg.OpenHour || hour >= cfg.CloseHour {
		return &appointment.RuleError{
			Violation: appointment.ViolationOutsideOperatingHours,
			Message:   fmt.Sprintf("appointment must start within clinic hours (%02d:00 - %02d:00 UTC)", cfg.OpenHour, cfg.CloseHour),
		}
	}
	return nil
}

// checkLeadTime is evaluated against the current instant every time it
// runs; a retried request gets a fresh verdict.
func checkLeadTime(start, now time.Time, cfg config.SchedulingConfig) error {
	if start.Sub(now) < cfg.MinLeadTime {
		return &appointment.RuleError{
			Violation: appointment.ViolationInsufficientLeadTime,
			Message:   fmt.Sprintf("appointment must be at least %s from now", cfg.MinLeadTime),
		}
	}
	return nil
}

func checkRescheduleQuota(rescheduleCount int, cfg config.SchedulingConfig) error {
	if rescheduleCount >= cfg.MaxReschedules {
		return &appointment.RuleError{
			Violation: appointment.ViolationRescheduleLimitReached,
			Message:   fmt.Sprintf("maximum reschedule limit reached (%d allowed)", cfg.MaxReschedules),
		}
	}
	return nil
}

// checkRescheduleCutoff guards the ORIGINAL slot: once an appointment is
// close enough to starting, it can no longer be moved.
func checkRescheduleCutoff(originalStart, now time.Time, cfg config.SchedulingConfig) error {
	if originalStart.Sub(now) < cfg.RescheduleCutoff {
		return &appointment.RuleError{
			Violation: appointment.ViolationTooCloseToCutoff,
			Message:   fmt.Sprintf("cannot reschedule within %s of the appointment start", cfg.RescheduleCutoff),
		}
	}
	return nil
}

// runChecks executes the pipeline in order and returns the first failure.
func runChecks(checks ...func() error) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
