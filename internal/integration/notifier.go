package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/clinicops/appointment-service/internal/config"
)

// HTTPEventNotifier posts lifecycle events to the notification service.
// Delivery is best-effort with a small bounded retry; a failed delivery
// is logged and counted but never escalated to the caller.
type HTTPEventNotifier struct {
	url          string
	authUser     string
	authPassword string
	attempts     int
	httpClient   *http.Client
	log          *zap.Logger
	failures     prometheus.Counter // may be nil in tests
}

func NewHTTPEventNotifier(cfg config.IntegrationConfig, log *zap.Logger, failures prometheus.Counter) *HTTPEventNotifier {
	attempts := cfg.NotifyAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPEventNotifier{
		url:          cfg.NotificationServiceURL,
		authUser:     cfg.BasicAuthUser,
		authPassword: cfg.BasicAuthPassword,
		attempts:     attempts,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		log:          log,
		failures:     failures,
	}
}

func (n *HTTPEventNotifier) Emit(ctx context.Context, ev Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Error("failed to marshal event payload",
			zap.String("event_type", string(ev.Type)),
			zap.Error(err),
		)
		return false
	}

	var lastErr error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if err := n.post(ctx, payload); err != nil {
			lastErr = err
			// brief pause before the final attempt; the caller's
			// transaction has already committed so latency here is
			// not on the booking path's critical section
			if attempt < n.attempts {
				select {
				case <-time.After(200 * time.Millisecond):
				case <-ctx.Done():
					lastErr = ctx.Err()
					attempt = n.attempts
				}
			}
			continue
		}

		n.log.Info("emitted lifecycle event",
			zap.String("event_type", string(ev.Type)),
			zap.String("appointment_id", ev.AppointmentID.String()),
		)
		return true
	}

	n.log.Error("failed to emit lifecycle event",
		zap.String("event_type", string(ev.Type)),
		zap.String("appointment_id", ev.AppointmentID.String()),
		zap.Error(lastErr),
	)
	if n.failures != nil {
		n.failures.Inc()
	}
	return false
}

func (n *HTTPEventNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.authUser != "" {
		req.SetBasicAuth(n.authUser, n.authPassword)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	}
	return &unexpectedStatusError{status: resp.StatusCode}
}

type unexpectedStatusError struct {
	status int
}

func (e *unexpectedStatusError) Error() string {
	return http.StatusText(e.status)
}

var _ EventNotifier = (*HTTPEventNotifier)(nil)
