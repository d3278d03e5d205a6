package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicops/appointment-service/internal/config"
	"github.com/clinicops/appointment-service/internal/domain/appointment"
)

// HTTPPartyDirectory checks requester eligibility against the patient
// service and provider eligibility against the doctor service. When a
// service cannot be reached the configured policy decides the outcome:
// fail-open treats the party as active with a logged warning, fail-closed
// rejects the operation with ErrDependencyUnavailable.
type HTTPPartyDirectory struct {
	requesterURL string
	providerURL  string
	authUser     string
	authPassword string
	failOpen     bool
	httpClient   *http.Client
	log          *zap.Logger
}

func NewHTTPPartyDirectory(cfg config.IntegrationConfig, log *zap.Logger) *HTTPPartyDirectory {
	return &HTTPPartyDirectory{
		requesterURL: cfg.PatientServiceURL,
		providerURL:  cfg.DoctorServiceURL,
		authUser:     cfg.BasicAuthUser,
		authPassword: cfg.BasicAuthPassword,
		failOpen:     cfg.EligibilityFailOpen,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		log:          log,
	}
}

type requesterStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type providerStatus struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	Active          *bool      `json:"active"`
	ResourceGroupID *uuid.UUID `json:"resource_group_id"`
}

func (d *HTTPPartyDirectory) VerifyRequester(ctx context.Context, requesterID uuid.UUID) error {
	url := fmt.Sprintf("%s/%s/exists", d.requesterURL, requesterID)

	resp, err := d.get(ctx, url)
	if err != nil {
		return d.unavailable(appointment.PartyRequester, requesterID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &EligibilityError{Party: appointment.PartyRequester, Reason: "requester not found or not active"}
	}

	var body requesterStatus
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return d.unavailable(appointment.PartyRequester, requesterID, err)
	}
	if body.Status != "" && body.Status != "ACTIVE" {
		return &EligibilityError{Party: appointment.PartyRequester, Reason: "requester is not active"}
	}

	return nil
}

func (d *HTTPPartyDirectory) VerifyProvider(ctx context.Context, providerID uuid.UUID, resourceGroupID *uuid.UUID) error {
	url := fmt.Sprintf("%s/%s", d.providerURL, providerID)

	resp, err := d.get(ctx, url)
	if err != nil {
		return d.unavailable(appointment.PartyProvider, providerID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &EligibilityError{Party: appointment.PartyProvider, Reason: "provider not found"}
	}

	var body providerStatus
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return d.unavailable(appointment.PartyProvider, providerID, err)
	}

	active := body.Status == "ACTIVE" || (body.Active != nil && *body.Active)
	if !active {
		return &EligibilityError{Party: appointment.PartyProvider, Reason: "provider is not active"}
	}

	if resourceGroupID != nil {
		if body.ResourceGroupID == nil || *body.ResourceGroupID != *resourceGroupID {
			return &EligibilityError{Party: appointment.PartyProvider, Reason: "provider does not belong to the requested resource group"}
		}
	}

	return nil
}

func (d *HTTPPartyDirectory) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if d.authUser != "" {
		req.SetBasicAuth(d.authUser, d.authPassword)
	}
	return d.httpClient.Do(req)
}

func (d *HTTPPartyDirectory) unavailable(party appointment.Party, id uuid.UUID, err error) error {
	if d.failOpen {
		d.log.Warn("eligibility service unavailable, failing open",
			zap.String("party", string(party)),
			zap.String("party_id", id.String()),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%w: checking %s %s: %v", ErrDependencyUnavailable, party, id, err)
}

var _ PartyDirectory = (*HTTPPartyDirectory)(nil)
