package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicops/appointment-service/internal/config"
)

const (
	defaultConsultationFee = 2000.0
	defaultMedicationFee   = 800.0
)

// HTTPBillingClient creates bills in the billing service when an
// appointment completes.
type HTTPBillingClient struct {
	url          string
	authUser     string
	authPassword string
	httpClient   *http.Client
	log          *zap.Logger
}

func NewHTTPBillingClient(cfg config.IntegrationConfig, log *zap.Logger) *HTTPBillingClient {
	return &HTTPBillingClient{
		url:          cfg.BillingServiceURL,
		authUser:     cfg.BasicAuthUser,
		authPassword: cfg.BasicAuthPassword,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		log:          log,
	}
}

type billRequest struct {
	RequesterID     uuid.UUID `json:"requester_id"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	ConsultationFee float64   `json:"consultation_fee"`
	MedicationFee   float64   `json:"medication_fee"`
}

func (c *HTTPBillingClient) CreateBill(ctx context.Context, requesterID, appointmentID uuid.UUID) (*Bill, error) {
	req := billRequest{
		RequesterID:     requesterID,
		AppointmentID:   appointmentID,
		ConsultationFee: defaultConsultationFee,
		MedicationFee:   defaultMedicationFee,
	}

	var bill Bill
	if err := postJSON(ctx, c.httpClient, c.url, c.authUser, c.authPassword, req, &bill); err != nil {
		return nil, fmt.Errorf("creating bill: %w", err)
	}

	c.log.Info("created bill",
		zap.String("appointment_id", appointmentID.String()),
		zap.String("bill_id", bill.BillID),
	)
	return &bill, nil
}

type medication struct {
	Name   string
	Dosage string
	Days   int
}

// medications mirrors the fixed formulary the prescription service
// accepts for auto-issued prescriptions.
var medications = []medication{
	{Name: "Amoxicillin", Dosage: "1-0-1", Days: 7},
	{Name: "Paracetamol", Dosage: "1-1-1", Days: 5},
	{Name: "Ibuprofen", Dosage: "0-1-0", Days: 3},
	{Name: "Azithromycin", Dosage: "1-0-0", Days: 5},
	{Name: "Ciprofloxacin", Dosage: "1-0-1", Days: 10},
}

// HTTPPrescriptionClient issues a prescription with a medication chosen
// by the injected pick function; tests inject a deterministic one.
type HTTPPrescriptionClient struct {
	url          string
	authUser     string
	authPassword string
	httpClient   *http.Client
	log          *zap.Logger
	pick         func(n int) int
}

func NewHTTPPrescriptionClient(cfg config.IntegrationConfig, log *zap.Logger, pick func(n int) int) *HTTPPrescriptionClient {
	if pick == nil {
		pick = rand.Intn
	}
	return &HTTPPrescriptionClient{
		url:          cfg.PrescriptionServiceURL,
		authUser:     cfg.BasicAuthUser,
		authPassword: cfg.BasicAuthPassword,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		log:          log,
		pick:         pick,
	}
}

type prescriptionRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	RequesterID   uuid.UUID `json:"requester_id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	Medication    string    `json:"medication"`
	Dosage        string    `json:"dosage"`
	Days          int       `json:"days"`
}

func (c *HTTPPrescriptionClient) CreatePrescription(ctx context.Context, appointmentID, requesterID, providerID uuid.UUID) (*Prescription, error) {
	med := medications[c.pick(len(medications))]

	req := prescriptionRequest{
		AppointmentID: appointmentID,
		RequesterID:   requesterID,
		ProviderID:    providerID,
		Medication:    med.Name,
		Dosage:        med.Dosage,
		Days:          med.Days,
	}

	var created Prescription
	if err := postJSON(ctx, c.httpClient, c.url, c.authUser, c.authPassword, req, &created); err != nil {
		return nil, fmt.Errorf("creating prescription: %w", err)
	}

	created.Medication = med.Name
	created.Dosage = med.Dosage
	created.Days = med.Days

	c.log.Info("created prescription",
		zap.String("appointment_id", appointmentID.String()),
		zap.String("medication", med.Name),
	)
	return &created, nil
}

func postJSON(ctx context.Context, client *http.Client, url, authUser, authPassword string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authUser != "" {
		req.SetBasicAuth(authUser, authPassword)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

var (
	_ BillingClient      = (*HTTPBillingClient)(nil)
	_ PrescriptionClient = (*HTTPPrescriptionClient)(nil)
)
