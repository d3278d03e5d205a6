package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicops/appointment-service/internal/domain/appointment"
	"github.com/clinicops/appointment-service/internal/integration"
)

// memRepo is an in-memory Repository. InTx holds one mutex for the whole
// callback, which models the serialization the real store provides.
type memRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*appointment.Appointment
	inTx bool
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[uuid.UUID]*appointment.Appointment)}
}

func (r *memRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *memRepo) InTx(ctx context.Context, fn func(tx appointment.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memRepo{rows: r.rows, inTx: true}
	return fn(tx)
}

func (r *memRepo) Create(ctx context.Context, a *appointment.Appointment) error {
	defer r.lock()()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	defer r.lock()()
	row, ok := r.rows[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memRepo) Update(ctx context.Context, a *appointment.Appointment, previousVersion int) error {
	defer r.lock()()
	row, ok := r.rows[a.ID]
	if !ok || row.Version != previousVersion {
		return appointment.ErrVersionConflict
	}
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *memRepo) ListActiveByParty(ctx context.Context, party appointment.Party, partyID uuid.UUID, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	defer r.lock()()
	var out []*appointment.Appointment
	for _, row := range r.rows {
		if !row.Status.IsActive() {
			continue
		}
		if excludeID != nil && row.ID == *excludeID {
			continue
		}
		id := row.ProviderID
		if party == appointment.PartyRequester {
			id = row.RequesterID
		}
		if id == partyID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) ListByParty(ctx context.Context, party appointment.Party, partyID uuid.UUID, q *appointment.ListQuery) ([]*appointment.Appointment, error) {
	defer r.lock()()
	var out []*appointment.Appointment
	for _, row := range r.rows {
		id := row.ProviderID
		if party == appointment.PartyRequester {
			id = row.RequesterID
		}
		if id != partyID {
			continue
		}
		if q != nil {
			if q.Status != nil && row.Status != *q.Status {
				continue
			}
			if q.From != nil && row.StartTime.Before(*q.From) {
				continue
			}
			if q.To != nil && !row.StartTime.Before(*q.To) {
				continue
			}
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

type fakeDirectory struct {
	requesterErr error
	providerErr  error
}

func (d *fakeDirectory) VerifyRequester(ctx context.Context, requesterID uuid.UUID) error {
	return d.requesterErr
}

func (d *fakeDirectory) VerifyProvider(ctx context.Context, providerID uuid.UUID, resourceGroupID *uuid.UUID) error {
	return d.providerErr
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []integration.Event
	fail   bool
}

func (n *fakeNotifier) Emit(ctx context.Context, ev integration.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return !n.fail
}

func (n *fakeNotifier) byType(t integration.EventType) []integration.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []integration.Event
	for _, ev := range n.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeBilling struct {
	bill *integration.Bill
	err  error
}

func (b *fakeBilling) CreateBill(ctx context.Context, requesterID, appointmentID uuid.UUID) (*integration.Bill, error) {
	return b.bill, b.err
}

type fakePrescriptions struct {
	rx  *integration.Prescription
	err error
}

func (p *fakePrescriptions) CreatePrescription(ctx context.Context, appointmentID, requesterID, providerID uuid.UUID) (*integration.Prescription, error) {
	return p.rx, p.err
}

type testFixture struct {
	svc      *SchedulingService
	repo     *memRepo
	notifier *fakeNotifier
	billing  *fakeBilling
	rx       *fakePrescriptions
	now      time.Time
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		repo:     newMemRepo(),
		notifier: &fakeNotifier{},
		billing:  &fakeBilling{bill: &integration.Bill{BillID: "bill-1", TotalAmount: 2800}},
		rx:       &fakePrescriptions{rx: &integration.Prescription{PrescriptionID: "rx-1", Medication: "Paracetamol"}},
		// A Monday at 08:00 UTC; the clinic opens at 09:00.
		now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewSchedulingService(
		f.repo, &fakeDirectory{}, f.notifier, f.billing, f.rx,
		nil, testSchedulingConfig(), zap.NewNop(),
	)
	f.svc.now = func() time.Time { return f.now }
	return f
}

// validStart is comfortably inside clinic hours and past the lead time.
func (f *testFixture) validStart() time.Time {
	return f.now.Add(3 * time.Hour) // 11:00 UTC
}

func (f *testFixture) book(t *testing.T, cmd appointment.BookCommand) *appointment.Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), cmd)
	require.NoError(t, err)
	return appt
}

func bookCmd(start time.Time) appointment.BookCommand {
	return appointment.BookCommand{
		ProviderID:   uuid.New(),
		RequesterID:  uuid.New(),
		StartTime:    start,
		DurationMins: 30,
		Reason:       "checkup",
	}
}

func TestBookCreatesScheduledAppointment(t *testing.T) {
	f := newFixture(t)
	cmd := bookCmd(f.validStart())

	appt := f.book(t, cmd)

	assert.Equal(t, appointment.StatusScheduled, appt.Status)
	assert.Equal(t, 1, appt.Version)
	assert.Equal(t, 0, appt.RescheduleCount)
	assert.Equal(t, cmd.StartTime, appt.StartTime)

	stored, err := f.repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, stored.Status)

	events := f.notifier.byType(integration.EventScheduled)
	require.Len(t, events, 1)
	assert.Equal(t, appt.ID, events[0].AppointmentID)
	require.NotNil(t, events[0].Slot)
	assert.Equal(t, appt.EndsAt(), events[0].Slot.EndTime)
}

func TestBookAppliesDefaultDuration(t *testing.T) {
	f := newFixture(t)
	cmd := bookCmd(f.validStart())
	cmd.DurationMins = 0

	appt := f.book(t, cmd)
	assert.Equal(t, 30, appt.DurationMins)
}

func TestBookRejectsOutsideHours(t *testing.T) {
	f := newFixture(t)
	cmd := bookCmd(f.now.Add(11 * time.Hour)) // 19:00 UTC

	_, err := f.svc.Book(context.Background(), cmd)
	assert.ErrorIs(t, err, appointment.ErrRuleViolation)
	assert.Empty(t, f.notifier.events)
	assert.Empty(t, f.repo.rows)
}

func TestBookRejectsShortLeadTime(t *testing.T) {
	f := newFixture(t)
	cmd := bookCmd(f.now.Add(90 * time.Minute)) // 09:30, only 1h30m away

	_, err := f.svc.Book(context.Background(), cmd)
	assert.ErrorIs(t, err, appointment.ErrRuleViolation)
}

func TestBookRejectsIneligibleRequester(t *testing.T) {
	f := newFixture(t)
	eligErr := &integration.EligibilityError{Party: appointment.PartyRequester, Reason: "not found"}
	f.svc.directory = &fakeDirectory{requesterErr: eligErr}

	_, err := f.svc.Book(context.Background(), bookCmd(f.validStart()))
	assert.ErrorIs(t, err, integration.ErrPartyNotEligible)
	assert.Empty(t, f.repo.rows)
}

func TestBookRejectsProviderConflict(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, bookCmd(f.validStart()))

	second := bookCmd(f.validStart().Add(15 * time.Minute))
	second.ProviderID = first.ProviderID

	_, err := f.svc.Book(context.Background(), second)
	require.ErrorIs(t, err, appointment.ErrSlotConflict)

	var conflict *appointment.SlotConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, appointment.PartyProvider, conflict.Party)
}

func TestBookRejectsRequesterConflict(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, bookCmd(f.validStart()))

	// Different provider, same requester, overlapping window.
	second := bookCmd(f.validStart().Add(10 * time.Minute))
	second.RequesterID = first.RequesterID

	_, err := f.svc.Book(context.Background(), second)
	require.ErrorIs(t, err, appointment.ErrSlotConflict)

	var conflict *appointment.SlotConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, appointment.PartyRequester, conflict.Party)
}

func TestBookAllowsBackToBackSlots(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, bookCmd(f.validStart()))

	second := bookCmd(first.EndsAt())
	second.ProviderID = first.ProviderID
	second.RequesterID = first.RequesterID

	_, err := f.svc.Book(context.Background(), second)
	assert.NoError(t, err)
}

func TestBookConcurrentSameSlotAdmitsExactlyOne(t *testing.T) {
	f := newFixture(t)
	providerID := uuid.New()
	start := f.validStart()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := bookCmd(start)
			cmd.ProviderID = providerID
			_, errs[i] = f.svc.Book(context.Background(), cmd)
		}()
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, appointment.ErrSlotConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicted)
}

func TestRescheduleMovesSlotAndResetsStatus(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, bookCmd(f.validStart()))

	_, err := f.svc.Confirm(context.Background(), appt.ID, nil)
	require.NoError(t, err)

	newStart := f.validStart().Add(24 * time.Hour)
	moved, err := f.svc.Reschedule(context.Background(), appt.ID, appointment.RescheduleCommand{
		StartTime: newStart,
	})
	require.NoError(t, err)

	assert.Equal(t, appointment.StatusScheduled, moved.Status)
	assert.Equal(t, newStart, moved.StartTime)
	assert.Equal(t, 1, moved.RescheduleCount)
	assert.Equal(t, 3, moved.Version)

	events := f.notifier.byType(integration.EventRescheduled)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].OldSlot)
	require.NotNil(t, events[0].NewSlot)
	assert.Equal(t, f.validStart(), events[0].OldSlot.StartTime)
	assert.Equal(t, newStart, events[0].NewSlot.StartTime)
}

func TestRescheduleCanOverlapItsOwnOldSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, bookCmd(f.validStart()))

	// Shift by 15 minutes: overlaps the original window, which must be
	// excluded from the conflict scan.
	_, err := f.svc.Reschedule(context.Background(), appt.ID, appointment.RescheduleCommand{
		StartTime: f.validStart().Add(15 * time.Minute),
	})
	assert.NoError(t, err)
}

func TestRescheduleEnforcesQuota(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, bookCmd(f.validStart()))

	for i := 1; i <= 2; i++ {
		_, err := f.svc.Reschedule(context.Background(), appt.ID, appointment.RescheduleCommand{
			StartTime: f.validStart().Add(time.Duration(i) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}

	_, err := f.svc.Reschedule(context.Background(), appt.ID, appointment.RescheduleCommand{
		StartTime: f.validStart().Add(96 * time.Hour),
	})
	require.ErrorIs(t, err, appointment.ErrRuleViolation)
	assert.Equal(t, appointment.ViolationRescheduleLimitReached, violationOf(t, err))

	// A rejected reschedule must leave the record untouched.
	stored, err := f.repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RescheduleCount)
	assert.Equal(t, 3, stored.Version)
}

func TestRescheduleEnforcesCutoffAgainstOriginalStart(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, bookCmd(f.validStart()))

	// Advance the clock to 30 minutes before the booked slot.
	f.now = appt.StartTime.Add(-30 * time.Minute)

	_, err := f.svc.Reschedule(context.Background(), appt.ID, appointment.RescheduleCommand{
		StartTime: appt.StartTime.Add(24 * time.Hour),
	})
	require.ErrorIs(t, err, appointment.ErrRuleViolation)
	assert.Equal(t, appointment.ViolationTooCloseToCutoff, violationOf(t, err))
}

func TestRescheduleRejectsStaleExpectedVersion(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, bookCmd(f.validStart()))

	_, err := f.svc.Confirm(context.Background(), appt.ID, nil) // version is now 2
	require.NoError(t, err)

	stale := 1
	_, err = f.svc.Reschedule(context.Background(), appt.ID, appointment.RescheduleCommand{
		StartTime:       f.validStart().Add(24 * time.Hour),
		ExpectedVersion: &stale,
	})
	assert.ErrorIs(t, err, appointment.ErrVersionConflict)
}

func TestRescheduleRejectsTerminalAppointment(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, bookCmd(f.validStart()))

	_, err := f.svc.Cancel(context.Background(), appt.ID, appointment.CancelCommand{})
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), appt.ID, appointment.RescheduleCommand{
		StartTime: f.validStart().Add(24 * time.Hour),
	})
	assert.ErrorIs(t, err, appointment.ErrInvalidStatus)
}

func TestCancelFreesTheSlot(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, bookCmd(f.validStart()))

	cancelled, err := f.svc.Cancel(context.Background(), first.ID, appointment.CancelCommand{Reason: "sick"})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	assert.Contains(t, cancelled.Notes, "Cancellation reason: sick")
	assert.NotNil(t, cancelled.CancelledAt)

	events := f.notifier.byType(integration.EventCancelled)
	require.Len(t, events, 1)

	// The same slot is immediately bookable again.
	rebook := bookCmd(f.validStart())
	rebook.ProviderID = first.ProviderID
	rebook.RequesterID = first.RequesterID
	_, err = f.svc.Book(context.Background(), rebook)
	assert.NoError(t, err)
}

func TestConfirmRequiresScheduled(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, bookCmd(f.validStart()))

	confirmed, err := f.svc.Confirm(context.Background(), appt.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, confirmed.Status)
	assert.Equal(t, 2, confirmed.Version)

	_, err = f.svc.Confirm(context.Background(), appt.ID, nil)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatus)
}

func TestCompleteFiresBillingAndPrescription(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, bookCmd(f.validStart()))

	res, err := f.svc.Complete(context.Background(), appt.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, appointment.StatusCompleted, res.Appointment.Status)
	require.NotNil(t, res.Bill)
	assert.Equal(t, "bill-1", res.Bill.BillID)
	require.NotNil(t, res.Prescription)
	assert.Equal(t, "rx-1", res.Prescription.PrescriptionID)

	events := f.notifier.byType(integration.EventCompleted)
	assert.Len(t, events, 1)
}

func TestCompleteSurvivesSideEffectFailures(t *testing.T) {
	f := newFixture(t)
	f.billing.err = errors.New("billing down")
	f.rx.err = errors.New("prescriptions down")

	appt := f.book(t, bookCmd(f.validStart()))

	res, err := f.svc.Complete(context.Background(), appt.ID, nil)
	require.NoError(t, err, "side effect failures must not fail the completion")

	assert.Equal(t, appointment.StatusCompleted, res.Appointment.Status)
	assert.Nil(t, res.Bill)
	assert.Nil(t, res.Prescription)

	stored, err := f.repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, stored.Status)
}

func TestNotifierFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true

	appt, err := f.svc.Book(context.Background(), bookCmd(f.validStart()))
	require.NoError(t, err)

	stored, err := f.repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, stored.Status)
}

func TestMarkNoShowIsTerminal(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, bookCmd(f.validStart()))

	marked, err := f.svc.MarkNoShow(context.Background(), appt.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusNoShow, marked.Status)

	_, err = f.svc.Complete(context.Background(), appt.ID, nil)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatus)
}

func TestListByProviderFilters(t *testing.T) {
	f := newFixture(t)
	providerID := uuid.New()

	cmdA := bookCmd(f.validStart())
	cmdA.ProviderID = providerID
	a := f.book(t, cmdA)

	cmdB := bookCmd(f.validStart().Add(2 * time.Hour))
	cmdB.ProviderID = providerID
	f.book(t, cmdB)

	_, err := f.svc.Cancel(context.Background(), a.ID, appointment.CancelCommand{})
	require.NoError(t, err)

	status := appointment.StatusScheduled
	rows, err := f.svc.ListByProvider(context.Background(), providerID, &appointment.ListQuery{Status: &status})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	all, err := f.svc.ListByProvider(context.Background(), providerID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
