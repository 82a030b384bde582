package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
)

// memoryStore mimics the unique capture id constraint of the payments table.
type memoryStore struct {
	mu        sync.Mutex
	customers map[string]*models.Customer
	payments  map[string]models.Payment
	advances  int
	findErr   error
	recordErr error
	// skipPrecheck hides existing payments from PaymentExists so tests can
	// exercise the insert-time guard.
	skipPrecheck bool
}

func newMemoryStore(customers ...*models.Customer) *memoryStore {
	s := &memoryStore{customers: map[string]*models.Customer{}, payments: map[string]models.Payment{}}
	for _, c := range customers {
		s.customers[c.Email] = c
	}
	return s
}

func (s *memoryStore) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	c, ok := s.customers[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memoryStore) PaymentExists(ctx context.Context, captureID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipPrecheck {
		return false, nil
	}
	_, ok := s.payments[captureID]
	return ok, nil
}

func (s *memoryStore) RecordPayment(ctx context.Context, customerID string, payment *models.Payment, advance AdvanceFunc) (RecordResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return RecordResult{}, s.recordErr
	}
	if _, ok := s.payments[payment.CaptureID]; ok {
		return RecordResult{}, nil
	}
	var customer *models.Customer
	for _, c := range s.customers {
		if c.ID == customerID {
			customer = c
		}
	}
	if customer == nil {
		return RecordResult{}, gorm.ErrRecordNotFound
	}
	s.payments[payment.CaptureID] = *payment
	customer.NextDueDate = advance(customer.NextDueDate, customer.Plan)
	s.advances++
	return RecordResult{Created: true, NextDueDate: customer.NextDueDate}, nil
}

func monthlyCustomer(due time.Time) *models.Customer {
	return &models.Customer{
		ID:          "c-1",
		Email:       "alice@example.com",
		Plan:        models.PlanMonthly,
		NextDueDate: due,
		Status:      models.CustomerStatusActive,
	}
}

func captureEvent(captureID string) CaptureEvent {
	return CaptureEvent{
		EventType:   EventCaptureCompleted,
		CaptureID:   captureID,
		PayerEmail:  "alice@example.com",
		AmountValue: "12.50",
	}
}

func TestReconcileAdvancesDueDateWithClamping(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))
	r := NewReconciler(store, WithCurrency("gbp"))

	out, err := r.Reconcile(context.Background(), captureEvent("cap_1"))
	require.NoError(t, err)

	assert.Equal(t, []State{StateReceived, StateValidated, StateCustomerResolved, StateRecorded, StateAdvanced, StateAcknowledged}, out.Trace)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), out.NextDueDate)
	require.NotNil(t, out.Payment)
	assert.Equal(t, "GBP", out.Payment.Currency)
	assert.Equal(t, models.PaymentStatusCompleted, out.Payment.Status)
	assert.True(t, decimal.RequireFromString("12.50").Equal(out.Payment.Amount))
}

func TestReconcileNonLeapFebruary(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)))
	out, err := NewReconciler(store).Reconcile(context.Background(), captureEvent("cap_1"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), out.NextDueDate)
}

func TestReconcileDuplicateDeliveryIsAcknowledged(t *testing.T) {
	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	store := newMemoryStore(monthlyCustomer(due))
	r := NewReconciler(store)

	_, err := r.Reconcile(context.Background(), captureEvent("cap_123"))
	require.NoError(t, err)

	out, err := r.Reconcile(context.Background(), captureEvent("cap_123"))
	require.NoError(t, err)

	assert.True(t, out.Duplicate)
	assert.Equal(t, StateAcknowledged, out.State)
	assert.NotContains(t, out.Trace, StateRecorded)
	assert.Len(t, store.payments, 1)
	assert.Equal(t, 1, store.advances)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), store.customers["alice@example.com"].NextDueDate)
}

func TestReconcileInsertGuardCatchesRacingDuplicate(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)))
	store.payments["cap_9"] = models.Payment{CaptureID: "cap_9"}
	store.skipPrecheck = true

	out, err := NewReconciler(store).Reconcile(context.Background(), captureEvent("cap_9"))
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Equal(t, 0, store.advances)
}

func TestReconcileConcurrentDuplicates(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	r := NewReconciler(store)

	const deliveries = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	recorded, duplicates := 0, 0
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Reconcile(context.Background(), captureEvent("cap_123"))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if out.Duplicate {
				duplicates++
			} else {
				recorded++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, recorded)
	assert.Equal(t, deliveries-1, duplicates)
	assert.Len(t, store.payments, 1)
	assert.Equal(t, 1, store.advances)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), store.customers["alice@example.com"].NextDueDate)
}

func TestReconcileIgnoresOtherEventTypes(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Now()))
	ev := captureEvent("cap_1")
	ev.EventType = "PAYMENT.CAPTURE.REFUNDED"

	out, err := NewReconciler(store).Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, out.Ignored)
	assert.Equal(t, []State{StateReceived, StateAcknowledged}, out.Trace)
	assert.Empty(t, store.payments)
}

func TestReconcileRejectsMissingEmail(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Now()))
	ev := captureEvent("cap_1")
	ev.PayerEmail = ""

	out, err := NewReconciler(store).Reconcile(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, []State{StateReceived, StateRejected}, out.Trace)
}

func TestReconcileValidatesCaptureFields(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*CaptureEvent)
		message string
	}{
		{"malformed email", func(ev *CaptureEvent) { ev.PayerEmail = "not-an-email" }, "payer email is invalid"},
		{"missing capture id", func(ev *CaptureEvent) { ev.CaptureID = "" }, "capture id is required"},
		{"bad currency", func(ev *CaptureEvent) { ev.Currency = "DOLLARS" }, "currency is invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryStore(monthlyCustomer(time.Now()))
			ev := captureEvent("cap_1")
			tc.mutate(&ev)

			out, err := NewReconciler(store).Reconcile(context.Background(), ev)
			require.Error(t, err)
			assert.Equal(t, apperror.CodeValidationFailed, apperror.CodeOf(err))
			assert.Contains(t, err.Error(), tc.message)
			assert.Equal(t, []State{StateReceived, StateRejected}, out.Trace)
			assert.Empty(t, store.payments)
		})
	}
}

func TestReconcileTrimsPayerEmail(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	ev := captureEvent("cap_1")
	ev.PayerEmail = "  alice@example.com "

	out, err := NewReconciler(store).Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, StateAcknowledged, out.State)
}

func TestReconcileRejectsMalformedAmount(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Now()))
	ev := captureEvent("cap_1")
	ev.AmountValue = "twelve"

	_, err := NewReconciler(store).Reconcile(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInvalidPayload, apperror.CodeOf(err))
}

func TestReconcileMissingAmountRecordsZero(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	ev := captureEvent("cap_1")
	ev.AmountValue = ""

	out, err := NewReconciler(store).Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, out.Payment.Amount.IsZero())
}

func TestReconcileUnknownCustomer(t *testing.T) {
	store := newMemoryStore()

	out, err := NewReconciler(store).Reconcile(context.Background(), captureEvent("cap_1"))
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Equal(t, apperror.CodeCustomerNotFound, apperror.CodeOf(err))
	assert.Equal(t, []State{StateReceived, StateValidated, StateRejected}, out.Trace)
}

func TestReconcileStoreUnavailable(t *testing.T) {
	store := newMemoryStore(monthlyCustomer(time.Now()))
	store.recordErr = errors.New("connection reset by peer")

	out, err := NewReconciler(store).Reconcile(context.Background(), captureEvent("cap_1"))
	require.Error(t, err)
	assert.Equal(t, apperror.KindUnavailable, apperror.KindOf(err))
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, 0, store.advances)
}

func TestReconcileLookupTimeoutIsUnavailable(t *testing.T) {
	store := newMemoryStore()
	store.findErr = context.DeadlineExceeded

	_, err := NewReconciler(store).Reconcile(context.Background(), captureEvent("cap_1"))
	require.Error(t, err)
	assert.Equal(t, apperror.KindUnavailable, apperror.KindOf(err))
}
