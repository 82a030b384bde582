package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
)

// Store is the persistence contract of the reconciler.
type Store interface {
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	PaymentExists(ctx context.Context, captureID string) (bool, error)
	// RecordPayment inserts payment unless its capture id already exists and,
	// only when the insert happened, advances the customer's due date in the
	// same transaction.
	RecordPayment(ctx context.Context, customerID string, payment *models.Payment, advance AdvanceFunc) (RecordResult, error)
}

var eventValidator = validator.New()

var eventFieldLabels = map[string]string{
	"CaptureID":  "capture id",
	"PayerEmail": "payer email",
	"Currency":   "currency",
}

// Reconciler turns provider capture events into payments and due date advances.
type Reconciler struct {
	store       Store
	currency    string
	provider    string
	callTimeout time.Duration
}

type Option func(*Reconciler)

// WithCurrency sets the base currency recorded on payments.
func WithCurrency(code string) Option {
	return func(r *Reconciler) {
		if c := strings.ToUpper(strings.TrimSpace(code)); c != "" {
			r.currency = c
		}
	}
}

// WithCallTimeout bounds each store call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

func NewReconciler(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		currency:    "USD",
		provider:    models.PaymentProviderPayPal,
		callTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile drives one event through the state machine. A returned error
// always comes with an outcome in StateRejected; duplicates and non-capture
// events are acknowledged without error.
func (r *Reconciler) Reconcile(ctx context.Context, ev CaptureEvent) (Outcome, error) {
	var out Outcome
	out.enter(StateReceived)

	if ev.EventType != EventCaptureCompleted {
		out.Ignored = true
		out.enter(StateAcknowledged)
		return out, nil
	}

	amount, err := r.validate(ev)
	if err != nil {
		return r.reject(out, ev, err)
	}
	out.enter(StateValidated)

	customer, err := r.resolveCustomer(ctx, ev.PayerEmail)
	if err != nil {
		return r.reject(out, ev, err)
	}
	out.enter(StateCustomerResolved)

	exists, err := r.paymentExists(ctx, ev.CaptureID)
	if err != nil {
		return r.reject(out, ev, err)
	}
	if exists {
		log.Infof("[Reconciler] capture %s already recorded, acknowledging", ev.CaptureID)
		out.Duplicate = true
		out.enter(StateAcknowledged)
		return out, nil
	}

	if ev.Currency != "" && ev.Currency != r.currency {
		log.Warnf("[Reconciler] capture %s is in %s, recording in base currency %s", ev.CaptureID, ev.Currency, r.currency)
	}
	payment := &models.Payment{
		CustomerID: customer.ID,
		CaptureID:  ev.CaptureID,
		Amount:     amount,
		Currency:   r.currency,
		Provider:   r.provider,
		Status:     models.PaymentStatusCompleted,
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	res, err := r.store.RecordPayment(callCtx, customer.ID, payment, NextDueDate)
	if err != nil {
		return r.reject(out, ev, apperror.FromStore(err, apperror.CodeCustomerNotFound, "customer"))
	}
	if !res.Created {
		// A concurrent delivery of the same capture won the insert.
		log.Infof("[Reconciler] capture %s recorded concurrently, acknowledging", ev.CaptureID)
		out.Duplicate = true
		out.enter(StateAcknowledged)
		return out, nil
	}
	out.Payment = payment
	out.enter(StateRecorded)

	out.NextDueDate = res.NextDueDate
	out.enter(StateAdvanced)

	log.Infof("[Reconciler] capture %s recorded for customer %s, next due %s",
		ev.CaptureID, customer.ID, res.NextDueDate.Format("2006-01-02"))
	out.enter(StateAcknowledged)
	return out, nil
}

func (r *Reconciler) validate(ev CaptureEvent) (decimal.Decimal, error) {
	ev.PayerEmail = models.NormalizeEmail(ev.PayerEmail)
	if err := eventValidator.Struct(ev); err != nil {
		return decimal.Zero, apperror.Validation(apperror.CodeValidationFailed, describeEventError(err))
	}
	if ev.AmountValue == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(ev.AmountValue)
	if err != nil {
		return decimal.Zero, apperror.Validation(apperror.CodeInvalidPayload, "amount is not a decimal value")
	}
	if amount.IsNegative() {
		return decimal.Zero, apperror.Validation(apperror.CodeInvalidPayload, "amount must not be negative")
	}
	return amount.Round(2), nil
}

func describeEventError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid capture event"
	}
	fe := verrs[0]
	label := eventFieldLabels[fe.Field()]
	if label == "" {
		label = fe.Field()
	}
	if fe.Tag() == "required" {
		return label + " is required"
	}
	return label + " is invalid"
}

func (r *Reconciler) resolveCustomer(ctx context.Context, email string) (*models.Customer, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	customer, err := r.store.FindCustomerByEmail(callCtx, models.NormalizeEmail(email))
	if err != nil {
		return nil, apperror.FromStore(err, apperror.CodeCustomerNotFound, "customer")
	}
	return customer, nil
}

func (r *Reconciler) paymentExists(ctx context.Context, captureID string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	exists, err := r.store.PaymentExists(callCtx, captureID)
	if err != nil {
		return false, apperror.FromStore(err, apperror.CodeNotFound, "payment")
	}
	return exists, nil
}

func (r *Reconciler) reject(out Outcome, ev CaptureEvent, err error) (Outcome, error) {
	out.enter(StateRejected)
	if apperror.Is(err, apperror.KindUnavailable) {
		log.Errorf("[Reconciler] capture %s rejected after %s: %v", ev.CaptureID, out.Trace[len(out.Trace)-2], err)
	} else {
		log.Warnf("[Reconciler] capture %s rejected: %v", ev.CaptureID, err)
	}
	return out, err
}
