package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
)

// RunLockKey is held for the duration of a batch run.
const RunLockKey = "lock:reminders:run"

// ErrRunInProgress is returned when another batch holds the run lock.
var ErrRunInProgress = apperror.Conflict(apperror.CodeRunInProgress, "a reminder run is already in progress")

// Store is the persistence contract of the engine.
type Store interface {
	// ListCustomers pages through all customers ordered by id, starting
	// after afterID.
	ListCustomers(ctx context.Context, afterID string, limit int) ([]models.Customer, error)
	HasSent(ctx context.Context, customerID string, bucket int) (bool, error)
	// Claim inserts rec unless a record for its (customer, bucket) exists.
	Claim(ctx context.Context, rec *models.ReminderSendRecord) (bool, error)
	ConfirmSent(ctx context.Context, id uint, sentAt time.Time) error
	Release(ctx context.Context, id uint) error
}

// Notifier delivers one reminder through the external notification service.
type Notifier interface {
	SendReminder(ctx context.Context, n Notice) error
}

// Locker provides a best-effort cross-process run lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// BucketsFunc returns the active day buckets and whether scheduled runs are enabled.
type BucketsFunc func(ctx context.Context) ([]int, bool)

// Observer is told about every per-customer decision.
type Observer func(bucket int, result string)

const (
	ResultSent        = "sent"
	ResultAlreadySent = "already_sent"
	ResultFailed      = "failed"
)

// Notice is the message handed to the notifier.
type Notice struct {
	RunID        string    `json:"run_id"`
	CustomerID   string    `json:"customer_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PlexUsername string    `json:"plex_username,omitempty"`
	Plan         string    `json:"plan"`
	Bucket       int       `json:"bucket"`
	DaysLeft     int       `json:"days_left"`
	DueDate      time.Time `json:"due_date"`
}

// Result summarizes one batch run.
type Result struct {
	RunID       string `json:"run_id"`
	Scanned     int    `json:"scanned"`
	Eligible    int    `json:"eligible"`
	Sent        int    `json:"sent"`
	AlreadySent int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Cancelled   bool   `json:"cancelled"`
}

type Engine struct {
	store       Store
	notifier    Notifier
	locker      Locker
	buckets     BucketsFunc
	observe     Observer
	limiter     *rate.Limiter
	location    *time.Location
	pageSize    int
	callTimeout time.Duration
	lockTTL     time.Duration
	now         func() time.Time
}

type Option func(*Engine)

func WithLocker(l Locker) Option { return func(e *Engine) { e.locker = l } }

func WithBuckets(f BucketsFunc) Option { return func(e *Engine) { e.buckets = f } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observe = o } }

// WithLocation sets the zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithSendRate caps notifier calls per second. Zero disables throttling.
func WithSendRate(perSecond float64) Option {
	return func(e *Engine) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(store Store, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		buckets: func(context.Context) ([]int, bool) {
			return models.DefaultReminderDays, true
		},
		observe:     func(int, string) {},
		location:    time.UTC,
		pageSize:    200,
		callTimeout: 10 * time.Second,
		lockTTL:     30 * time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enabled reports whether scheduled runs should execute.
func (e *Engine) Enabled(ctx context.Context) bool {
	_, enabled := e.buckets(ctx)
	return enabled
}

// Run scans every customer once and sends the reminders that are due today.
// Failures for one customer are counted and the scan continues. Cancelling
// ctx stops the scan between customers and returns the partial result with
// ctx's error.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: ulid.Make().String()}

	if e.locker != nil {
		unlock, ok, err := e.locker.TryLock(ctx, RunLockKey, e.lockTTL)
		switch {
		case err != nil:
			log.Warnf("[Reminder] run %s: lock unavailable, relying on send records: %v", res.RunID, err)
		case !ok:
			return res, ErrRunInProgress
		default:
			defer unlock()
		}
	}

	days, _ := e.buckets(ctx)
	buckets := make(map[int]struct{}, len(days))
	for _, d := range days {
		buckets[d] = struct{}{}
	}
	today := e.now().In(e.location)
	log.Infof("[Reminder] run %s started for %s, buckets %v", res.RunID, today.Format("2006-01-02"), days)

	afterID := ""
	for {
		page, err := e.listPage(ctx, afterID)
		if err != nil {
			if ctx.Err() != nil {
				res.Cancelled = true
				return res, ctx.Err()
			}
			log.Errorf("[Reminder] run %s: listing customers failed: %v", res.RunID, err)
			return res, apperror.FromStore(err, apperror.CodeNotFound, "customers")
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			if err := ctx.Err(); err != nil {
				res.Cancelled = true
				log.Warnf("[Reminder] run %s cancelled after %d customers", res.RunID, res.Scanned)
				return res, err
			}
			c := &page[i]
			res.Scanned++

			daysLeft := DaysBetween(today, c.NextDueDate)
			if _, ok := buckets[daysLeft]; !ok {
				continue
			}
			res.Eligible++

			switch result := e.process(ctx, res.RunID, c, daysLeft); result {
			case ResultSent:
				res.Sent++
			case ResultAlreadySent:
				res.AlreadySent++
			default:
				res.Failed++
			}
		}

		afterID = page[len(page)-1].ID
		if len(page) < e.pageSize {
			break
		}
	}

	log.Infof("[Reminder] run %s finished: scanned=%d sent=%d skipped=%d failed=%d",
		res.RunID, res.Scanned, res.Sent, res.AlreadySent, res.Failed)
	return res, nil
}

func (e *Engine) listPage(ctx context.Context, afterID string) ([]models.Customer, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.store.ListCustomers(callCtx, afterID, e.pageSize)
}

// process handles one customer and bucket. The send record is claimed
// before sending so overlapping runs cannot both send; a failed send
// releases the claim.
func (e *Engine) process(ctx context.Context, runID string, c *models.Customer, bucket int) string {
	result := e.processCustomer(ctx, runID, c, bucket)
	e.observe(bucket, result)
	return result
}

func (e *Engine) processCustomer(ctx context.Context, runID string, c *models.Customer, bucket int) string {
	sent, err := e.hasSent(ctx, c.ID, bucket)
	if err != nil {
		log.Errorf("[Reminder] run %s: send record lookup for customer %s failed: %v", runID, c.ID, err)
		return ResultFailed
	}
	if sent {
		return ResultAlreadySent
	}

	rec := &models.ReminderSendRecord{
		CustomerID: c.ID,
		Bucket:     bucket,
		DueDate:    c.NextDueDate,
		RunID:      runID,
		Status:     models.ReminderStatusClaimed,
	}
	claimed, err := e.claim(ctx, rec)
	if err != nil {
		log.Errorf("[Reminder] run %s: claim for customer %s bucket %d failed: %v", runID, c.ID, bucket, err)
		return ResultFailed
	}
	if !claimed {
		return ResultAlreadySent
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			e.release(runID, rec)
			return ResultFailed
		}
	}

	notice := Notice{
		RunID:        runID,
		CustomerID:   c.ID,
		Email:        c.Email,
		Name:         c.Name,
		PlexUsername: c.PlexUsername,
		Plan:         c.Plan,
		Bucket:       bucket,
		DaysLeft:     bucket,
		DueDate:      c.NextDueDate,
	}
	sendCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	err = e.notifier.SendReminder(sendCtx, notice)
	cancel()
	if err != nil {
		log.Errorf("[Reminder] run %s: sending %d-day reminder to customer %s failed: %v", runID, bucket, c.ID, err)
		e.release(runID, rec)
		return ResultFailed
	}

	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()
	if err := e.store.ConfirmSent(confirmCtx, rec.ID, e.now()); err != nil {
		// The claim still blocks a resend; only the sent timestamp is missing.
		log.Errorf("[Reminder] run %s: confirming send record %d failed: %v", runID, rec.ID, err)
	}
	return ResultSent
}

func (e *Engine) hasSent(ctx context.Context, customerID string, bucket int) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.store.HasSent(callCtx, customerID, bucket)
}

func (e *Engine) claim(ctx context.Context, rec *models.ReminderSendRecord) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.store.Claim(callCtx, rec)
}

// release runs detached from the batch context so a cancelled run still
// frees its claim.
func (e *Engine) release(runID string, rec *models.ReminderSendRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout)
	defer cancel()
	if err := e.store.Release(ctx, rec.ID); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("[Reminder] run %s: releasing claim %d failed: %v", runID, rec.ID, err)
	}
}
