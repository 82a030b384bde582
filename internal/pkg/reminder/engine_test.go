package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
)

type recordKey struct {
	customerID string
	bucket     int
}

type memoryStore struct {
	mu        sync.Mutex
	customers []models.Customer
	records   map[recordKey]*models.ReminderSendRecord
	nextID    uint
	released  int
	listErr   error
}

func newMemoryStore(customers ...models.Customer) *memoryStore {
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID < customers[j].ID })
	return &memoryStore{customers: customers, records: map[recordKey]*models.ReminderSendRecord{}}
}

func (s *memoryStore) ListCustomers(ctx context.Context, afterID string, limit int) ([]models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Customer
	for _, c := range s.customers {
		if c.ID > afterID {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) HasSent(ctx context.Context, customerID string, bucket int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[recordKey{customerID, bucket}]
	return ok, nil
}

func (s *memoryStore) Claim(ctx context.Context, rec *models.ReminderSendRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey{rec.CustomerID, rec.Bucket}
	if _, ok := s.records[k]; ok {
		return false, nil
	}
	s.nextID++
	rec.ID = s.nextID
	cp := *rec
	s.records[k] = &cp
	return true, nil
}

func (s *memoryStore) ConfirmSent(ctx context.Context, id uint, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			r.Status = models.ReminderStatusSent
			r.SentAt = &sentAt
		}
	}
	return nil
}

func (s *memoryStore) Release(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.records {
		if r.ID == id {
			delete(s.records, k)
			s.released++
		}
	}
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendReminder(ctx context.Context, n Notice) error {
	return m.Called(n.CustomerID, n.Bucket).Error(0)
}

type stubLocker struct {
	held     bool
	err      error
	unlocked bool
}

func (l *stubLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	return func() { l.unlocked = true }, true, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func customer(id string, due time.Time) models.Customer {
	return models.Customer{ID: id, Email: id + "@example.com", Plan: models.PlanMonthly, NextDueDate: due}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRunSendsEachBucketOnce(t *testing.T) {
	due := day(2024, 6, 30)
	store := newMemoryStore(customer("c-1", due))
	notifier := new(mockNotifier)
	notifier.On("SendReminder", "c-1", mock.Anything).Return(nil)

	days := []time.Time{day(2024, 5, 31), day(2024, 6, 23), day(2024, 6, 30)}
	for _, today := range days {
		for i := 0; i < 2; i++ {
			res, err := NewEngine(store, notifier, WithClock(fixedClock(today))).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, res.Eligible)
		}
	}

	notifier.AssertNumberOfCalls(t, "SendReminder", 3)
	notifier.AssertCalled(t, "SendReminder", "c-1", 30)
	notifier.AssertCalled(t, "SendReminder", "c-1", 7)
	notifier.AssertCalled(t, "SendReminder", "c-1", 0)
	for _, rec := range store.records {
		assert.Equal(t, models.ReminderStatusSent, rec.Status)
		assert.NotNil(t, rec.SentAt)
	}
}

func TestRunSkipsAlreadyRecordedBucket(t *testing.T) {
	today := day(2024, 3, 1)
	store := newMemoryStore(customer("c-1", today.AddDate(0, 0, 7)))
	store.records[recordKey{"c-1", 7}] = &models.ReminderSendRecord{ID: 99, CustomerID: "c-1", Bucket: 7}
	notifier := new(mockNotifier)

	res, err := NewEngine(store, notifier, WithClock(fixedClock(today))).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.AlreadySent)
	assert.Equal(t, 0, res.Sent)
	notifier.AssertNotCalled(t, "SendReminder", mock.Anything, mock.Anything)
}

func TestRunIgnoresDaysOutsideBuckets(t *testing.T) {
	today := day(2024, 3, 1)
	store := newMemoryStore(
		customer("c-1", today.AddDate(0, 0, 8)),
		customer("c-2", today.AddDate(0, 0, -1)),
		customer("c-3", today.AddDate(0, 0, 29)),
	)
	notifier := new(mockNotifier)

	res, err := NewEngine(store, notifier, WithClock(fixedClock(today))).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 0, res.Eligible)
	notifier.AssertNotCalled(t, "SendReminder", mock.Anything, mock.Anything)
}

func TestRunContinuesAfterSendFailure(t *testing.T) {
	today := day(2024, 3, 1)
	due := today.AddDate(0, 0, 7)
	store := newMemoryStore(customer("c-1", due), customer("c-2", due), customer("c-3", due))
	notifier := new(mockNotifier)
	notifier.On("SendReminder", "c-2", 7).Return(errors.New("smtp: 451 try again"))
	notifier.On("SendReminder", mock.Anything, 7).Return(nil)

	res, err := NewEngine(store, notifier, WithClock(fixedClock(today))).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, store.released)
	_, kept := store.records[recordKey{"c-2", 7}]
	assert.False(t, kept, "failed send must not leave a record behind")

	notifier.ExpectedCalls = nil
	notifier.On("SendReminder", "c-2", 7).Return(nil)
	res, err = NewEngine(store, notifier, WithClock(fixedClock(today))).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 2, res.AlreadySent)
}

func TestRunUsesConfiguredBuckets(t *testing.T) {
	today := day(2024, 3, 1)
	store := newMemoryStore(customer("c-1", today.AddDate(0, 0, 3)))
	notifier := new(mockNotifier)
	notifier.On("SendReminder", "c-1", 3).Return(nil)

	buckets := func(context.Context) ([]int, bool) { return []int{3}, true }
	res, err := NewEngine(store, notifier, WithClock(fixedClock(today)), WithBuckets(buckets)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestRunPagesThroughAllCustomers(t *testing.T) {
	today := day(2024, 3, 1)
	var customers []models.Customer
	for _, id := range []string{"c-1", "c-2", "c-3", "c-4", "c-5"} {
		customers = append(customers, customer(id, today))
	}
	store := newMemoryStore(customers...)
	notifier := new(mockNotifier)
	notifier.On("SendReminder", mock.Anything, 0).Return(nil)

	res, err := NewEngine(store, notifier, WithClock(fixedClock(today)), WithPageSize(2)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Scanned)
	assert.Equal(t, 5, res.Sent)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	today := day(2024, 3, 1)
	store := newMemoryStore(customer("c-1", today), customer("c-2", today), customer("c-3", today))
	notifier := new(mockNotifier)

	ctx, cancel := context.WithCancel(context.Background())
	notifier.On("SendReminder", "c-1", 0).Return(nil).Run(func(mock.Arguments) { cancel() })

	res, err := NewEngine(store, notifier, WithClock(fixedClock(today))).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Sent)
	notifier.AssertNumberOfCalls(t, "SendReminder", 1)
}

func TestRunRefusesWhenLockHeld(t *testing.T) {
	store := newMemoryStore(customer("c-1", day(2024, 3, 1)))
	notifier := new(mockNotifier)

	_, err := NewEngine(store, notifier, WithLocker(&stubLocker{held: true})).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Equal(t, apperror.CodeRunInProgress, apperror.CodeOf(err))
	notifier.AssertNotCalled(t, "SendReminder", mock.Anything, mock.Anything)
}

func TestRunReleasesLockAndProceedsWithoutLocker(t *testing.T) {
	today := day(2024, 3, 1)
	store := newMemoryStore(customer("c-1", today))
	notifier := new(mockNotifier)
	notifier.On("SendReminder", "c-1", 0).Return(nil)

	locker := &stubLocker{}
	_, err := NewEngine(store, notifier, WithClock(fixedClock(today)), WithLocker(locker)).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, locker.unlocked)

	store.records = map[recordKey]*models.ReminderSendRecord{}
	res, err := NewEngine(store, notifier, WithClock(fixedClock(today)), WithLocker(&stubLocker{err: errors.New("redis down")})).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestRunListFailureIsUnavailable(t *testing.T) {
	store := newMemoryStore()
	store.listErr = errors.New("dial tcp: connection refused")

	_, err := NewEngine(store, new(mockNotifier)).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperror.KindUnavailable, apperror.KindOf(err))
}

func TestRunConcurrentRunsSendOnce(t *testing.T) {
	today := day(2024, 3, 1)
	store := newMemoryStore(customer("c-1", today.AddDate(0, 0, 30)))
	notifier := new(mockNotifier)
	notifier.On("SendReminder", "c-1", 30).Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := NewEngine(store, notifier, WithClock(fixedClock(today))).Run(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	notifier.AssertNumberOfCalls(t, "SendReminder", 1)
}

func TestRunUsesLocationForToday(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	// 2024-03-01 20:00 UTC is already 2024-03-02 in UTC+10.
	now := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	store := newMemoryStore(customer("c-1", day(2024, 3, 9)))
	notifier := new(mockNotifier)
	notifier.On("SendReminder", "c-1", 7).Return(nil)

	res, err := NewEngine(store, notifier, WithClock(fixedClock(now)), WithLocation(loc)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestRunReportsObserverResults(t *testing.T) {
	today := day(2024, 3, 1)
	store := newMemoryStore(customer("c-1", today))
	notifier := new(mockNotifier)
	notifier.On("SendReminder", "c-1", 0).Return(nil)

	var seen []string
	observe := func(bucket int, result string) { seen = append(seen, result) }
	e := NewEngine(store, notifier, WithClock(fixedClock(today)), WithObserver(observe))
	_, err := e.Run(context.Background())
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{ResultSent, ResultAlreadySent}, seen)
}
