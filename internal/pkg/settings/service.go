package settings

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
)

// Sources a snapshot can be served from, in fallback order.
const (
	SourceMemory  = "memory"
	SourceStore   = "store"
	SourceStale   = "stale_memory"
	SourceRedis   = "redis"
	SourceArchive = "archive"
)

// Store is the system of record for administrative settings.
type Store interface {
	Load(ctx context.Context) (*models.AdminSettings, error)
	Save(ctx context.Context, s *models.AdminSettings) error
}

// Mirror keeps a serialized copy of the last good snapshot outside the store.
type Mirror interface {
	Name() string
	Put(ctx context.Context, data []byte) error
	Get(ctx context.Context) ([]byte, error)
}

// Service serves administrative settings with bounded staleness. Readers get
// the freshest copy available; writers always go through the store.
type Service struct {
	store       Store
	mirrors     []Mirror
	ttl         time.Duration
	loadTimeout time.Duration
	retryAfter  time.Duration
	now         func() time.Time
	observe     func(source string)

	mu       sync.RWMutex
	current  *models.AdminSettings
	loadedAt time.Time
	retryAt  time.Time
	source   string

	writeMu sync.Mutex
	group   singleflight.Group

	pushMu     sync.Mutex
	lastPushed []byte
}

type Option func(*Service)

// WithMirrors registers fallback copies, consulted in the given order.
func WithMirrors(m ...Mirror) Option {
	return func(s *Service) { s.mirrors = append(s.mirrors, m...) }
}

func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithLoadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

// WithRetryAfter sets how long a failed store load is not retried while a
// fallback copy is held in memory.
func WithRetryAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryAfter = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver is called with the source of every served snapshot.
func WithObserver(f func(source string)) Option {
	return func(s *Service) { s.observe = f }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		ttl:         30 * time.Second,
		loadTimeout: 2 * time.Second,
		retryAfter:  5 * time.Second,
		now:         time.Now,
		observe:     func(string) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a private copy of the settings together with the source
// that served it. A store reload never outlives ctx: when it is slow or
// failing the caller gets the last known copy instead. It fails with an
// Unavailable error only when the store and every fallback came up empty.
func (s *Service) Snapshot(ctx context.Context) (*models.AdminSettings, string, error) {
	s.mu.RLock()
	cur, loadedAt, retryAt := s.current, s.loadedAt, s.retryAt
	s.mu.RUnlock()
	now := s.now()
	if cur != nil && now.Sub(loadedAt) < s.ttl {
		s.observe(SourceMemory)
		return cur.Clone(), SourceMemory, nil
	}
	if cur != nil && now.Before(retryAt) {
		s.observe(SourceStale)
		return cur.Clone(), SourceStale, nil
	}

	loaded, err := s.load(ctx)
	if err == nil {
		s.observe(SourceStore)
		return loaded.Clone(), SourceStore, nil
	}
	log.Warnf("[Settings] store unavailable, falling back: %v", err)
	s.backoff()

	if cur != nil {
		s.observe(SourceStale)
		return cur.Clone(), SourceStale, nil
	}
	for _, m := range s.mirrors {
		snap, merr := s.fromMirror(ctx, m)
		if merr != nil {
			log.Warnf("[Settings] %s copy unavailable: %v", m.Name(), merr)
			continue
		}
		s.keepFallback(snap, m.Name())
		s.observe(m.Name())
		return snap, m.Name(), nil
	}
	return nil, "", apperror.Unavailable(apperror.CodeStoreUnavailable, "settings unavailable", err)
}

// load waits for the shared reload, or for ctx, whichever ends first. The
// reload itself keeps running so a later caller can pick up its result.
func (s *Service) load(ctx context.Context) (*models.AdminSettings, error) {
	ch := s.group.DoChan("snapshot", func() (interface{}, error) {
		return s.reload(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.AdminSettings), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Source reports where the in-memory copy came from, or "" before the first load.
func (s *Service) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Update applies fn to a fresh copy read from the store, validates and saves
// the result, then refreshes the in-memory copy and mirrors. Writes are
// serialized within the process.
func (s *Service) Update(ctx context.Context, fn func(*models.AdminSettings) error) (*models.AdminSettings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	next, err := s.store.Load(callCtx)
	if err != nil {
		return nil, apperror.FromStore(err, apperror.CodeNotFound, "settings")
	}
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Normalize()
	if err := next.Validate(); err != nil {
		return nil, apperror.Validation(apperror.CodeValidationFailed, err.Error())
	}
	if err := s.store.Save(callCtx, next); err != nil {
		return nil, apperror.FromStore(err, apperror.CodeNotFound, "settings")
	}

	s.remember(next, SourceStore)
	s.group.Forget("snapshot")
	s.pushMirrors(next)
	return next.Clone(), nil
}

// MergeIPLogs folds buffered access entries into the stored ip_logs.
func (s *Service) MergeIPLogs(ctx context.Context, fresh map[string]models.IPLog) error {
	if len(fresh) == 0 {
		return nil
	}
	_, err := s.Update(ctx, func(cur *models.AdminSettings) error {
		cur.MergeIPLogs(fresh)
		return nil
	})
	return err
}

func (s *Service) reload(ctx context.Context) (*models.AdminSettings, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	loaded, err := s.store.Load(callCtx)
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		return nil, errors.New("store returned no settings")
	}
	s.remember(loaded, SourceStore)
	go s.pushMirrors(loaded)
	return loaded, nil
}

func (s *Service) remember(snap *models.AdminSettings, source string) {
	s.mu.Lock()
	s.current = snap.Clone()
	s.loadedAt = s.now()
	s.retryAt = time.Time{}
	s.source = source
	s.mu.Unlock()
}

// keepFallback holds a mirror copy in memory without marking it fresh, so the
// store is retried once the backoff ends.
func (s *Service) keepFallback(snap *models.AdminSettings, source string) {
	s.mu.Lock()
	if s.current == nil {
		s.current = snap.Clone()
		s.source = source
	}
	s.mu.Unlock()
}

func (s *Service) backoff() {
	s.mu.Lock()
	s.retryAt = s.now().Add(s.retryAfter)
	s.mu.Unlock()
}

// fromMirror reads a fallback copy on its own deadline; the caller's may
// already be spent on the store.
func (s *Service) fromMirror(ctx context.Context, m Mirror) (*models.AdminSettings, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
	defer cancel()
	data, err := m.Get(callCtx)
	if err != nil {
		return nil, err
	}
	return models.AdminSettingsFromJSON(data)
}

// pushMirrors refreshes the fallback copies when the snapshot changed.
// Mirror failures are logged and otherwise ignored.
func (s *Service) pushMirrors(snap *models.AdminSettings) {
	if len(s.mirrors) == 0 {
		return
	}
	data, err := snap.ToJSON()
	if err != nil {
		log.Errorf("[Settings] encoding snapshot failed: %v", err)
		return
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if bytes.Equal(data, s.lastPushed) {
		return
	}
	failed := false
	for _, m := range s.mirrors {
		ctx, cancel := context.WithTimeout(context.Background(), s.loadTimeout)
		if err := m.Put(ctx, data); err != nil {
			log.Warnf("[Settings] refreshing %s copy failed: %v", m.Name(), err)
			failed = true
		}
		cancel()
	}
	if !failed {
		s.lastPushed = data
	}
}
