package vstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/statekit/statekit/lib/codec"
	"github.com/statekit/statekit/lib/schema"
	"github.com/statekit/statekit/lib/storage"
	"github.com/statekit/statekit/lib/store"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config describes one store instance. It is immutable after New.
type Config[T any] struct {
	// Key is the storage namespace key, unique per store instance.
	Key string
	// Schema validates every value read from or written to storage.
	Schema schema.Schema[T]
	// Backend is the storage surface the store persists through.
	Backend storage.Backend

	// Version is the current schema version (0 = unversioned).
	Version int
	// Migrate transforms data recorded under an older version into the
	// current shape. Only applied when both Version and Migrate are set.
	// The old version is 0 when the stored record carries none.
	Migrate func(old any, oldVersion int) (T, error)

	// TTL makes written records expire after the given duration
	// (0 = never).
	TTL time.Duration
	// Default is returned by Get when no valid value exists.
	Default *T
	// OnError observes every failure the store recovers from or returns.
	OnError func(err *store.Error)

	// Codec overrides the persisted representation (nil = JSON codec).
	Codec codec.ICodec

	// Debounce delays Set so only the last call within a quiet window
	// executes. Throttle executes the first call immediately and coalesces
	// later calls within the window into one trailing execution. The two
	// are mutually exclusive.
	Debounce time.Duration
	Throttle time.Duration

	// Logger receives warnings and debug output (nil = no-op).
	Logger *zap.Logger
	// Metrics receives operation counters (nil = disabled).
	Metrics *Metrics
	// Clock overrides the time source, for tests (nil = time.Now).
	Clock func() time.Time
}

// New creates a store instance for the given configuration.
//
// Thread-safety: the returned store is safe for concurrent use from
// multiple goroutines, though cooperative use is assumed: concurrent
// Update calls on the same key are last-write-wins, not transactional.
func New[T any](cfg Config[T]) (store.IStore[T], error) {
	if cfg.Backend == nil {
		return nil, store.NewError(store.KindEnvironment, cfg.Key, errors.New("no storage backend configured"))
	}
	if cfg.Key == "" {
		return nil, store.NewError(store.KindEnvironment, cfg.Key, errors.New("empty storage key"))
	}
	if cfg.Schema == nil {
		return nil, store.NewError(store.KindEnvironment, cfg.Key, errors.New("no schema configured"))
	}
	if cfg.Debounce > 0 && cfg.Throttle > 0 {
		return nil, store.NewError(store.KindEnvironment, cfg.Key, errors.New("debounce and throttle are mutually exclusive"))
	}

	s := &storeImpl[T]{
		cfg:    cfg,
		codec:  cfg.Codec,
		logger: cfg.Logger,
		now:    cfg.Clock,
		subs:   make(map[uint64]func(T, bool)),
	}
	if s.codec == nil {
		s.codec = codec.NewJSONCodec()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	// Deferred executions run on a timer goroutine, so the limiter's exec
	// acquires the write mutex itself.
	write := func(v T) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.writeNow(v)
	}
	switch {
	case cfg.Debounce > 0:
		s.limiter = newLimiter(modeDebounce, cfg.Debounce, write)
	case cfg.Throttle > 0:
		s.limiter = newLimiter(modeThrottle, cfg.Throttle, write)
	}

	return s, nil
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

type storeImpl[T any] struct {
	cfg    Config[T]
	codec  codec.ICodec
	logger *zap.Logger
	now    func() time.Time

	// writeMu serializes plain writes, flushes and the migration rewrite
	// on this instance. Never held while running the read pipeline.
	writeMu sync.Mutex

	subMu   sync.Mutex
	subs    map[uint64]func(T, bool)
	nextSub uint64
	unwatch func()

	limiter *limiter[T]
	closed  atomic.Bool
}

func (s *storeImpl[T]) nowMillis() int64 {
	return s.now().UnixMilli()
}

// report routes a failure to the configured error callback.
func (s *storeImpl[T]) report(e *store.Error) *store.Error {
	s.logger.Debug("store failure",
		zap.String("key", e.Key),
		zap.Stringer("kind", e.Kind),
		zap.Error(e.Err),
	)
	if s.cfg.OnError != nil {
		s.cfg.OnError(e)
	}
	return e
}

// --------------------------------------------------------------------------
// Interface Methods - Read Path (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *storeImpl[T]) Get() (value T, ok bool) {
	// Get must never fail loudly, whatever happens inside the pipeline.
	defer func() {
		if r := recover(); r != nil {
			s.report(store.NewError(store.KindDeserialization, s.cfg.Key, fmt.Errorf("read pipeline panicked: %v", r)))
			value, ok = s.defaultValue()
		}
	}()

	s.cfg.Metrics.IncReads()

	value, ok = s.load(true)
	if !ok {
		s.cfg.Metrics.IncMisses()
		return s.defaultValue()
	}
	s.cfg.Metrics.IncHits()
	return value, true
}

func (s *storeImpl[T]) Has() bool {
	_, ok := s.load(true)
	return ok
}

func (s *storeImpl[T]) GetRaw() (*store.Record, bool) {
	raw, found, err := s.cfg.Backend.GetItem(s.cfg.Key)
	if err != nil || !found {
		return nil, false
	}
	decoded, err := s.codec.Deserialize(raw)
	if err != nil {
		return nil, false
	}
	rec, err := recordFromAny(decoded)
	if err != nil {
		return nil, false
	}
	return rec, true
}

func (s *storeImpl[T]) defaultValue() (T, bool) {
	if s.cfg.Default != nil {
		return *s.cfg.Default, true
	}
	var zero T
	return zero, false
}

// load reads the raw record and runs the policy pipeline. The boolean is
// false when no valid value exists; the configured default is NOT applied
// here.
func (s *storeImpl[T]) load(selfHeal bool) (T, bool) {
	var zero T

	raw, found, err := s.cfg.Backend.GetItem(s.cfg.Key)
	if err != nil {
		s.report(store.NewError(store.KindEnvironment, s.cfg.Key, err))
		return zero, false
	}
	if !found {
		return zero, false
	}

	return s.pipeline(raw, selfHeal)
}

// pipeline applies, in exactly this order: deserialize → expiration →
// migration → validation. Later stages assume the earlier ones already ran.
// With selfHeal set, records that fail deserialization or validation and
// records detected as expired are deleted from storage, and a successful
// migration is transparently rewritten at the current version.
func (s *storeImpl[T]) pipeline(raw string, selfHeal bool) (T, bool) {
	var zero T

	// Stage 1: deserialize. Malformed text collapses to "no data".
	decoded, err := s.codec.Deserialize(raw)
	if err != nil {
		s.report(store.NewError(store.KindDeserialization, s.cfg.Key, err))
		if selfHeal {
			s.deleteQuietly()
		}
		return zero, false
	}
	rec, err := recordFromAny(decoded)
	if err != nil {
		s.report(store.NewError(store.KindDeserialization, s.cfg.Key, err))
		if selfHeal {
			s.deleteQuietly()
		}
		return zero, false
	}

	// Stage 2: expiration, strict inequality at read time.
	if rec.ExpiresAt > 0 && s.nowMillis() > rec.ExpiresAt {
		s.cfg.Metrics.IncExpirations()
		if selfHeal {
			s.deleteQuietly()
		}
		return zero, false
	}

	// Stage 3: migration.
	candidate := rec.Value
	migrated := false
	if s.cfg.Version > 0 && s.cfg.Migrate != nil && rec.Version != s.cfg.Version {
		if rec.Version > s.cfg.Version {
			// Data written by newer code: pass through unmigrated, never
			// downgrade automatically.
			s.logger.Warn("stored version is newer than the configured version, using value as-is",
				zap.String("key", s.cfg.Key),
				zap.Int("stored_version", rec.Version),
				zap.Int("configured_version", s.cfg.Version),
			)
		} else {
			out, err := s.migrate(rec.Value, rec.Version)
			if err != nil {
				s.report(store.NewError(store.KindMigration, s.cfg.Key, err))
				return zero, false
			}
			candidate = out
			migrated = true
			s.cfg.Metrics.IncMigrations()
		}
	}

	// Stage 4: validation. A record failing here is purged, not left behind.
	res := schema.SafeParse(s.cfg.Schema, candidate)
	if !res.Success {
		s.cfg.Metrics.IncValidationFailures()
		s.report(store.NewError(store.KindValidation, s.cfg.Key, res.Err))
		if selfHeal {
			s.deleteQuietly()
		}
		return zero, false
	}

	// Rewrite migrated data at the current version through the normal write
	// path so subsequent reads skip migration. Best effort: the migrated
	// value is returned even if the rewrite fails.
	if migrated && selfHeal {
		s.writeMu.Lock()
		_ = s.writeNow(res.Data)
		s.writeMu.Unlock()
	}

	return res.Data, true
}

// migrate invokes the migration function inside a recovery boundary.
func (s *storeImpl[T]) migrate(old any, oldVersion int) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("migration panicked: %v", r)
		}
	}()
	return s.cfg.Migrate(old, oldVersion)
}

// deleteQuietly removes the record during self-healing cleanup. Failures
// are reported but otherwise ignored: the read still degrades to absent.
func (s *storeImpl[T]) deleteQuietly() {
	if err := s.cfg.Backend.RemoveItem(s.cfg.Key); err != nil {
		s.report(store.NewError(backendFailureKind(err), s.cfg.Key, err))
	}
}

// backendFailureKind classifies a backend write failure: capacity
// rejections are quota failures, everything else means the backend itself
// is broken.
func backendFailureKind(err error) store.ErrorKind {
	if errors.Is(err, storage.ErrQuotaExceeded) {
		return store.KindQuota
	}
	return store.KindEnvironment
}

// --------------------------------------------------------------------------
// Interface Methods - Write Path (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *storeImpl[T]) Set(data T) error {
	if s.limiter != nil {
		return s.limiter.submit(data)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeNow(data)
}

// writeNow validates, persists and notifies. Every failure is reported and
// returned: a write the caller asked for must never vanish silently.
func (s *storeImpl[T]) writeNow(data T) error {
	res := schema.SafeParse(s.cfg.Schema, any(data))
	if !res.Success {
		s.cfg.Metrics.IncValidationFailures()
		return s.report(store.NewError(store.KindValidation, s.cfg.Key, res.Err))
	}

	rec := store.Record{
		Value:     res.Data,
		Version:   s.cfg.Version,
		Timestamp: s.nowMillis(),
	}
	if s.cfg.TTL > 0 {
		rec.ExpiresAt = s.nowMillis() + s.cfg.TTL.Milliseconds()
	}

	raw, err := s.codec.Serialize(rec)
	if err != nil {
		return s.report(store.NewError(store.KindSerialization, s.cfg.Key, err))
	}

	if err := s.cfg.Backend.SetItem(s.cfg.Key, raw); err != nil {
		return s.report(store.NewError(backendFailureKind(err), s.cfg.Key, err))
	}

	s.cfg.Metrics.IncWrites()
	s.notify(res.Data, true)
	return nil
}

func (s *storeImpl[T]) Update(fn func(current T, present bool) T) error {
	// Read outside writeMu: the pipeline may take it for a migration
	// rewrite. Concurrent Update calls are last-write-wins.
	current, present := s.load(true)
	if !present {
		current, present = s.defaultValue()
	}
	return s.Set(fn(current, present))
}

func (s *storeImpl[T]) Remove() error {
	if err := s.cfg.Backend.RemoveItem(s.cfg.Key); err != nil {
		return s.report(store.NewError(backendFailureKind(err), s.cfg.Key, err))
	}

	s.cfg.Metrics.IncRemoves()
	var zero T
	s.notify(zero, false)
	return nil
}

func (s *storeImpl[T]) Flush() error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.flush()
}

// --------------------------------------------------------------------------
// Subscription
// --------------------------------------------------------------------------

func (s *storeImpl[T]) OnUpdate(fn func(value T, present bool)) func() {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	attach := len(s.subs) == 1 && s.unwatch == nil
	s.subMu.Unlock()

	// Lazily attach a single backend watcher with the first subscriber.
	if attach {
		s.attachWatcher()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			detach := len(s.subs) == 0
			unwatch := s.unwatch
			if detach {
				s.unwatch = nil
			}
			s.subMu.Unlock()

			if detach && unwatch != nil {
				unwatch()
			}
		})
	}
}

// notify synchronously delivers the new state to all current subscribers in
// registration order.
func (s *storeImpl[T]) notify(value T, present bool) {
	s.subMu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	targets := make([]func(T, bool), 0, len(ids))
	for _, id := range ids {
		targets = append(targets, s.subs[id])
	}
	s.subMu.Unlock()

	s.cfg.Metrics.AddNotifications(len(targets))
	for _, fn := range targets {
		fn(value, present)
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (s *storeImpl[T]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.limiter != nil {
		s.limiter.cancel()
	}

	s.subMu.Lock()
	s.subs = make(map[uint64]func(T, bool))
	unwatch := s.unwatch
	s.unwatch = nil
	s.subMu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	return nil
}
