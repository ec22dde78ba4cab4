package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/statekit/statekit/lib/storage"
)

// defaultPollInterval is how often the watcher diffs the table when no
// interval is configured.
const defaultPollInterval = 250 * time.Millisecond

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	k          TEXT PRIMARY KEY,
	v          TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// Options configures the backend during initialization.
type Options struct {
	// PollInterval is the watcher's diff interval (0 = default 250ms).
	PollInterval time.Duration
}

// NewSQLiteBackend creates a durable backend storing all keys in a single
// SQLite database file. SQLite has no native change broadcast, so the Watch
// implementation polls the table and diffs snapshots; cross-process
// notification latency is bounded by the poll interval.
func NewSQLiteBackend(path string, opts *Options) (storage.Backend, error) {
	if opts == nil {
		opts = &Options{}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	// WAL plus a busy timeout lets several connections (including ones from
	// other processes) share the database file.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: %w", err)
	}
	// modernc.org/sqlite connections do not tolerate concurrent writers
	// within one process, keep the pool at a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite backend: %w", err)
	}

	return &sqliteBackendImpl{
		db:         db,
		path:       path,
		interval:   interval,
		subs:       make(map[uint64]func(storage.ChangeEvent)),
		ownWrites:  make(map[string]string),
		ownRemoves: make(map[string]struct{}),
	}, nil
}

type sqliteBackendImpl struct {
	db       *sql.DB
	path     string
	interval time.Duration

	mu         sync.Mutex
	subs       map[uint64]func(storage.ChangeEvent)
	nextSub    uint64
	ownWrites  map[string]string
	ownRemoves map[string]struct{}
	pollDone   chan struct{}
	wg         sync.WaitGroup
	closed     bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage.Backend)
// --------------------------------------------------------------------------

func (b *sqliteBackendImpl) GetItem(key string) (string, bool, error) {
	var value string
	err := b.db.QueryRow(`SELECT v FROM kv WHERE k = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite backend: %w", err)
	}
	return value, true, nil
}

func (b *sqliteBackendImpl) SetItem(key string, value string) error {
	b.mu.Lock()
	b.ownWrites[key] = value
	b.mu.Unlock()

	_, err := b.db.Exec(
		`INSERT INTO kv (k, v, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		b.mu.Lock()
		delete(b.ownWrites, key)
		b.mu.Unlock()
		return fmt.Errorf("sqlite backend: %w", err)
	}
	return nil
}

func (b *sqliteBackendImpl) RemoveItem(key string) error {
	b.mu.Lock()
	b.ownRemoves[key] = struct{}{}
	b.mu.Unlock()

	if _, err := b.db.Exec(`DELETE FROM kv WHERE k = ?`, key); err != nil {
		b.mu.Lock()
		delete(b.ownRemoves, key)
		b.mu.Unlock()
		return fmt.Errorf("sqlite backend: %w", err)
	}
	return nil
}

func (b *sqliteBackendImpl) Keys() ([]string, error) {
	rows, err := b.db.Query(`SELECT k FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite backend: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite backend: %w", err)
	}
	return keys, nil
}

func (b *sqliteBackendImpl) Len() (int, error) {
	var count int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite backend: %w", err)
	}
	return count, nil
}

func (b *sqliteBackendImpl) Watch(fn func(storage.ChangeEvent)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("sqlite backend: closed")
	}

	if b.pollDone == nil {
		snapshot, err := b.snapshot()
		if err != nil {
			return nil, err
		}
		b.pollDone = make(chan struct{})
		b.wg.Add(1)
		go b.pollLoop(snapshot, b.pollDone)
	}

	b.nextSub++
	id := b.nextSub
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			var stop chan struct{}
			if len(b.subs) == 0 {
				stop = b.pollDone
				b.pollDone = nil
			}
			b.mu.Unlock()

			// Signal only, never wait: the cancel may run on the poll
			// goroutine itself when a subscriber unsubscribes from inside
			// its callback. Close joins the goroutine.
			if stop != nil {
				close(stop)
			}
		})
	}, nil
}

func (b *sqliteBackendImpl) SupportsFeature(feature storage.Feature) bool {
	supported := storage.FeatureGet |
		storage.FeatureSet |
		storage.FeatureRemove |
		storage.FeatureKeys |
		storage.FeatureWatch |
		storage.FeaturePersistent
	return supported&feature == feature
}

func (b *sqliteBackendImpl) Info() storage.BackendInfo {
	return storage.BackendInfo{
		Type:  storage.ImplSQLite,
		Scope: storage.ScopeLocal,
		SupportedFeatures: []storage.Feature{
			storage.FeatureGet, storage.FeatureSet, storage.FeatureRemove,
			storage.FeatureKeys, storage.FeatureWatch, storage.FeaturePersistent,
		},
		Metadata: &struct {
			Path         string `json:"path"`
			PollInterval string `json:"poll_interval"`
		}{Path: b.path, PollInterval: b.interval.String()},
	}
}

func (b *sqliteBackendImpl) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[uint64]func(storage.ChangeEvent))
	stop := b.pollDone
	b.pollDone = nil
	b.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	// Waits for any poller, including one already signaled by a cancel.
	b.wg.Wait()
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Polling Watcher
// --------------------------------------------------------------------------

// snapshot loads the full table into a map.
func (b *sqliteBackendImpl) snapshot() (map[string]string, error) {
	rows, err := b.db.Query(`SELECT k, v FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("sqlite backend: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite backend: %w", err)
	}
	return out, nil
}

// pollLoop diffs table snapshots every interval and emits one event per
// changed key, suppressing changes this backend made itself.
func (b *sqliteBackendImpl) pollLoop(prev map[string]string, done chan struct{}) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			curr, err := b.snapshot()
			if err != nil {
				continue
			}
			b.diffAndEmit(prev, curr)
			prev = curr
		}
	}
}

func (b *sqliteBackendImpl) diffAndEmit(prev, curr map[string]string) {
	for key, value := range curr {
		old, existed := prev[key]
		if existed && old == value {
			continue
		}
		ev := storage.ChangeEvent{Key: key, NewValue: ptr(value)}
		if existed {
			ev.OldValue = ptr(old)
		}
		b.emit(key, value, false, ev)
	}
	for key, old := range prev {
		if _, still := curr[key]; still {
			continue
		}
		b.emit(key, "", true, storage.ChangeEvent{Key: key, OldValue: ptr(old)})
	}
}

// emit delivers one event unless it matches a recorded own write/removal.
func (b *sqliteBackendImpl) emit(key, value string, removed bool, ev storage.ChangeEvent) {
	b.mu.Lock()
	if removed {
		if _, ok := b.ownRemoves[key]; ok {
			delete(b.ownRemoves, key)
			b.mu.Unlock()
			return
		}
	} else if own, ok := b.ownWrites[key]; ok && own == value {
		delete(b.ownWrites, key)
		b.mu.Unlock()
		return
	}
	targets := make([]func(storage.ChangeEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		targets = append(targets, fn)
	}
	b.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}

func ptr(s string) *string {
	return &s
}
