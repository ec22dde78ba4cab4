package vstore

import (
	"io"

	vm "github.com/VictoriaMetrics/metrics"
)

// Metrics counts store operations in an isolated metrics set so multiple
// store instances (or tests) never clash over the global registry. All
// methods are safe on a nil receiver, which is how a store with disabled
// metrics calls them.
type Metrics struct {
	set *vm.Set

	reads              *vm.Counter
	hits               *vm.Counter
	misses             *vm.Counter
	writes             *vm.Counter
	removes            *vm.Counter
	expirations        *vm.Counter
	migrations         *vm.Counter
	validationFailures *vm.Counter
	notifications      *vm.Counter
}

// NewMetrics creates an empty metrics set for one or more store instances.
func NewMetrics() *Metrics {
	set := vm.NewSet()
	return &Metrics{
		set:                set,
		reads:              set.NewCounter(`statekit_store_reads_total`),
		hits:               set.NewCounter(`statekit_store_hits_total`),
		misses:             set.NewCounter(`statekit_store_misses_total`),
		writes:             set.NewCounter(`statekit_store_writes_total`),
		removes:            set.NewCounter(`statekit_store_removes_total`),
		expirations:        set.NewCounter(`statekit_store_expirations_total`),
		migrations:         set.NewCounter(`statekit_store_migrations_total`),
		validationFailures: set.NewCounter(`statekit_store_validation_failures_total`),
		notifications:      set.NewCounter(`statekit_store_notifications_total`),
	}
}

// WritePrometheus dumps the counters in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	if m == nil {
		return
	}
	m.set.WritePrometheus(w)
}

func (m *Metrics) IncReads() {
	if m != nil {
		m.reads.Inc()
	}
}

func (m *Metrics) IncHits() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) IncMisses() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) IncWrites() {
	if m != nil {
		m.writes.Inc()
	}
}

func (m *Metrics) IncRemoves() {
	if m != nil {
		m.removes.Inc()
	}
}

func (m *Metrics) IncExpirations() {
	if m != nil {
		m.expirations.Inc()
	}
}

func (m *Metrics) IncMigrations() {
	if m != nil {
		m.migrations.Inc()
	}
}

func (m *Metrics) IncValidationFailures() {
	if m != nil {
		m.validationFailures.Inc()
	}
}

func (m *Metrics) AddNotifications(n int) {
	if m != nil && n > 0 {
		m.notifications.Add(n)
	}
}

// ReadCount returns the current read counter value. Primarily for tests
// and diagnostics; scraping should go through WritePrometheus.
func (m *Metrics) ReadCount() uint64 {
	if m == nil {
		return 0
	}
	return m.reads.Get()
}

// WriteCount returns the current write counter value.
func (m *Metrics) WriteCount() uint64 {
	if m == nil {
		return 0
	}
	return m.writes.Get()
}
