package scheduler

import (
	"time"

	"github.com/specialistvlad/pipegrid/internal/metrics"
	"github.com/specialistvlad/pipegrid/internal/nodestore"
	"github.com/specialistvlad/pipegrid/internal/notify"
)

// DefaultRetryInterval is how often queued instances retry a busy pool.
const DefaultRetryInterval = 250 * time.Millisecond

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStore mirrors instance state into store for concurrent readers.
func WithStore(store nodestore.Store) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithNotifier publishes transitions and step results.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithMetrics records run statistics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithMaxParallel caps concurrently running instances across all pools.
// Zero leaves only the pool capacities as a limit.
func WithMaxParallel(n int) Option {
	return func(s *Scheduler) { s.maxParallel = n }
}

// WithRetryInterval sets how often a busy pool is retried.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.retryInterval = d }
}

// WithRunID tags notifications with the run identifier.
func WithRunID(id string) Option {
	return func(s *Scheduler) { s.runID = id }
}
