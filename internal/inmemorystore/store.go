package inmemorystore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/specialistvlad/pipegrid/internal/nodeid"
	"github.com/specialistvlad/pipegrid/internal/nodestore"
)

// entry guards one record. Records are independent, so each carries its
// own lock and writers for different instances never contend.
type entry struct {
	mu  sync.Mutex
	rec nodestore.Record
}

// Store is an in-memory implementation of nodestore.Store.
//
// Entries live in a sync.Map keyed by the instance address string; the
// registration order is kept separately under its own lock.
type Store struct {
	entries sync.Map // Key: instance address string, Value: *entry

	orderMu sync.RWMutex
	order   []string

	now func() time.Time
}

// New creates a new, empty in-memory instance state store.
func New() *Store {
	return &Store{now: time.Now}
}

var _ nodestore.Store = (*Store)(nil)

// Register adds instances in Pending state. Registering an instance twice
// is an error.
func (s *Store) Register(ctx context.Context, ids ...nodeid.Address) error {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	for _, id := range ids {
		key := id.String()
		e := &entry{rec: nodestore.Record{ID: id, Status: model.StatusPending}}
		if _, loaded := s.entries.LoadOrStore(key, e); loaded {
			return fmt.Errorf("instance %s is already registered", key)
		}
		s.order = append(s.order, key)
	}
	return nil
}

// SetStatus records a state transition.
func (s *Store) SetStatus(ctx context.Context, id nodeid.Address, status model.Status, reason model.SkipReason) error {
	return s.update(id, func(r *nodestore.Record) {
		r.Status = status
		r.Reason = reason
		switch {
		case status == model.StatusRunning:
			r.Started = s.now()
		case status.IsTerminal():
			r.Finished = s.now()
		}
	})
}

// GetStatus retrieves the status of an instance.
func (s *Store) GetStatus(ctx context.Context, id nodeid.Address) (model.Status, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return model.StatusPending, err
	}
	return rec.Status, nil
}

// SetAgent records the agent running an instance.
func (s *Store) SetAgent(ctx context.Context, id nodeid.Address, agent string) error {
	return s.update(id, func(r *nodestore.Record) { r.Agent = agent })
}

// AppendStepResult records a step result.
func (s *Store) AppendStepResult(ctx context.Context, id nodeid.Address, result model.StepResult) error {
	return s.update(id, func(r *nodestore.Record) { r.Steps = append(r.Steps, result) })
}

// SetError records the failure of an instance.
func (s *Store) SetError(ctx context.Context, id nodeid.Address, instanceErr error) error {
	return s.update(id, func(r *nodestore.Record) { r.Err = instanceErr })
}

// GetError retrieves the recorded error of an instance.
func (s *Store) GetError(ctx context.Context, id nodeid.Address) (error, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Err, nil
}

// Get returns a copy of a record.
func (s *Store) Get(ctx context.Context, id nodeid.Address) (nodestore.Record, error) {
	e, err := s.load(id.String())
	if err != nil {
		return nodestore.Record{}, err
	}
	return e.snapshot(), nil
}

// List returns copies of all records in registration order.
func (s *Store) List(ctx context.Context) ([]nodestore.Record, error) {
	s.orderMu.RLock()
	keys := slices.Clone(s.order)
	s.orderMu.RUnlock()

	out := make([]nodestore.Record, 0, len(keys))
	for _, key := range keys {
		e, err := s.load(key)
		if err != nil {
			return nil, err
		}
		out = append(out, e.snapshot())
	}
	return out, nil
}

func (s *Store) update(id nodeid.Address, fn func(*nodestore.Record)) error {
	e, err := s.load(id.String())
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.rec)
	return nil
}

func (s *Store) load(key string) (*entry, error) {
	v, ok := s.entries.Load(key)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, nodestore.ErrUnknownInstance)
	}
	return v.(*entry), nil
}

func (e *entry) snapshot() nodestore.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.rec
	rec.Steps = slices.Clone(e.rec.Steps)
	return rec
}
