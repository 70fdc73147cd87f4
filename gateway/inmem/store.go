// Package inmem provides an in-memory implementation of api.Gateway,
// suitable for tests, examples and single-process experiments. State is
// lost on process exit.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/casualjim/rookery/api"
)

// Store is an in-memory agent document store. All methods are safe for
// concurrent use; multi-key invariants (hierarchy deletion, owner scans)
// are maintained under a single lock.
type Store struct {
	mu      sync.RWMutex
	agents  map[string]api.Record
	outputs map[string][]api.Output
	now     func() time.Time
}

var _ api.Gateway = (*Store)(nil)

// New creates an empty in-memory gateway.
func New() *Store {
	return &Store{
		agents:  make(map[string]api.Record),
		outputs: make(map[string][]api.Output),
		now:     time.Now,
	}
}

// Get returns the record stored under id, or api.ErrNotFound.
func (s *Store) Get(_ context.Context, id string) (api.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.agents[id]
	if !ok {
		return api.Record{}, fmt.Errorf("agent %s: %w", id, api.ErrNotFound)
	}
	record.Config = record.Config.Clone()
	return record, nil
}

// QueryDue returns up to limit active, scheduled agents due at or before
// now, ascending by next_run.
func (s *Store) QueryDue(_ context.Context, limit int) ([]api.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	var due []api.Record
	for _, record := range s.agents {
		if !record.IsActive || record.Status != api.StatusScheduled {
			continue
		}
		if record.NextRun.IsZero() || record.NextRun.After(now) {
			continue
		}
		record.Config = record.Config.Clone()
		due = append(due, record)
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextRun.Before(due[j].NextRun) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Update applies the given fields to an agent document. Recognized field
// names map onto the typed record; anything else is ignored. Reports
// whether the document existed.
func (s *Store) Update(_ context.Context, id string, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return false, fmt.Errorf("update fields cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.agents[id]
	if !ok {
		return false, nil
	}

	for key, value := range fields {
		switch key {
		case "status":
			switch v := value.(type) {
			case api.Status:
				record.Status = v
			case string:
				record.Status = api.Status(v)
			}
		case "next_run":
			if t, ok := value.(time.Time); ok {
				record.NextRun = t.UTC()
			}
		case "is_active":
			if b, ok := value.(bool); ok {
				record.IsActive = b
			}
		case "config":
			if cfg, ok := value.(api.Config); ok {
				record.Config = cfg.Clone()
			}
		}
	}
	record.UpdatedAt = s.now().UTC()
	s.agents[id] = record
	return true, nil
}

// UpdateStatus transitions the agent's scheduling status, optionally
// applying extra fields in the same write.
func (s *Store) UpdateStatus(ctx context.Context, id string, status api.Status, extra map[string]any) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	fields := map[string]any{"status": status}
	for k, v := range extra {
		fields[k] = v
	}
	if _, err := s.Update(ctx, id, fields); err != nil {
		return err
	}
	return nil
}

// Insert creates a new agent document owned by ownerID, active and
// scheduled.
func (s *Store) Insert(_ context.Context, id string, cfg api.Config, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[id]; exists {
		return fmt.Errorf("agent %s already exists", id)
	}
	s.agents[id] = api.Record{
		ID:        id,
		Config:    cfg.Clone(),
		OwnerID:   ownerID,
		Status:    api.StatusScheduled,
		IsActive:  true,
		UpdatedAt: s.now().UTC(),
	}
	return nil
}

// DeleteHierarchy removes every transitive descendant of id, preserving the
// root document. The returned list carries the root id first, then every
// deleted descendant.
func (s *Store) DeleteHierarchy(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := []string{id}
	frontier := []string{id}
	for len(frontier) > 0 {
		var next []string
		for _, parent := range frontier {
			for childID, record := range s.agents {
				if record.OwnerID == parent {
					next = append(next, childID)
				}
			}
		}
		for _, childID := range next {
			delete(s.agents, childID)
			delete(s.outputs, childID)
		}
		affected = append(affected, next...)
		frontier = next
	}
	return affected, nil
}

// SaveOutputs appends the batch to the agent's stored outputs.
func (s *Store) SaveOutputs(_ context.Context, id string, outputs []api.Output) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outputs[id] = append(s.outputs[id], outputs...)
	return len(outputs), nil
}

// Outputs returns a copy of everything saved for the agent so far. Not part
// of api.Gateway; tests and examples use it to observe persisted results.
func (s *Store) Outputs(id string) []api.Output {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.outputs[id]
	out := make([]api.Output, len(src))
	copy(out, src)
	return out
}

// Descendants returns the ids of every transitive descendant of id. Not
// part of api.Gateway; tests use it to inspect hierarchy state.
func (s *Store) Descendants(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var descendants []string
	frontier := []string{id}
	for len(frontier) > 0 {
		var next []string
		for _, parent := range frontier {
			for childID, record := range s.agents {
				if record.OwnerID == parent {
					next = append(next, childID)
				}
			}
		}
		descendants = append(descendants, next...)
		frontier = next
	}
	sort.Strings(descendants)
	return descendants
}
