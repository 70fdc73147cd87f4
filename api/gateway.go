package api

import (
	"context"
	"errors"
	"time"

	"github.com/casualjim/rookery/datastore"
)

// ErrNotFound is returned by Gateway.Get when no agent record exists for
// the requested id.
var ErrNotFound = errors.New("agent not found")

// Status is the scheduling state of a persisted agent.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) String() string { return string(s) }

// Valid reports whether s is one of the recognized scheduling states.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Record is a persisted agent document.
type Record struct {
	ID        string    `json:"id"`
	Config    Config    `json:"config"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Status    Status    `json:"status"`
	NextRun   time.Time `json:"next_run,omitempty"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Output is one persisted pipeline output, as handed to SaveOutputs.
type Output struct {
	AgentID string          `json:"agent_id"`
	Key     string          `json:"key"`
	Value   any             `json:"value"`
	ToolID  string          `json:"tool_id"`
	Phase   datastore.Phase `json:"phase"`
}

// Gateway is the persistence collaborator the execution engine depends on.
// Implementations provide agent CRUD, the due-task query used by external
// schedulers, hierarchy deletion, and output persistence. All methods are
// safe for concurrent use.
type Gateway interface {
	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// QueryDue returns up to limit active, scheduled agents whose
	// next_run is at or before now, sorted ascending by next_run.
	QueryDue(ctx context.Context, limit int) ([]Record, error)

	// Update sets arbitrary fields on an agent document and reports
	// whether anything changed.
	Update(ctx context.Context, id string, fields map[string]any) (bool, error)

	// UpdateStatus transitions the agent's scheduling status, stamping
	// updated_at, optionally setting extra fields in the same write.
	UpdateStatus(ctx context.Context, id string, status Status, extra map[string]any) error

	// Insert creates a new agent document owned by ownerID. Empty ownerID
	// creates a root agent.
	Insert(ctx context.Context, id string, cfg Config, ownerID string) error

	// DeleteHierarchy removes every descendant of id (transitively via
	// owner_id edges) and returns the affected ids, the root id first.
	// The root document itself is preserved.
	DeleteHierarchy(ctx context.Context, id string) ([]string, error)

	// SaveOutputs persists a batch of pipeline outputs for the agent and
	// returns the number saved.
	SaveOutputs(ctx context.Context, id string, outputs []Output) (int, error)
}
