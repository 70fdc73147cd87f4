// Package datastore implements the per-run value store of an agent
// invocation: a root namespace of loose keys plus two provenance-tracked
// scopes, context and outputs. Every value recorded into a scope carries the
// id of the tool that produced it, the pipeline phase it was produced in and
// a UTC creation timestamp. Overwriting a key never discards history; prior
// values are shifted to numeric suffixes (key_1, key_2, ...) with their
// provenance intact, highest suffix being oldest.
//
// A Store is created fresh for every Run/ScheduleNextRun invocation and is
// owned exclusively by that invocation. It performs no I/O and is not safe
// for concurrent use.
package datastore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// Phase identifies which part of the pipeline produced a value.
type Phase string

const (
	// PhaseTrigger marks values produced while evaluating config.triggers.
	PhaseTrigger Phase = "trigger"
	// PhaseTool marks values produced while executing config.tools.
	PhaseTool Phase = "tool"
	// PhaseOutput marks values produced while executing config.outputs.
	// Only entries recorded under this phase are flushed to the
	// persistence gateway at the end of a run.
	PhaseOutput Phase = "output"
)

func (p Phase) String() string { return string(p) }

// Valid reports whether p is one of the three canonical phase tags.
func (p Phase) Valid() bool {
	switch p {
	case PhaseTrigger, PhaseTool, PhaseOutput:
		return true
	}
	return false
}

// Scope selects one of the two provenance-tracked namespaces.
type Scope string

const (
	// ScopeContext holds scratch values available to later pipeline steps.
	ScopeContext Scope = "context"
	// ScopeOutputs holds values intended for external persistence.
	ScopeOutputs Scope = "outputs"
)

func (s Scope) String() string { return string(s) }

// Entry is a stored value together with its provenance.
type Entry struct {
	Value     any             `json:"value"`
	ToolID    string          `json:"tool_id"`
	Phase     Phase           `json:"phase"`
	CreatedAt strfmt.DateTime `json:"created_at"`
}

// KeyedEntry pairs an Entry with the key it is stored under. Returned by
// OrderedOutputs for audit and export.
type KeyedEntry struct {
	Key string `json:"key"`
	Entry
}

// Store is the mutable execution state of a single agent invocation.
type Store struct {
	root   map[string]any
	scopes map[Scope]map[string]Entry
	now    func() time.Time
}

// New creates an empty Store with both provenance scopes initialized.
func New() *Store {
	return &Store{
		root: make(map[string]any),
		scopes: map[Scope]map[string]Entry{
			ScopeContext: make(map[string]Entry),
			ScopeOutputs: make(map[string]Entry),
		},
		now: time.Now,
	}
}

// Set writes a root-level key. Root keys carry no provenance; the reserved
// keys "config" and "agent_id" are seeded here by the agent before the
// first step runs.
func (s *Store) Set(key string, value any) {
	s.root[key] = value
}

// SetAll writes every entry of values into the root namespace.
func (s *Store) SetAll(values map[string]any) {
	for k, v := range values {
		s.root[k] = v
	}
}

// Get reads a root-level key.
func (s *Store) Get(key string) (any, bool) {
	v, ok := s.root[key]
	return v, ok
}

// Lookup reads a single provenance entry from the given scope.
func (s *Store) Lookup(scope Scope, key string) (Entry, bool) {
	e, ok := s.scopes[scope][key]
	return e, ok
}

// Len returns the number of entries currently held in the given scope,
// historical suffixes included.
func (s *Store) Len(scope Scope) int {
	return len(s.scopes[scope])
}

// Record stores values into the given scope, stamping each with the
// producing tool id, the phase and the current UTC time. When a key is
// already present, the existing chain is shifted one suffix up (highest
// suffix first, so no entry is ever lost) before the new value takes the
// bare key. Shifted entries keep their original provenance.
func (s *Store) Record(scope Scope, values map[string]any, toolID string, phase Phase) error {
	target, ok := s.scopes[scope]
	if !ok {
		return fmt.Errorf("unknown scope %q", scope)
	}
	if !phase.Valid() {
		return fmt.Errorf("invalid phase %q", phase)
	}

	for key, value := range values {
		if _, exists := target[key]; exists {
			shiftChain(target, key)
		}
		target[key] = Entry{
			Value:     value,
			ToolID:    toolID,
			Phase:     phase,
			CreatedAt: strfmt.DateTime(s.now().UTC()),
		}
	}
	return nil
}

// shiftChain renames key -> key_1, key_1 -> key_2 and so on. Suffixed
// entries are moved highest-index first so every rewrite lands on a free
// slot; the bare key is moved last and left deleted for the caller to
// overwrite.
func shiftChain(m map[string]Entry, base string) {
	var indices []int
	for k := range m {
		if idx, ok := suffixIndex(base, k); ok {
			indices = append(indices, idx)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	for _, idx := range indices {
		from := fmt.Sprintf("%s_%d", base, idx)
		m[fmt.Sprintf("%s_%d", base, idx+1)] = m[from]
		delete(m, from)
	}
	m[base+"_1"] = m[base]
	delete(m, base)
}

// suffixIndex reports whether k is base followed by a positive numeric
// suffix, returning the index when it is.
func suffixIndex(base, k string) (int, bool) {
	rest, ok := strings.CutPrefix(k, base+"_")
	if !ok || rest == "" || rest[0] < '0' || rest[0] > '9' {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Delete removes the exact keys from the given scope and returns the keys
// that were actually present. Historical siblings (key_1, key_2, ...) are
// untouched; pruning context is always an explicit, per-key operation.
func (s *Store) Delete(scope Scope, keys ...string) []string {
	target, ok := s.scopes[scope]
	if !ok {
		return nil
	}
	var deleted []string
	for _, key := range keys {
		if _, exists := target[key]; exists {
			delete(target, key)
			deleted = append(deleted, key)
		}
	}
	return deleted
}

// Entries returns a copy of every entry in the given scope.
func (s *Store) Entries(scope Scope) map[string]Entry {
	src := s.scopes[scope]
	out := make(map[string]Entry, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Flatten returns the given scope reduced to bare key/value pairs with all
// provenance stripped. This is the shape handed to tools through the
// reserved data_store parameter; tools never observe provenance metadata.
func (s *Store) Flatten(scope Scope) map[string]any {
	src := s.scopes[scope]
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v.Value
	}
	return out
}

// Snapshot returns a shallow copy of the full store with both scopes
// pre-flattened under their scope names. Root keys come first so the
// reserved "context" and "outputs" keys always reflect the scopes.
func (s *Store) Snapshot() map[string]any {
	out := make(map[string]any, len(s.root)+2)
	for k, v := range s.root {
		out[k] = v
	}
	out[string(ScopeContext)] = s.Flatten(ScopeContext)
	out[string(ScopeOutputs)] = s.Flatten(ScopeOutputs)
	return out
}

// OrderedOutputs returns every outputs entry sorted by creation time,
// oldest first. Ordering is stable for entries created within the same
// clock reading.
func (s *Store) OrderedOutputs() []KeyedEntry {
	src := s.scopes[ScopeOutputs]
	out := make([]KeyedEntry, 0, len(src))
	for k, v := range src {
		out = append(out, KeyedEntry{Key: k, Entry: v})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := time.Time(out[i].CreatedAt), time.Time(out[j].CreatedAt)
		if ti.Equal(tj) {
			return out[i].Key < out[j].Key
		}
		return ti.Before(tj)
	})
	return out
}
