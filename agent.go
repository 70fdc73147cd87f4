package rookery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/rookery/api"
	"github.com/casualjim/rookery/datastore"
	"github.com/casualjim/rookery/pkg/slogx"
	"github.com/casualjim/rookery/tool"
	"github.com/casualjim/rookery/types"
)

// Agent executes a declarative pipeline configuration against a per-run
// data store. A single Agent value must not be used by concurrent
// invocations; the data store it creates is owned exclusively by the
// invocation running it.
type Agent struct {
	id     string
	config api.Config
	rt     *Runtime
	store  *datastore.Store
}

// ID returns the agent's opaque identifier.
func (a *Agent) ID() string { return a.id }

// Config returns the normalized configuration this agent runs with.
func (a *Agent) Config() api.Config { return a.config }

// RetryCount returns how many times the external scheduler has retried this
// agent. Configuration data only; the engine never retries.
func (a *Agent) RetryCount() int { return a.config.RetryCount }

// RetryPolicy returns the agent's retry policy, falling back to the stock
// default when the config does not declare one.
func (a *Agent) RetryPolicy() api.RetryPolicy {
	if a.config.RetryPolicy != nil {
		return *a.config.RetryPolicy
	}
	return api.DefaultRetryPolicy()
}

// initStore builds the fresh per-invocation data store: the config
// back-reference, the agent id, and any call-time kwargs as root keys.
func (a *Agent) initStore(kwargs types.Params) {
	s := datastore.New()
	s.Set("config", a.config)
	s.Set("agent_id", a.id)
	s.SetAll(kwargs)
	a.store = s
}

// Run executes the agent's pipeline: the config.tools steps in declaration
// order, then the config.outputs steps, then a flush of output-phase values
// to the persistence gateway. The returned store is the complete execution
// state of this invocation.
func (a *Agent) Run(ctx context.Context, kwargs types.Params) (*datastore.Store, error) {
	return a.run(ctx, false, kwargs)
}

// Simulate executes the tool phase only: the outputs pipeline is never
// consulted and nothing is persisted.
func (a *Agent) Simulate(ctx context.Context, kwargs types.Params) (*datastore.Store, error) {
	return a.run(ctx, true, kwargs)
}

func (a *Agent) run(ctx context.Context, simulate bool, kwargs types.Params) (*datastore.Store, error) {
	a.initStore(kwargs)

	if _, err := a.runPhase(ctx, a.config.Tools, datastore.PhaseTool, kwargs); err != nil {
		return nil, err
	}
	if simulate {
		return a.store, nil
	}

	if _, err := a.runPhase(ctx, a.config.Outputs, datastore.PhaseOutput, kwargs); err != nil {
		return nil, err
	}

	a.flushOutputs(ctx)
	return a.store, nil
}

// ScheduleNextRun executes the config.triggers pipeline, used to compute
// and persist the agent's next scheduled execution. Independent of Run.
func (a *Agent) ScheduleNextRun(ctx context.Context, kwargs types.Params) (*datastore.Store, error) {
	a.initStore(kwargs)

	if _, err := a.runPhase(ctx, a.config.Triggers, datastore.PhaseTrigger, kwargs); err != nil {
		return nil, err
	}
	return a.store, nil
}

// runPhase executes steps strictly sequentially in declaration order,
// stopping early when a step signals ShouldExit. It reports whether the
// phase exited early.
func (a *Agent) runPhase(ctx context.Context, steps []api.Step, phase datastore.Phase, kwargs types.Params) (bool, error) {
	for _, step := range steps {
		if err := step.Validate(); err != nil {
			return false, fmt.Errorf("agent %s: %w", a.id, err)
		}

		slog.InfoContext(ctx, "starting step",
			slogx.AgentID(a.id), slogx.Tool(step.ID), slogx.Phase(phase))

		result, err := a.runStep(ctx, step, phase, kwargs)
		if err != nil {
			return false, err
		}

		slog.InfoContext(ctx, "completed step",
			slogx.AgentID(a.id), slogx.Tool(step.ID), slogx.Phase(phase))

		if result.ShouldExit {
			slog.InfoContext(ctx, "exiting phase early",
				slogx.AgentID(a.id), slogx.Tool(step.ID), slogx.Phase(phase))
			return true, nil
		}
	}
	return false, nil
}

// runStep resolves the step's tool, builds its argument map and invokes it,
// then merges the declared result values back into the data store.
//
// Merge precedence for the call map: step-declared params override
// call-time kwargs, and the merged map overrides the ambient data store
// during resolution.
func (a *Agent) runStep(ctx context.Context, step api.Step, phase datastore.Phase, kwargs types.Params) (tool.Result, error) {
	def, err := a.rt.tools.Resolve(step.ID)
	if err != nil {
		return tool.Result{}, err
	}

	args, err := a.resolveArgs(def, kwargs.Merge(step.Params))
	if err != nil {
		return tool.Result{}, err
	}

	result, err := def.Call(ctx, args)
	if err != nil {
		return tool.Result{}, err
	}

	if err := a.applyResult(ctx, step, result, phase); err != nil {
		return tool.Result{}, err
	}
	return result, nil
}

// applyResult merges a tool's returned values into the data store:
// delete_context prunes first, context and output values are recorded with
// provenance, and remaining root values land as bare root keys.
func (a *Agent) applyResult(ctx context.Context, step api.Step, result tool.Result, phase datastore.Phase) error {
	values := result.Values
	if values == nil {
		return nil
	}

	if len(values.DeleteContext) > 0 {
		for _, key := range a.store.Delete(datastore.ScopeContext, values.DeleteContext...) {
			slog.InfoContext(ctx, "deleted context key",
				slogx.AgentID(a.id), slogx.Tool(step.ID), slog.String("key", key))
		}
	}

	if len(values.Context) > 0 {
		if err := a.store.Record(datastore.ScopeContext, values.Context, step.ID, phase); err != nil {
			return fmt.Errorf("agent %s: %w", a.id, err)
		}
	}
	if len(values.Output) > 0 {
		if err := a.store.Record(datastore.ScopeOutputs, values.Output, step.ID, phase); err != nil {
			return fmt.Errorf("agent %s: %w", a.id, err)
		}
	}

	a.store.SetAll(values.Root)
	return nil
}

// flushOutputs persists every outputs entry produced during the output
// phase. Entries recorded under other phases stay in memory only. Flush
// failures are logged and swallowed: the pipeline has already completed and
// its in-memory state remains available to the caller.
func (a *Agent) flushOutputs(ctx context.Context) {
	var batch []api.Output
	for _, entry := range a.store.OrderedOutputs() {
		if entry.Phase != datastore.PhaseOutput {
			continue
		}
		batch = append(batch, api.Output{
			AgentID: a.id,
			Key:     entry.Key,
			Value:   entry.Value,
			ToolID:  entry.ToolID,
			Phase:   entry.Phase,
		})
	}
	if len(batch) == 0 {
		slog.DebugContext(ctx, "no output-phase values to save", slogx.AgentID(a.id))
		return
	}

	saved, err := a.rt.gateway.SaveOutputs(ctx, a.id, batch)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save outputs",
			slogx.AgentID(a.id), slogx.Error(err))
		return
	}
	if saved != len(batch) {
		slog.WarnContext(ctx, "saved fewer outputs than submitted",
			slogx.AgentID(a.id), slog.Int("submitted", len(batch)), slog.Int("saved", saved))
		return
	}
	slog.InfoContext(ctx, "saved outputs", slogx.AgentID(a.id), slog.Int("count", saved))
}
