package rookery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/rookery/pkg/slogx"
	"github.com/casualjim/rookery/pkg/uuidx"
	"github.com/casualjim/rookery/types"
)

// ActivationError reports a failed activation together with the outcome of
// the compensating cleanup. Err is the original failure; CleanupErr is nil
// when the partially created hierarchy was torn down cleanly.
type ActivationError struct {
	AgentID    string
	Err        error
	CleanupErr error
}

func (e *ActivationError) Error() string {
	msg := fmt.Sprintf("failed to activate agent %s: %v", e.AgentID, e.Err)
	if e.CleanupErr != nil {
		msg += fmt.Sprintf(" (cleanup also failed: %v)", e.CleanupErr)
	}
	return msg
}

func (e *ActivationError) Unwrap() error { return e.Err }

// RolledBack reports whether the compensating cleanup completed without
// error, leaving no partial hierarchy behind.
func (e *ActivationError) RolledBack() bool { return e.CleanupErr == nil }

// requirement is one (step instance, agent template) pair a pipeline step
// demands to exist as a sub-agent.
type requirement struct {
	stepID   string
	template string
}

// requiredSubAgents inspects the tools pipeline for steps whose tool
// declares RequiredAgents capability metadata. Steps without an instance id
// cannot anchor a sub-agent and are skipped with a warning; steps whose
// tool is not registered are skipped silently, matching resolution being a
// run-time concern.
func (a *Agent) requiredSubAgents() []requirement {
	var reqs []requirement
	for _, step := range a.config.Tools {
		if step.InstanceID == "" {
			slog.Warn("step has no instance_id, skipping sub-agent check",
				slogx.AgentID(a.id), slogx.Tool(step.ID))
			continue
		}
		def, err := a.rt.tools.Resolve(step.ID)
		if err != nil {
			continue
		}
		for _, name := range def.RequiredAgents {
			reqs = append(reqs, requirement{stepID: step.InstanceID, template: name})
		}
	}
	return reqs
}

// Activate materializes the sub-agents this agent's pipeline requires and
// schedules its next run. The existing descendant subtree is always deleted
// and recreated first, never diffed, so children always reflect the
// parent's current step parameters.
//
// On failure the partially created hierarchy is deactivated best-effort and
// an *ActivationError is returned carrying both the original error and the
// cleanup outcome.
func (a *Agent) Activate(ctx context.Context) error {
	reqs := a.requiredSubAgents()

	var created []string
	err := func() error {
		if len(reqs) > 0 {
			affected, err := a.rt.gateway.DeleteHierarchy(ctx, a.id)
			if err != nil {
				return err
			}
			if len(affected) > 1 {
				slog.InfoContext(ctx, "cleaned up existing sub-agents",
					slogx.AgentID(a.id), slog.Int("count", len(affected)-1))
			}

			for _, req := range reqs {
				slog.InfoContext(ctx, "creating sub-agent",
					slogx.AgentID(a.id),
					slog.String("template", req.template),
					slog.String("step_id", req.stepID))

				subID, err := a.CreateSubAgent(ctx, req.template, req.stepID, nil)
				if err != nil {
					return err
				}
				created = append(created, subID)
			}
		}

		_, err := a.ScheduleNextRun(ctx, nil)
		return err
	}()
	if err == nil {
		return nil
	}

	actErr := &ActivationError{AgentID: a.id, Err: err}
	if len(created) > 0 {
		slog.WarnContext(ctx, "activation failed, cleaning up created sub-agents",
			slogx.AgentID(a.id), slog.Int("count", len(created)), slogx.Error(err))
		if cleanupErr := a.Deactivate(ctx); cleanupErr != nil {
			// keep the original error visible; the cleanup failure rides along
			slog.ErrorContext(ctx, "cleanup after failed activation also failed",
				slogx.AgentID(a.id), slogx.Error(cleanupErr))
			actErr.CleanupErr = cleanupErr
		}
	}
	return actErr
}

// Deactivate deletes every descendant of this agent. The agent itself is
// preserved, left inactive.
func (a *Agent) Deactivate(ctx context.Context) error {
	affected, err := a.rt.gateway.DeleteHierarchy(ctx, a.id)
	if err != nil {
		return fmt.Errorf("deactivate agent %s: %w", a.id, err)
	}
	slog.InfoContext(ctx, "deactivated agent",
		slogx.AgentID(a.id), slog.Int("descendants_deleted", len(affected)-1))
	return nil
}

// CreateSubAgent materializes one sub-agent from the named template for the
// pipeline step identified by stepID, persists it and recursively activates
// it. It returns the generated sub-agent id.
//
// Parameter propagation is conservative: only keys that already exist in a
// sub-agent tool's params are copied forward from the parent step's params;
// templates never grow new parameters.
func (a *Agent) CreateSubAgent(ctx context.Context, requiredAgent, stepID string, override types.Params) (string, error) {
	subID := uuidx.NewString()

	var parentParams types.Params
	found := false
	for _, step := range a.config.Tools {
		if step.InstanceID == stepID {
			parentParams = step.Params
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("no tool step with instance_id %q in parent agent %s", stepID, a.id)
	}

	accountID := a.config.AccountID
	if accountID == "" {
		return "", fmt.Errorf("cannot determine account_id for sub-agent of agent %s", a.id)
	}

	cfg, err := a.rt.templates.Resolve(requiredAgent)
	if err != nil {
		return "", err
	}

	// every tool in the child pipeline needs an instance id so its own
	// sub-agents can anchor to it
	for i := range cfg.Tools {
		if cfg.Tools[i].InstanceID == "" {
			cfg.Tools[i].InstanceID = fmt.Sprintf("%s_%d", subID, i)
		}
	}

	if len(parentParams) > 0 {
		for i := range cfg.Tools {
			sub := cfg.Tools[i].Params
			if len(sub) == 0 {
				continue
			}
			for k, v := range parentParams {
				if _, exists := sub[k]; exists {
					sub[k] = v
				}
			}
		}
	}

	cfg.OwnerID = a.id
	cfg.StepID = stepID
	cfg.RequiredAgent = requiredAgent
	cfg.AccountID = accountID

	if len(override) > 0 {
		cfg, err = cfg.WithOverrides(override)
		if err != nil {
			return "", fmt.Errorf("apply overrides to sub-agent %s: %w", subID, err)
		}
	}

	if err := a.rt.gateway.Insert(ctx, subID, cfg, a.id); err != nil {
		return "", fmt.Errorf("failed to create sub-agent %s: %w", subID, err)
	}

	child := a.rt.Agent(subID, cfg)
	if err := child.Activate(ctx); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "created and activated sub-agent",
		slogx.AgentID(a.id), slog.String("sub_agent_id", subID),
		slog.String("template", requiredAgent))
	return subID, nil
}
