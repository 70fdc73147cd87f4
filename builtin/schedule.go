package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/rookery/api"
	"github.com/casualjim/rookery/pkg/slogx"
	"github.com/casualjim/rookery/tool"
	"github.com/casualjim/rookery/types"
)

const defaultIntervalMinutes = 60

// ScheduleInterval returns the schedule_interval trigger tool: it computes
// next_run = now + interval_minutes and persists it through the gateway with
// status scheduled, so an external scheduler picks the agent up again. The
// computed time also lands in the run's root store under next_run.
func ScheduleInterval(gw api.Gateway) tool.Definition {
	return scheduleInterval(gw, time.Now)
}

func scheduleInterval(gw api.Gateway, now func() time.Time) tool.Definition {
	return tool.Must(func(ctx context.Context, args types.Params) (tool.Result, error) {
		agentID, _ := agentInfo(args)
		if agentID == "" {
			return tool.Result{}, fmt.Errorf("schedule_interval requires a running agent")
		}

		minutes := defaultIntervalMinutes
		if m, ok := intArg(args, "interval_minutes"); ok {
			if m <= 0 {
				return tool.Result{}, fmt.Errorf("interval_minutes must be positive, got %d", m)
			}
			minutes = m
		}

		next := now().UTC().Add(time.Duration(minutes) * time.Minute)
		if err := gw.UpdateStatus(ctx, agentID, api.StatusScheduled, map[string]any{
			"next_run": next,
		}); err != nil {
			return tool.Result{}, fmt.Errorf("schedule next run for agent %s: %w", agentID, err)
		}

		slog.InfoContext(ctx, "scheduled next run",
			slogx.AgentID(agentID), slog.Time("next_run", next), slog.Int("interval_minutes", minutes))

		return tool.Result{
			Status: "success",
			Values: &tool.Values{
				Context: map[string]any{"next_run": next},
				Root:    map[string]any{"next_run": next},
			},
		}, nil
	},
		tool.Name("schedule_interval"),
		tool.Description("Schedules the agent's next run at a fixed interval from now"),
		tool.Parameters(
			tool.Optional("interval_minutes", "minutes until the next run, default 60"),
			tool.DataStore(),
		),
	)
}
