package builtin

import (
	"context"

	"github.com/casualjim/rookery/api"
	"github.com/casualjim/rookery/tool"
	"github.com/casualjim/rookery/types"
	"golang.org/x/sync/semaphore"
)

// agentInfo pulls the identity the engine plants in every data store
// snapshot. The config back-reference may be absent when a tool is invoked
// outside an agent run.
func agentInfo(args types.Params) (id string, cfg api.Config) {
	ds, _ := args[tool.DataStoreParam].(map[string]any)
	id, _ = ds["agent_id"].(string)
	cfg, _ = ds["config"].(api.Config)
	return id, cfg
}

func stringArg(args types.Params, name string) (string, bool) {
	v, ok := args[name].(string)
	return v, ok && v != ""
}

// intArg tolerates the numeric types a JSON decode can produce.
func intArg(args types.Params, name string) (int, bool) {
	switch v := args[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// headerArg accepts either a typed or a decoded-from-JSON header map.
func headerArg(args types.Params, name string) map[string]string {
	switch v := args[name].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, hv := range v {
			if s, ok := hv.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}

// acquire takes one permit from sem, returning the matching release. A nil
// semaphore means unbounded concurrency.
func acquire(ctx context.Context, sem *semaphore.Weighted) (func(), error) {
	if sem == nil {
		return func() {}, nil
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
