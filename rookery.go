package rookery

import (
	"context"
	"fmt"

	"github.com/casualjim/rookery/api"
	"github.com/casualjim/rookery/pkg/timex"
	"github.com/casualjim/rookery/registry"
	"github.com/fogfish/opts"
)

// Runtime bundles the shared handles every agent invocation needs: the tool
// registry, the agent-template registry and the persistence gateway. It is
// constructed once at startup and passed around by reference; there is no
// process-global registry state anywhere in the framework.
//
// A Runtime is safe for concurrent use. Agents created from it each own
// their per-invocation state exclusively.
type Runtime struct {
	tools     *registry.Tools
	templates *registry.Templates
	gateway   api.Gateway
}

var (
	// Tools supplies the tool registry the runtime resolves pipeline
	// steps against.
	Tools = opts.ForName[Runtime, *registry.Tools]("tools")

	// Templates supplies the agent-template registry used to materialize
	// sub-agents.
	Templates = opts.ForName[Runtime, *registry.Templates]("templates")

	// Gateway supplies the persistence collaborator.
	Gateway = opts.ForName[Runtime, api.Gateway]("gateway")
)

// New creates a Runtime. A gateway is mandatory; tool and template
// registries default to empty ones so tests can run against a blank slate.
func New(options ...opts.Option[Runtime]) *Runtime {
	rt := &Runtime{
		tools:     registry.NewTools(),
		templates: registry.NewTemplates(),
	}
	if err := opts.Apply(rt, options); err != nil {
		panic(err)
	}
	if rt.gateway == nil {
		panic("rookery: a persistence gateway is required")
	}
	return rt
}

// defaultAIModels is the stock model routing table stamped onto agents that
// do not declare their own. Keys are routing roles, values provider-prefixed
// model ids.
func defaultAIModels() map[string]string {
	return map[string]string{
		"default":       "x-ai/grok-3-mini-beta",
		"composing":     "anthropic/claude-3.7-sonnet",
		"research":      "perplexity/llama-3.1-sonar-large-128k-online",
		"research-mini": "x-ai/grok-3-mini-beta",
		"analyzing":     "openai/o3-mini-high",
		"mini":          "openai/gpt-4o-mini",
	}
}

// Agent constructs an agent from an id and a configuration. The config is
// deep-copied and normalized: account_id falls back to owner_id, the model
// routing table gets its defaults, and every datetime in the agent-specific
// extras becomes UTC-aware.
func (rt *Runtime) Agent(id string, cfg api.Config) *Agent {
	cfg = cfg.Clone()
	if cfg.AccountID == "" {
		cfg.AccountID = cfg.OwnerID
	}
	if cfg.AIModels == nil {
		cfg.AIModels = defaultAIModels()
	}
	cfg.Extra = timex.EnsureUTCMap(cfg.Extra)

	return &Agent{
		id:     id,
		config: cfg,
		rt:     rt,
	}
}

// Load fetches the persisted record for id and constructs an Agent from it.
func (rt *Runtime) Load(ctx context.Context, id string) (*Agent, error) {
	record, err := rt.gateway.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load agent %s: %w", id, err)
	}
	return rt.Agent(record.ID, record.Config), nil
}
