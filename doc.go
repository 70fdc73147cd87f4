/*
Package rookery is an agent orchestration layer. Each agent holds a
declarative configuration describing a pipeline of named operations
(tools); the runtime executes that pipeline against a mutable per-run data
store, tracks the provenance of every value produced, and persists selected
results through a pluggable gateway.

The package is built around a small number of cooperating parts:

  - Runtime: the explicit handle bundle (tool registry, template registry,
    persistence gateway) every invocation resolves against
  - Agent: the pipeline executor with its three phases (triggers, tools,
    outputs)
  - datastore.Store: the per-run value store with provenance-tracked
    context and outputs scopes
  - tool.Definition: the declared contract of a pluggable operation
  - api.Gateway: the persistence collaborator

# Basic usage

Register tools and templates, build a runtime, construct an agent from its
configuration and run it:

	tools := registry.NewTools()
	tools.Register(tool.Must(echo,
		tool.Name("echo"),
		tool.Parameters(tool.Required("text", "value to echo")),
	))

	rt := rookery.New(
		rookery.Tools(tools),
		rookery.Gateway(inmem.New()),
	)

	agent := rt.Agent("agent-1", api.Config{
		Tools: []api.Step{{ID: "echo", Params: types.Params{"text": "hi"}}},
	})

	store, err := agent.Run(ctx, nil)

# Phases and provenance

A run executes config.tools then config.outputs; ScheduleNextRun executes
config.triggers. Values a tool returns under context or output are recorded
with the producing step id, the phase, and a UTC timestamp. Overwriting a
key shifts the previous value to a numeric suffix (key_1, key_2, ...)
instead of discarding it. After the output phase, entries recorded during
that phase are flushed to the gateway.

# Hierarchies

Tools may declare that they depend on other agents existing (for example an
indexing tool that needs a dedicated indexer agent). Activate inspects the
pipeline for such requirements, tears down the previous descendant subtree
and materializes fresh sub-agents from registered templates, recursively.
A failed activation compensates by deactivating whatever was created and
reports both outcomes through ActivationError.
*/
package rookery
