// Package registry provides the process-lifetime lookup tables of the
// framework: the tool registry mapping step ids to executable definitions,
// and the template registry mapping agent-template names to configuration
// prototypes. Registries are explicit objects handed to the runtime by
// reference; there is no package-global state, so tests can run with
// isolated registries.
//
// Registries are populated at startup and read-mostly afterwards. Reads are
// safe under any concurrency; registration last-wins on name collision.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/rookery/api"
	"github.com/casualjim/rookery/tool"
)

// Registry is a generic concurrent name-to-value table.
type Registry[T any] interface {
	Get(name string) (T, bool)
	Add(name string, value T)
	GetOrAdd(name string, value func() T) (T, bool)
	Del(name string)
	Len() int
}

type registry[T any] struct {
	values *haxmap.Map[string, T]
}

// New creates an empty Registry.
func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[string, T](),
	}
}

func (r *registry[T]) Get(name string) (T, bool) {
	return r.values.Get(name)
}

func (r *registry[T]) Add(name string, value T) {
	r.values.Set(name, value)
}

func (r *registry[T]) GetOrAdd(name string, valueFn func() T) (T, bool) {
	return r.values.GetOrCompute(name, valueFn)
}

func (r *registry[T]) Del(name string) {
	r.values.Del(name)
}

func (r *registry[T]) Len() int {
	return int(r.values.Len())
}

// ToolNotFoundError reports a pipeline step referencing a tool that was
// never registered.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found in registry", e.Name)
}

// Tools is the registry of executable tool definitions.
type Tools struct {
	reg Registry[tool.Definition]
}

// NewTools creates an empty tool registry.
func NewTools() *Tools {
	return &Tools{reg: New[tool.Definition]()}
}

// Register associates the definition with its name. Re-registering a name
// silently replaces the previous definition (last wins); the replacement is
// logged at debug level for diagnosability.
func (t *Tools) Register(def tool.Definition) {
	if _, exists := t.reg.Get(def.Name); exists {
		slog.Debug("replacing registered tool", slog.String("tool", def.Name))
	}
	t.reg.Add(def.Name, def)
}

// Resolve returns the definition registered under name, or a
// ToolNotFoundError.
func (t *Tools) Resolve(name string) (tool.Definition, error) {
	def, found := t.reg.Get(name)
	if !found {
		return tool.Definition{}, &ToolNotFoundError{Name: name}
	}
	return def, nil
}

// Len returns the number of registered tools.
func (t *Tools) Len() int {
	return t.reg.Len()
}

// TemplateNotFoundError reports a sub-agent requirement naming an agent
// template that was never registered.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("agent template %q not found in registry", e.Name)
}

// Templates is the registry of agent configuration prototypes used to
// materialize sub-agents.
type Templates struct {
	reg Registry[api.Config]
}

// NewTemplates creates an empty template registry.
func NewTemplates() *Templates {
	return &Templates{reg: New[api.Config]()}
}

// Register stores cfg as the prototype for name. Last registration wins.
func (t *Templates) Register(name string, cfg api.Config) {
	t.reg.Add(name, cfg)
}

// Resolve returns a deep clone of the prototype registered under name.
// Callers own the clone and may mutate it freely.
func (t *Templates) Resolve(name string) (api.Config, error) {
	cfg, found := t.reg.Get(name)
	if !found {
		return api.Config{}, &TemplateNotFoundError{Name: name}
	}
	return cfg.Clone(), nil
}
