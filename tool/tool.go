package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/casualjim/rookery/pkg/stdx"
	"github.com/casualjim/rookery/types"
	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DataStoreParam is the reserved parameter name through which a tool
// receives the flattened per-run data store.
const DataStoreParam = "data_store"

// Func is the executable unit behind every registered tool. Args holds the
// resolved parameter map; the engine awaits completion before starting the
// next pipeline step.
type Func func(ctx context.Context, args types.Params) (Result, error)

// Parameter describes one declared parameter of a tool. A parameter with
// Required set has no default and must be resolvable from some scope;
// optional parameters left unresolved are simply omitted from the call.
type Parameter struct {
	Name     string
	Required bool
	Doc      string
}

// Required declares a mandatory parameter.
func Required(name, doc string) Parameter {
	return Parameter{Name: name, Required: true, Doc: doc}
}

// Optional declares a parameter the tool can run without.
func Optional(name, doc string) Parameter {
	return Parameter{Name: name, Doc: doc}
}

// DataStore declares the reserved data_store parameter. It is always
// satisfied by the engine and never resolved from calling scopes.
func DataStore() Parameter {
	return Parameter{Name: DataStoreParam, Doc: "flattened per-run data store"}
}

// Values carries the effects a tool wants applied to the data store.
// Context and Output are recorded with provenance under their respective
// scopes, DeleteContext prunes exact context keys before any recording, and
// Root entries land as bare root-level keys.
type Values struct {
	Context       map[string]any `json:"context,omitempty"`
	Output        map[string]any `json:"output,omitempty"`
	DeleteContext []string       `json:"delete_context,omitempty"`
	Root          map[string]any `json:"root,omitempty"`
}

// Result is what every tool returns. ShouldExit stops the current phase
// early; Status and Message are informational and not interpreted by the
// engine.
type Result struct {
	Values     *Values `json:"values,omitempty"`
	ShouldExit bool    `json:"should_exit,omitempty"`
	Status     string  `json:"status,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// Definition represents a registered tool: its name, documentation, declared
// parameter schema, capability metadata and the function itself.
type Definition struct {
	Name           string
	Description    string
	Parameters     []Parameter
	RequiredAgents []string
	Function       Func
}

// Call invokes the tool function. Errors are annotated with the tool name
// before being returned, so a failing step deep in a pipeline is always
// attributable.
func (td Definition) Call(ctx context.Context, args types.Params) (Result, error) {
	result, err := td.Function(ctx, args)
	if err != nil {
		return result, fmt.Errorf("[%s] %w", td.Name, err)
	}
	return result, nil
}

// WantsDataStore reports whether the tool declared the reserved data_store
// parameter.
func (td Definition) WantsDataStore() bool {
	for _, p := range td.Parameters {
		if p.Name == DataStoreParam {
			return true
		}
	}
	return false
}

// Param looks up a declared parameter by name.
func (td Definition) Param(name string) (Parameter, bool) {
	for _, p := range td.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// ToNameAndSchema renders the declared parameter list as a JSON schema
// object, suitable for handing to function-calling LLM providers. The
// reserved data_store parameter is engine-provided and excluded.
func (td Definition) ToNameAndSchema() (string, *jsonschema.Schema) {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
	}

	var required []string
	for _, p := range td.Parameters {
		if p.Name == DataStoreParam {
			continue
		}
		schema.Properties.Set(p.Name, &jsonschema.Schema{Description: p.Doc})
		if p.Required {
			required = append(required, p.Name)
		}
	}
	if len(required) > 0 {
		schema.Required = required
	}

	return td.Name, schema
}

// Option configures a Definition under construction.
type Option = opts.Option[Definition]

var (
	// Name sets the unique registry name of the tool.
	Name = opts.ForName[Definition, string]("Name")

	// Description sets the human-readable description of the tool.
	Description = opts.ForName[Definition, string]("Description")
)

// Parameters declares the tool's parameter schema in call order.
func Parameters(parameters ...Parameter) Option {
	return opts.Type[Definition](func(o *Definition) error {
		o.Parameters = append(o.Parameters, parameters...)
		return nil
	})
}

// RequiredAgents attaches capability metadata: the names of agent templates
// that must exist as sub-agents for any step using this tool.
func RequiredAgents(names ...string) Option {
	return opts.Type[Definition](func(o *Definition) error {
		o.RequiredAgents = append(o.RequiredAgents, names...)
		return nil
	})
}

// New builds a Definition from the function and options. The name is
// mandatory; without one the tool could never be referenced from a pipeline
// step.
func New(f Func, options ...Option) (Definition, error) {
	if f == nil {
		return Definition{}, errors.New("tool function is required")
	}

	var def Definition
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, err
	}
	if def.Name == "" {
		return Definition{}, errors.New("tool name is required")
	}
	seen := make(map[string]struct{}, len(def.Parameters))
	for _, p := range def.Parameters {
		if p.Name == "" {
			return Definition{}, errors.New("tool parameter name cannot be empty")
		}
		if _, dup := seen[p.Name]; dup {
			return Definition{}, fmt.Errorf("duplicate tool parameter %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	def.Function = f
	return def, nil
}

// Must is New with panic-on-error semantics, for statically declared tools
// registered at startup.
func Must(f Func, options ...Option) Definition {
	return stdx.Must1(New(f, options...))
}
