package api

import (
	"fmt"

	"github.com/casualjim/rookery/types"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Step is one element of a pipeline (triggers, tools or outputs list). On
// the wire it is a tagged union: either a bare tool-name string or the full
// object form with bound parameters and an optional instance id tying the
// step to a specific sub-agent.
type Step struct {
	// ID is the registry name of the tool this step invokes.
	ID string `json:"id"`
	// Params are the step-declared arguments. They override the ambient
	// data store and are themselves overridden by nothing; call-time
	// kwargs merge underneath them.
	Params types.Params `json:"params,omitempty"`
	// InstanceID distinguishes multiple uses of the same tool within one
	// pipeline and anchors sub-agents created for this step.
	InstanceID string `json:"instance_id,omitempty"`
}

// Validate checks the invariants every configured step must satisfy before
// it can be executed.
func (s Step) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("pipeline step must have an id")
	}
	return nil
}

// UnmarshalJSON accepts both the shorthand string form and the full object
// form.
func (s *Step) UnmarshalJSON(data []byte) error {
	parsed := gjson.ParseBytes(data)
	if parsed.Type == gjson.String {
		*s = Step{ID: parsed.String()}
		return nil
	}
	if !parsed.IsObject() {
		return fmt.Errorf("pipeline step must be a tool name or an object, got %s", parsed.Type)
	}

	type alias Step
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Step(a)
	return nil
}

// MarshalJSON emits the shorthand form when the step carries nothing but a
// tool name.
func (s Step) MarshalJSON() ([]byte, error) {
	if len(s.Params) == 0 && s.InstanceID == "" {
		return json.Marshal(s.ID)
	}
	type alias Step
	return json.Marshal(alias(s))
}

// RetryPolicy is configuration data read by the external scheduler when a
// run fails. The engine itself never retries.
type RetryPolicy struct {
	Minutes    int `json:"minutes"`
	MaxRetries int `json:"max_retries"`
}

// DefaultRetryPolicy applies when an agent config does not specify one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Minutes: 10, MaxRetries: 5}
}

// Config is the declarative, immutable-per-run configuration of an agent.
// Known fields are typed; everything else an agent template carries rides
// along in Extra.
type Config struct {
	Name          string            `json:"name,omitempty"`
	AccountID     string            `json:"account_id,omitempty"`
	OwnerID       string            `json:"owner_id,omitempty"`
	StepID        string            `json:"step_id,omitempty"`
	RequiredAgent string            `json:"required_agent,omitempty"`
	AIModels      map[string]string `json:"ai_models,omitempty"`
	Tools         []Step            `json:"tools,omitempty"`
	Outputs       []Step            `json:"outputs,omitempty"`
	Triggers      []Step            `json:"triggers,omitempty"`
	RetryCount    int               `json:"retry_count,omitempty"`
	RetryPolicy   *RetryPolicy      `json:"retry_policy,omitempty"`

	// Extra holds agent-specific configuration keys that the engine does
	// not interpret. Tools reach them through the data_store config
	// back-reference.
	Extra map[string]any `json:"-"`
}

// knownConfigKeys are the JSON keys bound to typed Config fields; anything
// else lands in Extra on decode.
var knownConfigKeys = map[string]struct{}{
	"name": {}, "account_id": {}, "owner_id": {}, "step_id": {},
	"required_agent": {}, "ai_models": {}, "tools": {}, "outputs": {},
	"triggers": {}, "retry_count": {}, "retry_policy": {},
}

// UnmarshalJSON decodes the typed fields and routes unknown keys into Extra.
func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, msg := range raw {
		if _, known := knownConfigKeys[key]; known {
			continue
		}
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			return err
		}
		if a.Extra == nil {
			a.Extra = make(map[string]any)
		}
		a.Extra[key] = v
	}

	*c = Config(a)
	return nil
}

// MarshalJSON emits the typed fields merged with Extra; typed fields win on
// collision.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	typed, err := json.Marshal(alias(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return typed, nil
	}

	merged := make(map[string]any, len(c.Extra)+8)
	for k, v := range c.Extra {
		if _, known := knownConfigKeys[k]; known {
			continue
		}
		merged[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// WithOverrides returns a copy of the config with the given keys applied on
// top. Keys matching typed fields replace them; anything else lands in
// Extra. Used when materializing sub-agents from templates.
func (c Config) WithOverrides(overrides map[string]any) (Config, error) {
	if len(overrides) == 0 {
		return c.Clone(), nil
	}

	base, err := json.Marshal(c)
	if err != nil {
		return Config{}, err
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return Config{}, err
	}
	for k, v := range overrides {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return Config{}, err
	}

	var result Config
	if err := json.Unmarshal(out, &result); err != nil {
		return Config{}, err
	}
	return result, nil
}

// Clone returns a deep copy of the config. Pipelines, parameter maps and
// Extra values are copied recursively so mutating a clone (as sub-agent
// creation does) never leaks into the template it came from.
func (c Config) Clone() Config {
	out := c
	if c.AIModels != nil {
		out.AIModels = make(map[string]string, len(c.AIModels))
		for k, v := range c.AIModels {
			out.AIModels[k] = v
		}
	}
	out.Tools = cloneSteps(c.Tools)
	out.Outputs = cloneSteps(c.Outputs)
	out.Triggers = cloneSteps(c.Triggers)
	if c.RetryPolicy != nil {
		rp := *c.RetryPolicy
		out.RetryPolicy = &rp
	}
	if c.Extra != nil {
		out.Extra = cloneValue(c.Extra).(map[string]any)
	}
	return out
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s
		if s.Params != nil {
			out[i].Params = types.Params(cloneValue(map[string]any(s.Params)).(map[string]any))
		}
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
