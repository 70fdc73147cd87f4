// Package types provides core type definitions shared across the rookery framework.
package types

import "github.com/goccy/go-json"

// Params is a key-value bag of tool call arguments and pipeline step
// parameters. Keys are parameter names as declared by a tool definition,
// values are any JSON-serializable payload.
//
// Params travels through three layers with distinct precedence rules:
// call-time kwargs, step-declared params and the ambient data store. The
// resolver in the root package is the only component that merges them;
// everywhere else Params is treated as an opaque map.
//
// Thread safety: Params is a plain map and is not safe for concurrent
// mutation. Each pipeline invocation owns its Params exclusively.
type Params map[string]any

// Clone returns a shallow copy of the parameter bag. A nil receiver yields
// an empty, non-nil map so callers can insert without checking.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a new Params with every entry of p plus every entry of
// overrides, the latter winning on key collisions. Neither input is mutated.
func (p Params) Merge(overrides Params) Params {
	out := p.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// String returns a JSON rendering of the parameter bag, or the empty string
// when marshaling fails. Useful for logging and debugging.
func (p Params) String() string {
	jsonData, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(jsonData)
}
