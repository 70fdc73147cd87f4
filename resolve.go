package rookery

import (
	"fmt"

	"github.com/casualjim/rookery/datastore"
	"github.com/casualjim/rookery/tool"
	"github.com/casualjim/rookery/types"
)

// MissingParameterError reports a required tool parameter that could not be
// resolved from any scope.
type MissingParameterError struct {
	Tool  string
	Param string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("required parameter %q not found in kwargs, outputs, context or data store for tool %s", e.Param, e.Tool)
}

// resolveArgs computes the concrete argument map for a tool call from the
// merged call params and the current data store. Resolution order per
// declared parameter, first match wins:
//
//  1. the merged call params (kwargs with step params layered on top)
//  2. the outputs scope
//  3. the context scope
//  4. root-level data store keys
//
// Optional parameters that resolve nowhere are omitted. A required
// parameter that resolves nowhere fails with MissingParameterError.
//
// When the tool declares the reserved data_store parameter it receives a
// snapshot of the full store with both scopes flattened; every parameter
// that resolved is then removed from the snapshot's context copy so the
// tool never sees a value both as a named argument and inside its context
// blob. The resolver reads the store but never mutates it.
func (a *Agent) resolveArgs(def tool.Definition, callParams types.Params) (types.Params, error) {
	args := make(types.Params, len(def.Parameters))

	var snapshotContext map[string]any
	if def.WantsDataStore() {
		snapshot := a.store.Snapshot()
		snapshotContext = snapshot[string(datastore.ScopeContext)].(map[string]any)
		args[tool.DataStoreParam] = snapshot
	}

	for _, p := range def.Parameters {
		if p.Name == tool.DataStoreParam {
			continue
		}

		value, found := a.lookupParam(p.Name, callParams)
		if !found {
			if p.Required {
				return nil, &MissingParameterError{Tool: def.Name, Param: p.Name}
			}
			continue
		}

		args[p.Name] = value
		if snapshotContext != nil {
			delete(snapshotContext, p.Name)
		}
	}

	return args, nil
}

// lookupParam walks the resolution scopes in precedence order.
func (a *Agent) lookupParam(name string, callParams types.Params) (any, bool) {
	if v, ok := callParams[name]; ok {
		return v, true
	}
	if entry, ok := a.store.Lookup(datastore.ScopeOutputs, name); ok {
		return entry.Value, true
	}
	if entry, ok := a.store.Lookup(datastore.ScopeContext, name); ok {
		return entry.Value, true
	}
	if v, ok := a.store.Get(name); ok {
		return v, true
	}
	return nil, false
}
