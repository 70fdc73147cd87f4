package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns a slog.Attr for the provided error under the "error" key.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer returns a slog.Attr with the string representation of the
// provided fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// AgentID returns a slog.Attr identifying the agent an operation belongs to.
// Every log line emitted while executing a pipeline carries this attribute.
func AgentID(id string) slog.Attr {
	return slog.String("agent_id", id)
}

// Tool returns a slog.Attr naming the tool a pipeline step resolved to.
func Tool(id string) slog.Attr {
	return slog.String("tool", id)
}

// Phase returns a slog.Attr naming the pipeline phase a value or step
// belongs to (trigger, tool or output).
func Phase(phase fmt.Stringer) slog.Attr {
	return slog.String("phase", phase.String())
}
