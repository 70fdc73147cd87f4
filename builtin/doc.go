// Package builtin provides generic tool definitions that most deployments
// register alongside their domain tools: an outbound webhook, a configurable
// API request, an LLM completion and an interval scheduling trigger.
//
// Tools that talk to collaborators take them as constructor arguments and
// close over them, so a registry ends up holding fully wired definitions:
//
//	tools := registry.NewTools()
//	tools.Register(builtin.Webhook(nil, nil))
//	tools.Register(builtin.ScheduleInterval(gw))
//
// The HTTP-backed tools optionally share a semaphore.Weighted so a deployment
// can cap concurrent outbound calls across every agent run.
package builtin
