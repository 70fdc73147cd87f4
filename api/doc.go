// Package api holds the shared contracts of the rookery framework: the agent
// configuration model, the pipeline step union, and the persistence gateway
// interface consumed by the execution engine. Implementations of external
// collaborators (document stores, tool packages) depend on this package and
// nothing else in the module.
package api
