// Package tool defines the contract between the rookery execution engine and
// pluggable operations. A tool is an async-style function with a declared,
// introspectable parameter list; the engine resolves each declared parameter
// from the calling scopes before invocation and merges the tool's returned
// values back into the per-run data store.
//
// Unlike signature reflection, the parameter list is declared explicitly at
// registration time, which keeps the resolver free of runtime reflection and
// makes a tool's contract readable at its definition site:
//
//	def := tool.Must(indexTweets,
//		tool.Name("index_tweets"),
//		tool.Description("Fetch and index recent tweets for an account"),
//		tool.Parameters(
//			tool.Required("username", "account handle to index"),
//			tool.Optional("max_results", "page size cap"),
//			tool.DataStore(),
//		),
//		tool.RequiredAgents("twitter_indexer"),
//	)
//
// A tool declaring the reserved data_store parameter receives a flattened
// snapshot of the full data store; provenance metadata is never exposed to
// tools.
package tool
