// Package coordinator runs sync sessions for connectors that declare a
// periodic sync interval.
//
// The coordinator sits on top of sync.Manager. On every tick it lists the
// connectors known to the registry, resolves each one and starts a session
// for those whose interval has elapsed since their most recent session
// started. Connectors without an interval are only synchronized on demand
// through the API or the CLI.
//
// # Usage
//
//	coord := coordinator.New(manager, registry, journal)
//	go coord.Start(ctx)
//	defer coord.Stop()
//
// # Error Handling
//
// A connector that fails to resolve, or whose session fails, is logged and
// retried on a later tick. A session already running for a connector, for
// example one triggered through the API, is skipped.
package coordinator
