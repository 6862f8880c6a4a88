// Package sync implements the bidirectional reconciliation engine between the
// local record store and the remote API of a connector.
//
// # Core Interfaces
//
//   - Manager: runs sessions, stops them, and reports their state
//   - Journal: persists sessions, data versions and conflicts (see sync/state)
//
// # Session Flow
//
// A session resolves its connector, computes a checkpoint and asks the change
// detector for candidates from both sides. The Normalizer turns every
// candidate into an Operation. Operations are grouped by (collection, record
// id); a group is processed in origin timestamp order while distinct groups
// fan out up to the connector concurrency limit.
//
// For each operation the engine looks up the counterpart on the opposite side,
// checks it for a conflict when the collection is conflict tracked, applies
// the operation through the Applier when it is safe, and records one
// DataVersion with the outcome. Conflicts are held in the journal and never
// resolved automatically.
//
// # Phases
//
// Sessions start active and end in exactly one terminal phase:
//
//   - completed: every detected operation was processed
//   - failed: the connector could not be resolved or its field map is unusable
//   - stopped: the context was cancelled or Stop was called
//
// # Error Classes
//
//   - *ConfigError: fails the session before any operation runs
//   - detection errors: the side yields no candidates, the message is kept
//   - operation errors: counted in OperationsFailed, the session continues
//
// Conflicts are results, not errors.
package sync
