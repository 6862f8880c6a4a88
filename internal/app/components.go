package app

import (
	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/store"
	"github.com/stacklok/connector-sync/internal/sync"
	"github.com/stacklok/connector-sync/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator triggers sessions for connectors with a sync policy
	SyncCoordinator coordinator.Coordinator

	// SyncManager runs sessions on demand
	SyncManager sync.Manager

	// Journal stores sessions, versions and conflicts
	Journal sync.Journal

	// Records is the local record store
	Records store.RecordStore

	// Registry resolves connector definitions
	Registry connector.Registry
}
