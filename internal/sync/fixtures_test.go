package sync

import (
	"time"

	"github.com/stacklok/connector-sync/internal/connector"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func projectsCollection() *connector.Collection {
	return &connector.Collection{
		Name:             "projects",
		Path:             "projects",
		ConflictTracking: true,
		IDField:          connector.DefaultIDField,
		ExternalIDField:  connector.DefaultExternalIDField,
		TimestampFields:  connector.DefaultTimestampFields,
		FieldMap: connector.FieldMap{
			SourceToTarget: map[string]string{"external_id": "id", "title": "name", "updated_at": "updated_at"},
			TargetToSource: map[string]string{"id": "external_id", "name": "title", "updated_at": "updated_at", "status": "status"},
		},
	}
}
