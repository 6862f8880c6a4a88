package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/sources"
)

// ProvisionalIDPrefix marks record ids synthesized for records without one
const ProvisionalIDPrefix = "tmp-"

// Tombstone fields that turn a candidate into a delete
const (
	DeletedField   = "deleted"
	DeletedAtField = "deleted_at"
)

// Normalizer converts raw candidates into operations. It never fails.
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

// NewNormalizer creates a normalizer using now for detection times that are
// missing from a candidate.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now, newID: uuid.NewString}
}

// Normalize builds the operation for c. The record id comes from the id
// field, then the external id field, else a provisional id is synthesized.
// The origin timestamp is the first parseable timestamp field, else the
// detection time.
func (n *Normalizer) Normalize(ctx context.Context, coll *connector.Collection, c sources.Candidate) Operation {
	detectedAt := c.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = n.now()
	}

	op := Operation{
		ID:         n.newID(),
		Kind:       KindUpdate,
		Collection: c.Collection,
		Payload:    c.Fields,
		Origin:     c.Origin,
	}

	op.RecordID = firstID(c, coll.IDField, coll.ExternalIDField)
	if op.RecordID == "" {
		op.RecordID = ProvisionalIDPrefix + n.newID()
		op.Provisional = true
	}

	op.OriginTimestamp = detectedAt
	ts, field, err := c.Fields.Timestamp(coll.TimestampFields...)
	switch {
	case err != nil:
		log.FromContext(ctx).Info("Unparseable timestamp, using detection time",
			"collection", c.Collection, "recordID", op.RecordID, "field", field, "error", err.Error())
	case field != "":
		op.OriginTimestamp = ts
	}

	if isTombstone(c) {
		op.Kind = KindDelete
	}

	return op
}

func firstID(c sources.Candidate, fields ...string) string {
	for _, field := range fields {
		raw, ok := c.Fields.Get(field)
		if !ok {
			continue
		}
		if id := formatID(raw); id != "" {
			return id
		}
	}
	return ""
}

func formatID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case bool, map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

func isTombstone(c sources.Candidate) bool {
	if v, ok := c.Fields.Get(DeletedField); ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	if v, ok := c.Fields.Get(DeletedAtField); ok && v != nil {
		if s, isString := v.(string); !isString || s != "" {
			return true
		}
	}
	return false
}
