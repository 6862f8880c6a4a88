package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/httpclient"
	"github.com/stacklok/connector-sync/internal/payload"
)

// SinceParam is the query parameter carrying the checkpoint
const SinceParam = "since"

// ErrNotArray is returned when the response does not hold a record array
var ErrNotArray = errors.New("response is not a JSON array")

// APISource reads candidates from the connector endpoint
type APISource struct {
	client httpclient.Client
}

var _ Source = (*APISource)(nil)

// NewAPISource creates a source using client, which must already carry the
// connector credentials.
func NewAPISource(client httpclient.Client) *APISource {
	return &APISource{client: client}
}

// Side implements Source
func (*APISource) Side() connector.Side {
	return connector.SideRemote
}

// Fetch implements Source
func (s *APISource) Fetch(
	ctx context.Context,
	conn *connector.Connector,
	coll *connector.Collection,
	since time.Time,
) ([]*payload.Payload, error) {
	endpoint, err := url.Parse(conn.CollectionURL(coll))
	if err != nil {
		return nil, fmt.Errorf("invalid collection URL: %w", err)
	}
	if !since.IsZero() {
		q := endpoint.Query()
		q.Set(SinceParam, since.UTC().Format(time.RFC3339Nano))
		endpoint.RawQuery = q.Encode()
	}

	body, err := s.client.Get(ctx, endpoint.String())
	if err != nil {
		return nil, err
	}

	records, err := extractRecords(body, coll.RecordsPath)
	if err != nil {
		return nil, err
	}
	return modifiedSince(records, coll.TimestampFields, since), nil
}

// modifiedSince drops records whose timestamp is before since. The remote is
// not required to honor SinceParam. Records without a readable timestamp are
// kept.
func modifiedSince(records []*payload.Payload, timestampFields []string, since time.Time) []*payload.Payload {
	if since.IsZero() {
		return records
	}
	kept := records[:0]
	for _, r := range records {
		ts, field, err := r.Timestamp(timestampFields...)
		if err == nil && field != "" && ts.Before(since) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// extractRecords returns the objects of the top-level array, or of the array
// found at recordsPath when set.
func extractRecords(body []byte, recordsPath string) ([]*payload.Payload, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}

	result := gjson.ParseBytes(body)
	if recordsPath != "" {
		result = result.Get(recordsPath)
		if !result.Exists() {
			return nil, fmt.Errorf("records path '%s' not found in response", recordsPath)
		}
	}
	if !result.IsArray() {
		return nil, ErrNotArray
	}

	return payload.ParseArray([]byte(result.Raw))
}
