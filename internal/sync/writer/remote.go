package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/httpclient"
	"github.com/stacklok/connector-sync/internal/payload"
)

// RemoteView is the remote state known to a session: the records fetched
// during detection, updated after every successful remote write.
type RemoteView struct {
	mu      sync.RWMutex
	records map[viewKey]Counterpart
}

type viewKey struct {
	collection string
	id         string
}

// NewRemoteView creates an empty view
func NewRemoteView() *RemoteView {
	return &RemoteView{records: make(map[viewKey]Counterpart)}
}

// Put stores the state of a record. An older state never replaces a newer one.
func (v *RemoteView) Put(collection, id string, c Counterpart) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := viewKey{collection: collection, id: id}
	if prev, ok := v.records[key]; ok && prev.UpdatedAt.After(c.UpdatedAt) {
		return
	}
	c.Exists = true
	v.records[key] = c
}

// Get returns the known state of a record
func (v *RemoteView) Get(collection, id string) Counterpart {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.records[viewKey{collection: collection, id: id}]
}

// Remove forgets a record
func (v *RemoteView) Remove(collection, id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.records, viewKey{collection: collection, id: id})
}

// Len returns the number of known records
func (v *RemoteView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// RemoteWriter writes to the connector endpoint
type RemoteWriter struct {
	client httpclient.Client
	conn   *connector.Connector
	view   *RemoteView
}

var _ Target = (*RemoteWriter)(nil)

// NewRemoteWriter creates a remote target. client must carry the connector
// credentials.
func NewRemoteWriter(client httpclient.Client, conn *connector.Connector, view *RemoteView) *RemoteWriter {
	if view == nil {
		view = NewRemoteView()
	}
	return &RemoteWriter{client: client, conn: conn, view: view}
}

// Side implements Target
func (*RemoteWriter) Side() connector.Side {
	return connector.SideRemote
}

// Lookup implements Target. Records not fetched during detection are reported
// absent.
func (w *RemoteWriter) Lookup(_ context.Context, coll *connector.Collection, id string) (Counterpart, error) {
	return w.view.Get(coll.Name, id), nil
}

// Create implements Target
func (w *RemoteWriter) Create(
	ctx context.Context,
	coll *connector.Collection,
	id string,
	fields *payload.Payload,
	updatedAt time.Time,
) error {
	return w.post(ctx, coll, id, fields, updatedAt)
}

// Update implements Target
func (w *RemoteWriter) Update(
	ctx context.Context,
	coll *connector.Collection,
	id string,
	fields *payload.Payload,
	updatedAt time.Time,
) error {
	return w.post(ctx, coll, id, fields, updatedAt)
}

func (w *RemoteWriter) post(
	ctx context.Context,
	coll *connector.Collection,
	id string,
	fields *payload.Payload,
	updatedAt time.Time,
) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if _, err := w.client.Post(ctx, w.conn.CollectionURL(coll), body); err != nil {
		return err
	}
	w.view.Put(coll.Name, id, Counterpart{Snapshot: fields, UpdatedAt: updatedAt})
	return nil
}

// Delete implements Target. A 404 from the endpoint means the record is
// already gone.
func (w *RemoteWriter) Delete(ctx context.Context, coll *connector.Collection, id string) error {
	err := w.client.Delete(ctx, w.conn.CollectionURL(coll, id))
	var httpErr *httpclient.HTTPError
	if err != nil && !(errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound) {
		return err
	}
	w.view.Remove(coll.Name, id)
	return nil
}
