// Package validators checks translated payloads against per-collection JSON schemas.
package validators

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stacklok/connector-sync/internal/payload"
)

// Schema is a compiled JSON schema bound to one collection
type Schema struct {
	collection string
	schema     *jsonschema.Schema
}

// CompileSchema compiles source, which is either an inline JSON schema
// document or the path of a schema file.
func CompileSchema(collection, source string) (*Schema, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("schema for collection '%s' is empty", collection)
	}

	var raw []byte
	if strings.HasPrefix(source, "{") {
		raw = []byte(source)
	} else {
		data, err := os.ReadFile(filepath.Clean(source))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema for collection '%s': %w", collection, err)
		}
		raw = data
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema for collection '%s': %w", collection, err)
	}

	schemaURL := "https://connector-sync.local/schemas/" + url.PathEscape(collection) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to load schema for collection '%s': %w", collection, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for collection '%s': %w", collection, err)
	}

	return &Schema{collection: collection, schema: compiled}, nil
}

// Validate checks p against the schema. A nil *Schema accepts everything.
func (s *Schema) Validate(p *payload.Payload) error {
	if s == nil {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	if err := s.schema.Validate(instance); err != nil {
		return fmt.Errorf("payload does not match schema of collection '%s': %w", s.collection, err)
	}
	return nil
}
