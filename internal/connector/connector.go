// Package connector resolves named endpoint configurations into the runtime
// form used by the sync engine.
package connector

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/httpclient"
	"github.com/stacklok/connector-sync/internal/validators"
)

var (
	// ErrNotFound is returned when no connector matches the requested name and org unit
	ErrNotFound = errors.New("connector not found")

	// ErrInvalidFieldMap is returned for empty, duplicated or missing field mappings
	ErrInvalidFieldMap = errors.New("invalid field map")

	// ErrInvalidConfig is returned for any other unusable connector definition
	ErrInvalidConfig = errors.New("invalid connector configuration")
)

// Side names one of the two stores a connector links.
type Side string

const (
	// SideLocal is the platform-owned record store
	SideLocal Side = "local"

	// SideRemote is the external API behind the connector endpoint
	SideRemote Side = "remote"
)

// Opposite returns the side an operation originating on s is applied to
func (s Side) Opposite() Side {
	if s == SideLocal {
		return SideRemote
	}
	return SideLocal
}

// Direction selects which origins a session turns into operations.
type Direction string

const (
	DirectionLocalToRemote Direction = "local_to_remote"
	DirectionRemoteToLocal Direction = "remote_to_local"
	DirectionBidirectional Direction = "bidirectional"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	switch d {
	case DirectionLocalToRemote, DirectionRemoteToLocal, DirectionBidirectional:
		return true
	}
	return false
}

// Includes reports whether changes originating on origin propagate in direction d
func (d Direction) Includes(origin Side) bool {
	switch d {
	case DirectionBidirectional:
		return true
	case DirectionLocalToRemote:
		return origin == SideLocal
	case DirectionRemoteToLocal:
		return origin == SideRemote
	}
	return false
}

// ConflictStrategy is the declared resolution policy of a connector. Only
// manual resolution is implemented: conflicts are detected and held.
type ConflictStrategy string

const (
	ConflictStrategyManual        ConflictStrategy = "manual"
	ConflictStrategyLastWriteWins ConflictStrategy = "last_write_wins"
	ConflictStrategyMerge         ConflictStrategy = "merge"
)

// Default record field names
const (
	DefaultIDField         = "id"
	DefaultExternalIDField = "external_id"
)

// DefaultTimestampFields are tried in order when a collection names none
var DefaultTimestampFields = []string{"updated_at", "updatedAt", "modified_at", "last_modified"}

// FieldMap renames fields between the remote source and the local target.
type FieldMap struct {
	SourceToTarget map[string]string
	TargetToSource map[string]string
}

// For returns the mapping used for operations originating on origin
func (f FieldMap) For(origin Side) map[string]string {
	if origin == SideRemote {
		return f.SourceToTarget
	}
	return f.TargetToSource
}

func validateMapping(name string, m map[string]string) error {
	targets := make(map[string]string, len(m))
	for from, to := range m {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return fmt.Errorf("%w: %s contains an empty field name", ErrInvalidFieldMap, name)
		}
		if prev, ok := targets[to]; ok {
			return fmt.Errorf("%w: %s maps both '%s' and '%s' to '%s'", ErrInvalidFieldMap, name, prev, from, to)
		}
		targets[to] = from
	}
	return nil
}

// Collection is one synchronized collection of a connector
type Collection struct {
	Name             string
	Path             string
	RecordsPath      string
	ConflictTracking bool
	IDField          string
	ExternalIDField  string
	TimestampFields  []string
	FieldMap         FieldMap
	Schema           *validators.Schema
}

// Connector is a resolved, validated connector definition
type Connector struct {
	Name             string
	OrgUnit          string
	Endpoint         *url.URL
	Credentials      *httpclient.Credentials
	Direction        Direction
	ConflictStrategy ConflictStrategy
	Collections      []*Collection
	Interval         time.Duration
	Concurrency      int
	Timeout          time.Duration
	Retry            httpclient.RetryPolicy
}

// Defaults are engine-wide settings a connector may override
type Defaults struct {
	Concurrency int
	Timeout     time.Duration
	Retry       *config.RetryConfig
}

// Collection returns the named collection
func (c *Connector) Collection(name string) (*Collection, bool) {
	for _, coll := range c.Collections {
		if coll.Name == name {
			return coll, true
		}
	}
	return nil, false
}

// CollectionURL joins the endpoint, the collection path and extra path elements
func (c *Connector) CollectionURL(coll *Collection, elems ...string) string {
	escaped := make([]string, 0, len(elems)+1)
	escaped = append(escaped, coll.Path)
	for _, e := range elems {
		escaped = append(escaped, url.PathEscape(e))
	}
	return c.Endpoint.JoinPath(escaped...).String()
}

// ValidateDirection checks that every collection maps fields for each origin
// propagated in direction.
func (c *Connector) ValidateDirection(direction Direction) error {
	if !direction.Valid() {
		return fmt.Errorf("%w: unknown direction '%s'", ErrInvalidConfig, direction)
	}
	for _, coll := range c.Collections {
		for _, origin := range []Side{SideRemote, SideLocal} {
			if direction.Includes(origin) && len(coll.FieldMap.For(origin)) == 0 {
				return fmt.Errorf("%w: collection '%s' has no mapping for %s changes",
					ErrInvalidFieldMap, coll.Name, origin)
			}
		}
	}
	return nil
}

// New validates cfg and resolves its credentials. secrets may be nil; when set
// it takes precedence over files and environment variables.
func New(cfg *config.ConnectorConfig, secrets SecretLookup, defaults Defaults) (*Connector, error) {
	prefix := fmt.Sprintf("connector '%s'", cfg.Name)
	if err := cfg.Validate(prefix); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	endpoint, err := url.Parse(strings.TrimSuffix(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	direction := Direction(cfg.Direction)
	if direction == "" {
		direction = DirectionBidirectional
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: %s: unknown direction '%s'", ErrInvalidConfig, prefix, cfg.Direction)
	}

	strategy := ConflictStrategy(cfg.ConflictStrategy)
	switch strategy {
	case "":
		strategy = ConflictStrategyManual
	case ConflictStrategyManual:
	case ConflictStrategyLastWriteWins, ConflictStrategyMerge:
		slog.Warn("Conflict strategy is not implemented, conflicts will be held for manual resolution",
			"connector", cfg.Name, "strategy", strategy)
	default:
		return nil, fmt.Errorf("%w: %s: unknown conflict strategy '%s'", ErrInvalidConfig, prefix, cfg.ConflictStrategy)
	}

	creds, err := resolveCredentials(cfg.Auth, secrets)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, prefix, err)
	}

	collections := make([]*Collection, 0, len(cfg.Collections))
	for i := range cfg.Collections {
		coll, err := newCollection(&cfg.Collections[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", prefix, err)
		}
		collections = append(collections, coll)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaults.Concurrency
	}
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}

	timeout := defaults.Timeout
	if cfg.Timeout != "" {
		timeout, _ = time.ParseDuration(cfg.Timeout)
	}
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}

	retry := cfg.Retry
	if retry == nil {
		retry = defaults.Retry
	}

	return &Connector{
		Name:             cfg.Name,
		OrgUnit:          cfg.OrgUnit,
		Endpoint:         endpoint,
		Credentials:      creds,
		Direction:        direction,
		ConflictStrategy: strategy,
		Collections:      collections,
		Interval:         cfg.SyncPolicy.GetInterval(),
		Concurrency:      concurrency,
		Timeout:          timeout,
		Retry: httpclient.RetryPolicy{
			MaxAttempts:     uint(retry.GetMaxAttempts()), //nolint:gosec // validated non-negative
			InitialInterval: retry.GetInitialInterval(),
			MaxInterval:     retry.GetMaxInterval(),
		},
	}, nil
}

func newCollection(cfg *config.CollectionConfig) (*Collection, error) {
	for _, m := range []struct {
		name    string
		mapping map[string]string
	}{
		{"sourceToTarget", cfg.FieldMap.SourceToTarget},
		{"targetToSource", cfg.FieldMap.TargetToSource},
	} {
		if err := validateMapping(fmt.Sprintf("collection '%s' %s", cfg.Name, m.name), m.mapping); err != nil {
			return nil, err
		}
	}

	coll := &Collection{
		Name:             cfg.Name,
		Path:             cfg.Path,
		RecordsPath:      cfg.RecordsPath,
		ConflictTracking: cfg.ConflictTracking,
		IDField:          cfg.IDField,
		ExternalIDField:  cfg.ExternalIDField,
		TimestampFields:  cfg.TimestampFields,
		FieldMap: FieldMap{
			SourceToTarget: cfg.FieldMap.SourceToTarget,
			TargetToSource: cfg.FieldMap.TargetToSource,
		},
	}
	if coll.Path == "" {
		coll.Path = coll.Name
	}
	coll.Path = strings.Trim(coll.Path, "/")
	if coll.IDField == "" {
		coll.IDField = DefaultIDField
	}
	if coll.ExternalIDField == "" {
		coll.ExternalIDField = DefaultExternalIDField
	}
	if len(coll.TimestampFields) == 0 {
		coll.TimestampFields = DefaultTimestampFields
	}

	if cfg.Schema != "" {
		schema, err := validators.CompileSchema(cfg.Name, cfg.Schema)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		coll.Schema = schema
	}

	return coll, nil
}
