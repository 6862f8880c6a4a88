package connector

//go:generate mockgen -destination=mocks/mock_registry.go -package=mocks -source=registry.go Registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/stacklok/connector-sync/internal/config"
)

// Ref identifies a connector within an org unit
type Ref struct {
	Name    string
	OrgUnit string
}

// Registry resolves connector definitions by org unit and name
type Registry interface {
	// Resolve returns the validated connector, wrapping ErrNotFound when no
	// definition matches and ErrInvalidConfig or ErrInvalidFieldMap when the
	// definition cannot be used.
	Resolve(ctx context.Context, orgUnit, name string) (*Connector, error)

	// List returns the references of every known connector
	List(ctx context.Context) ([]Ref, error)
}

// StaticRegistry serves connectors declared in the configuration file
type StaticRegistry struct {
	connectors map[Ref]config.ConnectorConfig
	defaults   Defaults
}

// NewStaticRegistry creates a registry over the configured connectors
func NewStaticRegistry(connectors []config.ConnectorConfig, defaults Defaults) *StaticRegistry {
	byRef := make(map[Ref]config.ConnectorConfig, len(connectors))
	for _, c := range connectors {
		byRef[Ref{Name: c.Name, OrgUnit: c.OrgUnit}] = c
	}
	return &StaticRegistry{connectors: byRef, defaults: defaults}
}

// Resolve implements Registry
func (r *StaticRegistry) Resolve(_ context.Context, orgUnit, name string) (*Connector, error) {
	cfg, ok := r.connectors[Ref{Name: name, OrgUnit: orgUnit}]
	if !ok {
		return nil, fmt.Errorf("%w: '%s' in org unit '%s'", ErrNotFound, name, orgUnit)
	}
	return New(&cfg, nil, r.defaults)
}

// List implements Registry
func (r *StaticRegistry) List(_ context.Context) ([]Ref, error) {
	refs := make([]Ref, 0, len(r.connectors))
	for ref := range r.connectors {
		refs = append(refs, ref)
	}
	sortRefs(refs)
	return refs, nil
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].OrgUnit != refs[j].OrgUnit {
			return refs[i].OrgUnit < refs[j].OrgUnit
		}
		return refs[i].Name < refs[j].Name
	})
}
