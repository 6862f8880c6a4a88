package connector

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/stacklok/connector-sync/internal/config"
)

const (
	// ConnectorLabel marks ConfigMaps holding a connector definition
	ConnectorLabel = "connector-sync.stacklok.dev/connector"

	// ConnectorDataKey is the ConfigMap key holding the connector YAML
	ConnectorDataKey = "connector.yaml"
)

// KubernetesRegistry reads connector definitions from ConfigMaps and their
// credentials from Secrets in a single namespace.
type KubernetesRegistry struct {
	client    client.Reader
	namespace string
	selector  map[string]string
	defaults  Defaults
}

// NewKubernetesRegistry creates a registry backed by the given client. Only
// ConfigMaps labelled with ConnectorLabel=true and matching selector are read.
func NewKubernetesRegistry(c client.Reader, namespace string, selector map[string]string, defaults Defaults) *KubernetesRegistry {
	labels := map[string]string{ConnectorLabel: "true"}
	for k, v := range selector {
		labels[k] = v
	}
	return &KubernetesRegistry{client: c, namespace: namespace, selector: labels, defaults: defaults}
}

// Resolve implements Registry
func (r *KubernetesRegistry) Resolve(ctx context.Context, orgUnit, name string) (*Connector, error) {
	ctxLogger := log.FromContext(ctx).WithValues("namespace", r.namespace, "orgUnit", orgUnit, "connector", name)

	cfgs, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range cfgs {
		cfg := &cfgs[i]
		if cfg.Name != name || cfg.OrgUnit != orgUnit {
			continue
		}

		var secrets SecretLookup
		if cfg.Auth != nil && cfg.Auth.SecretRef != "" {
			secrets, err = r.secret(ctx, cfg.Auth.SecretRef)
			if err != nil {
				ctxLogger.Error(err, "Failed to read connector secret", "secret", cfg.Auth.SecretRef)
				return nil, err
			}
		}
		return New(cfg, secrets, r.defaults)
	}

	return nil, fmt.Errorf("%w: '%s' in org unit '%s'", ErrNotFound, name, orgUnit)
}

// List implements Registry
func (r *KubernetesRegistry) List(ctx context.Context) ([]Ref, error) {
	cfgs, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, 0, len(cfgs))
	for _, cfg := range cfgs {
		refs = append(refs, Ref{Name: cfg.Name, OrgUnit: cfg.OrgUnit})
	}
	sortRefs(refs)
	return refs, nil
}

// load parses every connector ConfigMap. Maps without the data key or with
// invalid YAML are skipped with a log line so one bad definition does not hide
// the others.
func (r *KubernetesRegistry) load(ctx context.Context) ([]config.ConnectorConfig, error) {
	ctxLogger := log.FromContext(ctx)

	var list corev1.ConfigMapList
	if err := r.client.List(ctx, &list, client.InNamespace(r.namespace), client.MatchingLabels(r.selector)); err != nil {
		return nil, fmt.Errorf("failed to list connector config maps: %w", err)
	}

	cfgs := make([]config.ConnectorConfig, 0, len(list.Items))
	for _, cm := range list.Items {
		raw, ok := cm.Data[ConnectorDataKey]
		if !ok {
			ctxLogger.Info("Skipping config map without connector definition", "configMap", cm.Name)
			continue
		}
		var cfg config.ConnectorConfig
		if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
			ctxLogger.Error(err, "Skipping config map with invalid connector definition", "configMap", cm.Name)
			continue
		}
		if cfg.Name == "" {
			cfg.Name = cm.Name
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func (r *KubernetesRegistry) secret(ctx context.Context, name string) (SecretLookup, error) {
	var secret corev1.Secret
	err := r.client.Get(ctx, client.ObjectKey{Namespace: r.namespace, Name: name}, &secret)
	if apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("%w: secret '%s' not found", ErrInvalidConfig, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret '%s': %w", name, err)
	}
	return func(key string) (string, bool) {
		if v, ok := secret.Data[key]; ok {
			return string(v), true
		}
		v, ok := secret.StringData[key]
		return v, ok
	}, nil
}
