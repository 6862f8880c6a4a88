// Package config provides configuration loading and validation for connector-sync.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/connector-sync/internal/telemetry"
)

const (
	// StorageTypeMemory keeps records and the journal in process memory
	StorageTypeMemory = "memory"

	// StorageTypeDatabase stores records and the journal in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeSQLite stores the journal in an embedded SQLite file
	StorageTypeSQLite = "sqlite"
)

const (
	// RegistryTypeStatic resolves connectors from this configuration file
	RegistryTypeStatic = "static"

	// RegistryTypeKubernetes resolves connectors from ConfigMaps and Secrets
	RegistryTypeKubernetes = "kubernetes"
)

const (
	// DefaultConcurrency bounds parallel record groups within one session
	DefaultConcurrency = 4

	// DefaultLookback is the checkpoint window used before any session completed
	DefaultLookback = 24 * time.Hour

	// DefaultRetryAttempts bounds attempts for one remote request
	DefaultRetryAttempts = 3

	// DefaultRetryInitialInterval is the first backoff delay
	DefaultRetryInitialInterval = 200 * time.Millisecond

	// DefaultRetryMaxInterval caps the backoff delay
	DefaultRetryMaxInterval = 5 * time.Second

	// DefaultRequestTimeout bounds one remote request
	DefaultRequestTimeout = 30 * time.Second

	// PasswordEnvVar holds the database password when no password file is set
	PasswordEnvVar = "CONNECTOR_SYNC_DATABASE_PASSWORD"

	// DefaultDatabasePort is used when the database port is not set
	DefaultDatabasePort = 5432

	// EnvPrefix prefixes every environment variable read by the binary
	EnvPrefix = "CONNECTOR_SYNC"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig holds the options applied while loading
type loaderConfig struct {
	path string
}

// WithConfigPath sets the path of the YAML configuration file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks, which also cleans the path.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config is the root configuration of connector-sync
type Config struct {
	Storage    StorageConfig     `yaml:"storage"`
	Database   *DatabaseConfig   `yaml:"database,omitempty"`
	SQLite     *SQLiteConfig     `yaml:"sqlite,omitempty"`
	Sync       SyncConfig        `yaml:"sync,omitempty"`
	Registry   RegistryConfig    `yaml:"registry,omitempty"`
	Connectors []ConnectorConfig `yaml:"connectors,omitempty"`
	Telemetry  *telemetry.Config `yaml:"telemetry,omitempty"`
}

// StorageConfig selects the backends of the local record store and the sync journal
type StorageConfig struct {
	// Type is the local record store backend: memory or database
	Type string `yaml:"type"`

	// Journal is the backend for sessions, versions and conflicts:
	// memory, database or sqlite. Defaults to Type.
	Journal string `yaml:"journal,omitempty"`
}

// SQLiteConfig configures the embedded journal
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig holds engine defaults shared by every connector
type SyncConfig struct {
	Concurrency int          `yaml:"concurrency,omitempty"`
	Lookback    string       `yaml:"lookback,omitempty"`
	Timeout     string       `yaml:"timeout,omitempty"`
	Retry       *RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig bounds retries of transient remote failures
type RetryConfig struct {
	MaxAttempts     int    `yaml:"maxAttempts,omitempty"`
	InitialInterval string `yaml:"initialInterval,omitempty"`
	MaxInterval     string `yaml:"maxInterval,omitempty"`
}

// RegistryConfig selects where connector definitions come from
type RegistryConfig struct {
	Type string `yaml:"type,omitempty"`

	// Namespace holding connector ConfigMaps, kubernetes only
	Namespace string `yaml:"namespace,omitempty"`

	// LabelSelector restricts which ConfigMaps are connectors, kubernetes only
	LabelSelector map[string]string `yaml:"labelSelector,omitempty"`
}

// ConnectorConfig describes one external endpoint and how records map to it
type ConnectorConfig struct {
	Name             string             `yaml:"name"`
	OrgUnit          string             `yaml:"orgUnit"`
	Endpoint         string             `yaml:"endpoint"`
	Auth             *AuthConfig        `yaml:"auth,omitempty"`
	Direction        string             `yaml:"direction,omitempty"`
	ConflictStrategy string             `yaml:"conflictStrategy,omitempty"`
	Collections      []CollectionConfig `yaml:"collections"`
	SyncPolicy       *SyncPolicyConfig  `yaml:"syncPolicy,omitempty"`
	Concurrency      int                `yaml:"concurrency,omitempty"`
	Timeout          string             `yaml:"timeout,omitempty"`
	Retry            *RetryConfig       `yaml:"retry,omitempty"`
}

// AuthConfig carries the credentials used against a connector endpoint.
// Secret values are read from files, environment variables or, with the
// kubernetes registry, from the Secret named by SecretRef.
type AuthConfig struct {
	Type string `yaml:"type"`

	Token     string `yaml:"token,omitempty"`
	TokenFile string `yaml:"tokenFile,omitempty"`
	TokenEnv  string `yaml:"tokenEnv,omitempty"`

	Username     string `yaml:"username,omitempty"`
	PasswordFile string `yaml:"passwordFile,omitempty"`
	PasswordEnv  string `yaml:"passwordEnv,omitempty"`

	// Header carries the key for apiKey auth
	Header string `yaml:"header,omitempty"`

	TokenURL         string   `yaml:"tokenURL,omitempty"`
	ClientID         string   `yaml:"clientID,omitempty"`
	ClientSecretFile string   `yaml:"clientSecretFile,omitempty"`
	ClientSecretEnv  string   `yaml:"clientSecretEnv,omitempty"`
	Scopes           []string `yaml:"scopes,omitempty"`

	SecretRef string `yaml:"secretRef,omitempty"`
}

// CollectionConfig describes one synchronized collection of a connector
type CollectionConfig struct {
	Name string `yaml:"name"`

	// Path below the endpoint, defaults to Name
	Path string `yaml:"path,omitempty"`

	// RecordsPath is a gjson path to the record array inside the response body
	RecordsPath string `yaml:"recordsPath,omitempty"`

	// ConflictTracking enrolls the collection in conflict detection
	ConflictTracking bool `yaml:"conflictTracking,omitempty"`

	IDField         string   `yaml:"idField,omitempty"`
	ExternalIDField string   `yaml:"externalIdField,omitempty"`
	TimestampFields []string `yaml:"timestampFields,omitempty"`

	FieldMap FieldMapConfig `yaml:"fieldMap"`

	// Schema is a JSON schema file applied to translated payloads
	Schema string `yaml:"schema,omitempty"`
}

// FieldMapConfig maps field names between the remote source and the local target
type FieldMapConfig struct {
	SourceToTarget map[string]string `yaml:"sourceToTarget,omitempty"`
	TargetToSource map[string]string `yaml:"targetToSource,omitempty"`
}

// SyncPolicyConfig defines periodic synchronization settings
type SyncPolicyConfig struct {
	Interval string `yaml:"interval"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`

	// PasswordFile contains only the password, trailing whitespace is trimmed
	PasswordFile string `yaml:"passwordFile,omitempty"`

	Database string `yaml:"database"`

	// SSLMode is one of disable, require, verify-ca, verify-full
	SSLMode string `yaml:"sslMode,omitempty"`

	MaxOpenConns    int32  `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns    int32  `yaml:"maxIdleConns,omitempty"`
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the CONNECTOR_SYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(PasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf("no database password configured: set passwordFile or %s environment variable", PasswordEnvVar)
}

// GetConnectionString builds a PostgreSQL connection URL with an escaped password
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	port := d.Port
	if port == 0 {
		port = DefaultDatabasePort
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		port,
		d.Database,
		sslMode,
	), nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML configuration document
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetStorageType returns the record store backend, memory by default
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypeMemory
	}
	return c.Storage.Type
}

// GetJournalType returns the journal backend, the record store backend by default
func (c *Config) GetJournalType() string {
	if c.Storage.Journal == "" {
		return c.GetStorageType()
	}
	return c.Storage.Journal
}

// GetRegistryType returns the connector registry backend, static by default
func (c *Config) GetRegistryType() string {
	if c.Registry.Type == "" {
		return RegistryTypeStatic
	}
	return c.Registry.Type
}

// GetConcurrency returns the default fan-out limit of a session
func (s *SyncConfig) GetConcurrency() int {
	if s.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return s.Concurrency
}

// GetLookback returns the checkpoint window used when no session completed yet.
// The value is validated at load time.
func (s *SyncConfig) GetLookback() time.Duration {
	return durationOr(s.Lookback, DefaultLookback)
}

// GetTimeout returns the default timeout of one remote request
func (s *SyncConfig) GetTimeout() time.Duration {
	return durationOr(s.Timeout, DefaultRequestTimeout)
}

// GetMaxAttempts returns the attempt bound, DefaultRetryAttempts when unset
func (r *RetryConfig) GetMaxAttempts() int {
	if r == nil || r.MaxAttempts <= 0 {
		return DefaultRetryAttempts
	}
	return r.MaxAttempts
}

// GetInitialInterval returns the first backoff delay
func (r *RetryConfig) GetInitialInterval() time.Duration {
	if r == nil {
		return DefaultRetryInitialInterval
	}
	return durationOr(r.InitialInterval, DefaultRetryInitialInterval)
}

// GetMaxInterval returns the backoff cap
func (r *RetryConfig) GetMaxInterval() time.Duration {
	if r == nil {
		return DefaultRetryMaxInterval
	}
	return durationOr(r.MaxInterval, DefaultRetryMaxInterval)
}

// GetInterval returns the periodic sync interval, zero when the connector is
// only synchronized on demand
func (p *SyncPolicyConfig) GetInterval() time.Duration {
	if p == nil {
		return 0
	}
	return durationOr(p.Interval, 0)
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := validateSync(&c.Sync); err != nil {
		return err
	}

	switch c.GetRegistryType() {
	case RegistryTypeStatic:
		if len(c.Connectors) == 0 {
			return fmt.Errorf("at least one connector must be configured for the static registry")
		}
	case RegistryTypeKubernetes:
	default:
		return fmt.Errorf("registry.type must be one of %s, %s: got '%s'",
			RegistryTypeStatic, RegistryTypeKubernetes, c.Registry.Type)
	}

	type connectorKey struct{ orgUnit, name string }
	seen := make(map[connectorKey]bool)
	for i := range c.Connectors {
		conn := &c.Connectors[i]
		if conn.Name == "" {
			return fmt.Errorf("connectors[%d]: name is required", i)
		}
		key := connectorKey{conn.OrgUnit, conn.Name}
		if seen[key] {
			return fmt.Errorf("connectors[%d]: duplicate connector '%s' in org unit '%s'", i, conn.Name, conn.OrgUnit)
		}
		seen[key] = true

		if err := conn.Validate(fmt.Sprintf("connectors[%d] (%s)", i, conn.Name)); err != nil {
			return err
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func (c *Config) validateStorage() error {
	storageType := c.GetStorageType()
	switch storageType {
	case StorageTypeMemory, StorageTypeDatabase:
	default:
		return fmt.Errorf("storage.type must be one of %s, %s: got '%s'",
			StorageTypeMemory, StorageTypeDatabase, storageType)
	}

	journalType := c.GetJournalType()
	switch journalType {
	case StorageTypeMemory, StorageTypeDatabase, StorageTypeSQLite:
	default:
		return fmt.Errorf("storage.journal must be one of %s, %s, %s: got '%s'",
			StorageTypeMemory, StorageTypeDatabase, StorageTypeSQLite, journalType)
	}

	if (storageType == StorageTypeDatabase || journalType == StorageTypeDatabase) && c.Database == nil {
		return fmt.Errorf("database configuration is required for database storage")
	}
	if c.Database != nil {
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
			return fmt.Errorf("database: host, user and database are required")
		}
		if c.Database.ConnMaxLifetime != "" {
			if _, err := time.ParseDuration(c.Database.ConnMaxLifetime); err != nil {
				return fmt.Errorf("database: connMaxLifetime must be a valid duration: %w", err)
			}
		}
	}

	if journalType == StorageTypeSQLite && (c.SQLite == nil || c.SQLite.Path == "") {
		return fmt.Errorf("sqlite.path is required for the sqlite journal")
	}

	return nil
}

func validateSync(s *SyncConfig) error {
	if s.Concurrency < 0 {
		return fmt.Errorf("sync.concurrency must not be negative")
	}
	if err := validateDuration(s.Lookback, "sync.lookback"); err != nil {
		return err
	}
	if err := validateDuration(s.Timeout, "sync.timeout"); err != nil {
		return err
	}
	return validateRetry(s.Retry, "sync")
}

// Validate checks the structural settings of a connector. Field maps are
// checked when the connector is resolved, so that a malformed map fails the
// session that uses it.
func (c *ConnectorConfig) Validate(prefix string) error {
	if c.Endpoint == "" {
		return fmt.Errorf("%s: endpoint is required", prefix)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("%s: endpoint must be a valid URL: %w", prefix, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: endpoint must use http or https, got '%s'", prefix, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: endpoint must include a host", prefix)
	}

	if c.SyncPolicy != nil {
		if _, err := time.ParseDuration(c.SyncPolicy.Interval); err != nil {
			return fmt.Errorf("%s: syncPolicy.interval must be a valid duration (e.g., '30m', '1h'): %w", prefix, err)
		}
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%s: concurrency must not be negative", prefix)
	}
	if err := validateDuration(c.Timeout, prefix+": timeout"); err != nil {
		return err
	}
	if err := validateRetry(c.Retry, prefix); err != nil {
		return err
	}

	if len(c.Collections) == 0 {
		return fmt.Errorf("%s: at least one collection is required", prefix)
	}
	names := make(map[string]bool, len(c.Collections))
	for i, coll := range c.Collections {
		if coll.Name == "" {
			return fmt.Errorf("%s: collections[%d]: name is required", prefix, i)
		}
		if names[coll.Name] {
			return fmt.Errorf("%s: duplicate collection '%s'", prefix, coll.Name)
		}
		names[coll.Name] = true
	}

	return nil
}

func validateRetry(r *RetryConfig, prefix string) error {
	if r == nil {
		return nil
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("%s: retry.maxAttempts must not be negative", prefix)
	}
	if err := validateDuration(r.InitialInterval, prefix+": retry.initialInterval"); err != nil {
		return err
	}
	return validateDuration(r.MaxInterval, prefix+": retry.maxInterval")
}

func validateDuration(value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}
