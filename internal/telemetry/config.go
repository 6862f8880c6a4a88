// Package telemetry provides OpenTelemetry metrics and tracing for connector-sync.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName identifies the service in exported telemetry
	DefaultServiceName = "connector-sync"

	// DefaultEndpoint is the OTLP HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the trace sampling ratio used when none is configured
	DefaultSampling = 0.05
)

// Config represents the telemetry section of the configuration file
type Config struct {
	Enabled        bool           `yaml:"enabled"`
	ServiceName    string         `yaml:"serviceName,omitempty"`
	ServiceVersion string         `yaml:"serviceVersion,omitempty"`
	Endpoint       string         `yaml:"endpoint,omitempty"`
	Insecure       bool           `yaml:"insecure,omitempty"`
	Tracing        *TracingConfig `yaml:"tracing,omitempty"`
	Metrics        *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig defines tracing-specific configuration
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is a ratio between 0.0 and 1.0; zero selects DefaultSampling
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig defines metrics-specific configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func (c *Config) serviceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

func (c *Config) serviceVersion() string {
	if c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

func (c *Config) endpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Config) tracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

func (c *Config) metricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

// GetSampling returns the sampling ratio, DefaultSampling when unset
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0 {
		return DefaultSampling
	}
	return c.Sampling
}

// Validate validates the telemetry configuration. A nil or disabled
// configuration is valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Tracing != nil && c.Tracing.Enabled {
		if c.Tracing.Sampling < 0 || c.Tracing.Sampling > 1.0 {
			errs = append(errs, fmt.Errorf("tracing: sampling must be between 0.0 and 1.0, got %f", c.Tracing.Sampling))
		}
	}
	return errors.Join(errs...)
}
