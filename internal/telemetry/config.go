// Package telemetry sets up OpenTelemetry export for robota-data. Tracing
// and metrics are off unless enabled; when off, no-op providers are used.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName is the default service name for telemetry
	DefaultServiceName = "robota-data"

	// DefaultEndpoint is the default OTLP endpoint for telemetry
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling samples every trace; a CLI run is a handful of spans
	DefaultSampling = 1.0
)

// Config represents the telemetry settings of one run
type Config struct {
	// Enabled controls whether telemetry is enabled globally
	Enabled bool

	// ServiceName identifies the process, defaults to "robota-data"
	ServiceName string

	// ServiceVersion defaults to "unknown"
	ServiceVersion string

	// Endpoint is the OTLP/HTTP collector as "host:port"
	Endpoint string

	// Insecure allows HTTP connections instead of HTTPS
	Insecure bool

	// Sampling is the trace sampling ratio (0.0 to 1.0), 0 means DefaultSampling
	Sampling float64

	// Metrics enables the dispatch operation metrics
	Metrics bool
}

// GetServiceName returns the service name, using default if not specified
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the service version, using "unknown" if not specified
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

// GetEndpoint returns the endpoint, using default if not specified
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetSampling returns the sampling ratio. 0 is treated as unset.
func (c *Config) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// Validate validates the telemetry configuration
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Sampling < 0 || c.Sampling > 1.0 {
		errs = append(errs, fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling))
	}
	if c.Endpoint != "" && (c.Endpoint[0] == '/' || c.Endpoint[len(c.Endpoint)-1] == '/') {
		errs = append(errs, fmt.Errorf("endpoint must be host:port, got %q", c.Endpoint))
	}
	return errors.Join(errs...)
}
