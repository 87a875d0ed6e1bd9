// Package health actively probes the services a deployment depends on
// before the engine starts serving. Checks run concurrently under a
// global deadline; deep checks catch the race where a service answers
// 200 before its own dependencies are ready.
package health

import (
	"fmt"
	"time"
)

// CheckKind selects the probe mechanism for a service.
type CheckKind string

const (
	CheckHTTP     CheckKind = "http"
	CheckTCP      CheckKind = "tcp"
	CheckDatabase CheckKind = "database"
)

// ServiceSpec describes one service to probe.
type ServiceSpec struct {
	Name string    `yaml:"name"`
	Type CheckKind `yaml:"type"`

	// URL for http checks and for the surface probe of deep database
	// checks.
	URL string `yaml:"url,omitempty"`

	// Host and Port for tcp checks.
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// Driver and DSN for database round-trips ("postgres" via lib/pq,
	// "sqlite3").
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`

	// TimeoutSeconds bounds a single attempt before profile scaling.
	TimeoutSeconds int `yaml:"timeout,omitempty"`

	// RetryCount is the number of retries after the first attempt.
	RetryCount int `yaml:"retry_count,omitempty"`

	// RetryBaseDelay between attempts (policy base).
	RetryBaseDelaySeconds float64 `yaml:"retry_base_delay,omitempty"`

	// DeepHealthCheck runs a dependency round-trip after a surface
	// success before declaring the service healthy.
	DeepHealthCheck bool `yaml:"deep_health_check,omitempty"`
}

func (s *ServiceSpec) SetDefaults() {
	if s.Type == "" {
		s.Type = CheckHTTP
	}
	if s.TimeoutSeconds == 0 {
		s.TimeoutSeconds = 10
	}
	if s.RetryBaseDelaySeconds == 0 {
		s.RetryBaseDelaySeconds = 0.5
	}
}

func (s *ServiceSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("service name is required")
	}
	switch s.Type {
	case CheckHTTP:
		if s.URL == "" {
			return fmt.Errorf("service %s: http check requires url", s.Name)
		}
	case CheckTCP:
		if s.Host == "" || s.Port == 0 {
			return fmt.Errorf("service %s: tcp check requires host and port", s.Name)
		}
	case CheckDatabase:
		if s.DSN == "" {
			return fmt.Errorf("service %s: database check requires dsn", s.Name)
		}
	default:
		return fmt.Errorf("service %s: unknown check type %q", s.Name, s.Type)
	}
	if s.RetryCount < 0 {
		return fmt.Errorf("service %s: retry_count must be non-negative", s.Name)
	}
	return nil
}

// Timeout returns the per-attempt timeout before profile scaling.
func (s *ServiceSpec) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// HealthResult is the outcome of probing one service.
type HealthResult struct {
	Name          string        `json:"name"`
	Healthy       bool          `json:"healthy"`
	ResponseTime  time.Duration `json:"response_time"`
	StatusCode    int           `json:"status_code,omitempty"`
	Error         string        `json:"error,omitempty"`
	Attempts      int           `json:"attempts"`
	RaceCondition bool          `json:"race_condition,omitempty"`
}

// Report aggregates the results of one run.
type Report struct {
	Results         map[string]HealthResult `json:"results"`
	TimeoutExceeded bool                    `json:"timeout_exceeded,omitempty"`
	Elapsed         time.Duration           `json:"elapsed"`
}

// Healthy reports whether every probed service is healthy and the run
// completed within the overall deadline.
func (r *Report) Healthy() bool {
	if r.TimeoutExceeded {
		return false
	}
	for _, res := range r.Results {
		if !res.Healthy {
			return false
		}
	}
	return len(r.Results) > 0
}
