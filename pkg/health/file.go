package health

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServicesFile is the YAML shape of a health-check configuration file.
type ServicesFile struct {
	Services []ServiceSpec `yaml:"services"`

	// MaxTotalTimeoutSeconds bounds the whole run.
	MaxTotalTimeoutSeconds int `yaml:"max_total_timeout,omitempty"`

	// Profile overrides the deployment performance profile.
	Profile string `yaml:"profile,omitempty"`
}

// LoadServicesFile reads, defaults and validates a service list.
func LoadServicesFile(path string) (*ServicesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services file: %w", err)
	}
	return ParseServicesFile(data)
}

// ParseServicesFile parses YAML service definitions.
func ParseServicesFile(data []byte) (*ServicesFile, error) {
	var f ServicesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse services file: %w", err)
	}
	if len(f.Services) == 0 {
		return nil, fmt.Errorf("services file defines no services")
	}

	seen := make(map[string]bool, len(f.Services))
	for i := range f.Services {
		f.Services[i].SetDefaults()
		if err := f.Services[i].Validate(); err != nil {
			return nil, err
		}
		if seen[f.Services[i].Name] {
			return nil, fmt.Errorf("duplicate service name %q", f.Services[i].Name)
		}
		seen[f.Services[i].Name] = true
	}
	if f.MaxTotalTimeoutSeconds == 0 {
		f.MaxTotalTimeoutSeconds = 120
	}
	return &f, nil
}
