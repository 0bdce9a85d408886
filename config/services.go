package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server and the analysis orchestrator.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeJanitor runs the retained report janitor.
	ServiceModeJanitor ServiceMode = "janitor"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeJanitor,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeJanitor:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, janitor)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// JanitorConfig contains report janitor configuration.
type JanitorConfig struct {
	// Interval is the janitor tick interval.
	Interval time.Duration `env:"PIPELINE_JANITOR_INTERVAL" envDefault:"15m"`

	// ReportRetention is how long locally retained reports are kept.
	ReportRetention time.Duration `env:"PIPELINE_REPORT_RETENTION" envDefault:"168h"` // 7 days

	// UploadRetention is how long orphaned uploads in the temp dir are kept.
	UploadRetention time.Duration `env:"PIPELINE_UPLOAD_RETENTION" envDefault:"24h"`
}

// Sanitize applies guardrails to janitor configuration values.
func (j *JanitorConfig) Sanitize() {
	if j.Interval < time.Minute {
		j.Interval = time.Minute
	}
	if j.ReportRetention < time.Hour {
		j.ReportRetention = time.Hour
	}
	if j.UploadRetention < time.Hour {
		j.UploadRetention = time.Hour
	}
}
