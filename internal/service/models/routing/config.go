package routing

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDestinationRequired is returned when a target omits its destination.
var ErrDestinationRequired = errors.New("routing target destination is required")

// ErrBadSamplingRate is returned when sampling_rate is outside [0.0, 1.0].
var ErrBadSamplingRate = errors.New("routing target sampling_rate must be within [0.0, 1.0]")

// Target is one configured routing rule: deliver to Destination when
// Conditions match, optionally transformed, sampled, or delayed.
type Target struct {
	Destination  string     `json:"destination"`
	Conditions   *Condition `json:"conditions,omitempty"`
	Transform    *Transform `json:"transform,omitempty"`
	SamplingRate *float64   `json:"sampling_rate,omitempty"`
	DelaySeconds int        `json:"delay_seconds,omitempty"`
}

// Config is the declarative routing specification stored on a record.
type Config struct {
	Targets  []Target `json:"targets"`
	Fallback string   `json:"fallback,omitempty"`
}

// ParseConfig decodes and validates a routing configuration blob.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode routing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every target's structure.
func (c *Config) Validate() error {
	for i := range c.Targets {
		target := &c.Targets[i]
		if target.Destination == "" {
			return fmt.Errorf("target %d: %w", i, ErrDestinationRequired)
		}
		if target.SamplingRate != nil && (*target.SamplingRate < 0 || *target.SamplingRate > 1) {
			return fmt.Errorf("target %d: %w", i, ErrBadSamplingRate)
		}
		if target.Conditions != nil {
			if err := target.Conditions.Validate(); err != nil {
				return fmt.Errorf("target %d: %w", i, err)
			}
		}
	}

	return nil
}
