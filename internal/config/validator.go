package config

import (
	"fmt"

	dserrors "github.com/standardbeagle/docstream/internal/errors"
)

// Validator checks a loaded Config for out-of-range values before the
// engine starts. It never invents defaults for fields the caller left
// unset — Load already did that — it only rejects impossible values.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns an error describing the first invalid field found.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.validateNetwork(&cfg.Network); err != nil {
		return dserrors.NewConfigError("network", cfg.Network.BindAddr, err)
	}
	if err := v.validateStaging(&cfg.Staging); err != nil {
		return dserrors.NewConfigError("staging", "", err)
	}
	if err := v.validateStore(&cfg.Store); err != nil {
		return dserrors.NewConfigError("store", "", err)
	}
	if err := v.validatePerformance(&cfg.Performance); err != nil {
		return dserrors.NewConfigError("performance", "", err)
	}
	if err := v.validateQuery(&cfg.Query); err != nil {
		return dserrors.NewConfigError("query", "", err)
	}
	return nil
}

func (v *Validator) validateNetwork(n *Network) error {
	if n.BindAddr == "" {
		return fmt.Errorf("bind address cannot be empty")
	}
	return nil
}

func (v *Validator) validateStaging(s *Staging) error {
	if s.ByteBudget <= 0 {
		return fmt.Errorf("byte_budget must be positive, got %d", s.ByteBudget)
	}
	return nil
}

func (v *Validator) validateStore(s *Store) error {
	if s.AdmissionP <= 0 || s.AdmissionP > 1 {
		return fmt.Errorf("admission_p must be in (0, 1], got %v", s.AdmissionP)
	}
	if s.DictionaryThresholdBytes < 0 {
		return fmt.Errorf("dictionary_threshold must be non-negative, got %d", s.DictionaryThresholdBytes)
	}
	return nil
}

func (v *Validator) validatePerformance(p *Performance) error {
	if p.CommandChannelCapacity <= 0 {
		return fmt.Errorf("command_channel_capacity must be positive, got %d", p.CommandChannelCapacity)
	}
	if p.MetricsIntervalMs <= 0 {
		return fmt.Errorf("metrics_interval_ms must be positive, got %d", p.MetricsIntervalMs)
	}
	return nil
}

func (v *Validator) validateQuery(q *Query) error {
	if q.DefaultDeadlineMs < 0 {
		return fmt.Errorf("default_deadline_ms must be non-negative, got %d", q.DefaultDeadlineMs)
	}
	if q.DefaultLimit <= 0 {
		return fmt.Errorf("default_limit must be positive, got %d", q.DefaultLimit)
	}
	return nil
}
