package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// PipectlConfig is the top-level configuration structure for pipectl.
type PipectlConfig struct {
	GlobalSettings GlobalSettings `yaml:"globalSettings"`
	Pipeline       PipelineConfig `yaml:"pipeline"`
	Admin          AdminConfig    `yaml:"admin"`
}

// GlobalSettings holds process-wide settings such as the log level.
type GlobalSettings struct {
	LogLevel string `yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"` // "debug", "info", "warn", "error"
}

// PipelineConfig defines the managed service graph. The graph is fixed at
// configuration time: nodes and their dependency edges cannot change while
// the orchestrator is running.
type PipelineConfig struct {
	Nodes []NodeDefinition `yaml:"nodes" validate:"required,min=1,dive"`

	// Primary names the aggregation worker whose failure triggers fallback
	// activation. Fallback names its paired standby worker. Both must
	// reference declared nodes; either both are set or neither is.
	Primary  string `yaml:"primary,omitempty"`
	Fallback string `yaml:"fallback,omitempty"`
}

// NodeDefinition defines one managed service: its identity, readiness
// endpoint, declared dependencies, and probe policies.
type NodeDefinition struct {
	Name      string   `yaml:"name" validate:"required"`
	Target    string   `yaml:"target" validate:"required,url"` // readiness endpoint URL
	DependsOn []string `yaml:"dependsOn,omitempty"`

	Readiness RetryPolicy    `yaml:"readiness"`
	Liveness  LivenessPolicy `yaml:"liveness"`
}

// RetryPolicy controls the startup readiness probe for a node. The policy
// itself is the retry mechanism: there is no wall-clock deadline beyond
// GracePeriod + Interval*MaxAttempts. Immutable once constructed.
type RetryPolicy struct {
	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
	MaxAttempts int           `yaml:"maxAttempts" validate:"gt=0"`
	GracePeriod time.Duration `yaml:"gracePeriod" validate:"gte=0"`
}

// LivenessPolicy controls the periodic liveness polling that begins once a
// node has first become healthy. FailureBudget consecutive misses move the
// node to its terminal Failed state.
type LivenessPolicy struct {
	Interval      time.Duration `yaml:"interval" validate:"gt=0"`
	FailureBudget int           `yaml:"failureBudget" validate:"gt=0"`
}

// UnmarshalYAML accepts durations in Go syntax ("2s", "500ms").
func (p *RetryPolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval    string `yaml:"interval"`
		MaxAttempts int    `yaml:"maxAttempts"`
		GracePeriod string `yaml:"gracePeriod"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	interval, err := parseDuration("readiness interval", raw.Interval)
	if err != nil {
		return err
	}
	grace, err := parseDuration("readiness gracePeriod", raw.GracePeriod)
	if err != nil {
		return err
	}

	p.Interval = interval
	p.MaxAttempts = raw.MaxAttempts
	p.GracePeriod = grace
	return nil
}

// UnmarshalYAML accepts durations in Go syntax ("10s", "1m").
func (p *LivenessPolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval      string `yaml:"interval"`
		FailureBudget int    `yaml:"failureBudget"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	interval, err := parseDuration("liveness interval", raw.Interval)
	if err != nil {
		return err
	}

	p.Interval = interval
	p.FailureBudget = raw.FailureBudget
	return nil
}

// parseDuration parses an optional duration string; empty means unset and
// is filled later by ApplyNodeDefaults.
func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

// AdminConfig defines the administrative HTTP interface (fallback reset,
// shutdown, status, metrics).
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty" validate:"omitempty,gt=0,lte=65535"`

	// enabledSet distinguishes an explicit "enabled: false" from an absent
	// key, so a layered file can turn the default-enabled server off.
	enabledSet bool
}

// UnmarshalYAML tracks whether "enabled" was present in the document.
func (a *AdminConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled *bool  `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		a.Enabled = *raw.Enabled
		a.enabledSet = true
	}
	a.Host = raw.Host
	a.Port = raw.Port
	return nil
}
