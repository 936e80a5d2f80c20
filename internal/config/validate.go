package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ConfigError reports a configuration the orchestrator cannot run with:
// malformed fields, an unresolvable dependency reference, a bad
// primary/fallback pairing, or a dependency cycle. It is fatal at startup.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return e.msg
}

// NewConfigError creates a ConfigError with a formatted message.
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a fully merged and defaulted configuration. Field-level
// constraints come from struct tags; the semantic rules (name uniqueness,
// resolvable dependency names, primary/fallback pairing) are checked here.
// Cycle detection happens at graph construction, not here, so that the
// graph package owns the edge relation invariant.
func Validate(cfg PipectlConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return NewConfigError("invalid configuration: %v", err)
	}

	names := make(map[string]bool, len(cfg.Pipeline.Nodes))
	for _, node := range cfg.Pipeline.Nodes {
		if names[node.Name] {
			return NewConfigError("duplicate node name %q", node.Name)
		}
		names[node.Name] = true
	}

	for _, node := range cfg.Pipeline.Nodes {
		for _, dep := range node.DependsOn {
			if dep == node.Name {
				return NewConfigError("node %q depends on itself", node.Name)
			}
			if !names[dep] {
				return NewConfigError("node %q depends on unknown node %q", node.Name, dep)
			}
		}
	}

	primary := cfg.Pipeline.Primary
	fallback := cfg.Pipeline.Fallback

	if (primary == "") != (fallback == "") {
		return NewConfigError("primary and fallback must be configured together (primary=%q, fallback=%q)", primary, fallback)
	}
	if primary != "" {
		if !names[primary] {
			return NewConfigError("primary %q is not a declared node", primary)
		}
		if !names[fallback] {
			return NewConfigError("fallback %q is not a declared node", fallback)
		}
		if primary == fallback {
			return NewConfigError("primary and fallback must be different nodes (both %q)", primary)
		}
	}

	return nil
}
