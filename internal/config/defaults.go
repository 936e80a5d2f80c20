package config

import "time"

// Default probe policies applied to nodes that do not set their own.
// The intervals match what the managed services advertise as a reasonable
// startup envelope: a short grace period while the process boots, then
// regular readiness polling.
var (
	DefaultRetryPolicy = RetryPolicy{
		Interval:    2 * time.Second,
		MaxAttempts: 30,
		GracePeriod: 5 * time.Second,
	}

	DefaultLivenessPolicy = LivenessPolicy{
		Interval:      10 * time.Second,
		FailureBudget: 3,
	}
)

const (
	defaultAdminHost = "localhost"
	defaultAdminPort = 8800
)

// GetDefaultConfig returns the default configuration for pipectl.
// It carries no pipeline nodes; the node set always comes from a user or
// project configuration file.
func GetDefaultConfig() PipectlConfig {
	return PipectlConfig{
		GlobalSettings: GlobalSettings{
			LogLevel: "info",
		},
		Admin: AdminConfig{
			Enabled: true,
			Host:    defaultAdminHost,
			Port:    defaultAdminPort,
		},
	}
}

// ApplyNodeDefaults fills omitted probe policy fields on every node with
// the package defaults. Called by the loader after merging so that partial
// per-node policies still validate.
func ApplyNodeDefaults(cfg *PipectlConfig) {
	for i := range cfg.Pipeline.Nodes {
		node := &cfg.Pipeline.Nodes[i]

		if node.Readiness.Interval == 0 {
			node.Readiness.Interval = DefaultRetryPolicy.Interval
		}
		if node.Readiness.MaxAttempts == 0 {
			node.Readiness.MaxAttempts = DefaultRetryPolicy.MaxAttempts
		}
		if node.Readiness.GracePeriod == 0 {
			node.Readiness.GracePeriod = DefaultRetryPolicy.GracePeriod
		}

		if node.Liveness.Interval == 0 {
			node.Liveness.Interval = DefaultLivenessPolicy.Interval
		}
		if node.Liveness.FailureBudget == 0 {
			node.Liveness.FailureBudget = DefaultLivenessPolicy.FailureBudget
		}
	}
}
