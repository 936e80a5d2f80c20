package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/pipectl"
	projectConfigDir = ".pipectl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the pipectl configuration by layering default, user,
// and project settings, then fills per-node policy defaults and validates
// the result.
func LoadConfig() (PipectlConfig, error) {
	// 1. Start with the default configuration
	cfg := GetDefaultConfig()

	// 2. Layer in the user-specific configuration, if present
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional; report and continue
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return PipectlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			cfg = mergeConfigs(cfg, userConfig)
		}
	}

	// 3. Layer in the project-specific configuration, if present
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return PipectlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			cfg = mergeConfigs(cfg, projectConfig)
		}
	}

	ApplyNodeDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return PipectlConfig{}, err
	}

	return cfg, nil
}

// LoadConfigFromPath loads, defaults, and validates a configuration from a
// single explicit file, bypassing the layered lookup. Used by the CLI's
// --config flag and by `pipectl validate`.
func LoadConfigFromPath(path string) (PipectlConfig, error) {
	fileConfig, err := loadConfigFromFile(path)
	if err != nil {
		return PipectlConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}

	cfg := mergeConfigs(GetDefaultConfig(), fileConfig)
	ApplyNodeDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return PipectlConfig{}, err
	}

	return cfg, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir() // Use mockable variable
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd() // Use mockable variable
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a PipectlConfig from a YAML file.
func loadConfigFromFile(filePath string) (PipectlConfig, error) {
	var cfg PipectlConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return PipectlConfig{}, err
	}
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return PipectlConfig{}, err
	}
	return cfg, nil
}

// mergeConfigs merges 'overlay' config into 'base' config.
func mergeConfigs(base, overlay PipectlConfig) PipectlConfig {
	merged := base

	if overlay.GlobalSettings.LogLevel != "" {
		merged.GlobalSettings.LogLevel = overlay.GlobalSettings.LogLevel
	}

	// Merge nodes by name: overlay replaces same-named nodes, appends new
	// ones. Declaration order of the base is preserved so that topological
	// tie-breaking stays reproducible across merges.
	if len(overlay.Pipeline.Nodes) > 0 {
		byName := make(map[string]int, len(merged.Pipeline.Nodes))
		for i, node := range merged.Pipeline.Nodes {
			byName[node.Name] = i
		}
		for _, node := range overlay.Pipeline.Nodes {
			if i, exists := byName[node.Name]; exists {
				merged.Pipeline.Nodes[i] = node
			} else {
				merged.Pipeline.Nodes = append(merged.Pipeline.Nodes, node)
			}
		}
	}

	if overlay.Pipeline.Primary != "" {
		merged.Pipeline.Primary = overlay.Pipeline.Primary
	}
	if overlay.Pipeline.Fallback != "" {
		merged.Pipeline.Fallback = overlay.Pipeline.Fallback
	}

	if overlay.Admin.enabledSet {
		merged.Admin.Enabled = overlay.Admin.Enabled
		merged.Admin.enabledSet = true
	}
	if overlay.Admin.Host != "" {
		merged.Admin.Host = overlay.Admin.Host
	}
	if overlay.Admin.Port != 0 {
		merged.Admin.Port = overlay.Admin.Port
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path.
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
