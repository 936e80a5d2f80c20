package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalNodesYAML = `
pipeline:
  nodes:
    - name: order-agg
      target: http://localhost:9001/health
`

// withMockedDirs points the layered lookup at temp dirs for the test's
// duration.
func withMockedDirs(t *testing.T, homeDir, workDir string) {
	t.Helper()
	origHome := osUserHomeDir
	origGetwd := osGetwd
	osUserHomeDir = func() (string, error) { return homeDir, nil }
	osGetwd = func() (string, error) { return workDir, nil }
	t.Cleanup(func() {
		osUserHomeDir = origHome
		osGetwd = origGetwd
	})
}

func writeConfigFile(t *testing.T, dir, subdir, content string) {
	t.Helper()
	confDir := filepath.Join(dir, subdir)
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, configFileName), []byte(content), 0o644))
}

func TestLoadConfigUserLayer(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	withMockedDirs(t, home, work)

	writeConfigFile(t, home, userConfigDir, minimalNodesYAML+`
globalSettings:
  logLevel: debug
`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.GlobalSettings.LogLevel)
	require.Len(t, cfg.Pipeline.Nodes, 1)
	assert.Equal(t, "order-agg", cfg.Pipeline.Nodes[0].Name)
}

func TestLoadConfigProjectOverridesUser(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	withMockedDirs(t, home, work)

	writeConfigFile(t, home, userConfigDir, minimalNodesYAML+`
globalSettings:
  logLevel: debug
admin:
  port: 9100
`)
	writeConfigFile(t, work, projectConfigDir, `
globalSettings:
  logLevel: error
pipeline:
  nodes:
    - name: order-agg
      target: http://localhost:9999/health
    - name: qa
      target: http://localhost:9002/health
      dependsOn: [order-agg]
`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.GlobalSettings.LogLevel)
	assert.Equal(t, 9100, cfg.Admin.Port, "user layer survives where project is silent")

	require.Len(t, cfg.Pipeline.Nodes, 2)
	assert.Equal(t, "http://localhost:9999/health", cfg.Pipeline.Nodes[0].Target,
		"project layer replaces same-named nodes")
	assert.Equal(t, "qa", cfg.Pipeline.Nodes[1].Name)
}

func TestLoadConfigAppliesNodeDefaults(t *testing.T) {
	home := t.TempDir()
	withMockedDirs(t, home, t.TempDir())
	writeConfigFile(t, home, userConfigDir, minimalNodesYAML)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	node := cfg.Pipeline.Nodes[0]
	assert.Equal(t, DefaultRetryPolicy, node.Readiness)
	assert.Equal(t, DefaultLivenessPolicy, node.Liveness)
}

func TestLoadConfigNoNodesFails(t *testing.T) {
	withMockedDirs(t, t.TempDir(), t.TempDir())

	_, err := LoadConfig()
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadConfigCanDisableAdmin(t *testing.T) {
	home := t.TempDir()
	withMockedDirs(t, home, t.TempDir())

	// "enabled: false" must override the default-enabled admin server, not
	// be mistaken for an absent key.
	writeConfigFile(t, home, userConfigDir, minimalNodesYAML+`
admin:
  enabled: false
`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.Admin.Enabled)
	assert.Equal(t, defaultAdminHost, cfg.Admin.Host, "defaults survive where the file is silent")
	assert.Equal(t, defaultAdminPort, cfg.Admin.Port)
}

func TestLoadConfigAdminEnabledUnsetKeepsDefault(t *testing.T) {
	home := t.TempDir()
	withMockedDirs(t, home, t.TempDir())

	writeConfigFile(t, home, userConfigDir, minimalNodesYAML+`
admin:
  port: 9100
`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, 9100, cfg.Admin.Port)
}

func TestLoadConfigFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  nodes:
    - name: role-text
      target: http://localhost:9003/health
      readiness:
        interval: 1s
        maxAttempts: 5
        gracePeriod: 2s
`), 0o644))

	cfg, err := LoadConfigFromPath(path)
	require.NoError(t, err)

	node := cfg.Pipeline.Nodes[0]
	assert.Equal(t, time.Second, node.Readiness.Interval)
	assert.Equal(t, 5, node.Readiness.MaxAttempts)
	assert.Equal(t, 2*time.Second, node.Readiness.GracePeriod)
	assert.Equal(t, DefaultLivenessPolicy, node.Liveness, "omitted liveness gets defaults")
}

func TestLoadConfigFromPathMissingFile(t *testing.T) {
	_, err := LoadConfigFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetUserConfigDir(t *testing.T) {
	withMockedDirs(t, "/home/tester", "/tmp")

	dir, err := GetUserConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", userConfigDir), dir)
}
