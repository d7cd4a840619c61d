package config

import (
	"github.com/rcgrid/rcgrid/environment"
	"github.com/rcgrid/rcgrid/pool"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid_configuration.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 4444, cfg.Hub.Port)
	assert.Equal(t, 180*time.Second, cfg.PollingInterval())
	assert.Equal(t, 300*time.Second, cfg.MaxIdle())
	assert.Equal(t, pool.WaitForever, cfg.MaxWait())
	assert.Equal(t, []environment.Environment{{Name: "firefox on linux", Browser: "*firefox"}}, cfg.Environments())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
hub:
  port: 5555
  remoteControlPollingIntervalInSeconds: 10
  sessionMaxIdleTimeInSeconds: 60
  newSessionMaxWaitTimeInSeconds: 30
  journal: /tmp/journal.sqlite3
  environments:
    - name: "firefox on linux"
      browser: "*firefox"
    - name: "safari on mac"
      browser: "*safari"
`)
	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	want := HubConfig{
		Port:                                  5555,
		RemoteControlPollingIntervalInSeconds: 10,
		SessionMaxIdleTimeInSeconds:           60,
		NewSessionMaxWaitTimeInSeconds:        30,
		Journal:                               "/tmp/journal.sqlite3",
		Environments: []EnvironmentConfig{
			{Name: "firefox on linux", Browser: "*firefox"},
			{Name: "safari on mac", Browser: "*safari"},
		},
	}
	if diff := cmp.Diff(want, cfg.Hub); diff != "" {
		t.Errorf("Unexpected config (-want +got): %s", diff)
	}
	assert.Equal(t, 30*time.Second, cfg.MaxWait())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("HUB_PORT", "6666")
	t.Setenv("HUB_SESSIONMAXIDLETIMEINSECONDS", "42")
	cfg, err := Load(viper.New(), writeConfig(t, "hub:\n  port: 5555\n"))
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Hub.Port)
	assert.Equal(t, 42*time.Second, cfg.MaxIdle())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, `
hub:
  port: 70000
  sessionMaxIdleTimeInSeconds: 0
  environments:
    - name: "firefox on linux"
    - name: "firefox on linux"
    - name: " "
`)
	_, err := Load(viper.New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be between 1 and 65535")
	assert.Contains(t, err.Error(), "sessionMaxIdleTimeInSeconds must be positive")
	assert.Contains(t, err.Error(), "environment 'firefox on linux' is defined twice")
	assert.Contains(t, err.Error(), "environment #3 has no name")
}

func TestYAMLRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, out, "---\nhub:\n    port: 4444\n")

	again, err := Load(viper.New(), writeConfig(t, out))
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, again); diff != "" {
		t.Errorf("Unexpected config after round trip (-want +got): %s", diff)
	}
}
