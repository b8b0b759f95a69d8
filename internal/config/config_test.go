package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("SLURMDESK__CONFIG_DIR", filepath.Join(dir, "config"))
	t.Setenv("SLURMDESK__DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("SLURMDESK__WORKSPACE", filepath.Join(dir, "workspace"))
	return dir
}

func TestNewFromEnvDefaults(t *testing.T) {
	dir := setupEnv(t)

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config"), cfg.ConfigDir().String())
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir().String())
	assert.True(t, cfg.ConfigDir().IsDir())
	assert.Equal(t, filepath.Join(dir, "workspace", ".slurmdesk", "jobs"), cfg.JobsDir().String())

	assert.Equal(t, DefaultPort, cfg.Settings.Port)
	assert.Equal(t, DefaultPartition, cfg.Settings.Partition)
	assert.Equal(t, Duration(DefaultCommandTimeout), cfg.Settings.CommandTimeout)
	assert.False(t, cfg.Settings.Sync.IncludeHidden)
}

func TestNewFromEnvLoadsYAML(t *testing.T) {
	dir := setupEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0755))
	content := `
host: login.cluster.example.org
port: 2222
username: alice
remote_root: /home/alice/project
poll_interval: 10s
sync:
  exclude: ["*.ckpt", "data/**"]
  delete_extra: true
job:
  gpus: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.yaml"), []byte(content), 0600))
	t.Setenv("SLURMDESK_PORT", "2200")
	t.Setenv("SLURMDESK_SYNC_INCLUDE_HIDDEN", "true")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	s := cfg.Settings
	assert.Equal(t, "login.cluster.example.org", s.Host)
	assert.Equal(t, 2200, s.Port)
	assert.Equal(t, "alice", s.Username)
	assert.Equal(t, 10*time.Second, time.Duration(s.PollInterval))
	assert.Equal(t, []string{"*.ckpt", "data/**"}, s.Sync.Exclude)
	assert.True(t, s.Sync.DeleteExtra)
	assert.True(t, s.Sync.IncludeHidden)
	assert.Equal(t, 2, s.Job.GPUs)
	// untouched keys keep their defaults
	assert.Equal(t, 4, s.Job.CPUsPerGPU)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(s *Settings)
		wantKey string
	}{
		{name: "valid", mutate: func(s *Settings) {}},
		{name: "missing host", mutate: func(s *Settings) { s.Host = "" }, wantKey: "host"},
		{name: "missing username", mutate: func(s *Settings) { s.Username = "" }, wantKey: "username"},
		{name: "missing remote root", mutate: func(s *Settings) { s.RemoteRoot = "" }, wantKey: "remote_root"},
		{name: "bad port", mutate: func(s *Settings) { s.Port = 70000 }, wantKey: "port"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			s.Host = "login"
			s.Username = "alice"
			s.RemoteRoot = "/scratch/alice"
			tc.mutate(&s)
			cfg := Configuration{Settings: s}

			err := cfg.Validate()
			if tc.wantKey == "" {
				require.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tc.wantKey, cfgErr.Key)
		})
	}
}

func TestSetGetSave(t *testing.T) {
	setupEnv(t)
	cfg, err := NewFromEnv()
	require.NoError(t, err)

	require.NoError(t, cfg.Set("host", "hpc.example.org"))
	require.NoError(t, cfg.Set("command_timeout", "45s"))
	require.NoError(t, cfg.Set("sync.exclude", "*.ckpt, wandb"))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, cfg.Set("port", "twenty"), &cfgErr)
	assert.Equal(t, "port", cfgErr.Key)
	require.ErrorAs(t, cfg.Set("nope", "x"), &cfgErr)

	v, err := cfg.Get("sync.exclude")
	require.NoError(t, err)
	assert.Equal(t, "*.ckpt,wandb", v)

	require.NoError(t, cfg.Save())

	reloaded, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "hpc.example.org", reloaded.Settings.Host)
	assert.Equal(t, 45*time.Second, time.Duration(reloaded.Settings.CommandTimeout))
	assert.Equal(t, []string{"*.ckpt", "wandb"}, reloaded.Settings.Sync.Exclude)
}
