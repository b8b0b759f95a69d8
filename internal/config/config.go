package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/goccy/go-yaml"

	"github.com/slurmdesk/slurmdesk/internal/fatomic"
)

const (
	DefaultPort           = 22
	DefaultPartition      = "gpu"
	DefaultPollInterval   = 30 * time.Second
	DefaultCommandTimeout = 2 * time.Minute
)

// ConfigurationError reports a required setting that is missing or invalid.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing required setting %q", e.Key)
	}
	return fmt.Sprintf("invalid setting %q: %s", e.Key, e.Reason)
}

// Duration is a time.Duration stored as a human string ("30s", "2m") in YAML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type SyncSettings struct {
	Exclude       []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	IncludeHidden bool     `yaml:"include_hidden" json:"include_hidden"`
	DeleteExtra   bool     `yaml:"delete_extra" json:"delete_extra"`
}

type JobDefaults struct {
	GPUs         int    `yaml:"gpus" json:"gpus"`
	CPUsPerGPU   int    `yaml:"cpus_per_gpu" json:"cpus_per_gpu"`
	MemoryPerGPU int    `yaml:"memory_per_gpu" json:"memory_per_gpu"`
	TimeLimit    string `yaml:"time_limit" json:"time_limit"`
	CondaEnv     string `yaml:"conda_env,omitempty" json:"conda_env,omitempty"`
}

// Settings is the persisted part of the configuration, stored in config.yaml.
type Settings struct {
	Host           string       `yaml:"host" json:"host"`
	Port           int          `yaml:"port" json:"port"`
	Username       string       `yaml:"username" json:"username"`
	RemoteRoot     string       `yaml:"remote_root" json:"remote_root"`
	PrivateKey     string       `yaml:"private_key,omitempty" json:"private_key,omitempty"`
	KnownHosts     string       `yaml:"known_hosts,omitempty" json:"known_hosts,omitempty"`
	AutoReconnect  bool         `yaml:"auto_reconnect" json:"auto_reconnect"`
	Partition      string       `yaml:"partition" json:"partition"`
	PollInterval   Duration     `yaml:"poll_interval" json:"poll_interval"`
	CommandTimeout Duration     `yaml:"command_timeout" json:"command_timeout"`
	Sync           SyncSettings `yaml:"sync" json:"sync"`
	Job            JobDefaults  `yaml:"job" json:"job"`
}

func DefaultSettings() Settings {
	return Settings{
		Port:           DefaultPort,
		Partition:      DefaultPartition,
		PollInterval:   Duration(DefaultPollInterval),
		CommandTimeout: Duration(DefaultCommandTimeout),
		KnownHosts:     "~/.ssh/known_hosts",
		Job: JobDefaults{
			GPUs:         1,
			CPUsPerGPU:   4,
			MemoryPerGPU: 32,
			TimeLimit:    "24:00:00",
		},
	}
}

type Configuration struct {
	configDir *paths.Path
	dataDir   *paths.Path
	workspace *paths.Path

	Settings Settings
}

// New returns a configuration rooted at the given directories, without
// reading config.yaml or the environment.
func New(configDir, dataDir, workspace *paths.Path, settings Settings) Configuration {
	return Configuration{
		configDir: configDir,
		dataDir:   dataDir,
		workspace: workspace,
		Settings:  settings,
	}
}

func NewFromEnv() (Configuration, error) {
	configDir := paths.New(os.Getenv("SLURMDESK__CONFIG_DIR"))
	if configDir == nil {
		xdgConfig, err := os.UserConfigDir()
		if err != nil {
			return Configuration{}, err
		}
		configDir = paths.New(xdgConfig).Join("slurmdesk")
	}
	if !configDir.IsAbs() {
		wd, err := paths.Getwd()
		if err != nil {
			return Configuration{}, err
		}
		configDir = wd.JoinPath(configDir)
	}

	dataDir := paths.New(os.Getenv("SLURMDESK__DATA_DIR"))
	if dataDir == nil {
		xdgHome, err := os.UserHomeDir()
		if err != nil {
			return Configuration{}, err
		}
		dataDir = paths.New(xdgHome).Join(".local", "share", "slurmdesk")
	}

	workspace := paths.New(os.Getenv("SLURMDESK__WORKSPACE"))
	if workspace == nil {
		wd, err := paths.Getwd()
		if err != nil {
			return Configuration{}, err
		}
		workspace = wd
	}
	if !workspace.IsAbs() {
		wd, err := paths.Getwd()
		if err != nil {
			return Configuration{}, err
		}
		workspace = wd.JoinPath(workspace)
	}

	c := Configuration{
		configDir: configDir,
		dataDir:   dataDir,
		workspace: workspace,
		Settings:  DefaultSettings(),
	}
	if err := c.init(); err != nil {
		return Configuration{}, err
	}
	if err := c.load(); err != nil {
		return Configuration{}, err
	}
	c.applyEnv(os.LookupEnv)
	return c, nil
}

func (c *Configuration) init() error {
	if err := c.ConfigDir().MkdirAll(); err != nil {
		return err
	}
	if err := c.DataDir().MkdirAll(); err != nil {
		return err
	}
	return nil
}

func (c *Configuration) load() error {
	data, err := c.SettingsFile().ReadFile()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("no configuration file found", "path", c.SettingsFile())
			return nil
		}
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := yaml.Unmarshal(data, &c.Settings); err != nil {
		return fmt.Errorf("failed to parse %s: %w", c.SettingsFile(), err)
	}
	return nil
}

// applyEnv overrides each setting with its SLURMDESK_<KEY> variable, if set.
func (c *Configuration) applyEnv(lookup func(string) (string, bool)) {
	for _, key := range Keys() {
		name := "SLURMDESK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := c.Set(key, v); err != nil {
			slog.Warn("ignoring invalid environment override", "variable", name, "error", err)
		}
	}
}

// Save writes the settings back to config.yaml atomically.
func (c *Configuration) Save() error {
	data, err := yaml.Marshal(c.Settings)
	if err != nil {
		return err
	}
	if err := c.ConfigDir().MkdirAll(); err != nil {
		return err
	}
	return fatomic.WriteFile(c.SettingsFile().String(), data, 0600)
}

// Validate checks the settings needed to reach the cluster.
func (c *Configuration) Validate() error {
	s := c.Settings
	switch {
	case s.Host == "":
		return &ConfigurationError{Key: "host"}
	case s.Username == "":
		return &ConfigurationError{Key: "username"}
	case s.RemoteRoot == "":
		return &ConfigurationError{Key: "remote_root"}
	case s.Port <= 0 || s.Port > 65535:
		return &ConfigurationError{Key: "port", Reason: fmt.Sprintf("%d is not a valid port", s.Port)}
	}
	return nil
}

func (c *Configuration) ConfigDir() *paths.Path {
	return c.configDir
}

func (c *Configuration) DataDir() *paths.Path {
	return c.dataDir
}

func (c *Configuration) Workspace() *paths.Path {
	return c.workspace
}

func (c *Configuration) SettingsFile() *paths.Path {
	return c.configDir.Join("config.yaml")
}

func (c *Configuration) StateFile() *paths.Path {
	return c.dataDir.Join("state.msgpack")
}

// JobsDir holds the generated batch scripts of the workspace.
func (c *Configuration) JobsDir() *paths.Path {
	return c.workspace.Join(".slurmdesk", "jobs")
}

type field struct {
	get func(s *Settings) string
	set func(s *Settings, v string) error
}

func stringField(p func(s *Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error { *p(s) = v; return nil },
	}
}

func intField(p func(s *Settings) *int) field {
	return field{
		get: func(s *Settings) string { return strconv.Itoa(*p(s)) },
		set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%q is not a number", v)
			}
			*p(s) = n
			return nil
		},
	}
}

func boolField(p func(s *Settings) *bool) field {
	return field{
		get: func(s *Settings) string { return strconv.FormatBool(*p(s)) },
		set: func(s *Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%q is not a boolean", v)
			}
			*p(s) = b
			return nil
		},
	}
}

func durationField(p func(s *Settings) *Duration) field {
	return field{
		get: func(s *Settings) string { return time.Duration(*p(s)).String() },
		set: func(s *Settings, v string) error { return p(s).UnmarshalText([]byte(v)) },
	}
}

var fields = map[string]field{
	"host":                stringField(func(s *Settings) *string { return &s.Host }),
	"port":                intField(func(s *Settings) *int { return &s.Port }),
	"username":            stringField(func(s *Settings) *string { return &s.Username }),
	"remote_root":         stringField(func(s *Settings) *string { return &s.RemoteRoot }),
	"private_key":         stringField(func(s *Settings) *string { return &s.PrivateKey }),
	"known_hosts":         stringField(func(s *Settings) *string { return &s.KnownHosts }),
	"auto_reconnect":      boolField(func(s *Settings) *bool { return &s.AutoReconnect }),
	"partition":           stringField(func(s *Settings) *string { return &s.Partition }),
	"poll_interval":       durationField(func(s *Settings) *Duration { return &s.PollInterval }),
	"command_timeout":     durationField(func(s *Settings) *Duration { return &s.CommandTimeout }),
	"sync.include_hidden": boolField(func(s *Settings) *bool { return &s.Sync.IncludeHidden }),
	"sync.delete_extra":   boolField(func(s *Settings) *bool { return &s.Sync.DeleteExtra }),
	"sync.exclude": {
		get: func(s *Settings) string { return strings.Join(s.Sync.Exclude, ",") },
		set: func(s *Settings, v string) error {
			s.Sync.Exclude = nil
			for p := range strings.SplitSeq(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					s.Sync.Exclude = append(s.Sync.Exclude, p)
				}
			}
			return nil
		},
	},
	"job.gpus":           intField(func(s *Settings) *int { return &s.Job.GPUs }),
	"job.cpus_per_gpu":   intField(func(s *Settings) *int { return &s.Job.CPUsPerGPU }),
	"job.memory_per_gpu": intField(func(s *Settings) *int { return &s.Job.MemoryPerGPU }),
	"job.time_limit":     stringField(func(s *Settings) *string { return &s.Job.TimeLimit }),
	"job.conda_env":      stringField(func(s *Settings) *string { return &s.Job.CondaEnv }),
}

// Keys returns the settable keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (c *Configuration) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", &ConfigurationError{Key: key, Reason: "unknown key"}
	}
	return f.get(&c.Settings), nil
}

func (c *Configuration) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return &ConfigurationError{Key: key, Reason: "unknown key"}
	}
	if err := f.set(&c.Settings, value); err != nil {
		return &ConfigurationError{Key: key, Reason: err.Error()}
	}
	return nil
}
