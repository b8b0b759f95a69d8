package config

import (
	"testing"

	"github.com/arduino/go-paths-helper"
	"github.com/stretchr/testify/assert"

	"github.com/slurmdesk/slurmdesk/internal/config"
)

func TestConfigResult(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Host = "login.hpc"
	settings.Username = "alice"
	cfg := config.New(paths.New("/etc/slurmdesk"), paths.New("/var/lib/slurmdesk"), paths.New("/work"), settings)

	r := newConfigResult(&cfg)
	out := r.String()
	assert.Contains(t, out, "Config Directory:    /etc/slurmdesk\n")
	assert.Contains(t, out, "Workspace Directory: /work\n")
	assert.Contains(t, out, "host                 login.hpc\n")
	assert.Contains(t, out, "partition            gpu\n")
	assert.Equal(t, "login.hpc", r.Data().(configResult).Settings.Host)
}
