package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		l, err := ParseLogLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, l)
	}
	_, err := ParseLogLevel("loud")
	require.ErrorContains(t, err, "invalid log level")
}

func TestRootCmd(t *testing.T) {
	root := newRootCmd(2 * time.Minute)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"completion", "config", "daemon", "dataset", "env", "gpu", "job", "shell", "status", "sync", "version"} {
		assert.Contains(t, names, want)
	}

	timeout, err := root.PersistentFlags().GetDuration("timeout")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, timeout)
	assert.Equal(t, "text", root.PersistentFlags().Lookup("format").DefValue)
}
