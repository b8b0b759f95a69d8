package filesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesExcluded(t *testing.T) {
	rules, err := NewRules([]string{"*.ckpt", "/wandb/", "logs/**/*.out"}, false)
	require.NoError(t, err)

	testCases := []struct {
		path     string
		excluded bool
	}{
		{"train.py", false},
		{"src/model/net.py", false},
		{".git", true},
		{".git/config", true},
		{"src/__pycache__/net.cpython-312.pyc", true},
		{"util.pyc", true},
		{"frontend/node_modules/react/index.js", true},
		{"venv/bin/python", true},
		{"pkg.egg-info/PKG-INFO", true},
		{"notes.txt~", true},
		{"build", true},
		{"rebuild.sh", false},
		{"Thumbs.db", true},
		{"best.ckpt", true},
		{"wandb/run-1/files", true},
		{"logs/2024/job_1.out", true},
		{"logs/job_1.err", false},
		{".env", true},
		{"conf/.secrets", true},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.excluded, rules.Excluded(tc.path))
		})
	}
}

func TestRulesIncludeHidden(t *testing.T) {
	rules, err := NewRules(nil, true)
	require.NoError(t, err)

	assert.False(t, rules.Excluded(".env"))
	assert.False(t, rules.Excluded("conf/.secrets"))
	// built-in hidden entries stay excluded
	assert.True(t, rules.Excluded(".git/HEAD"))
	assert.True(t, rules.Excluded(".vscode/settings.json"))
}

func TestRulesInvalidPattern(t *testing.T) {
	_, err := NewRules([]string{"[unterminated"}, false)
	require.Error(t, err)
}
