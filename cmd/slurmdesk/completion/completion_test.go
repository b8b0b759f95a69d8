package completion

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerators(t *testing.T) {
	root := &cobra.Command{Use: "slurmdesk"}
	root.AddCommand(&cobra.Command{Use: "job", Short: "Manage jobs", Run: func(*cobra.Command, []string) {}})
	for shell, gen := range generators {
		t.Run(shell, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, gen(root, &out, true))
			assert.Contains(t, out.String(), "slurmdesk")
		})
	}
}

func TestConfigKeys(t *testing.T) {
	complete := ConfigKeys([]string{"host", "port"})
	keys, directive := complete(nil, nil, "")
	assert.Equal(t, []string{"host", "port"}, keys)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	keys, _ = complete(nil, []string{"host"}, "")
	assert.Empty(t, keys)
}
