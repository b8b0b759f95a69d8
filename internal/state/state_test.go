package state

import (
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expectError bool
	}{
		{name: "valid simple key", input: "key"},
		{name: "valid key with dot and underscore", input: "selected_node.v2"},
		{name: "key at max length", input: strings.Repeat("a", maxKeyLength)},
		{name: "empty key", input: "", expectError: true},
		{name: "key too long", input: strings.Repeat("a", maxKeyLength+1), expectError: true},
		{name: "key with invalid space", input: "my key", expectError: true},
		{name: "key with slashes", input: "path/to/value", expectError: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateKey(tc.input)
			if tc.expectError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSelectedNode(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested", "state.msgpack"))

	node, err := s.SelectedNode()
	require.NoError(t, err)
	assert.Empty(t, node)

	require.NoError(t, s.SetSelectedNode("gpu03"))
	node, err = New(s.Path()).SelectedNode()
	require.NoError(t, err)
	assert.Equal(t, "gpu03", node)

	require.NoError(t, s.SetSelectedNode(""))
	node, err = s.SelectedNode()
	require.NoError(t, err)
	assert.Empty(t, node)
}

func TestRecentJobs(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.msgpack"))

	require.NoError(t, s.AddRecentJob("100"))
	require.NoError(t, s.AddRecentJob("101"))
	require.NoError(t, s.AddRecentJob("100"))

	ids, err := s.RecentJobs()
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "101"}, ids)

	for i := range maxRecentJobs + 5 {
		require.NoError(t, s.AddRecentJob(strconv.Itoa(200+i)))
	}
	ids, err = s.RecentJobs()
	require.NoError(t, err)
	assert.Len(t, ids, maxRecentJobs)
	assert.Equal(t, strconv.Itoa(200+maxRecentJobs+4), ids[0])
}

func TestKeysAndDelete(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.msgpack"))
	require.NoError(t, s.Set("b", 1))
	require.NoError(t, s.Set("a", "x"))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	found, err := s.Delete("a")
	require.NoError(t, err)
	assert.True(t, found)
	found, err = s.Delete("a")
	require.NoError(t, err)
	assert.False(t, found)

	require.ErrorIs(t, s.Set("bad key", 1), ErrInvalidKey)
}
