package feedback

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobResult struct {
	ID string `json:"id"`
}

func (r jobResult) String() string { return "job " + r.ID }

func (r jobResult) Data() interface{} { return r }

func TestPrintResult(t *testing.T) {
	testCases := []struct {
		format OutputFormat
		want   string
	}{
		{format: Text, want: "job 42\n"},
		{format: JSON, want: "{\n  \"id\": \"42\"\n}\n"},
		{format: MinifiedJSON, want: "{\"id\":\"42\"}\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.format.String(), func(t *testing.T) {
			reset()
			t.Cleanup(reset)
			out := &bytes.Buffer{}
			SetOut(out)
			SetFormat(tc.format)
			PrintResult(jobResult{ID: "42"})
			assert.Equal(t, tc.want, out.String())
		})
	}
}

func TestWarningsAreAddedToJSON(t *testing.T) {
	reset()
	t.Cleanup(reset)
	out := &bytes.Buffer{}
	SetOut(out)
	SetErr(&bytes.Buffer{})
	SetFormat(MinifiedJSON)
	Warnf("node %s is draining", "gpu03")
	PrintResult(jobResult{ID: "42"})
	assert.Equal(t, "{\"id\":\"42\",\"warnings\":[\"node gpu03 is draining\"]}\n", out.String())
}

func TestDirectStreams(t *testing.T) {
	reset()
	t.Cleanup(reset)
	SetFormat(JSON)
	_, _, err := DirectStreams()
	require.Error(t, err)

	reset()
	out := &bytes.Buffer{}
	SetOut(out)
	SetFormat(Text)
	stdout, _, err := DirectStreams()
	require.NoError(t, err)
	_, _ = stdout.Write([]byte("hello"))
	assert.Equal(t, "hello", out.String())
	assert.Equal(t, "hello", getOutputStreamResult().Stdout)
}

func TestParseOutputFormat(t *testing.T) {
	f, ok := ParseOutputFormat("jsonmini")
	require.True(t, ok)
	assert.Equal(t, MinifiedJSON, f)
	f, ok = ParseOutputFormat("yaml")
	require.True(t, ok)
	assert.Equal(t, YAML, f)
	_, ok = ParseOutputFormat("xml")
	assert.False(t, ok)
}

func TestYAMLUsesJSONNames(t *testing.T) {
	reset()
	t.Cleanup(reset)
	out := &bytes.Buffer{}
	SetOut(out)
	SetFormat(YAML)
	PrintResult(jobResult{ID: "train"})
	assert.Equal(t, "id: train\n", out.String())
}

func TestFatal(t *testing.T) {
	reset()
	t.Cleanup(reset)
	var code int
	exitFunc = func(c int) { code = c }
	errOut := &bytes.Buffer{}
	SetErr(errOut)
	SetFormat(MinifiedJSON)
	Fatal("not connected to the cluster", ErrNotConnected)
	assert.Equal(t, int(ErrNotConnected), code)
	assert.Equal(t, "{\"error\":\"not connected to the cluster\"}\n", errOut.String())
}
