package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTr(t *testing.T) {
	assert.Equal(t, "job 42 submitted", Tr("job %s submitted", "42"))
	assert.Equal(t, "no format verbs", Tr("no format verbs"))

	poFile := filepath.Join(t.TempDir(), "it.po")
	require.NoError(t, os.WriteFile(poFile, []byte(`msgid ""
msgstr ""
"Content-Type: text/plain; charset=UTF-8\n"

msgid "job %s submitted"
msgstr "job %s inviato"
`), 0644))
	Init(poFile)
	t.Cleanup(func() { po = newDefault() })
	assert.Equal(t, "job 42 inviato", Tr("job %s submitted", "42"))
}
