package sftp

import (
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

// newPipeFS serves the local filesystem over an in-memory SFTP session.
func newPipeFS(t *testing.T) *FS {
	t.Helper()
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	server, err := sftp.NewServer(pipeConn{serverR, serverW})
	require.NoError(t, err)
	go func() { _ = server.Serve() }()

	client, err := sftp.NewClientPipe(clientR, clientW)
	require.NoError(t, err)
	s := &FS{client: client}
	t.Cleanup(func() {
		_ = s.Close()
		_ = server.Close()
	})
	return s
}

func TestFS(t *testing.T) {
	s := newPipeFS(t)
	root := filepath.ToSlash(t.TempDir())

	dir := root + "/proj/data"
	require.NoError(t, s.MkDirAll(dir))
	require.NoError(t, s.MkDirAll(dir))

	require.NoError(t, s.WriteFile(strings.NewReader("print('hi')\n"), root+"/proj/train.py"))
	mtime := time.Unix(1714568400, 0)
	require.NoError(t, s.Chtimes(root+"/proj/train.py", mtime))

	info, err := s.Stats(root + "/proj/train.py")
	require.NoError(t, err)
	assert.Equal(t, "train.py", info.Name)
	assert.Equal(t, int64(12), info.Size)
	assert.False(t, info.IsDir)
	assert.True(t, mtime.Equal(info.ModTime))

	r, err := s.ReadFile(root + "/proj/train.py")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "print('hi')\n", string(data))

	files, err := s.List(root + "/proj")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range files {
		names[f.Name] = f.IsDir
	}
	assert.Equal(t, map[string]bool{"data": true, "train.py": false}, names)

	_, err = s.Stats(root + "/missing")
	require.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, s.Remove(root+"/proj"))
	_, err = s.Stats(root + "/proj")
	require.ErrorIs(t, err, fs.ErrNotExist)
}
