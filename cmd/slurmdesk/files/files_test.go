package files

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

func TestResolve(t *testing.T) {
	testCases := []struct {
		root, p, want string
	}{
		{root: "/home/alice/proj", p: "", want: "/home/alice/proj"},
		{root: "/home/alice/proj", p: "data/raw", want: "/home/alice/proj/data/raw"},
		{root: "/home/alice/proj", p: "../other", want: "/home/alice/other"},
		{root: "/home/alice/proj", p: "/scratch/alice/", want: "/scratch/alice"},
	}
	for _, tc := range testCases {
		t.Run(tc.p, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.root, tc.p))
		})
	}
}

func TestLsResult(t *testing.T) {
	ref := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return ref }
	t.Cleanup(func() { now = time.Now })

	out := lsResult{Path: "/home/alice/proj", Files: []remote.FileInfo{
		{Name: "data", IsDir: true, ModTime: ref.Add(-2 * time.Hour)},
		{Name: "train.py", Size: 2048, ModTime: ref.Add(-3 * 24 * time.Hour)},
	}}.String()
	assert.Contains(t, out, "data/")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "3 days ago")

	assert.Equal(t, "/tmp is empty", lsResult{Path: "/tmp"}.String())
}
