package ssh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

func TestParseLongListing(t *testing.T) {
	out := `total 24
drwxr-xr-x  5 alice users 4096 1714564800 .
drwxr-xr-x 12 alice users 4096 1714564800 ..
-rw-r--r--  1 alice users 1523 1714568400 train.py
drwxr-xr-x  2 alice users 4096 1714572000 data set
lrwxrwxrwx  1 alice users   11 1714572000 latest -> runs/run-3
garbage
-rw-r--r--  1 alice users  abc 1714572000 broken
`
	assert.Equal(t, []remote.FileInfo{
		{Name: "train.py", Size: 1523, ModTime: time.Unix(1714568400, 0)},
		{Name: "data set", IsDir: true, Size: 4096, ModTime: time.Unix(1714572000, 0)},
		{Name: "latest", Size: 11, ModTime: time.Unix(1714572000, 0)},
	}, ParseLongListing(out))
	assert.Empty(t, ParseLongListing(""))
}
