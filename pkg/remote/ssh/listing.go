package ssh

import (
	"bufio"
	"strconv"
	"strings"
	"time"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

// ParseLongListing parses the output of `ls -la --time-style=+%s`.
// Lines that do not look like a long listing entry are skipped.
func ParseLongListing(out string) []remote.FileInfo {
	files := []remote.FileInfo{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "total ") {
			continue
		}
		parts := strings.Fields(line)
		// mode links owner group size mtime name...
		if len(parts) < 7 {
			continue
		}
		size, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			continue
		}
		epoch, err := strconv.ParseInt(parts[5], 10, 64)
		if err != nil {
			continue
		}
		name := strings.Join(parts[6:], " ")
		if parts[0][0] == 'l' {
			name, _, _ = strings.Cut(name, " -> ")
		}
		if name == "." || name == ".." {
			continue
		}
		files = append(files, remote.FileInfo{
			Name:    name,
			IsDir:   parts[0][0] == 'd',
			Size:    size,
			ModTime: time.Unix(epoch, 0),
		})
	}
	return files
}
