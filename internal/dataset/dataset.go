// Package dataset unpacks archives already present on the cluster into a
// destination directory.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

type Kind int

const (
	KindDirectory Kind = iota
	KindZip
	KindTar
)

func (k Kind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindTar:
		return "tar"
	default:
		return "directory"
	}
}

var tarSuffixes = []string{".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".tar.xz", ".txz"}

// KindOf guesses the archive kind from the file name.
func KindOf(src string) Kind {
	lower := strings.ToLower(src)
	if strings.HasSuffix(lower, ".zip") {
		return KindZip
	}
	for _, s := range tarSuffixes {
		if strings.HasSuffix(lower, s) {
			return KindTar
		}
	}
	return KindDirectory
}

// ExtractCommand returns the command that makes dst and unpacks src into it.
// Plain directories are copied.
func ExtractCommand(src, dst string) (string, error) {
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return "", errors.New("source and destination are required")
	}
	q := shellquote.Join
	mkdir := "mkdir -p " + q(dst)
	switch KindOf(src) {
	case KindZip:
		return fmt.Sprintf("%s && unzip -o -q %s -d %s", mkdir, q(src), q(dst)), nil
	case KindTar:
		return fmt.Sprintf("%s && tar -xf %s -C %s", mkdir, q(src), q(dst)), nil
	default:
		return fmt.Sprintf("%s && cp -r %s %s", mkdir, q(src), q(dst+"/")), nil
	}
}

// Extract unpacks src into dst on the cluster. A relative dst is resolved
// against root.
func Extract(ctx context.Context, shell remote.Shell, root, src, dst string) error {
	if !path.IsAbs(src) && root != "" {
		src = path.Join(root, src)
	}
	if !path.IsAbs(dst) && root != "" {
		dst = path.Join(root, dst)
	}
	cmd, err := ExtractCommand(src, dst)
	if err != nil {
		return err
	}
	slog.Info("extracting dataset", slog.String("source", src), slog.String("destination", dst), slog.String("kind", KindOf(src).String()))
	if _, err := remote.Run(ctx, shell, cmd); err != nil {
		return fmt.Errorf("extracting %s: %w", src, err)
	}
	return nil
}
