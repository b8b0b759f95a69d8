// Package state persists the small amount of mutable session state that
// survives restarts, such as the last selected GPU node.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/slurmdesk/slurmdesk/internal/fatomic"
)

var ErrInvalidKey = errors.New("invalid state key")

const (
	KeySelectedNode = "selected_node"
	KeyRecentJobs   = "recent_jobs"

	maxRecentJobs = 20
)

// Store is a msgpack encoded key/value file guarded by a sidecar lock file.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Keys() ([]string, error) {
	unlock, err := getReadLock(s.path)
	if err != nil {
		return nil, err
	}
	defer release(s.path, unlock)

	m, err := readMap(s.path)
	if err != nil {
		return nil, err
	}
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys, nil
}

// Get decodes the value stored at key into v. It reports whether the key exists.
func (s *Store) Get(key string, v any) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	unlock, err := getReadLock(s.path)
	if err != nil {
		return false, err
	}
	defer release(s.path, unlock)

	m, err := readMap(s.path)
	if err != nil {
		return false, err
	}
	raw, found := m[key]
	if !found {
		return false, nil
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) Set(key string, v any) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return s.update(func(m map[string][]byte) bool {
		m[key] = raw
		return true
	})
}

func (s *Store) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	var found bool
	err := s.update(func(m map[string][]byte) bool {
		_, found = m[key]
		delete(m, key)
		return found
	})
	return found, err
}

func (s *Store) SelectedNode() (string, error) {
	var node string
	if _, err := s.Get(KeySelectedNode, &node); err != nil {
		return "", err
	}
	return node, nil
}

func (s *Store) SetSelectedNode(node string) error {
	if node == "" {
		_, err := s.Delete(KeySelectedNode)
		return err
	}
	return s.Set(KeySelectedNode, node)
}

// RecentJobs returns the ids of the jobs submitted from this workstation,
// most recent first.
func (s *Store) RecentJobs() ([]string, error) {
	var ids []string
	if _, err := s.Get(KeyRecentJobs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) AddRecentJob(id string) error {
	ids, err := s.RecentJobs()
	if err != nil {
		return err
	}
	ids = slices.DeleteFunc(ids, func(v string) bool { return v == id })
	ids = append([]string{id}, ids...)
	if len(ids) > maxRecentJobs {
		ids = ids[:maxRecentJobs]
	}
	return s.Set(KeyRecentJobs, ids)
}

func (s *Store) update(fn func(m map[string][]byte) bool) error {
	unlock, err := getWriteLock(s.path)
	if err != nil {
		return err
	}
	defer release(s.path, unlock)

	m, err := readMap(s.path)
	if err != nil {
		return err
	}
	if !fn(m) {
		return nil
	}
	data, err := msgpack.Marshal(m)
	if err != nil {
		return err
	}
	return fatomic.WriteFile(s.path, data, 0644)
}

func readMap(filePath string) (map[string][]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string][]byte), nil
		}
		return nil, err
	}
	if len(content) == 0 {
		return make(map[string][]byte), nil
	}
	var m map[string][]byte
	if err := msgpack.Unmarshal(content, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = make(map[string][]byte)
	}
	return m, nil
}

const maxKeyLength = 100

var keyValidationRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if !keyValidationRegex.MatchString(key) {
		return fmt.Errorf("key '%s' contains invalid characters; only alphanumeric, '-', '_', and '.' are allowed", key)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("key exceeds max length of %d characters", maxKeyLength)
	}
	return nil
}

type lockFunc func(context.Context, time.Duration) (bool, error)

type unlockFunc func() error

func release(path string, unlock unlockFunc) {
	if err := unlock(); err != nil {
		slog.Error("failed to release state lock", "file", path, "error", err)
	}
}

func getLock(fl *flock.Flock, lockFn lockFunc, what string) (unlockFunc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	locked, err := lockFn(ctx, 100*time.Millisecond)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed trying to acquire %s for %s: %w", what, fl.Path(), err)
		}
		// a crashed process may leave the lock behind
		if err := os.Remove(fl.Path()); err != nil {
			slog.Error("failed to delete lock file", "path", fl.Path(), "error", err)
		}
		slog.Warn("lock file removed due to timeout", "path", fl.Path())
		locked = false
	}
	if !locked {
		return nil, fmt.Errorf("unable to acquire %s for %s", what, fl.Path())
	}
	return fl.Unlock, nil
}

func getWriteLock(filePath string) (unlockFunc, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, err
	}
	fl := flock.New(filePath + ".lock")
	return getLock(fl, fl.TryLockContext, "write lock")
}

func getReadLock(filePath string) (unlockFunc, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, err
	}
	fl := flock.New(filePath + ".lock")
	return getLock(fl, fl.TryRLockContext, "read lock")
}
