// Package secret is a small file-backed key store for provider credentials.
// Values live in one JSON object; every mutation is written atomically
// while holding an exclusive flock on a sidecar lock file, so several
// llmkit processes can share one store.
package secret

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

const (
	DefaultLockTimeout = 5 * time.Second
	DefaultLockRetry   = 50 * time.Millisecond
)

type Options struct {
	LockTimeout time.Duration
	LockRetry   time.Duration
}

type Store struct {
	path string
	lock *flock.Flock
	opts Options
	mu   sync.Mutex
}

func New(path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, llmErrors.InvalidInput("secret store path is empty")
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.LockRetry <= 0 {
		opts.LockRetry = DefaultLockRetry
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create secret store dir: %w", err)
	}

	return &Store{
		path: path,
		lock: flock.New(path+".lock", flock.SetPermissions(0600)),
		opts: opts,
	}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Get returns the stored value, ErrNotFound when name is absent.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := s.withLock(ctx, func() error {
		secrets, err := s.read()
		if err != nil {
			return err
		}
		v, ok := secrets[name]
		if !ok {
			return llmErrors.NotFound(fmt.Sprintf("secret %q", name))
		}
		value = v
		return nil
	})
	return value, err
}

func (s *Store) Set(ctx context.Context, name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return llmErrors.InvalidInput("secret name is empty")
	}

	return s.withLock(ctx, func() error {
		secrets, err := s.read()
		if err != nil {
			return err
		}
		secrets[name] = value
		if err := s.write(secrets); err != nil {
			return err
		}
		slog.Debug("Secret stored", "name", name, "path", s.path)
		return nil
	})
}

// Delete removes name, ErrNotFound when it was not stored.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.withLock(ctx, func() error {
		secrets, err := s.read()
		if err != nil {
			return err
		}
		if _, ok := secrets[name]; !ok {
			return llmErrors.NotFound(fmt.Sprintf("secret %q", name))
		}
		delete(secrets, name)
		return s.write(secrets)
	})
}

// List returns the stored names in sorted order. Values are never listed.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.withLock(ctx, func() error {
		secrets, err := s.read()
		if err != nil {
			return err
		}
		names = make([]string, 0, len(secrets))
		for name := range secrets {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil
	})
	return names, err
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(ctx, s.opts.LockRetry)
	if err != nil {
		return llmErrors.WrapWithCategory(err, "lock secret store "+s.path, llmErrors.ErrConflict)
	}
	if !locked {
		return llmErrors.WrapWithCategory(fmt.Errorf("held by another process"), "lock secret store "+s.path, llmErrors.ErrConflict)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Error("Failed to release secret store lock", "path", s.path, "error", err)
		}
	}()

	return fn()
}

func (s *Store) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read secret store: %w", err)
	}

	secrets := map[string]string{}
	if len(bytes.TrimSpace(data)) == 0 {
		return secrets, nil
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, llmErrors.Decode(err, "decode secret store "+s.path)
	}
	return secrets, nil
}

func (s *Store) write(secrets map[string]string) error {
	data, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write secret store: %w", err)
	}
	return os.Chmod(s.path, 0600)
}
