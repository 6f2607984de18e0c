// Package storage persists uploaded database files for the lifetime of
// their session. Files live under a per-session directory and are
// removed together with the session.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrTooLarge = errors.New("upload exceeds size limit")
	ErrNotFound = errors.New("upload not found")
)

type Store struct {
	dir      string
	maxBytes int64
}

// NewStore prepares the upload root directory. maxBytes <= 0 disables
// the size limit.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Save streams body to disk under the session's directory and returns
// the absolute path of the stored file. A body larger than the
// configured limit aborts the write and leaves nothing behind.
func (s *Store) Save(sessionID, filename string, body io.Reader) (string, int64, error) {
	if err := ValidateComponent(sessionID, "session id"); err != nil {
		return "", 0, err
	}
	if err := ValidateComponent(filename, "file name"); err != nil {
		return "", 0, err
	}

	sessionDir := filepath.Join(s.dir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create session directory: %w", err)
	}

	target := filepath.Join(sessionDir, filename)
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}

	reader := body
	if s.maxBytes > 0 {
		reader = io.LimitReader(body, s.maxBytes+1)
	}
	written, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return "", 0, fmt.Errorf("write upload file: %w", err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		_ = os.Remove(target)
		return "", 0, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	return target, written, nil
}

// Remove deletes everything stored for the session. Removing a session
// that never uploaded anything is not an error.
func (s *Store) Remove(sessionID string) error {
	if err := ValidateComponent(sessionID, "session id"); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.dir, sessionID))
}

// RemoveContaining deletes the session directory that holds the given
// stored file path. Paths outside the upload root are rejected.
func (s *Store) RemoveContaining(path string) error {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %q is not inside the upload root", path)
	}
	session, _, _ := strings.Cut(rel, string(filepath.Separator))
	return s.Remove(session)
}

// HealthCheck verifies the upload root still exists and accepts
// writes. It backs the readiness endpoint.
func (s *Store) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("upload directory unavailable: %w", err)
	}
	f, err := os.CreateTemp(s.dir, ".readycheck-")
	if err != nil {
		return fmt.Errorf("upload directory not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Stat reports the stored size of a session's upload.
func (s *Store) Stat(sessionID, filename string) (int64, error) {
	if err := ValidateComponent(sessionID, "session id"); err != nil {
		return 0, err
	}
	if err := ValidateComponent(filename, "file name"); err != nil {
		return 0, err
	}
	info, err := os.Stat(filepath.Join(s.dir, sessionID, filename))
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
