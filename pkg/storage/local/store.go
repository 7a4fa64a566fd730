// Package local stores objects on the API host's disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type Store struct {
	root    string
	baseURL string
}

// New creates root if needed. baseURL is the prefix the router serves root under.
func New(root, baseURL string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &Store{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Store) Put(ctx context.Context, key, _ string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("creating object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp object: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("publishing object: %w", err)
	}
	return s.baseURL + "/" + filepath.ToSlash(key), nil
}

// Delete is a no-op for keys that do not exist.
func (s *Store) Delete(_ context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

// Root is the directory served as static files.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", errors.New("object key is required")
	}
	return filepath.Join(s.root, clean), nil
}
