package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore keeps artifacts in a directory on local disk.
type LocalStore struct {
	basePath  string
	urlPrefix string
}

// NewLocalStore creates basePath if needed. URLs are urlPrefix + name.
func NewLocalStore(basePath, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("NewLocalStore: create directory: %w", err)
	}
	return &LocalStore{basePath: basePath, urlPrefix: urlPrefix}, nil
}

// Save stores r and returns the generated file name.
func (s *LocalStore) Save(_ context.Context, filename string, r io.Reader) (string, error) {
	name, err := uniqueName(filename)
	if err != nil {
		return "", fmt.Errorf("LocalStore.Save: generate file id: %w", err)
	}

	fullPath := filepath.Join(s.basePath, name)
	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("LocalStore.Save: create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("LocalStore.Save: write file: %w", err)
	}
	return name, nil
}

// ReadBytes returns the content of the named artifact.
func (s *LocalStore) ReadBytes(_ context.Context, path string) ([]byte, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("LocalStore.ReadBytes: %w", err)
	}
	return data, nil
}

// Delete removes the named artifact.
func (s *LocalStore) Delete(_ context.Context, path string) error {
	if path == "" {
		return nil
	}
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("LocalStore.Delete: %w", err)
	}
	return nil
}

// URL returns the public reference for the named artifact.
func (s *LocalStore) URL(path string) string {
	return s.urlPrefix + filepath.Base(path)
}

// FullPath returns the filesystem path for a name.
func (s *LocalStore) FullPath(path string) string {
	return filepath.Join(s.basePath, filepath.Base(path))
}

// resolve rejects names that would leave the base directory.
func (s *LocalStore) resolve(path string) (string, error) {
	if path == "" || filepath.Base(path) != path || path == "." || path == ".." {
		return "", fmt.Errorf("LocalStore: invalid artifact name %q", path)
	}
	return filepath.Join(s.basePath, path), nil
}
