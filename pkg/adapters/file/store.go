package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/enginegate/pkg/domain"
)

// Extension is appended to every recording file name.
const Extension = ".demo"

// Store implements ports.DemoStore using the local filesystem.
// Each recording is one file holding the raw wire bytes.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".enginegate/demos".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".enginegate", "demos")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(demoID string) (string, error) {
	if demoID == "" {
		return "", errors.New("demoID cannot be empty")
	}
	if strings.ContainsAny(demoID, `/\`) || demoID == "." || demoID == ".." {
		return "", fmt.Errorf("invalid demoID %q", demoID)
	}
	return filepath.Join(s.BasePath, demoID+Extension), nil
}

// Save writes the recording atomically: temp file, fsync, rename.
func (s *Store) Save(ctx context.Context, demoID string, demo []byte) error {
	destPath, err := s.path(demoID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure demo directory: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+demoID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(demo); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// os.Rename does not replace an existing file on Windows.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing demo for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to demo: %w", err)
	}
	return nil
}

// Load reads a recording.
func (s *Store) Load(ctx context.Context, demoID string) ([]byte, error) {
	filePath, err := s.path(demoID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrDemoNotFound
		}
		return nil, fmt.Errorf("failed to read demo file: %w", err)
	}
	return data, nil
}

// Delete removes the recording file.
func (s *Store) Delete(ctx context.Context, demoID string) error {
	filePath, err := s.path(demoID)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete demo file: %w", err)
	}
	return nil
}

// List returns the IDs of all recordings in BasePath.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list demos: %w", err)
	}

	var demos []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != Extension || strings.HasPrefix(name, "tmp-") {
			continue
		}
		demos = append(demos, strings.TrimSuffix(name, Extension))
	}
	return demos, nil
}
