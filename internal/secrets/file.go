package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileProvider reads secrets from a JSON object file, or from a directory
// with one file per secret as mounted by Docker and Kubernetes.
type FileProvider struct {
	path string
	dir  bool
	mu   sync.RWMutex
	data map[string]string
}

// NewFileProvider creates a file-based secrets provider.
func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		return nil, errors.New("file path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("secrets path: %w", err)
	}

	p := &FileProvider{path: path, dir: info.IsDir()}
	if !p.dir {
		if err := p.Reload(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	if p.dir {
		// Keys never name anything outside the directory
		if key != filepath.Base(key) || strings.HasPrefix(key, ".") {
			return "", fmt.Errorf("invalid secret key %q", key)
		}
		data, err := os.ReadFile(filepath.Join(p.path, key))
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, nil
}

// Reload reloads secrets from a JSON file. Directories are read on every
// lookup and need no reload.
func (p *FileProvider) Reload() error {
	if p.dir {
		return nil
	}
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("load secrets file: %w", err)
	}
	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse secrets file: %w", err)
	}

	p.mu.Lock()
	p.data = data
	p.mu.Unlock()
	return nil
}
