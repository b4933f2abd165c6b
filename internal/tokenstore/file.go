package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nkiryanov/eazynet/internal/models"
)

// File keeps tokens under the local storage keys in a JSON document
type File struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

func NewFile(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("token store file path is required")
	}

	f := &File{
		path:   path,
		values: make(map[string]string, 2),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Load() (models.TokenPair, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return models.TokenPair{
		Access:  f.values[KeyAccess],
		Refresh: f.values[KeyRefresh],
	}, nil
}

func (f *File) Save(pair models.TokenPair) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	setOrDelete := func(key, value string) {
		if value == "" {
			delete(f.values, key)
			return
		}
		f.values[key] = value
	}
	setOrDelete(KeyAccess, pair.Access)
	setOrDelete(KeyRefresh, pair.Refresh)

	return f.persistLocked()
}

func (f *File) ClearAccess() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.values, KeyAccess)
	return f.persistLocked()
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.values, KeyAccess)
	delete(f.values, KeyRefresh)
	return f.persistLocked()
}

func (f *File) load() error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read token store file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	if err := json.Unmarshal(b, &f.values); err != nil {
		return fmt.Errorf("decode token store file: %w", err)
	}
	return nil
}

func (f *File) persistLocked() error {
	b, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("mkdir token store dir: %w", err)
	}
	if err := os.WriteFile(f.path, b, 0o600); err != nil {
		return fmt.Errorf("write token store file: %w", err)
	}
	return nil
}
