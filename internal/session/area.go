package session

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Keys of the persisted session area. All values are scalar strings.
const (
	KeyToken        = "token"
	KeyUser         = "user"
	KeyLastActivity = "lastActivity"
	KeyRefreshToken = "refreshToken"
)

// Area is the process-wide key-value space that backs a Store.
//
// Only the Store writes to an Area.
type Area interface {
	// Load returns a copy of every key currently persisted.
	Load() (map[string]string, error)
	// Update applies fn to the current values and persists the result atomically.
	Update(fn func(values map[string]string)) error
}

// MemoryArea is an Area held in process memory. Data is lost on exit.
type MemoryArea struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryArea creates an empty in-memory area.
func NewMemoryArea() *MemoryArea {
	return &MemoryArea{values: make(map[string]string)}
}

// Load implements Area.
func (a *MemoryArea) Load() (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return maps.Clone(a.values), nil
}

// Update implements Area.
func (a *MemoryArea) Update(fn func(values map[string]string)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := maps.Clone(a.values)
	fn(next)
	a.values = next

	return nil
}

// areaFile is the on-disk layout of a FileArea.
type areaFile struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileArea persists the session area as a JSON file.
type FileArea struct {
	mu   sync.Mutex
	path string
}

// NewFileArea creates a file-backed area.
// If baseDir is empty, uses ~/.edugate/
func NewFileArea(baseDir string) (*FileArea, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".edugate")
	}

	// Create directory with 0700 permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("session area initialized")

	return &FileArea{path: filepath.Join(baseDir, "session.json")}, nil
}

// Path returns the location of the session file.
func (a *FileArea) Path() string {
	return a.path
}

// Load implements Area. A missing file is an empty area.
func (a *FileArea) Load() (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.read()
}

// Update implements Area.
func (a *FileArea) Update(fn func(values map[string]string)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	values, err := a.read()
	if err != nil {
		return err
	}

	fn(values)

	return a.write(values)
}

func (a *FileArea) read() (map[string]string, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var f areaFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	if f.Values == nil {
		f.Values = make(map[string]string)
	}

	return f.Values, nil
}

// write persists values atomically.
func (a *FileArea) write(values map[string]string) error {
	data, err := json.MarshalIndent(areaFile{Version: 1, Values: values}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Write to temp file first
	tempPath := a.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, a.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}
