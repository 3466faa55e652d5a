package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.PlatformConfigStore = (*ConfigStore)(nil)

// configFile is the on-disk TOML shape.
type configFile struct {
	Platforms []domain.PlatformConfig `toml:"platforms"`
}

// ConfigStore is a file-based implementation of driven.PlatformConfigStore
// using TOML. Configurations are stored in a single file within the parley
// config directory.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	configs  map[string]domain.PlatformConfig
}

// NewConfigStore creates a TOML-based config store.
// If configDir is empty, defaults to ~/.parley/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".parley")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
		configs:  make(map[string]domain.PlatformConfig),
	}

	if err := s.Reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// List returns every stored configuration sorted by ID.
func (s *ConfigStore) List() ([]domain.PlatformConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PlatformConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the configuration with the given ID.
func (s *ConfigStore) Get(id string) (*domain.PlatformConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, fmt.Errorf("config %s: %w", id, domain.ErrNotFound)
	}
	return &cfg, nil
}

// Save stores cfg and persists immediately.
func (s *ConfigStore) Save(cfg domain.PlatformConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
	return s.save()
}

// Delete removes the configuration with the given ID and persists.
func (s *ConfigStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[id]; !ok {
		return fmt.Errorf("config %s: %w", id, domain.ErrNotFound)
	}
	delete(s.configs, id)
	return s.save()
}

// save writes the configurations to the TOML file (caller must hold lock).
func (s *ConfigStore) save() error {
	var f configFile
	for _, cfg := range s.configs {
		f.Platforms = append(f.Platforms, cfg)
	}
	sort.Slice(f.Platforms, func(i, j int) bool { return f.Platforms[i].ID < f.Platforms[j].ID })

	data, err := toml.Marshal(f)
	if err != nil {
		return err
	}

	// Write with restricted permissions; the file names token IDs.
	return os.WriteFile(s.filePath, data, 0600)
}

// Reload reads the configurations back from disk, replacing the in-memory
// set. A missing file leaves the store empty.
func (s *ConfigStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.configs = make(map[string]domain.PlatformConfig)
			return nil
		}
		return err
	}

	var f configFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return err
	}

	configs := make(map[string]domain.PlatformConfig, len(f.Platforms))
	for _, cfg := range f.Platforms {
		configs[cfg.ID] = cfg
	}
	s.configs = configs
	return nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}
