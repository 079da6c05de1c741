package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/pscheid92/llmwatch/internal/domain"
)

const (
	configDirName   = ".llmwatch"
	configFileName  = "config.toml"
	configPathKey   = "config.path"
	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

// ServerConfig identifies the monitored proxy and the identity service.
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
	AuthURL string `toml:"auth_url,omitempty"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `toml:"level,omitempty"`
	Format string `toml:"format,omitempty"`
}

// File is the full persisted configuration record.
type File struct {
	Server  ServerConfig   `toml:"server"`
	Session domain.Session `toml:"session"`
	Log     LogConfig      `toml:"log"`
}

// Store reads and writes the configuration file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore resolves the config path (overridable through the provided
// viper instance) and returns a store for it.
func NewStore(cfg *viper.Viper) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetDefault(configPathKey, filepath.Join(homeDir, configDirName, configFileName))
	path := cfg.GetString(configPathKey)
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	return &Store{path: path}, nil
}

// NewStoreAt returns a store bound to an explicit path, used by tests.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Path returns the resolved config file location.
func (s *Store) Path() string { return s.path }

// Load reads the persisted record. A missing file yields defaults, not
// an error, so cold start before first login works.
func (s *Store) Load() (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var file File
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &file, nil
}

// Save persists the record atomically. A read after a successful Save
// returns exactly what was written.
func (s *Store) Save(file *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Chmod(configFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}
