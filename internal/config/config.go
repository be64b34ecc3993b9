package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound indicates that the configuration file does not exist.
var ErrNotFound = errors.New("config not found")

// DirName is the per-user directory holding config and logs.
const DirName = ".goose-llm"

// Default values applied when the config leaves a field unset.
const (
	DefaultDatasetPath = "data/as1.csv"
	DefaultWebAddr     = ":8501"
)

// Model represents a configured LLM model entry.
type Model struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey,omitempty"`
	BaseURL  string `json:"baseUrl,omitempty"`
	Active   bool   `json:"active,omitempty"`
}

// Dataset locates the GOOSE records and how much of them to analyse.
type Dataset struct {
	Path      string `json:"path,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

// Web configures the browser chat surface.
type Web struct {
	Addr string `json:"addr,omitempty"`
}

// Config captures CLI configuration.
type Config struct {
	LogLevel       string  `json:"logLevel,omitempty"`
	Models         []Model `json:"models,omitempty"`
	Dataset        Dataset `json:"dataset,omitzero"`
	HeuristicsFile string  `json:"heuristicsFile,omitempty"`
	Web            Web     `json:"web,omitzero"`
}

// FindModel locates a model by name.
func (c Config) FindModel(name string) (Model, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// ActiveModel returns the active model configuration if present.
func (c Config) ActiveModel() (Model, bool) {
	for _, m := range c.Models {
		if m.Active {
			return m, true
		}
	}
	return Model{}, false
}

// Validate ensures configuration integrity.
func (c Config) Validate() error {
	activeCount := 0
	for _, m := range c.Models {
		if m.Active {
			activeCount++
		}
		if strings.TrimSpace(m.Name) == "" {
			return errors.New("model entry without a name")
		}
		if _, ok := validProviders[strings.ToLower(m.Provider)]; !ok {
			return fmt.Errorf("model %q: invalid provider %q", m.Name, m.Provider)
		}
	}
	if activeCount > 1 {
		return errors.New("multiple models marked as active")
	}
	if strings.TrimSpace(c.LogLevel) != "" {
		if _, ok := validLogLevels[strings.ToLower(strings.TrimSpace(c.LogLevel))]; !ok {
			return fmt.Errorf("invalid logLevel %q", c.LogLevel)
		}
	}
	if c.Dataset.Limit != nil && *c.Dataset.Limit < 0 {
		return fmt.Errorf("invalid dataset.limit %d", *c.Dataset.Limit)
	}
	// 250 characters of every chunk are reserved for prompt text.
	if c.Dataset.MaxTokens != 0 && c.Dataset.MaxTokens <= 250 {
		return fmt.Errorf("dataset.maxTokens must exceed 250, got %d", c.Dataset.MaxTokens)
	}
	return nil
}

// DatasetPath returns the configured dataset path or the default.
func (c Config) DatasetPath() string {
	if p := strings.TrimSpace(c.Dataset.Path); p != "" {
		return p
	}
	return DefaultDatasetPath
}

// WebAddr returns the listen address for the web surface, honouring
// GOOSE_LLM_ADDR when the config leaves it unset.
func (c Config) WebAddr() string {
	if a := strings.TrimSpace(c.Web.Addr); a != "" {
		return a
	}
	return envOr("GOOSE_LLM_ADDR", DefaultWebAddr)
}

// ApplyEnv fills missing API keys from OPENAI_API_KEY and ANTHROPIC_API_KEY.
func (c Config) ApplyEnv() Config {
	models := make([]Model, len(c.Models))
	copy(models, c.Models)
	for i, m := range models {
		if m.APIKey != "" {
			continue
		}
		switch strings.ToLower(m.Provider) {
		case "openai":
			models[i].APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			models[i].APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	c.Models = models
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Store abstracts configuration persistence.
type Store interface {
	Load() (Config, error)
	Save(Config) error
}

// FileStore implements Store backed by the user's home directory.
type FileStore struct {
	home string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore rooted at home.
func NewFileStore(home string) *FileStore {
	return &FileStore{home: home}
}

// Path returns the location of the config file.
func (f *FileStore) Path() string {
	return filepath.Join(f.home, DirName, "config.json")
}

// Load reads configuration from disk.
func (f *FileStore) Load() (Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.Path())
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, ErrNotFound
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes configuration to disk.
func (f *FileStore) Save(cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return err
	}

	path := f.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var validProviders = map[string]struct{}{
	"openai":    {},
	"anthropic": {},
	"ollama":    {},
}
