// Package config loads rbindex settings from defaults, an optional
// .rbindex.toml at the workspace root, and RBINDEX_* environment variables,
// in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the optional per-workspace configuration file
const FileName = ".rbindex.toml"

// Environment overrides
const (
	EnvDBPath    = "RBINDEX_DB_PATH"
	EnvWorkers   = "RBINDEX_WORKERS"
	EnvCorpusDir = "RBINDEX_CORPUS_DIR"
)

var (
	// ErrInvalidConfig is returned when a loaded configuration fails validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds every tunable of the indexer, storage and watcher
type Config struct {
	Workspace Workspace `toml:"workspace"`
	Index     Index     `toml:"index"`
	Storage   Storage   `toml:"storage"`
	Corpus    Corpus    `toml:"corpus"`
	Watch     Watch     `toml:"watch"`
}

// Workspace selects the files to index. Patterns are doublestar globs
// relative to the workspace root.
type Workspace struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

type Index struct {
	Workers   int `toml:"workers"`
	BatchSize int `toml:"batch_size"`
	CacheSize int `toml:"cache_size"` // linearized ancestor lists kept
}

type Storage struct {
	// DBPath is the SQLite database file. Empty keeps the index in memory only.
	DBPath string `toml:"db_path"`
}

type Corpus struct {
	// Dir holds extra pre-parsed signature files loaded after the bundled corpus
	Dir string `toml:"dir"`
}

type Watch struct {
	Enabled    bool `toml:"enabled"`
	DebounceMs int  `toml:"debounce_ms"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	home, err := os.UserHomeDir()
	dbPath := ""
	if err == nil {
		dbPath = filepath.Join(home, ".rbindex", "index.db")
	}

	return &Config{
		Workspace: Workspace{
			Exclude: []string{"vendor/**", "node_modules/**", "tmp/**", "log/**", "coverage/**"},
		},
		Index: Index{
			Workers:   runtime.NumCPU(),
			BatchSize: 20,
			CacheSize: 4096,
		},
		Storage: Storage{DBPath: dbPath},
		Watch: Watch{
			Enabled:    false,
			DebounceMs: 200,
		},
	}
}

// Load builds the configuration for a workspace root. A missing config file
// is not an error.
func Load(root string) (*Config, error) {
	cfg := Default()

	if root != "" {
		path := filepath.Join(root, FileName)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDBPath); ok {
		c.Storage.DBPath = v
	}
	if v, ok := lookup(EnvCorpusDir); ok {
		c.Corpus.Dir = v
	}
	if v, ok := lookup(EnvWorkers); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvWorkers, v)
		}
		c.Index.Workers = n
	}
	return nil
}

// Validate checks ranges and glob syntax
func (c *Config) Validate() error {
	if c.Index.Workers <= 0 {
		return fmt.Errorf("%w: index.workers must be positive, got %d", ErrInvalidConfig, c.Index.Workers)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("%w: index.batch_size must be positive, got %d", ErrInvalidConfig, c.Index.BatchSize)
	}
	if c.Index.CacheSize < 0 {
		return fmt.Errorf("%w: index.cache_size cannot be negative", ErrInvalidConfig)
	}
	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("%w: watch.debounce_ms cannot be negative", ErrInvalidConfig)
	}

	for _, pattern := range slices.Concat(c.Workspace.Include, c.Workspace.Exclude) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: bad glob pattern %q", ErrInvalidConfig, pattern)
		}
	}

	if c.Corpus.Dir != "" {
		info, err := os.Stat(c.Corpus.Dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: corpus.dir %q is not a directory", ErrInvalidConfig, c.Corpus.Dir)
		}
	}
	return nil
}
