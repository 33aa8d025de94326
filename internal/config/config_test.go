package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Positive(t, cfg.Index.Workers)
	assert.Equal(t, 20, cfg.Index.BatchSize)
	assert.Equal(t, 4096, cfg.Index.CacheSize)
	assert.Contains(t, cfg.Workspace.Exclude, "vendor/**")
	assert.Empty(t, cfg.Workspace.Include)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, 200, cfg.Watch.DebounceMs)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Index, cfg.Index)
	assert.Equal(t, def.Workspace, cfg.Workspace)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	corpus := t.TempDir()
	writeConfig(t, dir, `
[workspace]
include = ["app/**/*.rb", "lib/**"]
exclude = ["spec/fixtures/**"]

[index]
workers = 3
batch_size = 5

[storage]
db_path = "/tmp/rbindex-test.db"

[corpus]
dir = "`+filepath.ToSlash(corpus)+`"

[watch]
enabled = true
debounce_ms = 50
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"app/**/*.rb", "lib/**"}, cfg.Workspace.Include)
	assert.Equal(t, []string{"spec/fixtures/**"}, cfg.Workspace.Exclude, "file replaces default excludes")
	assert.Equal(t, 3, cfg.Index.Workers)
	assert.Equal(t, 5, cfg.Index.BatchSize)
	assert.Equal(t, 4096, cfg.Index.CacheSize, "unset keys keep defaults")
	assert.Equal(t, "/tmp/rbindex-test.db", cfg.Storage.DBPath)
	assert.Equal(t, filepath.ToSlash(corpus), cfg.Corpus.Dir)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 50, cfg.Watch.DebounceMs)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[index]
workers = 3

[storage]
db_path = "from-file.db"
`)
	t.Setenv(EnvWorkers, "7")
	t.Setenv(EnvDBPath, "")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Index.Workers)
	assert.Equal(t, "", cfg.Storage.DBPath, "an empty override selects in-memory mode")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		env      map[string]string
		invalid  bool
		contains string
	}{
		{
			name:     "malformed toml",
			content:  "[index\nworkers = 1",
			contains: "failed to parse",
		},
		{
			name:     "wrong type",
			content:  "[index]\nworkers = \"many\"",
			contains: "failed to parse",
		},
		{
			name:     "zero workers",
			content:  "[index]\nworkers = 0",
			invalid:  true,
			contains: "index.workers",
		},
		{
			name:     "bad glob",
			content:  "[workspace]\nexclude = [\"app/[\"]",
			invalid:  true,
			contains: "bad glob pattern",
		},
		{
			name:     "missing corpus dir",
			content:  "[corpus]\ndir = \"/does/not/exist\"",
			invalid:  true,
			contains: "corpus.dir",
		},
		{
			name:     "non-numeric workers env",
			env:      map[string]string{EnvWorkers: "lots"},
			invalid:  true,
			contains: EnvWorkers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.content != "" {
				writeConfig(t, dir, tt.content)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.invalid, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDBPath:    "/data/index.db",
		EnvCorpusDir: "/data/corpus",
		EnvWorkers:   " 2 ",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "/data/index.db", cfg.Storage.DBPath)
	assert.Equal(t, "/data/corpus", cfg.Corpus.Dir)
	assert.Equal(t, 2, cfg.Index.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"negative batch", func(c *Config) { c.Index.BatchSize = -1 }, true},
		{"negative cache", func(c *Config) { c.Index.CacheSize = -1 }, true},
		{"zero cache uses index default", func(c *Config) { c.Index.CacheSize = 0 }, false},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMs = -5 }, true},
		{"good include", func(c *Config) { c.Workspace.Include = []string{"**/*.{rb,rake}"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
