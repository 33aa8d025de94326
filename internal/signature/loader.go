package signature

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/swanson/ruby-lsp/pkg/types"
)

// BundledPrefix marks the file paths of corpus files shipped with the binary
const BundledPrefix = "rbindex:"

//go:embed corpus
var bundled embed.FS

// CorpusFile is one pre-parsed signature file
type CorpusFile struct {
	// Source identifies where the declarations came from (a gem or "core")
	Source       string              `json:"source"`
	FilePath     string              `json:"-"`
	Declarations []types.Declaration `json:"declarations"`
}

// LoadBundled returns the core corpus embedded in the binary
func LoadBundled() ([]CorpusFile, error) {
	return loadFS(bundled, "corpus/**/*.json", BundledPrefix)
}

// LoadDir returns every corpus file below dir. File paths are absolute.
func LoadDir(dir string) ([]CorpusFile, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve corpus directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus path is not a directory: %s", abs)
	}
	return loadFS(os.DirFS(abs), "**/*.json", abs+string(filepath.Separator))
}

func loadFS(fsys fs.FS, pattern, prefix string) ([]CorpusFile, error) {
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus files: %w", err)
	}

	files := make([]CorpusFile, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus file %s: %w", name, err)
		}
		f, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode corpus file %s: %w", name, err)
		}
		f.FilePath = prefix + filepath.FromSlash(name)
		if f.Source == "" {
			f.Source = path.Base(path.Dir(name))
		}
		files = append(files, f)
	}
	return files, nil
}

// Decode parses one corpus document
func Decode(data []byte) (CorpusFile, error) {
	var f CorpusFile
	if err := json.Unmarshal(data, &f); err != nil {
		return CorpusFile{}, err
	}
	return f, nil
}
