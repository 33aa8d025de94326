package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/swanson/ruby-lsp/internal/config"
	"github.com/swanson/ruby-lsp/internal/erb"
	"github.com/swanson/ruby-lsp/internal/indexer"
	"github.com/swanson/ruby-lsp/internal/mcp"
)

// loadConfig loads the workspace configuration and applies global flags
func loadConfig(c *cli.Context, root string) (*config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("db") {
		cfg.Storage.DBPath = c.String("db")
	}
	if c.Bool("memory") {
		cfg.Storage.DBPath = ""
	}
	if c.IsSet("corpus") {
		cfg.Corpus.Dir = c.String("corpus")
	}
	if c.IsSet("workers") {
		cfg.Index.Workers = c.Int("workers")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func indexerConfig(cfg *config.Config) *indexer.Config {
	return &indexer.Config{
		Workers:   cfg.Index.Workers,
		BatchSize: cfg.Index.BatchSize,
		Include:   cfg.Workspace.Include,
		Exclude:   cfg.Workspace.Exclude,
	}
}

// openWorkspace indexes dir with the corpus loaded and returns the server
// holding the result. Progress lines go to stderr.
func openWorkspace(c *cli.Context, dir string) (*mcp.Server, *indexer.Statistics, error) {
	cfg, err := loadConfig(c, dir)
	if err != nil {
		return nil, nil, err
	}

	server, err := mcp.NewServer(cfg, log.New(c.App.ErrWriter, "", log.LstdFlags))
	if err != nil {
		return nil, nil, err
	}

	stats, err := server.Indexer().IndexWorkspace(c.Context, dir, indexerConfig(cfg))
	if err != nil {
		_ = server.Close()
		return nil, nil, fmt.Errorf("failed to index %s: %w", dir, err)
	}
	return server, stats, nil
}

func indexCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: rbindex index <dir>", 2)
	}

	server, stats, err := openWorkspace(c, c.Args().First())
	if err != nil {
		return err
	}
	defer server.Close()

	out := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"files_indexed":   stats.FilesIndexed,
			"files_skipped":   stats.FilesSkipped,
			"files_restored":  stats.FilesRestored,
			"files_removed":   stats.FilesRemoved,
			"files_failed":    stats.FilesFailed,
			"entries_created": stats.EntriesCreated,
			"duration_ms":     stats.Duration.Milliseconds(),
			"errors":          stats.ErrorMessages,
		})
	}

	idxStats := server.Indexer().Index().Stats()
	fmt.Fprintf(out, "Files indexed:   %d\n", stats.FilesIndexed)
	fmt.Fprintf(out, "Files skipped:   %d\n", stats.FilesSkipped)
	fmt.Fprintf(out, "Files restored:  %d\n", stats.FilesRestored)
	fmt.Fprintf(out, "Files removed:   %d\n", stats.FilesRemoved)
	fmt.Fprintf(out, "Files failed:    %d\n", stats.FilesFailed)
	fmt.Fprintf(out, "Entries created: %d\n", stats.EntriesCreated)
	fmt.Fprintf(out, "Index: %d names, %d namespaces, %d methods\n", idxStats.Names, idxStats.Namespaces, idxStats.Methods)
	fmt.Fprintf(out, "Duration: %v\n", stats.Duration)
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(out, "  %s\n", msg)
	}
	return nil
}

func ancestorsCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: rbindex ancestors <dir> <Name>", 2)
	}

	server, _, err := openWorkspace(c, c.Args().Get(0))
	if err != nil {
		return err
	}
	defer server.Close()

	name := strings.TrimPrefix(c.Args().Get(1), "::")
	ancestors, err := server.Indexer().Index().LinearizedAncestors(name)
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		fmt.Fprintln(c.App.Writer, a)
	}
	return nil
}

func erbCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: rbindex erb <file>", 2)
	}

	src, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}

	result := erb.Scan(string(src))
	if result.Unterminated {
		log.Printf("Warning: %s: unterminated code tag", c.Args().First())
	}
	if c.Bool("literal") {
		fmt.Fprint(c.App.Writer, result.Literal)
	} else {
		fmt.Fprint(c.App.Writer, result.Code)
	}
	return nil
}
