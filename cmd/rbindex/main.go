package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/swanson/ruby-lsp/internal/mcp"
	"github.com/swanson/ruby-lsp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// stdout is reserved for the MCP protocol
	log.SetOutput(os.Stderr)

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintf(c.App.Writer, "rbindex\n")
		fmt.Fprintf(c.App.Writer, "Version: %s\n", version)
		fmt.Fprintf(c.App.Writer, "Build Time: %s\n", buildTime)
		fmt.Fprintf(c.App.Writer, "Build Mode: %s\n", storage.BuildMode)
		fmt.Fprintf(c.App.Writer, "SQLite Driver: %s\n", storage.DriverName)
	}

	return &cli.App{
		Name:    "rbindex",
		Usage:   "Index Ruby workspaces and answer definition, ancestor and member queries",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database path (overrides storage.db_path and RBINDEX_DB_PATH)",
			},
			&cli.BoolFlag{
				Name:  "memory",
				Usage: "Keep the index in memory only",
			},
			&cli.StringFlag{
				Name:  "corpus",
				Usage: "Extra signature corpus directory",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent parsers",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the MCP server on stdio",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "root",
						Aliases: []string{"r"},
						Usage:   "Index this workspace before serving",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Watch the workspace for changes (overrides watch.enabled)",
					},
				},
				Action: serveCommand,
			},
			{
				Name:      "index",
				Usage:     "Index a workspace and print statistics",
				ArgsUsage: "<dir>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print statistics as JSON"},
				},
				Action: indexCommand,
			},
			{
				Name:      "ancestors",
				Usage:     "Print the linearized ancestors of a namespace",
				ArgsUsage: "<dir> <Name>",
				Action:    ancestorsCommand,
			},
			{
				Name:      "erb",
				Usage:     "Print the embedded code of an ERB template with the markup blanked out",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "literal", Usage: "Print the markup projection instead"},
				},
				Action: erbCommand,
			},
		},
	}
}

func serveCommand(c *cli.Context) error {
	root := c.String("root")

	cfg, err := loadConfig(c, root)
	if err != nil {
		return err
	}
	if c.IsSet("watch") {
		cfg.Watch.Enabled = c.Bool("watch")
	}

	log.Printf("rbindex MCP server v%s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s", storage.BuildMode, storage.DriverName)

	server, err := mcp.NewServer(cfg, log.Default())
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	if root != "" {
		if _, err := server.Indexer().IndexWorkspace(ctx, root, indexerConfig(cfg)); err != nil {
			_ = server.Close()
			return fmt.Errorf("failed to index %s: %w", root, err)
		}
		if cfg.Watch.Enabled {
			if err := server.Watch(root); err != nil {
				log.Printf("Warning: file watching disabled: %v", err)
			}
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Println("MCP server ready, listening on stdio...")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
		_ = server.Close()
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Println("Server stopped")
	return nil
}
