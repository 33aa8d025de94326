package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/swanson/ruby-lsp/internal/config"
	"github.com/swanson/ruby-lsp/internal/index"
	"github.com/swanson/ruby-lsp/internal/indexer"
	"github.com/swanson/ruby-lsp/internal/searcher"
	"github.com/swanson/ruby-lsp/internal/storage"
	"github.com/swanson/ruby-lsp/internal/watcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "rbindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	config   *config.Config
	logger   *log.Logger
	index    *index.Index
	storage  storage.Storage // nil when running in memory
	indexer  *indexer.Indexer
	searcher *searcher.Searcher

	watchMu sync.Mutex
	watcher *watcher.Watcher
}

// NewServer creates a server with the bundled signature corpus (and the
// configured extra corpus) already indexed. A nil logger uses log.Default().
func NewServer(cfg *config.Config, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.Default()
	}

	var store storage.Storage
	if cfg.Storage.DBPath != "" {
		if cfg.Storage.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		s, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		store = s
	}

	idx := index.New(index.WithAncestorCacheSize(cfg.Index.CacheSize))
	ix := indexer.New(idx, store, logger)
	if _, err := ix.IndexCorpus(cfg.Corpus.Dir); err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("failed to index signature corpus: %w", err)
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		config:   cfg,
		logger:   logger,
		index:    idx,
		storage:  store,
		indexer:  ix,
		searcher: searcher.NewSearcher(idx, store),
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	return server.ServeStdio(s.mcp)
}

// Indexer returns the indexer backing the tools
func (s *Server) Indexer() *indexer.Indexer {
	return s.indexer
}

// Close stops the watcher and closes storage
func (s *Server) Close() error {
	s.watchMu.Lock()
	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}
	s.watchMu.Unlock()

	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}

// Watch starts watching root, replacing any previous watcher. The watcher
// runs until Close.
func (s *Server) Watch(root string) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}

	w, err := watcher.New(root, s.indexer, watcher.Options{
		Debounce: time.Duration(s.config.Watch.DebounceMs) * time.Millisecond,
		Include:  s.config.Workspace.Include,
		Exclude:  s.config.Workspace.Exclude,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(context.Background()); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w
	return nil
}

// indexerConfig maps the loaded configuration onto a workspace run
func (s *Server) indexerConfig() *indexer.Config {
	return &indexer.Config{
		Workers:   s.config.Index.Workers,
		BatchSize: s.config.Index.BatchSize,
		Include:   s.config.Workspace.Include,
		Exclude:   s.config.Workspace.Exclude,
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexWorkspaceTool(), s.handleIndexWorkspace)
	s.mcp.AddTool(findDefinitionTool(), s.handleFindDefinition)
	s.mcp.AddTool(listAncestorsTool(), s.handleListAncestors)
	s.mcp.AddTool(resolveMethodTool(), s.handleResolveMethod)
	s.mcp.AddTool(listMembersTool(), s.handleListMembers)
	s.mcp.AddTool(searchSymbolsTool(), s.handleSearchSymbols)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
