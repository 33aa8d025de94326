package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/swanson/ruby-lsp/internal/index"
	"github.com/swanson/ruby-lsp/internal/parser"
	"github.com/swanson/ruby-lsp/internal/signature"
	"github.com/swanson/ruby-lsp/internal/storage"
	"github.com/swanson/ruby-lsp/pkg/types"
)

// DefaultExclude lists workspace globs skipped unless a config overrides them
var DefaultExclude = []string{"vendor/**", "node_modules/**", "tmp/**", "log/**", "coverage/**"}

// Indexer coordinates the indexing pipeline: discover -> hash -> parse ->
// index -> persist. Files whose content hash is already in the index are
// skipped, and a cold index is restored from storage where hashes match.
type Indexer struct {
	index   *index.Index
	decls   *index.DeclarationIndexer
	parser  *parser.Parser
	storage storage.Storage // nil keeps the index in memory only
	logger  *log.Logger

	lock IndexLock

	// applyMu serializes per-file index writes and guards the fields below
	applyMu sync.Mutex
	hashes  map[string]uint64
	root    string
	project *storage.Project
}

// Config contains configuration for a workspace run
type Config struct {
	Workers   int      // Number of concurrent parsers (default: runtime.NumCPU())
	BatchSize int      // Number of files to commit per transaction (default: 20)
	Include   []string // Doublestar globs relative to the root; empty means every supported file
	Exclude   []string // Doublestar globs relative to the root
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() *Config {
	return &Config{
		Workers:   runtime.NumCPU(),
		BatchSize: 20,
		Exclude:   append([]string(nil), DefaultExclude...),
	}
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesIndexed   int
	FilesSkipped   int
	FilesRestored  int
	FilesRemoved   int
	FilesFailed    int
	EntriesCreated int
	Duration       time.Duration
	ErrorMessages  []string
}

// counters accumulates Statistics across batch goroutines
type counters struct {
	indexed, skipped, restored, failed, entries atomic.Int32

	mu       sync.Mutex
	messages []string
}

func (c *counters) fail(path string, err error) {
	c.failed.Add(1)
	c.mu.Lock()
	c.messages = append(c.messages, fmt.Sprintf("%s: %v", path, err))
	c.mu.Unlock()
}

// fileWork is one file read and hashed, ready to be applied to the index
type fileWork struct {
	path    string
	hash    uint64
	modTime time.Time
	size    int64

	skip   bool
	stored *storage.File      // set when the index can be restored from storage
	result *types.ParseResult // set when the file was parsed
}

// New creates a new Indexer writing into idx. store may be nil.
// A nil logger uses log.Default().
func New(idx *index.Index, store storage.Storage, logger *log.Logger) *Indexer {
	if logger == nil {
		logger = log.Default()
	}
	return &Indexer{
		index:   idx,
		decls:   index.NewDeclarationIndexer(idx, logger),
		parser:  parser.New(),
		storage: store,
		logger:  logger,
		hashes:  make(map[string]uint64),
	}
}

// Index returns the index this indexer writes into
func (ix *Indexer) Index() *index.Index {
	return ix.index
}

// Root returns the workspace root of the last run, or "" before the first
func (ix *Indexer) Root() string {
	ix.applyMu.Lock()
	defer ix.applyMu.Unlock()
	return ix.root
}

// Project returns the storage project of the last run, or nil
func (ix *Indexer) Project() *storage.Project {
	ix.applyMu.Lock()
	defer ix.applyMu.Unlock()
	return ix.project
}

// Indexing reports whether a workspace run is active
func (ix *Indexer) Indexing() bool {
	return ix.lock.Held()
}

// IndexCorpus indexes the bundled signature corpus plus every corpus file
// below extraDir, if set. Loading again replaces the previous corpus entries.
func (ix *Indexer) IndexCorpus(extraDir string) (int, error) {
	files, err := signature.LoadBundled()
	if err != nil {
		return 0, fmt.Errorf("failed to load bundled corpus: %w", err)
	}
	if extraDir != "" {
		extra, err := signature.LoadDir(extraDir)
		if err != nil {
			return 0, err
		}
		files = append(files, extra...)
	}

	ix.applyMu.Lock()
	defer ix.applyMu.Unlock()

	for _, f := range files {
		ix.index.DeleteByFile(f.FilePath)
	}
	added := signature.NewCorpusIndexer(ix.index, ix.logger).IndexAll(files)
	ix.logger.Printf("Indexed %d corpus entries from %d files", added, len(files))
	return added, nil
}

// IndexWorkspace indexes every supported file below rootPath
func (ix *Indexer) IndexWorkspace(ctx context.Context, rootPath string, config *Config) (*Statistics, error) {
	if !ix.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer ix.lock.Release()

	if config == nil {
		config = DefaultConfig()
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	startTime := time.Now()

	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", root)
	}

	var project *storage.Project
	if ix.storage != nil {
		project, err = ix.getOrCreateProject(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("failed to get or create project: %w", err)
		}
	}

	ix.applyMu.Lock()
	ix.root = root
	ix.project = project
	ix.applyMu.Unlock()

	files, err := discoverFiles(root, config)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	stats := &Statistics{ErrorMessages: make([]string, 0)}

	removed, err := ix.removeStale(ctx, root, project, files)
	if err != nil {
		return nil, fmt.Errorf("failed to remove deleted files: %w", err)
	}
	stats.FilesRemoved = removed

	c := &counters{}
	if err := ix.indexFiles(ctx, root, project, files, workers, config.BatchSize, c); err != nil {
		return nil, fmt.Errorf("failed to index files: %w", err)
	}

	stats.FilesIndexed = int(c.indexed.Load())
	stats.FilesSkipped = int(c.skipped.Load())
	stats.FilesRestored = int(c.restored.Load())
	stats.FilesFailed = int(c.failed.Load())
	stats.EntriesCreated = int(c.entries.Load())
	stats.ErrorMessages = append(stats.ErrorMessages, c.messages...)

	if project != nil {
		if err := ix.updateProjectStats(ctx, project); err != nil {
			return nil, fmt.Errorf("failed to update project stats: %w", err)
		}
	}

	stats.Duration = time.Since(startTime)
	ix.logger.Printf("Indexed %s: %d indexed, %d skipped, %d restored, %d removed, %d failed in %v",
		root, stats.FilesIndexed, stats.FilesSkipped, stats.FilesRestored, stats.FilesRemoved,
		stats.FilesFailed, stats.Duration)
	return stats, nil
}

// IndexFile re-indexes one file after a change and returns the number of
// entries it now contributes
func (ix *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	if !parser.Supported(abs) {
		return 0, fmt.Errorf("unsupported file type: %s", abs)
	}

	ix.applyMu.Lock()
	root, project := ix.root, ix.project
	ix.applyMu.Unlock()

	work, err := ix.prepare(ctx, project, abs)
	if err != nil {
		return 0, err
	}

	c := &counters{}
	if err := ix.commit(ctx, root, project, []*fileWork{work}, c); err != nil {
		return 0, err
	}
	if c.failed.Load() > 0 {
		return 0, errors.New(c.messages[0])
	}
	return len(ix.index.EntriesInFile(abs)), nil
}

// RemoveFile drops every entry declared in path from the index and storage
func (ix *Indexer) RemoveFile(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	ix.applyMu.Lock()
	root, project := ix.root, ix.project
	ix.applyMu.Unlock()

	return ix.removeFile(ctx, root, project, abs)
}

// RemoveTree removes every indexed file below dir and returns how many were
// removed
func (ix *Indexer) RemoveTree(ctx context.Context, dir string) (int, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	prefix := abs + string(filepath.Separator)

	ix.applyMu.Lock()
	root, project := ix.root, ix.project
	var under []string
	for path := range ix.hashes {
		if strings.HasPrefix(path, prefix) {
			under = append(under, path)
		}
	}
	ix.applyMu.Unlock()

	for _, path := range under {
		if err := ix.removeFile(ctx, root, project, path); err != nil {
			return 0, err
		}
	}
	return len(under), nil
}

func (ix *Indexer) removeFile(ctx context.Context, root string, project *storage.Project, abs string) error {
	ix.applyMu.Lock()
	ix.index.DeleteByFile(abs)
	delete(ix.hashes, abs)
	ix.applyMu.Unlock()

	// Storage is touched outside applyMu: a batch transaction holds the
	// only connection while it waits for applyMu.
	if ix.storage == nil || project == nil {
		return nil
	}
	file, err := ix.storage.GetFile(ctx, project.ID, relPath(root, abs))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return ix.storage.DeleteFile(ctx, file.ID)
}

// removeStale removes files known to the index or storage that are no
// longer present in the workspace
func (ix *Indexer) removeStale(ctx context.Context, root string, project *storage.Project, files []string) (int, error) {
	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f] = struct{}{}
	}

	stale := make(map[string]struct{})
	prefix := root + string(filepath.Separator)

	ix.applyMu.Lock()
	for path := range ix.hashes {
		if _, ok := present[path]; !ok && strings.HasPrefix(path, prefix) {
			stale[path] = struct{}{}
		}
	}
	ix.applyMu.Unlock()

	if ix.storage != nil && project != nil {
		stored, err := ix.storage.ListFiles(ctx, project.ID)
		if err != nil {
			return 0, err
		}
		for _, f := range stored {
			abs := filepath.Join(root, filepath.FromSlash(f.FilePath))
			if _, ok := present[abs]; !ok {
				stale[abs] = struct{}{}
			}
		}
	}

	for path := range stale {
		if err := ix.removeFile(ctx, root, project, path); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// getOrCreateProject retrieves an existing project or creates a new one
func (ix *Indexer) getOrCreateProject(ctx context.Context, rootPath string) (*storage.Project, error) {
	project, err := ix.storage.GetProject(ctx, rootPath)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	project = &storage.Project{
		RootPath:     rootPath,
		IndexVersion: storage.CurrentSchemaVersion,
	}
	if err := ix.storage.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// discoverFiles finds every supported file below root, honoring the
// include and exclude globs. Hidden directories are skipped.
func discoverFiles(root string, config *Config) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel := relPath(root, path)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || matchAny(config.Exclude, rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !parser.Supported(path) {
			return nil
		}
		if matchAny(config.Exclude, rel) {
			return nil
		}
		if len(config.Include) > 0 && !matchAny(config.Include, rel) {
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// relPath returns path relative to root with forward slashes. Paths outside
// root, or an empty root, are returned unchanged.
func relPath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// indexFiles parses files concurrently and commits them in batches
func (ix *Indexer) indexFiles(ctx context.Context, root string, project *storage.Project, files []string, workers, batchSize int, c *counters) error {
	// Create worker pool with semaphore
	semaphore := make(chan struct{}, workers)

	if batchSize <= 0 {
		batchSize = 20
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < len(files); i += batchSize {
		end := i + batchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[i:end]

		g.Go(func() error {
			return ix.indexBatch(gctx, root, project, batch, semaphore, c)
		})
	}

	return g.Wait()
}

// indexBatch prepares a batch of files under the semaphore, then applies
// them within one transaction
func (ix *Indexer) indexBatch(ctx context.Context, root string, project *storage.Project, files []string,
	semaphore chan struct{}, c *counters) error {

	work := make([]*fileWork, 0, len(files))
	for _, path := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case semaphore <- struct{}{}:
			// Acquire semaphore
		}

		w, err := ix.prepare(ctx, project, path)
		<-semaphore // Release semaphore

		if err != nil {
			c.fail(path, err)
			continue
		}
		work = append(work, w)
	}

	return ix.commit(ctx, root, project, work, c)
}

// prepare reads and hashes one file and decides how it will be applied:
// skipped, restored from storage or parsed
func (ix *Indexer) prepare(ctx context.Context, project *storage.Project, path string) (*fileWork, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	w := &fileWork{
		path:    path,
		hash:    xxhash.Sum64(content),
		modTime: info.ModTime(),
		size:    info.Size(),
	}

	ix.applyMu.Lock()
	known, seen := ix.hashes[path]
	root := ix.root
	ix.applyMu.Unlock()

	if seen && known == w.hash {
		w.skip = true
		return w, nil
	}

	if !seen && ix.storage != nil && project != nil {
		stored, err := ix.storage.GetFile(ctx, project.ID, relPath(root, path))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if err == nil && stored.ContentHash == w.hash {
			w.stored = stored
			return w, nil
		}
	}

	w.result = ix.parser.Parse(path, content)
	for _, pe := range w.result.Errors {
		ix.logger.Printf("Warning: %s:%d: %s", path, pe.Line, pe.Message)
	}
	return w, nil
}

// commit applies prepared files to the index and, with storage configured,
// persists them in one transaction
func (ix *Indexer) commit(ctx context.Context, root string, project *storage.Project, work []*fileWork, c *counters) error {
	if len(work) == 0 {
		return nil
	}

	var store storage.Storage
	var tx storage.Tx
	if ix.storage != nil && project != nil {
		var err error
		tx, err = ix.storage.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		store = tx
	}

	for _, w := range work {
		if err := ix.apply(ctx, store, root, project, w, c); err != nil {
			c.fail(w.path, err)
		}
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	return nil
}

// apply swaps the entries of one file in the index. The delete and re-add
// happen under applyMu, so concurrent runs never double a file's entries.
func (ix *Indexer) apply(ctx context.Context, store storage.Storage, root string, project *storage.Project, w *fileWork, c *counters) error {
	ix.applyMu.Lock()
	defer ix.applyMu.Unlock()

	switch {
	case w.skip:
		c.skipped.Add(1)
		return nil

	case w.stored != nil && store != nil:
		rows, err := store.ListEntriesByFile(ctx, w.stored.ID)
		if err != nil {
			return fmt.Errorf("failed to load stored entries: %w", err)
		}
		ix.index.DeleteByFile(w.path)
		n, err := restoreEntries(ix.index, w.path, rows)
		if err != nil {
			ix.index.DeleteByFile(w.path)
			return fmt.Errorf("failed to restore entries: %w", err)
		}
		ix.hashes[w.path] = w.hash
		c.restored.Add(1)
		c.entries.Add(int32(n))
		return nil
	}

	if w.result == nil {
		// Restore was planned but storage is unavailable now
		content, err := os.ReadFile(w.path)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		w.result = ix.parser.Parse(w.path, content)
	}

	ix.index.DeleteByFile(w.path)
	n := ix.decls.IndexDeclarations(w.path, w.result.Declarations)
	ix.hashes[w.path] = w.hash

	if store != nil {
		if err := ix.persist(ctx, store, root, project, w); err != nil {
			// retried on the next run instead of skipped as unchanged
			delete(ix.hashes, w.path)
			return err
		}
	}

	c.indexed.Add(1)
	c.entries.Add(int32(n))
	return nil
}

// persist replaces the stored rows of one file with the index's current entries
func (ix *Indexer) persist(ctx context.Context, store storage.Storage, root string, project *storage.Project, w *fileWork) error {
	file := &storage.File{
		ProjectID:   project.ID,
		FilePath:    relPath(root, w.path),
		ContentHash: w.hash,
		ModTime:     w.modTime,
		SizeBytes:   w.size,
	}
	if len(w.result.Errors) > 0 {
		msg := w.result.Errors[0].Message
		file.ParseError = &msg
	}

	if err := store.UpsertFile(ctx, file); err != nil {
		return err
	}
	if err := store.DeleteEntriesByFile(ctx, file.ID); err != nil {
		return discardFile(ctx, store, file, fmt.Errorf("failed to delete old entries: %w", err))
	}
	if err := store.InsertEntries(ctx, file.ID, toRows(ix.index.EntriesInFile(w.path))); err != nil {
		return discardFile(ctx, store, file, fmt.Errorf("failed to store entries: %w", err))
	}
	return nil
}

// discardFile drops a file row whose entries could not be written, so a
// later run never restores it from a hash that matches but partial entries
func discardFile(ctx context.Context, store storage.Storage, file *storage.File, cause error) error {
	if err := store.DeleteFile(ctx, file.ID); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to discard file row: %w", err))
	}
	return cause
}

// updateProjectStats updates the project's file and entry counts
func (ix *Indexer) updateProjectStats(ctx context.Context, project *storage.Project) error {
	status, err := ix.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return err
	}

	project.TotalFiles = status.FilesCount
	project.TotalEntries = status.EntriesCount
	project.LastIndexedAt = time.Now()

	return ix.storage.UpdateProject(ctx, project)
}
