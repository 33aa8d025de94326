package storage

import (
	"context"
	"time"

	"github.com/swanson/ruby-lsp/pkg/types"
)

// Storage defines the interface for persisting indexed entries so a
// workspace can be restored without re-parsing unchanged files
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, rootPath string) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, projectID int64, filePath string) (*File, error)
	DeleteFile(ctx context.Context, fileID int64) error
	ListFiles(ctx context.Context, projectID int64) ([]*File, error)

	// Entry operations
	InsertEntries(ctx context.Context, fileID int64, entries []*Entry) error
	ListEntriesByFile(ctx context.Context, fileID int64) ([]*Entry, error)
	DeleteEntriesByFile(ctx context.Context, fileID int64) error
	SearchEntries(ctx context.Context, projectID int64, query string, limit int) ([]*EntryMatch, error)

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project represents an indexed workspace
type Project struct {
	ID            int64
	RootPath      string
	TotalFiles    int
	TotalEntries  int
	IndexVersion  string
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File represents a tracked source file
type File struct {
	ID            int64
	ProjectID     int64
	FilePath      string // Relative to project root
	ContentHash   uint64 // xxhash of the file content
	ModTime       time.Time
	SizeBytes     int64
	ParseError    *string // Nullable
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Entry is one persisted index entry. Methods refer to their owner by its
// Seq within the same file.
type Entry struct {
	ID          int64
	FileID      int64
	Seq         int
	Kind        string
	Name        string
	Nesting     []string
	ParentClass string
	OwnerSeq    *int // Nullable, methods only
	OwnerName   string
	Visibility  string
	Parameters  []types.Parameter
	Comments    []string
	Location    types.Location
	Mixins      []Mixin
	CreatedAt   time.Time
}

// Mixin is one persisted mixin operation in declaration order
type Mixin struct {
	Kind   types.MixinKind
	Module string
}

// EntryMatch is a full-text search hit
type EntryMatch struct {
	Entry    *Entry
	FilePath string
	Rank     float64 // BM25, lower is better
}

// ProjectStatus contains statistics about an indexed project
type ProjectStatus struct {
	Project       *Project
	FilesCount    int
	EntriesCount  int
	MixinsCount   int
	IndexSizeMB   float64
	LastIndexedAt time.Time
	Health        HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible bool
	FTSIndexesBuilt    bool
}
