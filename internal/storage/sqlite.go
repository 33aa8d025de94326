package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/swanson/ruby-lsp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Project operations

const projectColumns = `id, root_path, total_files, total_entries, index_version,
		       last_indexed_at, created_at, updated_at`

// createProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	if _, err := s.getProjectWithQuerier(ctx, q, project.RootPath); err == nil {
		return fmt.Errorf("project %s: %w", project.RootPath, ErrAlreadyExists)
	}

	query := `
		INSERT INTO projects (root_path, total_files, total_entries, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		project.RootPath, project.TotalFiles, project.TotalEntries,
		project.IndexVersion, now, now)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	project.ID = id
	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateProject(ctx context.Context, project *Project) error {
	return s.createProjectWithQuerier(ctx, s.querier(), project)
}

func scanProject(row rowScanner) (*Project, error) {
	var project Project
	var lastIndexedAt sql.NullTime
	err := row.Scan(
		&project.ID, &project.RootPath, &project.TotalFiles, &project.TotalEntries,
		&project.IndexVersion, &lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}
	return &project, nil
}

// getProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, rootPath string) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE root_path = ?`
	return scanProject(q.QueryRowContext(ctx, query, rootPath))
}

func (s *SQLiteStorage) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), rootPath)
}

// getProjectByID retrieves a project by ID
func (s *SQLiteStorage) getProjectByID(ctx context.Context, q querier, projectID int64) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`
	return scanProject(q.QueryRowContext(ctx, query, projectID))
}

// updateProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) updateProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		UPDATE projects
		SET total_files = ?, total_entries = ?, index_version = ?,
		    last_indexed_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		project.TotalFiles, project.TotalEntries, project.IndexVersion,
		project.LastIndexedAt, now, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateProject(ctx context.Context, project *Project) error {
	return s.updateProjectWithQuerier(ctx, s.querier(), project)
}

// File operations

const fileColumns = `id, project_id, file_path, content_hash, mod_time,
		       size_bytes, parse_error, last_indexed_at, created_at, updated_at`

// encodeHash stores the 64-bit hash as a fixed-width blob so the high bit survives
func encodeHash(h uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h)
	return buf
}

func decodeHash(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func scanFile(row rowScanner) (*File, error) {
	var file File
	var hash []byte
	var modTime, lastIndexedAt sql.NullTime
	var sizeBytes sql.NullInt64
	var parseError sql.NullString
	err := row.Scan(
		&file.ID, &file.ProjectID, &file.FilePath, &hash, &modTime,
		&sizeBytes, &parseError, &lastIndexedAt, &file.CreatedAt, &file.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	file.ContentHash = decodeHash(hash)
	file.ModTime = modTime.Time
	file.SizeBytes = sizeBytes.Int64
	file.LastIndexedAt = lastIndexedAt.Time
	if parseError.Valid {
		file.ParseError = &parseError.String
	}
	return &file, nil
}

// upsertFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (project_id, file_path, content_hash, mod_time, size_bytes, parse_error, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			mod_time = excluded.mod_time,
			size_bytes = excluded.size_bytes,
			parse_error = excluded.parse_error,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		file.ProjectID, file.FilePath, encodeHash(file.ContentHash),
		file.ModTime, file.SizeBytes, file.ParseError, now, now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	file.LastIndexedAt = now
	file.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

// getFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, projectID int64, filePath string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? AND file_path = ?`
	return scanFile(q.QueryRowContext(ctx, query, projectID, filePath))
}

func (s *SQLiteStorage) GetFile(ctx context.Context, projectID int64, filePath string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), projectID, filePath)
}

// deleteFileWithQuerier removes the file and, by cascade, its entries and mixins
func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	query := `DELETE FROM files WHERE id = ?`
	_, err := q.ExecContext(ctx, query, fileID)
	return err
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), fileID)
}

// listFilesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier, projectID int64) ([]*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? ORDER BY file_path`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), projectID)
}

// Entry operations

const entryColumns = `e.id, e.file_id, e.seq, e.kind, e.name, e.nesting, e.parent_class,
		       e.owner_seq, e.owner_name, e.visibility, e.parameters, e.comments,
		       e.start_line, e.start_col, e.end_line, e.end_col, e.created_at`

// insertEntriesWithQuerier writes the entries of one file along with their mixins
func (s *SQLiteStorage) insertEntriesWithQuerier(ctx context.Context, q querier, fileID int64, entries []*Entry) error {
	entryQuery := `
		INSERT INTO entries (file_id, seq, kind, name, nesting, parent_class, owner_seq, owner_name,
		                     visibility, parameters, comments, start_line, start_col, end_line, end_col, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	mixinQuery := `INSERT INTO mixins (entry_id, position, kind, module_name) VALUES (?, ?, ?, ?)`

	now := time.Now()
	for _, entry := range entries {
		nesting, err := json.Marshal(entry.Nesting)
		if err != nil {
			return fmt.Errorf("failed to encode nesting of %s: %w", entry.Name, err)
		}
		var params []byte
		if len(entry.Parameters) > 0 {
			if params, err = json.Marshal(entry.Parameters); err != nil {
				return fmt.Errorf("failed to encode parameters of %s: %w", entry.Name, err)
			}
		}
		var ownerSeq sql.NullInt64
		if entry.OwnerSeq != nil {
			ownerSeq = sql.NullInt64{Int64: int64(*entry.OwnerSeq), Valid: true}
		}

		loc := entry.Location
		result, err := q.ExecContext(ctx, entryQuery,
			fileID, entry.Seq, entry.Kind, entry.Name, string(nesting), entry.ParentClass,
			ownerSeq, entry.OwnerName, entry.Visibility, string(params), strings.Join(entry.Comments, "\n"),
			loc.StartLine, loc.StartColumn, loc.EndLine, loc.EndColumn, now)
		if err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", entry.Name, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		entry.ID = id
		entry.FileID = fileID
		entry.CreatedAt = now

		for i, m := range entry.Mixins {
			if _, err := q.ExecContext(ctx, mixinQuery, id, i, string(m.Kind), m.Module); err != nil {
				return fmt.Errorf("failed to insert mixin %s on %s: %w", m.Module, entry.Name, err)
			}
		}
	}
	return nil
}

func (s *SQLiteStorage) InsertEntries(ctx context.Context, fileID int64, entries []*Entry) error {
	return s.insertEntriesWithQuerier(ctx, s.querier(), fileID, entries)
}

func scanEntry(row rowScanner, extra ...interface{}) (*Entry, error) {
	var entry Entry
	var nesting string
	var parentClass, ownerName, visibility, params, comments sql.NullString
	var ownerSeq sql.NullInt64
	loc := &entry.Location

	dest := []interface{}{
		&entry.ID, &entry.FileID, &entry.Seq, &entry.Kind, &entry.Name, &nesting, &parentClass,
		&ownerSeq, &ownerName, &visibility, &params, &comments,
		&loc.StartLine, &loc.StartColumn, &loc.EndLine, &loc.EndColumn, &entry.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(nesting), &entry.Nesting); err != nil {
		return nil, fmt.Errorf("corrupt nesting for entry %d: %w", entry.ID, err)
	}
	if params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &entry.Parameters); err != nil {
			return nil, fmt.Errorf("corrupt parameters for entry %d: %w", entry.ID, err)
		}
	}
	if ownerSeq.Valid {
		seq := int(ownerSeq.Int64)
		entry.OwnerSeq = &seq
	}
	if comments.String != "" {
		entry.Comments = strings.Split(comments.String, "\n")
	}
	entry.ParentClass = parentClass.String
	entry.OwnerName = ownerName.String
	entry.Visibility = visibility.String
	return &entry, nil
}

// listEntriesByFileWithQuerier returns entries in Seq order with their mixins attached
func (s *SQLiteStorage) listEntriesByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries e WHERE e.file_id = ? ORDER BY e.seq`
	rows, err := q.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0)
	byID := make(map[int64]*Entry)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		entries = append(entries, entry)
		byID[entry.ID] = entry
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	mixinQuery := `
		SELECT m.entry_id, m.kind, m.module_name
		FROM mixins m
		JOIN entries e ON m.entry_id = e.id
		WHERE e.file_id = ?
		ORDER BY m.entry_id, m.position
	`
	mrows, err := q.QueryContext(ctx, mixinQuery, fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = mrows.Close() }()

	for mrows.Next() {
		var entryID int64
		var kind, module string
		if err := mrows.Scan(&entryID, &kind, &module); err != nil {
			return nil, err
		}
		if entry, ok := byID[entryID]; ok {
			entry.Mixins = append(entry.Mixins, Mixin{Kind: types.MixinKind(kind), Module: module})
		}
	}
	return entries, mrows.Err()
}

func (s *SQLiteStorage) ListEntriesByFile(ctx context.Context, fileID int64) ([]*Entry, error) {
	return s.listEntriesByFileWithQuerier(ctx, s.querier(), fileID)
}

// deleteEntriesByFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteEntriesByFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	query := `DELETE FROM entries WHERE file_id = ?`
	_, err := q.ExecContext(ctx, query, fileID)
	return err
}

func (s *SQLiteStorage) DeleteEntriesByFile(ctx context.Context, fileID int64) error {
	return s.deleteEntriesByFileWithQuerier(ctx, s.querier(), fileID)
}

// ftsQuery turns free text into an FTS5 prefix query over word tokens.
// Operators in the input are never passed through.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+w+`"*`)
	}
	return strings.Join(terms, " ")
}

// searchEntriesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) searchEntriesWithQuerier(ctx context.Context, q querier, projectID int64, query string, limit int) ([]*EntryMatch, error) {
	match := ftsQuery(query)
	if match == "" {
		return []*EntryMatch{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	// In FTS5, rank is the BM25 score; lower values are better matches.
	sqlQuery := `
		SELECT ` + entryColumns + `, f.file_path, entries_fts.rank
		FROM entries_fts
		JOIN entries e ON e.id = entries_fts.rowid
		JOIN files f ON f.id = e.file_id
		WHERE entries_fts MATCH ? AND f.project_id = ?
		ORDER BY entries_fts.rank
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, sqlQuery, match, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]*EntryMatch, 0)
	for rows.Next() {
		var m EntryMatch
		entry, err := scanEntry(rows, &m.FilePath, &m.Rank)
		if err != nil {
			return nil, err
		}
		m.Entry = entry
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

func (s *SQLiteStorage) SearchEntries(ctx context.Context, projectID int64, query string, limit int) ([]*EntryMatch, error) {
	return s.searchEntriesWithQuerier(ctx, s.querier(), projectID, query, limit)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, projectID int64) (*ProjectStatus, error) {
	project, err := s.getProjectByID(ctx, q, projectID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:       project,
		LastIndexedAt: project.LastIndexedAt,
	}

	// Count files
	err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE project_id = ?", projectID).Scan(&status.FilesCount)
	if err != nil {
		return nil, err
	}

	// Count entries
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries e
		JOIN files f ON e.file_id = f.id
		WHERE f.project_id = ?
	`, projectID).Scan(&status.EntriesCount)
	if err != nil {
		return nil, err
	}

	// Count mixins
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mixins m
		JOIN entries e ON m.entry_id = e.id
		JOIN files f ON e.file_id = f.id
		WHERE f.project_id = ?
	`, projectID).Scan(&status.MixinsCount)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	var ftsName string
	ftsErr := q.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='entries_fts'").Scan(&ftsName)

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		FTSIndexesBuilt:    ftsErr == nil,
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), projectID)
}

// Transaction implementations delegate to the storage helpers with the tx querier

func (t *sqliteTx) CreateProject(ctx context.Context, project *Project) error {
	return t.storage.createProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.querier(), rootPath)
}

func (t *sqliteTx) UpdateProject(ctx context.Context, project *Project) error {
	return t.storage.updateProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, projectID int64, filePath string) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.querier(), projectID, filePath)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) InsertEntries(ctx context.Context, fileID int64, entries []*Entry) error {
	return t.storage.insertEntriesWithQuerier(ctx, t.querier(), fileID, entries)
}

func (t *sqliteTx) ListEntriesByFile(ctx context.Context, fileID int64) ([]*Entry, error) {
	return t.storage.listEntriesByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) DeleteEntriesByFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteEntriesByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) SearchEntries(ctx context.Context, projectID int64, query string, limit int) ([]*EntryMatch, error) {
	return t.storage.searchEntriesWithQuerier(ctx, t.querier(), projectID, query, limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) Close() error {
	return fmt.Errorf("cannot close transaction, use Commit or Rollback")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}
