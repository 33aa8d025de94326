// Package storage provides SQLite-based persistence for index entries.
//
// The storage layer manages:
//   - Project metadata
//   - File information and content hashes
//   - Entries and their mixin operations
//   - Full-text search over entry names and comments
//
// The in-memory index is the source of truth while the server runs. Storage
// lets a restart skip re-parsing files whose content hash has not changed.
//
// # Database Schema
//
// Tables:
//   - projects: Workspace roots and totals
//   - files: Relative paths and xxhash content hashes
//   - entries: Namespaces, singleton classes and methods, ordered by seq
//   - mixins: Include, prepend and extend operations per entry
//   - entries_fts: FTS5 index over entry names and comments
//
// Methods reference their owner by seq within the same file, so a file's
// entries can be rebuilt without a second lookup.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage(".rbindex/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.UpsertFile(ctx, file); err != nil {
//	    return err
//	}
//	if err := tx.DeleteEntriesByFile(ctx, file.ID); err != nil {
//	    return err
//	}
//	if err := tx.InsertEntries(ctx, file.ID, entries); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Build Tags
//
// Pure Go build (default):
//
//   - Uses modernc.org/sqlite
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3
//
//   - Needs the sqlite_fts5 tag for the search table
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo,sqlite_fts5" ./...
package storage
