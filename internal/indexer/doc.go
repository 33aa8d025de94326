// Package indexer keeps an index.Index in sync with a workspace on disk.
//
// # Basic Usage
//
//	idx := index.New()
//	ix := indexer.New(idx, store, nil)
//
//	if _, err := ix.IndexCorpus(""); err != nil {
//	    return err
//	}
//	stats, err := ix.IndexWorkspace(ctx, "/path/to/app", nil)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("Indexed %d files in %v\n", stats.FilesIndexed, stats.Duration)
//
// # Pipeline
//
//  1. Discovery: walk the root for supported files, applying doublestar
//     include and exclude globs and skipping hidden directories
//  2. Hashing: xxhash of each file's content
//  3. Decision: skip files whose hash is already indexed, restore files
//     whose hash matches storage, parse the rest (parallel)
//  4. Apply: DeleteByFile followed by re-indexing, one file at a time
//  5. Persist: upsert the file row and replace its entry rows, one
//     transaction per batch
//
// Files that disappeared since the last run are removed from the index and
// from storage before the new run starts.
//
// # Concurrency
//
// Parsing runs in an errgroup bounded by Config.Workers. Index writes for a
// file are serialized so concurrent IndexFile calls from the watcher never
// double a file's entries. Only one IndexWorkspace call may run at a time;
// a second call fails with ErrIndexingInProgress.
//
// Cancellation is checked between files. A file already being applied is
// always completed.
//
// # Storage
//
// Storage is optional. Without it the index lives in memory and every
// restart parses the workspace again.
package indexer
