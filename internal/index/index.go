package index

import (
	"errors"
	"slices"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultAncestorCacheSize is the number of linearized ancestor lists kept
const DefaultAncestorCacheSize = 4096

var (
	// ErrNamespaceNotFound is returned when a name has no class or module entries
	ErrNamespaceNotFound = errors.New("namespace not found")
)

// Stats summarizes the contents of an Index
type Stats struct {
	Names      int
	Entries    int
	Files      int
	Namespaces int
	Methods    int
}

// Index maps fully qualified names to every entry declared under that name.
//
// A name may have many entries because classes and modules can be reopened
// in any number of files. Add appends and never replaces. Callers
// re-indexing a file must call DeleteByFile for it first; the index does
// not detect stale entries.
//
// Writers hold the lock for the duration of a single call. Readers may run
// concurrently with each other and may observe the empty state between a
// DeleteByFile and the following re-add of the same file.
type Index struct {
	mu sync.RWMutex

	entries map[string][]Entry
	byID    map[EntryID]Entry
	files   map[string][]EntryID
	members map[string][]EntryID // owner name -> method ids

	nextID     EntryID
	generation uint64

	ancestors *lru.Cache[string, []string]
}

// Option configures an Index
type Option func(*options)

type options struct {
	ancestorCacheSize int
}

// WithAncestorCacheSize sets how many ancestor lists are cached
func WithAncestorCacheSize(size int) Option {
	return func(o *options) {
		o.ancestorCacheSize = size
	}
}

// New creates an empty Index
func New(opts ...Option) *Index {
	o := options{ancestorCacheSize: DefaultAncestorCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ancestorCacheSize <= 0 {
		o.ancestorCacheSize = DefaultAncestorCacheSize
	}

	// lru.New only fails for non-positive sizes
	cache, _ := lru.New[string, []string](o.ancestorCacheSize)

	return &Index{
		entries:   make(map[string][]Entry),
		byID:      make(map[EntryID]Entry),
		files:     make(map[string][]EntryID),
		members:   make(map[string][]EntryID),
		ancestors: cache,
	}
}

// Add appends an entry to the bucket of its name and returns its handle.
// An entry must be added at most once.
func (idx *Index) Add(e Entry) EntryID {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.nextID++
	id := idx.nextID
	e.base().id = id

	name := e.Name()
	idx.entries[name] = append(idx.entries[name], e)
	idx.byID[id] = e
	idx.files[e.FilePath()] = append(idx.files[e.FilePath()], id)

	if m, ok := e.(*Method); ok {
		idx.members[m.ownerName] = append(idx.members[m.ownerName], id)
	}

	idx.invalidateLocked()
	return id
}

// Lookup returns every entry stored under name, in insertion order.
// Matching is exact.
func (idx *Index) Lookup(name string) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.Clone(idx.entries[name])
}

// Get returns the entry with the given handle
func (idx *Index) Get(id EntryID) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.byID[id]
	return e, ok
}

// Owner follows a method's owner handle. ok is false for top-level methods
// and for owners that have been deleted.
func (idx *Index) Owner(m *Method) (NamespaceEntry, bool) {
	if m.owner == 0 {
		return nil, false
	}
	e, ok := idx.Get(m.owner)
	if !ok {
		return nil, false
	}
	ns, ok := e.(NamespaceEntry)
	return ns, ok
}

// AttachMixin appends op to the most recent namespace entry named name that
// was declared in filePath.
func (idx *Index) AttachMixin(name, filePath string, op MixinOperation) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket := idx.entries[name]
	for i := len(bucket) - 1; i >= 0; i-- {
		ns, ok := bucket[i].(NamespaceEntry)
		if !ok || ns.FilePath() != filePath {
			continue
		}
		ns.namespace().appendMixin(op)
		idx.invalidateLocked()
		return nil
	}
	return ErrNamespaceNotFound
}

// DeleteByFile removes every entry declared in path from every bucket and
// returns how many were removed. Buckets left empty are dropped.
func (idx *Index) DeleteByFile(path string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids, ok := idx.files[path]
	if !ok {
		return 0
	}

	names := make(map[string]struct{})
	owners := make(map[string]struct{})
	for _, id := range ids {
		e := idx.byID[id]
		names[e.Name()] = struct{}{}
		if m, ok := e.(*Method); ok {
			owners[m.ownerName] = struct{}{}
		}
		delete(idx.byID, id)
	}

	for name := range names {
		kept := slices.DeleteFunc(idx.entries[name], func(e Entry) bool {
			return e.FilePath() == path
		})
		if len(kept) == 0 {
			delete(idx.entries, name)
		} else {
			idx.entries[name] = kept
		}
	}

	for owner := range owners {
		kept := slices.DeleteFunc(idx.members[owner], func(id EntryID) bool {
			_, alive := idx.byID[id]
			return !alive
		})
		if len(kept) == 0 {
			delete(idx.members, owner)
		} else {
			idx.members[owner] = kept
		}
	}

	delete(idx.files, path)
	idx.invalidateLocked()
	return len(ids)
}

// EntriesInFile returns the entries declared in path in insertion order
func (idx *Index) EntriesInFile(path string) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := idx.files[path]
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.byID[id])
	}
	return out
}

// HasFile reports whether any entry was indexed from path
func (idx *Index) HasFile(path string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.files[path]
	return ok
}

// Files returns the indexed file paths, sorted
func (idx *Index) Files() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]string, 0, len(idx.files))
	for path := range idx.files {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Names returns every indexed name, sorted
func (idx *Index) Names() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]string, 0, len(idx.entries))
	for name := range idx.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of entries
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// Generation changes on every mutation. Callers caching query results use
// it as part of their cache key.
func (idx *Index) Generation() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.generation
}

// Stats returns entry counts
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	st := Stats{
		Names:   len(idx.entries),
		Entries: len(idx.byID),
		Files:   len(idx.files),
	}
	for _, e := range idx.byID {
		if _, ok := e.(*Method); ok {
			st.Methods++
		} else {
			st.Namespaces++
		}
	}
	return st
}

func (idx *Index) invalidateLocked() {
	idx.generation++
	idx.ancestors.Purge()
}
