package searcher

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hbollon/go-edlib"

	"github.com/swanson/ruby-lsp/internal/index"
	"github.com/swanson/ruby-lsp/internal/storage"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid SearchMode = "hybrid" // Name + full-text with RRF
	SearchModeName   SearchMode = "name"   // Exact, prefix and fuzzy name matching only
	SearchModeText   SearchMode = "text"   // BM25 over names and comments only
)

// MatchKind tells how a result matched the query
type MatchKind string

const (
	MatchExact  MatchKind = "exact"
	MatchPrefix MatchKind = "prefix"
	MatchFuzzy  MatchKind = "fuzzy"
	MatchText   MatchKind = "text"
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	Kinds       []string // Entry kinds to keep (class, module, singleton_class, method); empty keeps all
	ProjectID   int64    // Storage project for full-text search
	UseCache    bool
	MinFuzzy    float32 // Jaro-Winkler threshold for fuzzy matches (default 0.85)
	RRFConstant float64 // k value for Reciprocal Rank Fusion (default 60)
}

// Result is one matched name with the entries stored under it
type Result struct {
	Name    string
	Rank    int
	Score   float64
	Match   MatchKind
	Entries []index.Entry
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []Result
	TotalResults int
	SearchMode   SearchMode
	Duration     time.Duration
	CacheHit     bool
	NameResults  int
	TextResults  int
}

// Searcher answers symbol queries against an index, optionally fused with
// full-text search over persisted entries
type Searcher struct {
	index   *index.Index
	storage storage.Storage // nil disables text search
	cache   *lru.Cache[uint64, *SearchResponse]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(idx *index.Index, store storage.Storage) *Searcher {
	// Create LRU cache with 1000 entry limit
	cache, err := lru.New[uint64, *SearchResponse](1000)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		index:   idx,
		storage: store,
		cache:   cache,
	}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	// The index generation is part of the key, so any mutation makes
	// earlier entries unreachable
	key := computeQueryHash(req, s.index.Generation())

	if req.UseCache {
		if cached, ok := s.checkCache(key); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error

	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeName:
		response = s.nameSearch(req)
	case SearchModeText:
		response, err = s.textSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(key, response)
	}

	return response, nil
}

// rankedName is a name with its relevance score before entries are attached
type rankedName struct {
	name  string
	score float64
	match MatchKind
}

// matchNames scores every indexed name against the query
func (s *Searcher) matchNames(req SearchRequest) []rankedName {
	query := strings.TrimPrefix(req.Query, "::")
	lowerQuery := strings.ToLower(query)

	var ranked []rankedName
	for _, name := range s.index.Names() {
		if index.IsSingletonName(name) {
			continue
		}
		simple := index.SimpleName(name)
		lowerName := strings.ToLower(name)
		lowerSimple := strings.ToLower(simple)

		switch {
		case name == query || simple == query:
			ranked = append(ranked, rankedName{name: name, score: 3, match: MatchExact})
		case lowerName == lowerQuery || lowerSimple == lowerQuery:
			ranked = append(ranked, rankedName{name: name, score: 2.5, match: MatchExact})
		case strings.HasPrefix(lowerName, lowerQuery) || strings.HasPrefix(lowerSimple, lowerQuery):
			// Shorter names are closer to what was typed
			closeness := float64(len(lowerQuery)) / float64(len(lowerSimple)+1)
			ranked = append(ranked, rankedName{name: name, score: 2 + closeness/2, match: MatchPrefix})
		default:
			sim, err := edlib.StringsSimilarity(lowerQuery, lowerSimple, edlib.JaroWinkler)
			if err == nil && sim >= req.MinFuzzy {
				ranked = append(ranked, rankedName{name: name, score: float64(sim), match: MatchFuzzy})
			}
		}
	}

	sortRankedNames(ranked)
	return ranked
}

// nameSearch performs only exact, prefix and fuzzy name matching
func (s *Searcher) nameSearch(req SearchRequest) *SearchResponse {
	ranked := s.matchNames(req)
	results := s.fetchResults(ranked, req)
	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		NameResults:  len(ranked),
	}
}

// textNames runs the full-text query and returns matched names in BM25 order
func (s *Searcher) textNames(ctx context.Context, req SearchRequest) ([]rankedName, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("text search requires storage")
	}
	matches, err := s.storage.SearchEntries(ctx, req.ProjectID, req.Query, req.Limit*2)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(matches))
	ranked := make([]rankedName, 0, len(matches))
	for _, m := range matches {
		name := m.Entry.Name
		if seen[name] || index.IsSingletonName(name) {
			continue
		}
		seen[name] = true
		ranked = append(ranked, rankedName{name: name, score: -m.Rank, match: MatchText})
	}
	return ranked, nil
}

// textSearch performs only BM25 text search
func (s *Searcher) textSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	ranked, err := s.textNames(ctx, req)
	if err != nil {
		return nil, err
	}
	results := s.fetchResults(ranked, req)
	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		TextResults:  len(ranked),
	}, nil
}

// hybridSearch combines name and text search using Reciprocal Rank Fusion.
// Without storage it is a name search.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	nameRanked := s.matchNames(req)
	if s.storage == nil {
		results := s.fetchResults(nameRanked, req)
		return &SearchResponse{Results: results, TotalResults: len(results), NameResults: len(nameRanked)}, nil
	}

	textRanked, err := s.textNames(ctx, req)
	if err != nil {
		return nil, err
	}

	fused := applyRRF(nameRanked, textRanked, req.RRFConstant)
	results := s.fetchResults(fused, req)
	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		NameResults:  len(nameRanked),
		TextResults:  len(textRanked),
	}, nil
}

// applyRRF applies Reciprocal Rank Fusion to combine name and text results
// RRF formula: RRF(d) = Σ 1/(k + rank(d))
func applyRRF(nameResults, textResults []rankedName, k float64) []rankedName {
	if k == 0 {
		k = 60 // Default RRF constant
	}

	scores := make(map[string]float64)
	kinds := make(map[string]MatchKind)

	for rank, r := range nameResults {
		scores[r.name] += 1.0 / (k + float64(rank+1))
		kinds[r.name] = r.match
	}
	for rank, r := range textResults {
		scores[r.name] += 1.0 / (k + float64(rank+1))
		if _, ok := kinds[r.name]; !ok {
			kinds[r.name] = MatchText
		}
	}

	results := make([]rankedName, 0, len(scores))
	for name, score := range scores {
		results = append(results, rankedName{name: name, score: score, match: kinds[name]})
	}

	sortRankedNames(results)
	return results
}

// fetchResults attaches index entries to ranked names, applying the kind
// filter and the limit. Names no longer in the index are skipped.
func (s *Searcher) fetchResults(ranked []rankedName, req SearchRequest) []Result {
	results := make([]Result, 0, min(req.Limit, len(ranked)))

	for _, rn := range ranked {
		if len(results) == req.Limit {
			break
		}

		entries := s.index.Lookup(rn.name)
		if len(req.Kinds) > 0 {
			entries = slices.DeleteFunc(entries, func(e index.Entry) bool {
				return !slices.Contains(req.Kinds, index.Kind(e))
			})
		}
		if len(entries) == 0 {
			continue
		}

		results = append(results, Result{
			Name:    rn.name,
			Rank:    len(results) + 1,
			Score:   rn.score,
			Match:   rn.match,
			Entries: entries,
		})
	}

	return results
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}

	if req.Limit <= 0 {
		req.Limit = 10 // Default limit
	}

	if req.Limit > 100 {
		req.Limit = 100 // Max limit
	}

	if req.Mode == "" {
		req.Mode = SearchModeHybrid // Default mode
	}

	if req.MinFuzzy == 0 {
		req.MinFuzzy = 0.85
	}

	if req.RRFConstant == 0 {
		req.RRFConstant = 60 // Default k value
	}

	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(key uint64) (*SearchResponse, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	entry, found := s.cache.Get(key)
	if !found {
		return nil, false
	}
	return copySearchResponse(entry), true
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(key uint64, response *SearchResponse) {
	s.cacheMu.Lock()
	s.cache.Add(key, copySearchResponse(response))
	s.cacheMu.Unlock()
}

// copySearchResponse creates a copy of a SearchResponse. Entries are shared;
// they are owned by the index.
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]Result, len(src.Results))
	for i, r := range src.Results {
		dst.Results[i] = r
		dst.Results[i].Entries = slices.Clone(r.Entries)
	}
	return &dst
}

// computeQueryHash computes a cache key for a search request at a given
// index generation
func computeQueryHash(req SearchRequest, generation uint64) uint64 {
	kinds := slices.Clone(req.Kinds)
	sort.Strings(kinds)

	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(strconv.FormatInt(req.ProjectID, 10))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.Limit))
	data.WriteString("|")
	data.WriteString(strings.Join(kinds, ","))
	data.WriteString("|")
	data.WriteString(strconv.FormatFloat(float64(req.MinFuzzy), 'f', 3, 32))
	data.WriteString("|")
	data.WriteString(strconv.FormatUint(generation, 10))

	return xxhash.Sum64String(data.String())
}

// sortRankedNames sorts by score descending, then by name
func sortRankedNames(results []rankedName) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].name < results[j].name
	})
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
