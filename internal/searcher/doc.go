// Package searcher implements symbol search over an index.Index.
//
// The searcher provides three search modes:
//   - Hybrid: Combines name matching + BM25 full-text search (default)
//   - Name: Exact, prefix and fuzzy matching over indexed names
//   - Text: BM25 full-text search over persisted names and comments
//
// # Basic Usage
//
//	s := searcher.NewSearcher(idx, store)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:     "Cart",
//	    Limit:     10,
//	    ProjectID: project.ID,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%s, score: %.2f)\n", r.Rank, r.Name, r.Match, r.Score)
//	}
//
// # Name Matching
//
// Each indexed name is compared on both its qualified and its simple form:
//
//   - Exact: "Cart" finds Shop::Cart; case-sensitive matches rank above
//     case-insensitive ones
//   - Prefix: "Che" finds Shop::Checkout; shorter names rank higher
//   - Fuzzy: Jaro-Winkler similarity at or above MinFuzzy (default 0.85),
//     so "chekout" still finds Shop::Checkout
//
// Singleton class names are never returned; search for the attached
// namespace instead.
//
// # Hybrid Mode
//
// Name results and text results are merged with Reciprocal Rank Fusion:
//
//	RRF(name) = Σ 1/(k + rank(name))
//
// where k defaults to 60. Without storage, hybrid mode is a name search and
// text mode fails.
//
// # Caching
//
// With UseCache set, responses are kept in an LRU cache of 1000 entries.
// The index generation is part of the cache key, so any index mutation
// makes earlier responses unreachable without an explicit purge.
package searcher
