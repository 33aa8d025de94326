package searcher

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swanson/ruby-lsp/internal/index"
	"github.com/swanson/ruby-lsp/internal/indexer"
	"github.com/swanson/ruby-lsp/internal/storage"
	"github.com/swanson/ruby-lsp/pkg/types"
)

const cartSource = `module Shop
  class Cart
    def add(item)
    end

    # Computes totals at checkout
    def calculate_total
    end
  end
end
`

const checkoutSource = `module Shop
  class Checkout
  end
end
`

func setupTestSearcher(t *testing.T, withStorage bool) (*Searcher, *index.Index, int64) {
	t.Helper()

	dir := t.TempDir()
	for name, src := range map[string]string{
		"app/models/cart.rb":     cartSource,
		"app/models/checkout.rb": checkoutSource,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	}

	var store storage.Storage
	if withStorage {
		s, err := storage.NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		store = s
	}

	idx := index.New()
	ix := indexer.New(idx, store, log.New(&bytes.Buffer{}, "", 0))
	_, err := ix.IndexWorkspace(context.Background(), dir, nil)
	require.NoError(t, err)

	var projectID int64
	if p := ix.Project(); p != nil {
		projectID = p.ID
	}
	return NewSearcher(idx, store), idx, projectID
}

func resultNames(resp *SearchResponse) []string {
	names := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		names = append(names, r.Name)
	}
	return names
}

func TestNewSearcher(t *testing.T) {
	idx := index.New()
	s := NewSearcher(idx, nil)

	assert.NotNil(t, s)
	assert.Same(t, idx, s.index)
	assert.Nil(t, s.storage)
	assert.Equal(t, 0, s.CacheLen())
}

func TestValidateRequest(t *testing.T) {
	s := NewSearcher(index.New(), nil)

	tests := []struct {
		name    string
		req     SearchRequest
		wantErr bool
		check   func(t *testing.T, req SearchRequest)
	}{
		{
			name:    "empty query",
			req:     SearchRequest{Query: ""},
			wantErr: true,
		},
		{
			name:    "blank query",
			req:     SearchRequest{Query: "   "},
			wantErr: true,
		},
		{
			name: "defaults applied",
			req:  SearchRequest{Query: "Cart"},
			check: func(t *testing.T, req SearchRequest) {
				assert.Equal(t, 10, req.Limit)
				assert.Equal(t, SearchModeHybrid, req.Mode)
				assert.Equal(t, float32(0.85), req.MinFuzzy)
				assert.Equal(t, 60.0, req.RRFConstant)
			},
		},
		{
			name: "limit capped",
			req:  SearchRequest{Query: "Cart", Limit: 500},
			check: func(t *testing.T, req SearchRequest) {
				assert.Equal(t, 100, req.Limit)
			},
		},
		{
			name: "explicit values kept",
			req:  SearchRequest{Query: "Cart", Limit: 5, Mode: SearchModeName, MinFuzzy: 0.5},
			check: func(t *testing.T, req SearchRequest) {
				assert.Equal(t, 5, req.Limit)
				assert.Equal(t, SearchModeName, req.Mode)
				assert.Equal(t, float32(0.5), req.MinFuzzy)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := s.validateRequest(&req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, req)
		})
	}
}

func TestSearchModeName(t *testing.T) {
	s, _, _ := setupTestSearcher(t, false)
	ctx := context.Background()

	tests := []struct {
		name      string
		query     string
		wantFirst string
		wantMatch MatchKind
	}{
		{"exact simple name", "Cart", "Shop::Cart", MatchExact},
		{"exact qualified name", "Shop::Cart", "Shop::Cart", MatchExact},
		{"top-level prefix stripped", "::Shop::Cart", "Shop::Cart", MatchExact},
		{"case-insensitive", "cart", "Shop::Cart", MatchExact},
		{"prefix", "Che", "Shop::Checkout", MatchPrefix},
		{"method prefix", "calc", "calculate_total", MatchPrefix},
		{"fuzzy", "chekout", "Shop::Checkout", MatchFuzzy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Search(ctx, SearchRequest{Query: tt.query, Mode: SearchModeName})
			require.NoError(t, err)
			require.NotEmpty(t, resp.Results)
			first := resp.Results[0]
			assert.Equal(t, tt.wantFirst, first.Name)
			assert.Equal(t, tt.wantMatch, first.Match)
			assert.Equal(t, 1, first.Rank)
			assert.NotEmpty(t, first.Entries)
			assert.Equal(t, SearchModeName, resp.SearchMode)
		})
	}
}

func TestSearchModeName_RankOrder(t *testing.T) {
	s, _, _ := setupTestSearcher(t, false)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "Shop", Mode: SearchModeName})
	require.NoError(t, err)

	// Exact before prefix; the shorter prefix match first
	assert.Equal(t, []string{"Shop", "Shop::Cart", "Shop::Checkout"}, resultNames(resp))
	assert.Equal(t, MatchExact, resp.Results[0].Match)
	assert.Equal(t, MatchPrefix, resp.Results[1].Match)
	assert.Greater(t, resp.Results[1].Score, resp.Results[2].Score)
}

func TestSearchModeName_NoSingletonNames(t *testing.T) {
	s, _, _ := setupTestSearcher(t, false)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "Shop::Cart", Mode: SearchModeName})
	require.NoError(t, err)
	for _, name := range resultNames(resp) {
		assert.False(t, index.IsSingletonName(name), name)
	}
}

func TestSearchKindsAndLimit(t *testing.T) {
	s, _, _ := setupTestSearcher(t, false)
	ctx := context.Background()

	resp, err := s.Search(ctx, SearchRequest{Query: "Shop", Mode: SearchModeName, Kinds: []string{"method"}})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	resp, err = s.Search(ctx, SearchRequest{Query: "Shop", Mode: SearchModeName, Kinds: []string{"class"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Shop::Cart", "Shop::Checkout"}, resultNames(resp))
	assert.Equal(t, 2, resp.Results[1].Rank, "ranks are renumbered after filtering")

	resp, err = s.Search(ctx, SearchRequest{Query: "Shop", Mode: SearchModeName, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Shop"}, resultNames(resp))
	assert.Equal(t, 3, resp.NameResults)
}

func TestSearchModeText(t *testing.T) {
	s, _, projectID := setupTestSearcher(t, true)

	resp, err := s.Search(context.Background(), SearchRequest{
		Query:     "totals",
		Mode:      SearchModeText,
		ProjectID: projectID,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "calculate_total", resp.Results[0].Name)
	assert.Equal(t, MatchText, resp.Results[0].Match)
	assert.Equal(t, 1, resp.TextResults)
}

func TestSearchModeText_RequiresStorage(t *testing.T) {
	s, _, _ := setupTestSearcher(t, false)

	_, err := s.Search(context.Background(), SearchRequest{Query: "totals", Mode: SearchModeText})
	assert.Error(t, err)
}

func TestSearchModeHybrid(t *testing.T) {
	s, _, projectID := setupTestSearcher(t, true)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "Cart", ProjectID: projectID})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "Shop::Cart", resp.Results[0].Name)
	assert.Equal(t, MatchExact, resp.Results[0].Match)
	assert.Equal(t, SearchModeHybrid, resp.SearchMode)
	assert.Greater(t, resp.TextResults, 0)

	// Comment-only hits still surface
	resp, err = s.Search(context.Background(), SearchRequest{Query: "totals", ProjectID: projectID})
	require.NoError(t, err)
	assert.Contains(t, resultNames(resp), "calculate_total")
}

func TestSearchModeHybrid_WithoutStorage(t *testing.T) {
	s, _, _ := setupTestSearcher(t, false)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "Cart"})
	require.NoError(t, err)
	assert.Equal(t, "Shop::Cart", resp.Results[0].Name)
	assert.Equal(t, 0, resp.TextResults)
}

func TestSearchWithUnsupportedMode(t *testing.T) {
	s, _, _ := setupTestSearcher(t, false)

	_, err := s.Search(context.Background(), SearchRequest{Query: "Cart", Mode: "vector"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported search mode")
}

func TestSearchWithCache(t *testing.T) {
	s, idx, _ := setupTestSearcher(t, false)
	ctx := context.Background()
	req := SearchRequest{Query: "Cart", Mode: SearchModeName, UseCache: true}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, s.CacheLen())

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, resultNames(first), resultNames(second))

	// Mutating the index changes the generation and the key
	idx.Add(index.NewClass([]string{"Cart"}, "cart.rb", types.NewLocation(1, 2, 0, 3), nil, ""))
	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.Contains(t, resultNames(third), "Cart")

	s.InvalidateCache()
	assert.Equal(t, 0, s.CacheLen())
}

func TestCachedResponseIsACopy(t *testing.T) {
	s, _, _ := setupTestSearcher(t, false)
	ctx := context.Background()
	req := SearchRequest{Query: "Shop", Mode: SearchModeName, UseCache: true}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	first.Results[0].Name = "mutated"

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, "Shop", second.Results[0].Name)
}

func TestApplyRRF(t *testing.T) {
	name := []rankedName{
		{name: "a", match: MatchExact},
		{name: "b", match: MatchPrefix},
	}
	text := []rankedName{
		{name: "b", match: MatchText},
		{name: "c", match: MatchText},
	}

	fused := applyRRF(name, text, 0)
	require.Len(t, fused, 3)
	assert.Equal(t, "b", fused[0].name, "found by both searches")
	assert.Equal(t, MatchPrefix, fused[0].match)
	assert.InDelta(t, 1.0/62+1.0/61, fused[0].score, 1e-9)
	assert.Equal(t, "a", fused[1].name)
	assert.Equal(t, "c", fused[2].name)
	assert.Equal(t, MatchText, fused[2].match)
}

func TestComputeQueryHash(t *testing.T) {
	base := SearchRequest{Query: "Cart", Mode: SearchModeName, Kinds: []string{"class", "module"}}
	reordered := base
	reordered.Kinds = []string{"module", "class"}

	assert.Equal(t, computeQueryHash(base, 1), computeQueryHash(reordered, 1))
	assert.NotEqual(t, computeQueryHash(base, 1), computeQueryHash(base, 2))

	other := base
	other.Query = "cart"
	assert.NotEqual(t, computeQueryHash(base, 1), computeQueryHash(other, 1))
}
