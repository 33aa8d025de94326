package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swanson/ruby-lsp/internal/config"
)

const baseSource = `class Base
  def save
  end
end
`

const cartSource = `module Shop
  # A shopping cart
  class Cart < Base
    include Enumerable

    def add(item, qty: 1)
    end

    def self.build
    end
  end
end
`

type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func newTestServer(t *testing.T, dbPath string) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.DBPath = dbPath
	cfg.Index.Workers = 2

	s, err := NewServer(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range map[string]string{
		"lib/base.rb":        baseSource,
		"app/models/cart.rb": cartSource,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	}
	return dir
}

func callTool(t *testing.T, handler toolHandler, args map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()

	var req mcp.CallToolRequest
	req.Params.Arguments = args

	result, err := handler(context.Background(), req)
	if err != nil {
		return nil, err
	}
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out, nil
}

func indexedServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := newTestServer(t, ":memory:")
	dir := setupWorkspace(t)

	out, err := callTool(t, s.handleIndexWorkspace, map[string]interface{}{"path": dir})
	require.NoError(t, err)
	require.Equal(t, true, out["indexed"])
	return s, dir
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func names(items interface{}, key string) []string {
	var out []string
	for _, item := range items.([]interface{}) {
		out = append(out, item.(map[string]interface{})[key].(string))
	}
	return out
}

func TestNewServer(t *testing.T) {
	t.Run("in memory", func(t *testing.T) {
		s := newTestServer(t, ":memory:")

		assert.NotNil(t, s.indexer)
		assert.NotNil(t, s.searcher)
		assert.NotNil(t, s.storage)
		assert.NotEmpty(t, s.index.Lookup("Object"), "bundled corpus is indexed")
	})

	t.Run("without storage", func(t *testing.T) {
		s := newTestServer(t, "")
		assert.Nil(t, s.storage)
		assert.NotEmpty(t, s.index.Lookup("Kernel"))
	})

	t.Run("creates database directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "index.db")
		s := newTestServer(t, dbPath)
		assert.NotNil(t, s.storage)
		assert.FileExists(t, dbPath)
	})

	t.Run("bad corpus dir", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.DBPath = ""
		cfg.Corpus.Dir = filepath.Join(t.TempDir(), "missing")

		_, err := NewServer(cfg, log.New(io.Discard, "", 0))
		assert.Error(t, err)
	})
}

func TestHandleIndexWorkspace(t *testing.T) {
	s := newTestServer(t, ":memory:")
	dir := setupWorkspace(t)

	out, err := callTool(t, s.handleIndexWorkspace, map[string]interface{}{"path": dir})
	require.NoError(t, err)
	assert.Equal(t, float64(2), out["files_indexed"])
	assert.Equal(t, float64(0), out["files_failed"])
	assert.Nil(t, out["watching"])

	// Second run skips unchanged files
	out, err = callTool(t, s.handleIndexWorkspace, map[string]interface{}{"path": dir})
	require.NoError(t, err)
	assert.Equal(t, float64(0), out["files_indexed"])
	assert.Equal(t, float64(2), out["files_skipped"])
}

func TestHandleIndexWorkspace_Watch(t *testing.T) {
	s := newTestServer(t, "")
	dir := setupWorkspace(t)

	out, err := callTool(t, s.handleIndexWorkspace, map[string]interface{}{"path": dir, "watch": true})
	require.NoError(t, err)
	assert.Equal(t, true, out["watching"])

	status, err := callTool(t, s.handleGetStatus, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, true, status["watching"])
}

func TestHandleIndexWorkspace_InvalidParams(t *testing.T) {
	s := newTestServer(t, "")
	file := filepath.Join(t.TempDir(), "a.rb")
	require.NoError(t, os.WriteFile(file, []byte("class A\nend\n"), 0644))

	tests := []struct {
		name   string
		args   map[string]interface{}
		reason string
	}{
		{"missing path", map[string]interface{}{}, ""},
		{"relative path", map[string]interface{}{"path": "relative/dir"}, ErrPathNotAbsolute.Error()},
		{"missing dir", map[string]interface{}{"path": filepath.Join(t.TempDir(), "nope")}, ErrPathNotFound.Error()},
		{"file", map[string]interface{}{"path": file}, ErrNotDirectory.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callTool(t, s.handleIndexWorkspace, tt.args)
			mcpErr := requireMCPError(t, err, ErrorCodeInvalidParams)
			if tt.reason != "" {
				data := mcpErr.Data.(map[string]interface{})
				assert.Equal(t, tt.reason, data["reason"])
			}
		})
	}

	var req mcp.CallToolRequest
	req.Params.Arguments = "not an object"
	_, err := s.handleIndexWorkspace(context.Background(), req)
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleFindDefinition(t *testing.T) {
	s, _ := indexedServer(t)

	out, err := callTool(t, s.handleFindDefinition, map[string]interface{}{
		"name":    "Cart",
		"nesting": []interface{}{"Shop"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Shop::Cart", out["resolved"])
	assert.Equal(t, true, out["found"])

	defs := out["definitions"].([]interface{})
	require.Len(t, defs, 1)
	cart := defs[0].(map[string]interface{})
	assert.Equal(t, "class", cart["kind"])
	assert.Equal(t, "app/models/cart.rb", cart["file"])
	assert.Equal(t, "Base", cart["parent_class"])
	assert.Equal(t, []interface{}{"A shopping cart"}, cart["comments"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"kind": "include", "module": "Enumerable"},
	}, cart["mixins"])

	loc := cart["location"].(map[string]interface{})
	assert.Equal(t, float64(3), loc["start_line"])
}

func TestHandleFindDefinition_Cases(t *testing.T) {
	s, _ := indexedServer(t)

	tests := []struct {
		name     string
		args     map[string]interface{}
		found    bool
		resolved string
		kinds    []string
	}{
		{"qualified", map[string]interface{}{"name": "Shop::Cart"}, true, "Shop::Cart", []string{"class"}},
		{"top level from nesting", map[string]interface{}{"name": "Base", "nesting": []interface{}{"Shop", "Cart"}}, true, "Base", []string{"class"}},
		{"corpus constant", map[string]interface{}{"name": "::Enumerable"}, true, "Enumerable", []string{"module"}},
		{"method name", map[string]interface{}{"name": "add"}, true, "add", []string{"method"}},
		{"unknown", map[string]interface{}{"name": "Nope"}, false, "Nope", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := callTool(t, s.handleFindDefinition, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.found, out["found"])
			assert.Equal(t, tt.resolved, out["resolved"])

			defs := out["definitions"].([]interface{})
			var kinds []string
			for _, d := range defs {
				kinds = append(kinds, d.(map[string]interface{})["kind"].(string))
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}

	_, err := callTool(t, s.handleFindDefinition, map[string]interface{}{"name": "  "})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleListAncestors(t *testing.T) {
	s, _ := indexedServer(t)

	out, err := callTool(t, s.handleListAncestors, map[string]interface{}{"name": "Shop::Cart"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Shop::Cart", "Enumerable", "Base", "Object", "Kernel", "BasicObject"}, out["ancestors"])

	out, err = callTool(t, s.handleListAncestors, map[string]interface{}{"name": "::Shop"})
	require.NoError(t, err)
	assert.Equal(t, "Shop", out["name"])
	assert.Equal(t, []interface{}{"Shop"}, out["ancestors"])

	_, err = callTool(t, s.handleListAncestors, map[string]interface{}{"name": "Missing"})
	requireMCPError(t, err, ErrorCodeNamespaceNotFound)
}

func TestHandleResolveMethod(t *testing.T) {
	s, _ := indexedServer(t)

	tests := []struct {
		name   string
		method string
		owner  string
	}{
		{"own method", "add", "Shop::Cart"},
		{"superclass method", "save", "Base"},
		{"included module method", "any?", "Enumerable"},
		{"kernel method", "dup", "Kernel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := callTool(t, s.handleResolveMethod, map[string]interface{}{
				"receiver": "Shop::Cart",
				"method":   tt.method,
			})
			require.NoError(t, err)
			assert.Equal(t, true, out["found"])
			defs := out["definitions"].([]interface{})
			require.NotEmpty(t, defs)
			assert.Equal(t, tt.owner, defs[0].(map[string]interface{})["owner"])
		})
	}

	out, err := callTool(t, s.handleResolveMethod, map[string]interface{}{"receiver": "Shop::Cart", "method": "nope"})
	require.NoError(t, err)
	assert.Equal(t, false, out["found"])
	assert.Empty(t, out["definitions"])

	_, err = callTool(t, s.handleResolveMethod, map[string]interface{}{"receiver": "Missing", "method": "add"})
	requireMCPError(t, err, ErrorCodeNamespaceNotFound)

	_, err = callTool(t, s.handleResolveMethod, map[string]interface{}{"receiver": "Shop::Cart"})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleListMembers(t *testing.T) {
	s, _ := indexedServer(t)

	out, err := callTool(t, s.handleListMembers, map[string]interface{}{"namespace": "Shop::Cart"})
	require.NoError(t, err)
	members := out["members"].([]interface{})
	assert.Equal(t, []string{"add"}, names(members, "name"))
	add := members[0].(map[string]interface{})
	assert.Equal(t, "add(item, qty: ...)", add["signature"])
	assert.Equal(t, "public", add["visibility"])

	out, err = callTool(t, s.handleListMembers, map[string]interface{}{"namespace": "Shop::Cart::<Class:Cart>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, names(out["members"], "name"))

	out, err = callTool(t, s.handleListMembers, map[string]interface{}{"namespace": "Shop::Cart", "inherited": true})
	require.NoError(t, err)
	inherited := names(out["members"], "name")
	assert.Equal(t, "add", inherited[0])
	assert.Contains(t, inherited, "save")
	assert.Contains(t, inherited, "any?")
	assert.Contains(t, inherited, "dup")

	_, err = callTool(t, s.handleListMembers, map[string]interface{}{"namespace": "Missing"})
	requireMCPError(t, err, ErrorCodeNamespaceNotFound)
}

func TestHandleSearchSymbols(t *testing.T) {
	s, _ := indexedServer(t)

	out, err := callTool(t, s.handleSearchSymbols, map[string]interface{}{"query": "Cart"})
	require.NoError(t, err)
	assert.Equal(t, "hybrid", out["search_mode"])
	results := out["results"].([]interface{})
	require.NotEmpty(t, results)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "Shop::Cart", first["name"])
	assert.Equal(t, "exact", first["match"])

	out, err = callTool(t, s.handleSearchSymbols, map[string]interface{}{
		"query":       "shopping",
		"search_mode": "text",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Shop::Cart"}, names(out["results"], "name"))

	out, err = callTool(t, s.handleSearchSymbols, map[string]interface{}{
		"query":       "Shop",
		"search_mode": "name",
		"kinds":       []interface{}{"module"},
		"limit":       float64(5),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Shop"}, names(out["results"], "name"))
}

func TestHandleSearchSymbols_InvalidParams(t *testing.T) {
	s, _ := indexedServer(t)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"empty query", map[string]interface{}{"query": ""}, ErrorCodeEmptyQuery},
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"limit too high", map[string]interface{}{"query": "Cart", "limit": float64(101)}, ErrorCodeInvalidParams},
		{"limit zero", map[string]interface{}{"query": "Cart", "limit": float64(0)}, ErrorCodeInvalidParams},
		{"bad mode", map[string]interface{}{"query": "Cart", "search_mode": "vector"}, ErrorCodeInvalidParams},
		{"bad kind", map[string]interface{}{"query": "Cart", "kinds": []interface{}{"struct"}}, ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callTool(t, s.handleSearchSymbols, tt.args)
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestHandleSearchSymbols_WithoutWorkspace(t *testing.T) {
	s := newTestServer(t, "")

	// Hybrid falls back to name matching over the corpus
	out, err := callTool(t, s.handleSearchSymbols, map[string]interface{}{"query": "Enumerable"})
	require.NoError(t, err)
	assert.Equal(t, "name", out["search_mode"])
	assert.Equal(t, "Enumerable", names(out["results"], "name")[0])

	_, err = callTool(t, s.handleSearchSymbols, map[string]interface{}{"query": "Enumerable", "search_mode": "text"})
	requireMCPError(t, err, ErrorCodeNotIndexed)
}

func TestHandleGetStatus(t *testing.T) {
	s := newTestServer(t, ":memory:")

	out, err := callTool(t, s.handleGetStatus, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, false, out["indexed"])
	assert.Nil(t, out["storage"])
	corpusEntries := out["index"].(map[string]interface{})["entries"].(float64)
	assert.Positive(t, corpusEntries)

	dir := setupWorkspace(t)
	_, err = callTool(t, s.handleIndexWorkspace, map[string]interface{}{"path": dir})
	require.NoError(t, err)

	out, err = callTool(t, s.handleGetStatus, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, true, out["indexed"])
	assert.Equal(t, false, out["indexing"])
	assert.Equal(t, false, out["watching"])
	assert.Greater(t, out["index"].(map[string]interface{})["entries"].(float64), corpusEntries)

	storageInfo := out["storage"].(map[string]interface{})
	assert.Equal(t, float64(2), storageInfo["files_count"])
	assert.Equal(t, float64(1), storageInfo["mixins_count"])
	health := storageInfo["health"].(map[string]interface{})
	assert.Equal(t, true, health["database_accessible"])
	assert.Equal(t, true, health["fts_indexes_built"])
}

func TestMCPError(t *testing.T) {
	err := newMCPError(ErrorCodeNotIndexed, "not indexed", nil)
	assert.Equal(t, "MCP error -32003: not indexed", err.Error())
}

func TestGetStringSlice(t *testing.T) {
	args := map[string]interface{}{
		"json":  []interface{}{"a", 1.0, "b"},
		"typed": []string{"x"},
		"other": "a",
	}
	assert.Equal(t, []string{"a", "b"}, getStringSlice(args, "json"))
	assert.Equal(t, []string{"x"}, getStringSlice(args, "typed"))
	assert.Nil(t, getStringSlice(args, "other"))
	assert.Nil(t, getStringSlice(args, "missing"))
}
