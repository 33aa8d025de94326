package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/swanson/ruby-lsp/internal/index"
	"github.com/swanson/ruby-lsp/internal/indexer"
	"github.com/swanson/ruby-lsp/internal/searcher"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // No workspace indexed yet
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeNamespaceNotFound  = -32005 // Name is not an indexed class or module
)

// handleIndexWorkspace handles the index_workspace tool invocation
func (s *Server) handleIndexWorkspace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	stats, err := s.indexer.IndexWorkspace(ctx, path, s.indexerConfig())
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":         true,
		"files_indexed":   stats.FilesIndexed,
		"files_skipped":   stats.FilesSkipped,
		"files_restored":  stats.FilesRestored,
		"files_removed":   stats.FilesRemoved,
		"files_failed":    stats.FilesFailed,
		"entries_created": stats.EntriesCreated,
		"duration_ms":     stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	if getBoolDefault(args, "watch", s.config.Watch.Enabled) {
		if err := s.Watch(path); err != nil {
			response["watch_error"] = err.Error()
		} else {
			response["watching"] = true
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindDefinition handles the find_definition tool invocation
func (s *Server) handleFindDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	nesting := getStringSlice(args, "nesting")

	resolved, found := s.index.Resolve(name, nesting)
	entries := s.index.Definitions(name, nesting)

	definitions := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		definitions = append(definitions, s.entryJSON(e))
	}

	response := map[string]interface{}{
		"name":        name,
		"resolved":    resolved,
		"found":       found || len(entries) > 0,
		"definitions": definitions,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListAncestors handles the list_ancestors tool invocation
func (s *Server) handleListAncestors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	name = strings.TrimPrefix(name, "::")

	ancestors, err := s.index.LinearizedAncestors(name)
	if err != nil {
		return nil, lookupError(err)
	}

	response := map[string]interface{}{
		"name":      name,
		"ancestors": ancestors,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleResolveMethod handles the resolve_method tool invocation
func (s *Server) handleResolveMethod(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	receiver, err := requireString(args, "receiver")
	if err != nil {
		return nil, err
	}
	method, err := requireString(args, "method")
	if err != nil {
		return nil, err
	}
	receiver = strings.TrimPrefix(receiver, "::")

	methods, err := s.index.ResolveMethod(method, receiver)
	if err != nil {
		return nil, lookupError(err)
	}

	definitions := make([]map[string]interface{}, 0, len(methods))
	for _, m := range methods {
		definitions = append(definitions, s.entryJSON(m))
	}

	response := map[string]interface{}{
		"receiver":    receiver,
		"method":      method,
		"found":       len(methods) > 0,
		"definitions": definitions,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListMembers handles the list_members tool invocation
func (s *Server) handleListMembers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	namespace, err := requireString(args, "namespace")
	if err != nil {
		return nil, err
	}
	namespace = strings.TrimPrefix(namespace, "::")
	inherited := getBoolDefault(args, "inherited", false)

	methods, err := s.index.MethodsOf(namespace, inherited)
	if err != nil {
		return nil, lookupError(err)
	}

	members := make([]map[string]interface{}, 0, len(methods))
	for _, m := range methods {
		members = append(members, s.entryJSON(m))
	}

	response := map[string]interface{}{
		"namespace": namespace,
		"inherited": inherited,
		"members":   members,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchSymbols handles the search_symbols tool invocation
func (s *Server) handleSearchSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	allowedModes := []string{"hybrid", "name", "text"}
	searchMode := getStringDefault(args, "search_mode", "hybrid")
	if !containsString(allowedModes, searchMode) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   searchMode,
			"allowed": allowedModes,
		})
	}

	allowedKinds := []string{"class", "module", "singleton_class", "method"}
	kinds := getStringSlice(args, "kinds")
	for _, k := range kinds {
		if !containsString(allowedKinds, k) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid kind", map[string]interface{}{
				"param":   "kinds",
				"value":   k,
				"allowed": allowedKinds,
			})
		}
	}

	req := searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Mode:     searcher.SearchMode(searchMode),
		Kinds:    kinds,
		UseCache: true,
	}
	if req.Mode != searcher.SearchModeName {
		project := s.indexer.Project()
		switch {
		case project != nil:
			req.ProjectID = project.ID
		case req.Mode == searcher.SearchModeText:
			return nil, newMCPError(ErrorCodeNotIndexed, "text search needs a persisted workspace; run index_workspace with storage enabled", nil)
		default:
			// No persisted workspace: hybrid degrades to name matching
			req.Mode = searcher.SearchModeName
		}
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entries := make([]map[string]interface{}, 0, len(r.Entries))
		for _, e := range r.Entries {
			entries = append(entries, s.entryJSON(e))
		}
		results = append(results, map[string]interface{}{
			"rank":    r.Rank,
			"name":    r.Name,
			"match":   string(r.Match),
			"score":   r.Score,
			"entries": entries,
		})
	}

	response := map[string]interface{}{
		"query":         query,
		"search_mode":   string(resp.SearchMode),
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.index.Stats()

	response := map[string]interface{}{
		"indexed":  s.indexer.Root() != "",
		"indexing": s.indexer.Indexing(),
		"index": map[string]interface{}{
			"names":      stats.Names,
			"entries":    stats.Entries,
			"files":      stats.Files,
			"namespaces": stats.Namespaces,
			"methods":    stats.Methods,
		},
	}
	if root := s.indexer.Root(); root != "" {
		response["root"] = root
	}

	s.watchMu.Lock()
	response["watching"] = s.watcher != nil
	s.watchMu.Unlock()

	project := s.indexer.Project()
	if s.storage == nil || project == nil {
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	status, err := s.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	storageInfo := map[string]interface{}{
		"files_count":   status.FilesCount,
		"entries_count": status.EntriesCount,
		"mixins_count":  status.MixinsCount,
		"index_size_mb": fmt.Sprintf("%.2f", status.IndexSizeMB),
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"fts_indexes_built":   status.Health.FTSIndexesBuilt,
		},
	}
	if !status.LastIndexedAt.IsZero() {
		storageInfo["last_indexed_at"] = status.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	response["storage"] = storageInfo

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// entryJSON renders an index entry for tool output. File paths inside the
// indexed root are reported relative to it.
func (s *Server) entryJSON(e index.Entry) map[string]interface{} {
	out := map[string]interface{}{
		"name":     e.Name(),
		"kind":     index.Kind(e),
		"file":     s.displayPath(e.FilePath()),
		"location": e.Location(),
	}
	if comments := e.Comments(); len(comments) > 0 {
		out["comments"] = comments
	}

	switch v := e.(type) {
	case *index.Class:
		if v.ParentClass() != "" {
			out["parent_class"] = v.ParentClass()
		}
	case *index.SingletonClass:
		out["attached"] = v.AttachedName()
	case *index.Method:
		out["owner"] = v.OwnerName()
		out["visibility"] = string(v.Visibility())
		out["signature"] = v.Signature()
	}

	if ns, ok := e.(index.NamespaceEntry); ok {
		if ops := ns.MixinOperations(); len(ops) > 0 {
			mixins := make([]map[string]string, 0, len(ops))
			for _, op := range ops {
				mixins = append(mixins, map[string]string{
					"kind":   string(index.MixinKindOf(op)),
					"module": op.ModuleName(),
				})
			}
			out["mixins"] = mixins
		}
	}
	return out
}

func (s *Server) displayPath(path string) string {
	root := s.indexer.Root()
	if root == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// lookupError maps index query failures onto MCP errors
func lookupError(err error) error {
	if errors.Is(err, index.ErrNamespaceNotFound) {
		return newMCPError(ErrorCodeNamespaceNotFound, "namespace not found", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return newMCPError(ErrorCodeInternalError, "query failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is a readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// requireString extracts a non-empty string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || strings.TrimSpace(val) == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter. JSON arrays decode as
// []interface{}; non-string items are skipped.
func getStringSlice(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
