package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexWorkspaceTool returns the tool definition for index_workspace
func indexWorkspaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_workspace",
		Description: "Index the Ruby sources and ERB templates of a workspace so its classes, modules and methods can be queried",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the workspace root",
				},
				"watch": map[string]interface{}{
					"type":        "boolean",
					"description": "Keep the index current by watching the workspace for changes (defaults to the watch.enabled setting)",
				},
			},
			Required: []string{"path"},
		},
	}
}

// findDefinitionTool returns the tool definition for find_definition
func findDefinitionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_definition",
		Description: "Find every declaration of a constant or method, resolving the name from an optional lexical scope",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Constant path (e.g. 'Cart', 'Shop::Cart', '::Cart') or method name",
				},
				"nesting": map[string]interface{}{
					"type":        "array",
					"description": "Enclosing namespaces at the reference site, outermost first (e.g. ['Shop', 'Checkout'])",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"name"},
		},
	}
}

// listAncestorsTool returns the tool definition for list_ancestors
func listAncestorsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_ancestors",
		Description: "List the method lookup order of a class, module or singleton class",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Fully qualified namespace name (e.g. 'Shop::Cart' or 'Shop::Cart::<Class:Cart>')",
				},
			},
			Required: []string{"name"},
		},
	}
}

// resolveMethodTool returns the tool definition for resolve_method
func resolveMethodTool() mcp.Tool {
	return mcp.Tool{
		Name:        "resolve_method",
		Description: "Find the definitions a method call on a receiver dispatches to",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"receiver": map[string]interface{}{
					"type":        "string",
					"description": "Fully qualified namespace of the receiver",
				},
				"method": map[string]interface{}{
					"type":        "string",
					"description": "Method name",
				},
			},
			Required: []string{"receiver", "method"},
		},
	}
}

// listMembersTool returns the tool definition for list_members
func listMembersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_members",
		Description: "List the methods defined on a namespace across all of its reopenings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"namespace": map[string]interface{}{
					"type":        "string",
					"description": "Fully qualified namespace name",
				},
				"inherited": map[string]interface{}{
					"type":        "boolean",
					"description": "Also list methods from every ancestor, first definition per name wins",
					"default":     false,
				},
			},
			Required: []string{"namespace"},
		},
	}
}

// searchSymbolsTool returns the tool definition for search_symbols
func searchSymbolsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_symbols",
		Description: "Search indexed class, module and method names, and the comments attached to them",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Name, partial name or words from a doc comment",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"kinds": map[string]interface{}{
					"type":        "array",
					"description": "Filter by entry kind",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"class", "module", "singleton_class", "method"},
					},
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (name + comment text), name (exact, prefix and fuzzy names) or text (full-text only)",
					"enum":        []string{"hybrid", "name", "text"},
					"default":     "hybrid",
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index contents and, when persisted, storage statistics for the indexed workspace",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
