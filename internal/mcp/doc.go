// Package mcp implements the Model Context Protocol (MCP) server for rbindex.
//
// The MCP server exposes seven tools to AI coding assistants:
//   - index_workspace: Index the Ruby sources and ERB templates of a workspace
//   - find_definition: Resolve a constant from a lexical scope and list its declarations
//   - list_ancestors: Linearized ancestors of a class, module or singleton class
//   - resolve_method: The definitions a call on a receiver dispatches to
//   - list_members: Methods of a namespace, optionally with inherited ones
//   - search_symbols: Name and comment search over the index
//   - get_status: Index and storage statistics
//
// The bundled signature corpus (BasicObject, Object, Kernel, Enumerable, ...)
// is indexed when the server starts, so ancestor chains end in the core
// hierarchy even before a workspace is indexed.
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// stdout carries protocol messages only; logs go to stderr.
//
// # Basic Usage
//
//	rbindex serve
//
// # Tool: index_workspace
//
//	Request:
//	{
//	  "name": "index_workspace",
//	  "arguments": {"path": "/path/to/app", "watch": true}
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "files_indexed": 212,
//	  "files_skipped": 0,
//	  "files_restored": 0,
//	  "files_removed": 0,
//	  "files_failed": 1,
//	  "entries_created": 4810,
//	  "duration_ms": 840,
//	  "errors": ["app/models/broken.rb: missing 'end' for class Broken"],
//	  "watching": true
//	}
//
// Unchanged files are skipped on later runs. With storage enabled, a
// restarted server restores unchanged files from the database instead of
// parsing them.
//
// # Tool: find_definition
//
//	Request:
//	{
//	  "name": "find_definition",
//	  "arguments": {"name": "Cart", "nesting": ["Shop", "Checkout"]}
//	}
//
//	Response:
//	{
//	  "name": "Cart",
//	  "resolved": "Shop::Cart",
//	  "found": true,
//	  "definitions": [{
//	    "name": "Shop::Cart",
//	    "kind": "class",
//	    "file": "app/models/cart.rb",
//	    "location": {"start_line": 3, "end_line": 12, "start_column": 2, "end_column": 5},
//	    "parent_class": "Base",
//	    "mixins": [{"kind": "include", "module": "Enumerable"}]
//	  }]
//	}
//
// # Tool: list_ancestors
//
//	{"name": "list_ancestors", "arguments": {"name": "Shop::Cart"}}
//	→ {"name": "Shop::Cart", "ancestors": ["Shop::Cart", "Enumerable", "Base", "Object", "Kernel", "BasicObject"]}
//
// # Tools: resolve_method and list_members
//
//	{"name": "resolve_method", "arguments": {"receiver": "Shop::Cart", "method": "save"}}
//	{"name": "list_members", "arguments": {"namespace": "Shop::Cart", "inherited": true}}
//
// # Tool: search_symbols
//
//	{"name": "search_symbols", "arguments": {"query": "cart", "limit": 10, "search_mode": "hybrid", "kinds": ["class"]}}
//
// Text and hybrid modes need a persisted workspace. Without one, hybrid
// falls back to name matching and text mode fails.
//
// # Error Handling
//
// Tool failures are returned as *MCPError with JSON-RPC style codes:
//
//	-32602  Invalid params (missing name, relative path, bad limit)
//	-32603  Internal error
//	-32002  Indexing already in progress
//	-32003  No persisted workspace for text search
//	-32004  Empty search query
//	-32005  Namespace not found
package mcp
