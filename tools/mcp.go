package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sidekick/connectivity"
	"github.com/hazyhaar/sidekick/kit"
)

// OpDispatch is the MCP-only tool that forwards a raw {type, payload}
// message to the dispatch table.
const OpDispatch = "dispatch"

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

var mcpTools = []*mcp.Tool{
	{
		Name:        OpBlockName,
		Description: "Render block class tokens as the display name shown to authors, e.g. [cards wide] -> \"Cards (wide)\".",
		InputSchema: inputSchema(map[string]any{
			"classes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Class tokens, base first"},
			"class":   str("Raw class attribute, used when classes is empty"),
		}, nil),
	},
	{
		Name:        OpBlockClasses,
		Description: "Parse a block display name back into class tokens, e.g. \"Cards (wide)\" -> [cards wide].",
		InputSchema: inputSchema(map[string]any{
			"name": str("Block display name"),
		}, []string{"name"}),
	},
	{
		Name:        OpMetaDisplay,
		Description: "Render a metadata key as its display name, e.g. publication-date -> \"Publication Date\".",
		InputSchema: inputSchema(map[string]any{
			"key": str("Hyphenated metadata key"),
		}, []string{"key"}),
	},
	{
		Name:        OpCopyPage,
		Description: "Copy a web page with its computed background images inlined as styles. Returns the snapshot.",
		InputSchema: inputSchema(map[string]any{
			"url":     str("Page URL"),
			"page_id": str("Optional caller identifier stored with the snapshot; defaults to a slug of the URL"),
			"level":   map[string]any{"type": "string", "enum": []string{"auto", "http", "browser"}},
		}, []string{"url"}),
	},
	{
		Name:        OpCopyHTML,
		Description: "Copy caller-provided HTML, resolving styles from its own stylesheets. Returns the snapshot.",
		InputSchema: inputSchema(map[string]any{
			"html":    str("Full HTML document"),
			"url":     str("Base URL for relative references"),
			"page_id": str("Optional caller identifier; defaults to a slug of url when given"),
		}, []string{"html"}),
	},
	{
		Name:        OpGetSnapshot,
		Description: "Fetch a stored snapshot by ID.",
		InputSchema: inputSchema(map[string]any{
			"id": str("Snapshot ID"),
		}, []string{"id"}),
	},
	{
		Name:        OpListSnapshots,
		Description: "List stored snapshots, newest first, optionally for one page.",
		InputSchema: inputSchema(map[string]any{
			"page_url": str("Only snapshots of this page"),
			"limit":    map[string]any{"type": "integer", "minimum": 0},
		}, nil),
	},
	{
		Name:        OpListCalls,
		Description: "List recent operation calls with their outcome and duration, newest first.",
		InputSchema: inputSchema(map[string]any{
			"operation": str("Only calls of this operation"),
			"status":    map[string]any{"type": "string", "enum": []string{"success", "error"}},
			"limit":     map[string]any{"type": "integer", "minimum": 0},
		}, nil),
	},
}

// RegisterMCP exposes every operation registered on router as an MCP tool,
// plus the dispatch tool. Tool calls go through router.Call, so remote
// routes apply to MCP too.
func RegisterMCP(srv *mcp.Server, router *connectivity.Router, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	available := make(map[string]bool)
	for _, name := range router.Services() {
		available[name] = true
	}

	for _, tool := range mcpTools {
		if !available[tool.Name] {
			continue
		}
		op := tool.Name
		endpoint := func(ctx context.Context, req any) (any, error) {
			res, err := router.Call(ctx, op, req.(json.RawMessage))
			if err != nil {
				return nil, err
			}
			return json.RawMessage(res), nil
		}
		kit.RegisterMCPTool(srv, tool, kit.Chain(kit.RequestID(), kit.Logging(logger, op))(endpoint), decodeRaw)
	}

	registerDispatchTool(srv, router, logger)
}

func decodeRaw(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	args := json.RawMessage(req.Params.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return &kit.MCPDecodeResult{Request: args}, nil
}

func registerDispatchTool(srv *mcp.Server, router *connectivity.Router, logger *slog.Logger) {
	tool := &mcp.Tool{
		Name:        OpDispatch,
		Description: "Send a {type, payload} message to the operation table. Unknown types answer with ok=false and code unknown_operation.",
		InputSchema: inputSchema(map[string]any{
			"type":    str("Operation name"),
			"payload": map[string]any{"type": "object"},
		}, []string{"type"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		msg := req.(*connectivity.Message)
		if msg.ID == "" {
			msg.ID = kit.GetRequestID(ctx)
		}
		return router.Dispatch(ctx, *msg), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var msg connectivity.Message
		if err := json.Unmarshal(req.Params.Arguments, &msg); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &msg}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.RequestID(), kit.Logging(logger, OpDispatch))(endpoint), decode)
}
