package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/semdoc/internal/documents"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Documents DocumentService
	Graph     GraphService
	Stats     StatsService
	Defaults  Defaults
	Version   string
}

// NewMCPServer creates an MCP server with the document store tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Defaults.Limit <= 0 {
		deps.Defaults.Limit = 10
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := server.NewMCPServer(
		"semdoc",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("semdoc stores text documents and finds them again by meaning."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_document",
			mcp.WithDescription("Store a document so it can be found by semantic search."),
			mcp.WithString("title", mcp.Description("Document title"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Document text"), mcp.Required()),
			mcp.WithString("source", mcp.Description("Where the document came from, such as a URL or file name")),
			mcp.WithString("source_type", mcp.Description("Kind of source, such as news or report")),
			mcp.WithString("category", mcp.Description("Category")),
			mcp.WithArray("tags", mcp.Description("Optional tags"), mcp.WithStringItems()),
		),
		mcpAddDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("get_document",
			mcp.WithDescription("Fetch a stored document by id."),
			mcp.WithString("id", mcp.Description("Document id"), mcp.Required()),
		),
		mcpGetDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Search stored documents by meaning, optionally filtered by category, source type or tags."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (1-100)")),
			mcp.WithNumber("score_threshold", mcp.Description("Minimum similarity score (0-1)")),
			mcp.WithString("category", mcp.Description("Only documents in this category")),
			mcp.WithString("source_type", mcp.Description("Only documents of this source type")),
			mcp.WithArray("tags", mcp.Description("Only documents carrying at least one of these tags"), mcp.WithStringItems()),
		),
		mcpSearchDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("find_similar",
			mcp.WithDescription("Find documents similar to a stored document."),
			mcp.WithString("document_id", mcp.Description("Reference document id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (1-100)")),
			mcp.WithNumber("score_threshold", mcp.Description("Minimum similarity score (0-1)")),
		),
		mcpFindSimilar(deps),
	)

	s.AddTool(
		mcp.NewTool("collection_stats",
			mcp.WithDescription("Count documents per category, source type and tag."),
		),
		mcpCollectionStats(deps),
	)

	s.AddTool(
		mcp.NewTool("relationships",
			mcp.WithDescription("Build a similarity graph over the given documents."),
			mcp.WithArray("document_ids", mcp.Description("Document ids"), mcp.Required(), mcp.WithStringItems()),
			mcp.WithNumber("threshold", mcp.Description("Minimum edge similarity (0-1)")),
		),
		mcpRelationships(deps),
	)

	return s
}

func mcpAddDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		doc := documents.NewDocument{
			Title:      title,
			Content:    content,
			Source:     req.GetString("source", ""),
			SourceType: req.GetString("source_type", ""),
			Category:   req.GetString("category", ""),
			Tags:       req.GetStringSlice("tags", nil),
		}
		if err := checkNewDocument(doc); err != nil {
			return mcpError(err.Error()), nil
		}

		id, err := deps.Documents.Add(ctx, doc)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add document: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored document %s", id)), nil
	}
}

func mcpGetDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		doc, err := deps.Documents.Get(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get document: %v", err)), nil
		}
		if doc == nil {
			return mcpError(fmt.Sprintf("document %s not found", id)), nil
		}
		return mcpJSON(doc)
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}
		q := documents.SearchQuery{
			Query:          query,
			Limit:          req.GetInt("limit", deps.Defaults.Limit),
			ScoreThreshold: float32(req.GetFloat("score_threshold", float64(deps.Defaults.ScoreThreshold))),
			Category:       req.GetString("category", ""),
			SourceType:     req.GetString("source_type", ""),
			Tags:           req.GetStringSlice("tags", nil),
		}
		if err := checkLimit(q.Limit, MaxResultLimit); err != nil {
			return mcpError(err.Error()), nil
		}
		if err := checkThreshold("score_threshold", q.ScoreThreshold); err != nil {
			return mcpError(err.Error()), nil
		}

		results, err := deps.Documents.Search(ctx, q)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if results == nil {
			results = []documents.SearchResult{}
		}
		return mcpJSON(results)
	}
}

func mcpFindSimilar(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		limit := req.GetInt("limit", deps.Defaults.Limit)
		threshold := float32(req.GetFloat("score_threshold", float64(deps.Defaults.ScoreThreshold)))
		if err := checkLimit(limit, MaxResultLimit); err != nil {
			return mcpError(err.Error()), nil
		}
		if err := checkThreshold("score_threshold", threshold); err != nil {
			return mcpError(err.Error()), nil
		}

		results, err := deps.Documents.FindSimilar(ctx, id, limit, threshold)
		if err != nil {
			return mcpError(fmt.Sprintf("find similar failed: %v", err)), nil
		}
		if results == nil {
			results = []documents.SearchResult{}
		}
		return mcpJSON(results)
	}
}

func mcpCollectionStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := deps.Stats.CollectionStats(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("stats failed: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpRelationships(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids := req.GetStringSlice("document_ids", nil)
		if len(ids) == 0 {
			return mcpError("document_ids is required"), nil
		}
		threshold := float32(req.GetFloat("threshold", float64(deps.Defaults.GraphThreshold)))
		if err := checkThreshold("threshold", threshold); err != nil {
			return mcpError(err.Error()), nil
		}

		g, err := deps.Graph.Relationships(ctx, ids, threshold)
		if err != nil {
			return mcpError(fmt.Sprintf("relationships failed: %v", err)), nil
		}
		return mcpJSON(g)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
