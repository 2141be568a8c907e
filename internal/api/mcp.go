package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/analyzer"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/vectors"
)

// NewMCPServer exposes the audit engine to MCP clients: analyze an entity,
// fetch its report, and inspect the configured vectors.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"secaudit",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("secaudit — scores stored content for security-sensitive disclosures (PII, credentials) per configured risk vector."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_content",
			mcp.WithDescription("Run the security audit for one content entity and return its per-vector risk scores."),
			mcp.WithString("entity_type", mcp.Description("Entity type id, e.g. node"), mcp.Required()),
			mcp.WithNumber("entity_id", mcp.Description("Numeric entity id"), mcp.Required()),
		),
		mcpAnalyzeContent(deps),
	)

	s.AddTool(
		mcp.NewTool("get_report",
			mcp.WithDescription("Return the audit summary and full per-vector breakdown for one content entity."),
			mcp.WithString("entity_type", mcp.Description("Entity type id, e.g. node"), mcp.Required()),
			mcp.WithNumber("entity_id", mcp.Description("Numeric entity id"), mcp.Required()),
		),
		mcpGetReport(deps),
	)

	s.AddTool(
		mcp.NewTool("list_vectors",
			mcp.WithDescription("List the configured security risk vectors in display order."),
		),
		mcpListVectors(deps),
	)

	return s
}

func (deps Deps) mcpAnalyze(ctx context.Context, req mcp.CallToolRequest) (analyzeResponse, *mcp.CallToolResult) {
	entityType, err := req.RequireString("entity_type")
	if err != nil {
		return analyzeResponse{}, mcpError("entity_type is required")
	}
	entityID, err := req.RequireInt("entity_id")
	if err != nil {
		return analyzeResponse{}, mcpError("entity_id is required")
	}

	e, err := deps.Entities.Load(ctx, entityType, int64(entityID))
	if errors.Is(err, storage.ErrNotFound) {
		return analyzeResponse{}, mcpError(fmt.Sprintf("entity %s/%d not found", entityType, entityID))
	}
	if err != nil {
		return analyzeResponse{}, mcpError(fmt.Sprintf("loading entity: %v", err))
	}

	res, err := deps.Analyzer.Analyze(ctx, e)
	if err != nil {
		return analyzeResponse{}, mcpError(fmt.Sprintf("analysis failed: %v", err))
	}

	resp := analyzeResponse{Status: res.Status.String(), Scores: res.Scores}
	if summary, ok := analyzer.Summary(res); ok {
		resp.Summary = &summary
		resp.Report = analyzer.Report(res)
	}
	return resp, nil
}

func mcpAnalyzeContent(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, errResult := deps.mcpAnalyze(ctx, req)
		if errResult != nil {
			return errResult, nil
		}
		return mcpJSON(resp)
	}
}

func mcpGetReport(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, errResult := deps.mcpAnalyze(ctx, req)
		if errResult != nil {
			return errResult, nil
		}
		return mcpJSON(map[string]any{
			"status":  resp.Status,
			"summary": resp.Summary,
			"report":  resp.Report,
		})
	}
}

func mcpListVectors(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vs, err := deps.Registry.List()
		if err != nil {
			return mcpError(fmt.Sprintf("listing vectors: %v", err)), nil
		}
		return mcpJSON(map[string]any{"vectors": vectors.SortByWeight(vs)})
	}
}

func mcpJSON(body any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return mcpError(fmt.Sprintf("serializing result: %v", err)), nil
	}
	return mcpText(string(raw)), nil
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
