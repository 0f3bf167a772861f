package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/civicbot/internal/catalog"
	"github.com/kalambet/civicbot/internal/chat"
	"github.com/kalambet/civicbot/internal/report"
)

const transcriptURI = "civicbot://transcript"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Controller *chat.Controller
	Version    string
}

// NewMCPServer creates an MCP server exposing the assistant, the catalog
// and report submission.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"civicbot",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("CivicBot answers questions about Indian law, civic rights and procedures, and logs civic issue reports."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_civicbot",
			mcp.WithDescription("Ask CivicBot a civic or legal question. The exchange is added to the transcript."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_topics",
			mcp.WithDescription("List the civic topics CivicBot offers as shortcuts."),
		),
		mcpListTopics(deps),
	)

	s.AddTool(
		mcp.NewTool("list_resources",
			mcp.WithDescription("List official forms, guides and contacts."),
			mcp.WithString("type", mcp.Description("Filter by type: form, guide or contact")),
			mcp.WithString("query", mcp.Description("Case-insensitive text to match in title or description")),
		),
		mcpListResources(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_report",
			mcp.WithDescription("Log a civic issue report and get a complaint id."),
			mcp.WithString("type", mcp.Description("Issue type, one of the report types"), mcp.Required()),
			mcp.WithString("location", mcp.Description("Street, landmark or area"), mcp.Required()),
			mcp.WithString("description", mcp.Description("What is wrong"), mcp.Required()),
			mcp.WithString("urgency", mcp.Description("low, medium (default) or high")),
		),
		mcpSubmitReport(deps),
	)

	s.AddResource(
		mcp.NewResource(
			transcriptURI,
			"Transcript",
			mcp.WithResourceDescription("The current conversation as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTranscript(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		msg, err := deps.Controller.Send(ctx, question)
		if errors.Is(err, chat.ErrEmptyMessage) {
			return mcpError("question is required"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		return mcpText(msg.Content), nil
	}
}

func mcpListTopics(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Controller.Catalog().Topics)
	}
}

func mcpListResources(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typ := catalog.ResourceType(req.GetString("type", ""))
		switch typ {
		case "", catalog.ResourceForm, catalog.ResourceGuide, catalog.ResourceContact:
		default:
			return mcpError(fmt.Sprintf("unknown resource type %q", typ)), nil
		}
		return mcpJSON(deps.Controller.Catalog().FindResources(typ, req.GetString("query", "")))
	}
}

func mcpSubmitReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rep := report.Report{
			Type:        req.GetString("type", ""),
			Location:    req.GetString("location", ""),
			Description: req.GetString("description", ""),
			Urgency:     report.Urgency(req.GetString("urgency", "")),
		}
		msg, _, err := deps.Controller.SubmitReport(rep)
		if err != nil {
			return mcpError(fmt.Sprintf("report rejected: %v", err)), nil
		}
		return mcpText(msg.Content), nil
	}
}

func mcpResourceTranscript(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Controller.Messages())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transcript: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
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
