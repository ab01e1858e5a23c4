package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/driftline-app/driftline/internal/engagement"
	"github.com/driftline-app/driftline/internal/gaps"
	"github.com/driftline-app/driftline/internal/reveal"
	"github.com/driftline-app/driftline/internal/storage"
	"github.com/driftline-app/driftline/internal/worker"
)

// MCPPromptGenerator abstracts gap prompt generation for the MCP layer.
type MCPPromptGenerator interface {
	GenerateGapPrompt(ctx context.Context, userID string) (*gaps.GapPrompt, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store      *storage.Store
	Generator  MCPPromptGenerator
	Engagement *engagement.Manager
	UserID     string // partition key for all tool calls
}

// NewMCPServer creates an MCP server with all driftline tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"driftline",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("driftline is a local journaling engine that surfaces upcoming commitments, neglected life domains, and slow-reveal insights."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("add_entry",
			mcp.WithDescription("Store a journal entry and queue it for signal extraction."),
			mcp.WithString("content", mcp.Description("The journal entry text"), mcp.Required()),
			mcp.WithArray("domains", mcp.Description("Optional life domains the entry touches (e.g. work, health)")),
		),
		mcpAddEntry(deps),
	)

	s.AddTool(
		mcp.NewTool("upcoming_signals",
			mcp.WithDescription("List commitments and anticipated events extracted from recent entries, soonest first."),
			mcp.WithNumber("days", mcp.Description("Look-ahead window in days (default 30)")),
		),
		mcpUpcomingSignals(deps),
	)

	s.AddTool(
		mcp.NewTool("gap_prompt",
			mcp.WithDescription("Generate a gentle follow-up prompt about the most neglected life domain, if any."),
		),
		mcpGapPrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("snooze_domain",
			mcp.WithDescription("Suppress gap prompts about a life domain for a week."),
			mcp.WithString("domain", mcp.Description("Domain to snooze (e.g. health)"), mcp.Required()),
		),
		mcpSnoozeDomain(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"journal://recent",
			"Recent Entries",
			mcp.WithResourceDescription("Last 10 journal entries (truncated)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"journal://insights",
			"Revealed Insights",
			mcp.WithResourceDescription("Insights whose reveal date has passed"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceInsights(deps),
	)

	return s
}

func mcpAddEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		domains := req.GetStringSlice("domains", nil)

		now := time.Now().UTC()
		entry := storage.Entry{
			ID:                uuid.New().String(),
			UserID:            deps.UserID,
			Content:           content,
			Domains:           domains,
			ExtractionVersion: 1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := deps.Store.SaveEntry(ctx, entry); err != nil {
			return mcpError(fmt.Sprintf("failed to save entry: %v", err)), nil
		}

		if err := worker.EnqueueExtraction(ctx, deps.Store, entry.ID, entry.ExtractionVersion); err != nil {
			return mcpError(fmt.Sprintf("saved entry but failed to queue extraction: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored entry %s", entry.ID)), nil
	}
}

func mcpUpcomingSignals(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		days := req.GetInt("days", 30)
		if days <= 0 {
			days = 30
		}
		if days > 365 {
			days = 365
		}

		now := time.Now()
		signals, err := deps.Store.ListUpcomingSignals(ctx, deps.UserID, now, now.AddDate(0, 0, days))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list signals: %v", err)), nil
		}

		if len(signals) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(signals)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal signals: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGapPrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := deps.Generator.GenerateGapPrompt(ctx, deps.UserID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to generate prompt: %v", err)), nil
		}
		if prompt == nil {
			return mcpText("No gap prompt right now."), nil
		}
		return mcpText(prompt.Text), nil
	}
}

func mcpSnoozeDomain(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		domain, err := req.RequireString("domain")
		if err != nil {
			return mcpError("domain is required"), nil
		}

		if err := deps.Engagement.SnoozeDomain(ctx, deps.UserID, domain); err != nil {
			return mcpError(fmt.Sprintf("failed to snooze domain: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Snoozed %s", domain)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Store.ListRecentEntries(ctx, deps.UserID, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list entries: %w", err)
		}

		type entrySummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Content   string `json:"content"`
		}

		summaries := make([]entrySummary, len(entries))
		for i, e := range entries {
			content := e.Content
			if len(content) > 200 {
				runes := []rune(content)
				if len(runes) > 200 {
					content = string(runes[:200]) + "..."
				}
			}
			summaries[i] = entrySummary{
				ID:        e.ID,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
				Content:   content,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entries: %w", err)
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

func mcpResourceInsights(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		insights, err := deps.Store.ListInsights(ctx, deps.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to list insights: %w", err)
		}

		now := time.Now()
		visible := make([]insightResponse, 0, len(insights))
		for _, i := range insights {
			if reveal.IsVisible(i, now) {
				visible = append(visible, toInsightResponse(i))
			}
		}

		b, err := json.Marshal(visible)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal insights: %w", err)
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
