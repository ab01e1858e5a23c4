package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/driftline-app/driftline/internal/engagement"
	"github.com/driftline-app/driftline/internal/gaps"
	"github.com/driftline-app/driftline/internal/signal"
	"github.com/driftline-app/driftline/internal/storage"
	"github.com/driftline-app/driftline/internal/worker"
)

// --- mocks ---

type mockPromptGenerator struct {
	prompt *gaps.GapPrompt
	err    error
}

func (m *mockPromptGenerator) GenerateGapPrompt(_ context.Context, _ string) (*gaps.GapPrompt, error) {
	return m.prompt, m.err
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store:      store,
		Generator:  &mockPromptGenerator{},
		Engagement: engagement.NewManager(store),
		UserID:     defaultUserID,
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_AddEntry(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpAddEntry(deps)

	req := makeCallToolRequest("add_entry", map[string]interface{}{
		"content": "Dentist appointment on Friday, dreading it",
		"domains": []string{"health"},
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	entries, err := store.ListRecentEntries(ctx, defaultUserID, 10)
	if err != nil {
		t.Fatalf("listing entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Content != "Dentist appointment on Friday, dreading it" {
		t.Fatalf("unexpected content: %s", entries[0].Content)
	}

	job, err := store.ClaimNextJob(ctx, []string{worker.JobTypeExtractSignals})
	if err != nil {
		t.Fatalf("claiming job: %v", err)
	}
	if job == nil {
		t.Fatal("expected an extraction job to be queued")
	}
}

func TestMCPTool_AddEntry_MissingContent(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpAddEntry(deps)

	result, err := handler(context.Background(), makeCallToolRequest("add_entry", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when content is missing")
	}
}

func TestMCPTool_UpcomingSignals(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	e := seedEntry(t, store, "dinner friday")
	sig := signal.Signal{
		Kind: signal.KindPlan, Content: "team dinner", TargetDay: "friday",
		TargetDate: time.Now().AddDate(0, 0, 2),
		Sentiment:  signal.SentimentPositive, OriginalPhrase: "dinner friday", Confidence: 0.8,
	}
	if err := store.ReplaceEntrySignals(ctx, e.ID, []signal.Signal{sig}); err != nil {
		t.Fatalf("ReplaceEntrySignals failed: %v", err)
	}

	handler := mcpUpcomingSignals(deps)
	result, err := handler(context.Background(), makeCallToolRequest("upcoming_signals", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var signals []json.RawMessage
	if err := json.Unmarshal([]byte(toolText(t, result)), &signals); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
}

func TestMCPTool_UpcomingSignals_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpUpcomingSignals(deps)

	result, err := handler(context.Background(), makeCallToolRequest("upcoming_signals", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_GapPrompt(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Generator = &mockPromptGenerator{prompt: &gaps.GapPrompt{
		Domain: "health",
		Style:  gaps.StyleGentle,
		Text:   "It's been a while since you wrote about health. How are you doing?",
	}}
	handler := mcpGapPrompt(deps)

	result, err := handler(context.Background(), makeCallToolRequest("gap_prompt", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "health") {
		t.Fatalf("unexpected prompt text: %s", toolText(t, result))
	}
}

func TestMCPTool_GapPrompt_NoneAvailable(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpGapPrompt(deps)

	result, err := handler(context.Background(), makeCallToolRequest("gap_prompt", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "No gap prompt right now." {
		t.Fatalf("unexpected response: %s", text)
	}
}

func TestMCPTool_GapPrompt_Error(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Generator = &mockPromptGenerator{err: errors.New("detector unavailable")}
	handler := mcpGapPrompt(deps)

	result, err := handler(context.Background(), makeCallToolRequest("gap_prompt", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_SnoozeDomain(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSnoozeDomain(deps)

	result, err := handler(context.Background(), makeCallToolRequest("snooze_domain", map[string]interface{}{
		"domain": "health",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	prefs, err := deps.Engagement.Get(context.Background(), defaultUserID)
	if err != nil {
		t.Fatalf("getting preferences: %v", err)
	}
	if until, ok := prefs.SnoozeUntil["health"]; !ok || !until.After(time.Now()) {
		t.Fatalf("SnoozeUntil[health] = %v, want a future instant", until)
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedEntry(t, store, "a quiet day, mostly reading")

	handler := mcpResourceRecent(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("journal://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []json.RawMessage
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(summaries))
	}
}
