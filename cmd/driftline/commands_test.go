package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/driftline-app/driftline/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAddEntry(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /entries": `{"id":"entry-123","status":"queued"}`,
	})

	client := ts.client()

	req := map[string]any{
		"content": "dentist appointment next Tuesday",
		"domains": []string{"health"},
	}

	resp, err := client.post(ctx, "/entries", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result["status"] != "queued" {
		t.Errorf("status = %q, want %q", result["status"], "queued")
	}
	if result["id"] != "entry-123" {
		t.Errorf("id = %q, want %q", result["id"], "entry-123")
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["content"] != "dentist appointment next Tuesday" {
		t.Errorf("body.content = %v", body["content"])
	}
}

func TestAddCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"add"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing entry text")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestImportCommand_RequiresExactlyOneSource(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"import"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error when neither --html nor --pdf is given")
	}

	rootCmd.SetArgs([]string{"import", "--html", "a.html", "--pdf", "b.pdf"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error when both --html and --pdf are given")
	}
}

func TestUpcomingSignals(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /signals/upcoming": `[{"kind":"deadline","content":"tax filing","target_date":"2026-04-15T00:00:00Z","sentiment":"dreading","confidence":0.9}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/signals/upcoming?days=30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var signals []signalView
	if err := decodeJSON(resp, &signals); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Kind != "deadline" {
		t.Errorf("kind = %q, want deadline", signals[0].Kind)
	}
	if signals[0].Sentiment != "dreading" {
		t.Errorf("sentiment = %q, want dreading", signals[0].Sentiment)
	}

	if !strings.Contains(ts.requests[0].Path, "days=30") {
		t.Errorf("path = %q, want it to carry days=30", ts.requests[0].Path)
	}
}

func TestGapPrompt_Null(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /prompts/gap": `{"prompt":null}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/prompts/gap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Prompt *struct {
			Text string `json:"text"`
		} `json:"prompt"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Prompt != nil {
		t.Errorf("prompt = %+v, want nil", result.Prompt)
	}
}

func TestTransitionEntity(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /entities/ent-1/transition": `{"id":"ent-1","topic":"marathon","state":"achieved"}`,
	})

	client := ts.client()
	body := map[string]any{"to": "achieved", "reason": "crossed the finish line"}
	resp, err := client.post(ctx, "/entities/ent-1/transition", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entity struct {
		State string `json:"state"`
	}
	if err := decodeJSON(resp, &entity); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if entity.State != "achieved" {
		t.Errorf("state = %q, want achieved", entity.State)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sent["reason"] != "crossed the finish line" {
		t.Errorf("body.reason = %v", sent["reason"])
	}
}

func TestInsightsList_Envelope(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /insights": `{"insights":[{"id":"ins-1","content":"You write about work 3x more than health","revealed":false,"confidence":0.8}],"counts":{"visible":1,"pending":4}}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/insights")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Insights []struct {
			ID string `json:"id"`
		} `json:"insights"`
		Counts struct {
			Visible int `json:"visible"`
			Pending int `json:"pending"`
		} `json:"counts"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(result.Insights) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(result.Insights))
	}
	if result.Counts.Pending != 4 {
		t.Errorf("pending = %d, want 4", result.Counts.Pending)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/entries")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	t.Setenv("NO_COLOR", "")

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}

	t.Setenv("NO_COLOR", "1")
	result = colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("colorize with NO_COLOR set = %q, want plain text", result)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.Ollama.Model = "phi3.5"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4600" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
