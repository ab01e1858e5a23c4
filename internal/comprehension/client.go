// Package comprehension wraps the local LLM call that proposes
// signals from raw journal text. It owns the prompt, the output
// schema, and the tolerant parsing of whatever the model returns.
package comprehension

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/driftline-app/driftline/internal/ollama"
	"github.com/driftline-app/driftline/internal/signal"
)

const proposalTimeout = 60 * time.Second

// OllamaChatter is the interface for chat completion via Ollama.
type OllamaChatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Client proposes signals using a fast local LLM.
type Client struct {
	client OllamaChatter
	model  string
}

// NewClient creates a Client using the given Ollama client and model name.
func NewClient(client OllamaChatter, model string) *Client {
	return &Client{client: client, model: model}
}

// ProposeSignals asks the model for signal proposals in the entry
// text. Transport errors propagate so the caller's job can retry;
// malformed model output is treated as zero proposals, never an error.
// Validation of the proposals is the caller's job.
func (c *Client) ProposeSignals(ctx context.Context, text string, ref time.Time) ([]signal.Proposal, error) {
	if text == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, proposalTimeout)
	defer cancel()

	raw, err := c.client.Chat(ctx, c.model, BuildPrompt(text, ref), proposalSchema())
	if err != nil {
		return nil, fmt.Errorf("comprehension chat: %w", err)
	}

	proposals, err := parseProposals(raw)
	if err != nil {
		slog.Warn("failed to parse signal proposals from LLM response", "error", err, "response", raw)
		return nil, nil
	}
	return proposals, nil
}

// proposalSchema returns the Ollama JSON schema for structured signal output.
func proposalSchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"signals": {Type: "array", Description: "Time-anchored claims found in the entry, each with type, content, target_day, sentiment, original_phrase, confidence, reasoning"},
		},
		Required: []string{"signals"},
	}
}

// parseProposals robustly extracts the proposal list from an LLM
// response. Small local models frequently wrap JSON in markdown code
// fences or prepend conversational filler. The parser:
//  1. Strips markdown code fences if present (```json ... ```)
//  2. Finds the first { and last } to extract the JSON object
//  3. Attempts json.Unmarshal on the extracted substring
func parseProposals(resp string) ([]signal.Proposal, error) {
	s := strings.TrimSpace(resp)

	// Strip markdown code fences.
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	// Extract JSON object by brace position.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Signals []signal.Proposal `json:"signals"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal proposals: %w", err)
	}
	return obj.Signals, nil
}
