package comprehension

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/driftline-app/driftline/internal/ollama"
)

// mockChatter implements OllamaChatter for testing.
type mockChatter struct {
	response string
	err      error
	messages []ollama.Message
}

func (m *mockChatter) Chat(_ context.Context, _ string, messages []ollama.Message, _ *ollama.Schema) (string, error) {
	m.messages = messages
	return m.response, m.err
}

var ref = time.Date(2026, 3, 11, 10, 0, 0, 0, time.Local)

func TestProposeSignals_WellFormed(t *testing.T) {
	mock := &mockChatter{
		response: `{"signals":[{"type":"plan","content":"dentist visit","target_day":"tomorrow","sentiment":"anxious","original_phrase":"dentist appointment tomorrow","confidence":0.85,"reasoning":"explicit appointment with a date"}]}`,
	}
	c := NewClient(mock, "phi3.5")

	got, err := c.ProposeSignals(context.Background(), "dentist appointment tomorrow, dreading it", ref)
	if err != nil {
		t.Fatalf("ProposeSignals: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(got))
	}
	p := got[0]
	if p.Type != "plan" || p.TargetDay != "tomorrow" || p.Confidence != 0.85 {
		t.Errorf("unexpected proposal: %+v", p)
	}
}

func TestProposeSignals_FencedResponse(t *testing.T) {
	mock := &mockChatter{
		response: "Here you go:\n```json\n{\"signals\":[{\"type\":\"event\",\"content\":\"team offsite\",\"target_day\":\"next_friday\",\"sentiment\":\"excited\",\"confidence\":0.7}]}\n```",
	}
	c := NewClient(mock, "phi3.5")

	got, err := c.ProposeSignals(context.Background(), "offsite next friday!", ref)
	if err != nil {
		t.Fatalf("ProposeSignals: %v", err)
	}
	if len(got) != 1 || got[0].Content != "team offsite" {
		t.Fatalf("unexpected proposals: %+v", got)
	}
}

func TestProposeSignals_MalformedJSON(t *testing.T) {
	mock := &mockChatter{
		response: `not valid json {{{`,
	}
	c := NewClient(mock, "phi3.5")

	got, err := c.ProposeSignals(context.Background(), "something tomorrow", ref)
	if err != nil {
		t.Fatalf("malformed output must not be an error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected zero proposals, got %+v", got)
	}
}

func TestProposeSignals_EmptySignalsArray(t *testing.T) {
	mock := &mockChatter{
		response: `{"signals":[]}`,
	}
	c := NewClient(mock, "phi3.5")

	got, err := c.ProposeSignals(context.Background(), "had pasta for lunch", ref)
	if err != nil {
		t.Fatalf("ProposeSignals: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected zero proposals, got %+v", got)
	}
}

func TestProposeSignals_OllamaDown(t *testing.T) {
	mock := &mockChatter{
		err: fmt.Errorf("connection refused"),
	}
	c := NewClient(mock, "phi3.5")

	if _, err := c.ProposeSignals(context.Background(), "something tomorrow", ref); err == nil {
		t.Fatal("transport errors must propagate")
	}
}

func TestProposeSignals_EmptyText(t *testing.T) {
	mock := &mockChatter{response: `{"signals":[]}`}
	c := NewClient(mock, "phi3.5")

	got, err := c.ProposeSignals(context.Background(), "", ref)
	if err != nil || got != nil {
		t.Fatalf("empty text: got %v, %v", got, err)
	}
	if mock.messages != nil {
		t.Error("empty text must not reach the model")
	}
}

func TestBuildPrompt(t *testing.T) {
	messages := BuildPrompt("gym every monday", ref)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("first message role = %q", messages[0].Role)
	}
	user := messages[1].Content
	if !strings.Contains(user, "Wednesday") || !strings.Contains(user, "2026-03-11") {
		t.Errorf("user message missing reference date: %q", user)
	}
	if !strings.Contains(user, "gym every monday") {
		t.Errorf("user message missing entry text: %q", user)
	}
}
