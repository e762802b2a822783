package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"meal-plan-coordinator/internal/shared"
)

// --- Mocks ---

type MockTextGenerator struct {
	Response string
	Err      error
	Block    bool
	Calls    int
	mu       sync.Mutex
}

func (m *MockTextGenerator) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()

	if m.Block {
		<-ctx.Done()
		return ContentResponse{}, ctx.Err()
	}
	if m.Err != nil {
		return ContentResponse{}, m.Err
	}
	return ContentResponse{Content: m.Response, Usage: shared.TokenUsage{PromptTokens: 10, CompletionTokens: 5, Model: "mock"}}, nil
}

// StallingGenerator ignores cancellation until released.
type StallingGenerator struct {
	Release  chan struct{}
	Returned chan struct{}
}

func (s *StallingGenerator) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	<-s.Release
	defer close(s.Returned)
	return ContentResponse{Content: `{"value": 1}`}, nil
}

type MockRecorder struct {
	mu    sync.Mutex
	Metas []shared.AgentMeta
}

func (m *MockRecorder) RecordMeta(meta shared.AgentMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Metas = append(m.Metas, meta)
	return nil
}

type answer struct {
	Value int `json:"value"`
}

func decodeAnswer(content string) (answer, error) {
	var a answer
	if err := json.Unmarshal([]byte(CleanJSON(content)), &a); err != nil {
		return a, err
	}
	if a.Value <= 0 {
		return a, fmt.Errorf("value must be positive")
	}
	return a, nil
}

// --- Tests ---

func TestNewGateway(t *testing.T) {
	g := &MockTextGenerator{}

	if _, err := NewGateway(time.Second); err == nil {
		t.Error("Expected error for zero providers")
	}
	if _, err := NewGateway(time.Second, Provider{"a", g}, Provider{"b", g}, Provider{"c", g}); err == nil {
		t.Error("Expected error for three providers")
	}
	gw, err := NewGateway(time.Second, Provider{"a", g}, Provider{"b", g})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if names := gw.ProviderNames(); len(names) != 2 || names[0] != "a" {
		t.Errorf("Expected providers [a b], got %v", names)
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("PrimaryTimesOutSecondaryAnswers", func(t *testing.T) {
		primary := &MockTextGenerator{Block: true}
		secondary := &MockTextGenerator{Response: `{"value": 7}`}
		recorder := &MockRecorder{}
		gw, _ := NewGateway(30*time.Millisecond, Provider{"gemini", primary}, Provider{"groq", secondary})
		gw.WithRecorder(recorder)

		res, err := Generate(ctx, gw, "planner", "prompt", decodeAnswer)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Value.Value != 7 {
			t.Errorf("Expected value 7, got %d", res.Value.Value)
		}
		if res.Provider != "groq" {
			t.Errorf("Expected provider groq, got %s", res.Provider)
		}
		if len(res.Failures) != 1 {
			t.Errorf("Expected one failure, got %d", len(res.Failures))
		}

		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		// The primary honours cancellation, so its own report can land just after Generate returns.
		found := false
		for _, m := range recorder.Metas {
			if m.Success && m.Provider == "groq" && m.AgentName == "planner" {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected a successful groq attempt to be recorded, got %+v", recorder.Metas)
		}
	})

	t.Run("AbandonedAttemptIsReportedOnce", func(t *testing.T) {
		primary := &StallingGenerator{Release: make(chan struct{}), Returned: make(chan struct{})}
		secondary := &MockTextGenerator{Response: `{"value": 7}`}
		recorder := &MockRecorder{}
		gw, _ := NewGateway(30*time.Millisecond, Provider{"gemini", primary}, Provider{"groq", secondary})
		gw.WithRecorder(recorder)

		res, err := Generate(ctx, gw, "planner", "prompt", decodeAnswer)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(res.Meta) != 2 {
			t.Fatalf("Expected one meta per attempt, got %+v", res.Meta)
		}
		byProvider := map[string]shared.AgentMeta{}
		for _, m := range res.Meta {
			byProvider[m.Provider] = m
		}
		if m, ok := byProvider["gemini"]; !ok || m.Success {
			t.Errorf("Expected a failed gemini meta, got %+v", res.Meta)
		}
		if m, ok := byProvider["groq"]; !ok || !m.Success {
			t.Errorf("Expected a successful groq meta, got %+v", res.Meta)
		}

		close(primary.Release)
		<-primary.Returned
		time.Sleep(20 * time.Millisecond)

		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		if len(recorder.Metas) != 2 {
			t.Errorf("Expected 2 recorded attempts after the primary returned, got %+v", recorder.Metas)
		}
	})

	t.Run("SchemaInvalidFallsThrough", func(t *testing.T) {
		primary := &MockTextGenerator{Response: `{"value": -1}`}
		secondary := &MockTextGenerator{Response: "```json\n{\"value\": 3}\n```"}
		gw, _ := NewGateway(time.Second, Provider{"gemini", primary}, Provider{"groq", secondary})

		res, err := Generate(ctx, gw, "planner", "prompt", decodeAnswer)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Value.Value != 3 || res.Provider != "groq" {
			t.Errorf("Expected 3 from groq, got %d from %s", res.Value.Value, res.Provider)
		}
	})

	t.Run("BothFail", func(t *testing.T) {
		primary := &MockTextGenerator{Err: errors.New("rate limited")}
		secondary := &MockTextGenerator{Response: "not json"}
		gw, _ := NewGateway(time.Second, Provider{"gemini", primary}, Provider{"groq", secondary})

		_, err := Generate(ctx, gw, "planner", "prompt", decodeAnswer)
		if !errors.Is(err, ErrProviderFailure) {
			t.Errorf("Expected ErrProviderFailure, got %v", err)
		}
	})

	t.Run("PrimaryOnlyCalledOnce", func(t *testing.T) {
		primary := &MockTextGenerator{Response: `{"value": 1}`}
		secondary := &MockTextGenerator{Response: `{"value": 2}`}
		gw, _ := NewGateway(time.Second, Provider{"gemini", primary}, Provider{"groq", secondary})

		if _, err := Generate(ctx, gw, "planner", "prompt", decodeAnswer); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if secondary.Calls != 0 {
			t.Errorf("Expected secondary not to be called, got %d calls", secondary.Calls)
		}
	})
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Plain", `{"a":1}`, `{"a":1}`},
		{"Fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Prose", "Here you go: {\"a\":1} enjoy", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSON(tt.input); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
