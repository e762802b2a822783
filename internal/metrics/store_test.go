package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meal-plan-coordinator/internal/database"
	"meal-plan-coordinator/internal/shared"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewDB(filepath.Join(dir, "metrics.db"))
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db.SQL), dir
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	metas := []shared.AgentMeta{
		{AgentName: "Planner", Provider: "gemini", Latency: 60 * time.Second},
		{AgentName: "Planner", Provider: "groq", Usage: shared.TokenUsage{PromptTokens: 100, CompletionTokens: 50, Model: "llama"}, Latency: 2 * time.Second, Success: true},
	}
	for _, m := range metas {
		if err := s.RecordMeta(m); err != nil {
			t.Fatalf("RecordMeta failed: %v", err)
		}
	}
	old := ExecutionMetric{AgentName: "Planner", Provider: "groq", PromptTokens: 10, Success: true, Timestamp: now.AddDate(0, 0, -40)}
	if err := s.Record(ctx, old); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	t.Run("DailyUsage", func(t *testing.T) {
		usage, err := s.GetDailyUsage(ctx, 7)
		if err != nil {
			t.Fatalf("GetDailyUsage failed: %v", err)
		}
		if len(usage) != 1 {
			t.Fatalf("Expected one day of usage, got %+v", usage)
		}
		u := usage[0]
		if u.Date != "2024-03-10" || u.TotalPrompt != 100 || u.TotalCompletion != 50 || u.TotalExecution != 2 || u.Failures != 1 {
			t.Errorf("Unexpected daily usage %+v", u)
		}
	})

	t.Run("ProviderUsage", func(t *testing.T) {
		usage, err := s.GetProviderUsage(ctx, 7)
		if err != nil {
			t.Fatalf("GetProviderUsage failed: %v", err)
		}
		if len(usage) != 2 || usage[0].Provider != "gemini" || usage[0].Successes != 0 || usage[1].Successes != 1 {
			t.Errorf("Unexpected provider usage %+v", usage)
		}
	})

	t.Run("Cleanup", func(t *testing.T) {
		n, err := s.Cleanup(ctx, 30)
		if err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 old record removed, got %d", n)
		}
	})
}

func TestGetSysHealth(t *testing.T) {
	_, dir := newTestStore(t)
	h := GetSysHealth(dir)
	if h.Goroutines < 1 {
		t.Errorf("Expected at least one goroutine, got %d", h.Goroutines)
	}
	if h.DataDiskSize == "" || h.DataDiskSize == "0 B" {
		t.Errorf("Expected non-empty data size, got %q", h.DataDiskSize)
	}
}
