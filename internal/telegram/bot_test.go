package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"meal-plan-coordinator/internal/run"
	"meal-plan-coordinator/internal/runstore"
	"meal-plan-coordinator/internal/shopping"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// --- Mocks ---

type MockSender struct {
	mu   sync.Mutex
	Sent []tgbotapi.MessageConfig
	sent chan struct{}
}

func newMockSender() *MockSender {
	return &MockSender{sent: make(chan struct{}, 16)}
}

func (m *MockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	m.mu.Unlock()
	m.sent <- struct{}{}
	return tgbotapi.Message{}, nil
}

func (m *MockSender) last() tgbotapi.MessageConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sent[len(m.Sent)-1]
}

func storeRecord(t *testing.T, store runstore.Store, runID, record string) {
	t.Helper()
	if err := store.Set(context.Background(), runstore.RunKey(runID), []byte(record), time.Minute); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
}

// --- Tests ---

func TestHandleCommand_Status(t *testing.T) {
	ctx := context.Background()
	store := runstore.NewMemoryStore()
	b := newBot(newMockSender(), 0, store, nil, t.TempDir())

	storeRecord(t, store, "running123", `{"status":"running","phase":"market","startedAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:01:00Z"}`)
	storeRecord(t, store, "failed1234", `{"status":"failed","payload":{"kind":"ProviderFailure","error":"both providers timed out"},"startedAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:01:00Z"}`)

	artifact, _ := json.Marshal(run.Artifact{Provider: "groq", FailedIngredients: 1, ShoppingList: shopping.ShoppingList{TotalCost: 6.88, Items: map[string]shopping.LineItem{"a|g": {}, "b|g": {}}}})
	storeRecord(t, store, "complete12", `{"status":"complete","payload":`+string(artifact)+`,"startedAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:01:00Z"}`)

	tests := map[string][]string{
		"/status running123": {"running", "*market*"},
		"/status failed1234": {"failed (ProviderFailure)", "both providers timed out"},
		"/status complete12": {"complete", "*groq*", "2 shopping items", "6.88", "1 ingredients need a manual pick"},
		"/status missing123": {"unknown or has expired"},
		"/status":            {"Usage: /status"},
		"/help":              {"/status <runId>", "/metrics"},
	}
	for cmd, wants := range tests {
		t.Run(cmd, func(t *testing.T) {
			reply := b.HandleCommand(ctx, cmd)
			for _, want := range wants {
				if !strings.Contains(reply, want) {
					t.Errorf("Expected reply to contain %q, got %q", want, reply)
				}
			}
		})
	}
}

func TestHandleCommand_MetricsDisabled(t *testing.T) {
	b := newBot(newMockSender(), 0, nil, nil, t.TempDir())
	if reply := b.HandleCommand(context.Background(), "/metrics"); reply != "Metrics are not enabled." {
		t.Errorf("Expected metrics disabled reply, got %q", reply)
	}
	if reply := b.HandleCommand(context.Background(), "/status abc1234567"); !strings.Contains(reply, "not configured") {
		t.Errorf("Expected store not configured reply, got %q", reply)
	}
}

func TestPublishAndRun(t *testing.T) {
	sender := newMockSender()
	b := newBot(sender, 42, nil, nil, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Publish(run.Event{Type: run.EventLog, RunID: "r1", Message: "noise"})
	b.Publish(run.Event{Type: run.EventPhase, RunID: "r1", Phase: run.PhasePlanning})

	select {
	case <-sender.sent:
	case <-time.After(time.Second):
		t.Fatal("Expected a notification to be sent")
	}
	msg := sender.last()
	if msg.ChatID != 42 || !strings.Contains(msg.Text, "*planning*") {
		t.Errorf("Unexpected notification %+v", msg)
	}

	b.Publish(run.Event{Type: run.EventFailed, RunID: "r1", Data: run.FailurePayload{Kind: run.KindTimeout, Error: "took `too` long"}})
	select {
	case <-sender.sent:
	case <-time.After(time.Second):
		t.Fatal("Expected a failure notification")
	}
	if text := sender.last().Text; !strings.Contains(text, "(Timeout)") || strings.Contains(text, "`too`") {
		t.Errorf("Expected sanitized failure text, got %q", text)
	}
}

func TestPublish_NoChatConfigured(t *testing.T) {
	b := newBot(newMockSender(), 0, nil, nil, t.TempDir())
	b.Publish(run.Event{Type: run.EventPhase, RunID: "r1"})
	if len(b.queue) != 0 {
		t.Error("Expected events to be ignored without a chat id")
	}
}

func TestServeHTTP(t *testing.T) {
	sender := newMockSender()
	store := runstore.NewMemoryStore()
	b := newBot(sender, 0, store, nil, t.TempDir())

	body := `{"update_id":1,"message":{"message_id":7,"chat":{"id":99,"type":"private"},"text":"/status abc1234567"}}`
	rr := httptest.NewRecorder()
	b.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if len(sender.Sent) != 1 || sender.Sent[0].ChatID != 99 {
		t.Fatalf("Expected one reply to chat 99, got %+v", sender.Sent)
	}
	if !strings.Contains(sender.Sent[0].Text, "unknown") {
		t.Errorf("Expected unknown run reply, got %q", sender.Sent[0].Text)
	}

	rr = httptest.NewRecorder()
	b.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed update, got %d", rr.Code)
	}
}
