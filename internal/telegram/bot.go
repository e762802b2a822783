package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"meal-plan-coordinator/internal/config"
	"meal-plan-coordinator/internal/metrics"
	"meal-plan-coordinator/internal/run"
	"meal-plan-coordinator/internal/runstore"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const queueSize = 32

// Sender is the part of the Telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot mirrors run progress into a Telegram chat and answers /status and
// /metrics commands from the webhook.
type Bot struct {
	api          Sender
	store        runstore.Store
	metricsStore *metrics.Store
	dataDir      string
	chatID       int64
	queue        chan run.Event
}

// NewBot initializes the Telegram API and sets the webhook when one is
// configured.
func NewBot(cfg *config.Config, store runstore.Store, metricsStore *metrics.Store) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	log.Printf("Authorized on account %s", api.Self.UserName)

	if cfg.TelegramWebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
		}
		resp, err := api.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
		}
		log.Printf("Webhook set response: %s", resp.Description)
	}

	return newBot(api, cfg.TelegramChatID, store, metricsStore, filepath.Dir(cfg.DatabasePath)), nil
}

func newBot(api Sender, chatID int64, store runstore.Store, metricsStore *metrics.Store, dataDir string) *Bot {
	return &Bot{
		api:          api,
		store:        store,
		metricsStore: metricsStore,
		dataDir:      dataDir,
		chatID:       chatID,
		queue:        make(chan run.Event, queueSize),
	}
}

// Publish queues phase and terminal events for the notification chat. Log
// and ingredient events are too chatty and are ignored.
func (b *Bot) Publish(e run.Event) {
	if b.chatID == 0 {
		return
	}
	switch e.Type {
	case run.EventPhase, run.EventComplete, run.EventFailed:
	default:
		return
	}
	select {
	case b.queue <- e:
	default:
		log.Printf("Telegram queue full, dropping %s event for run %s", e.Type, e.RunID)
	}
}

// Run sends queued notifications until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			b.send(b.chatID, FormatEvent(e))
		}
	}
}

// ServeHTTP handles webhook updates.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Printf("Error parsing update: %v", err)
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if update.Message == nil || update.Message.Chat == nil {
		return
	}
	if reply := b.HandleCommand(r.Context(), update.Message.Text); reply != "" {
		b.send(update.Message.Chat.ID, reply)
	}
}

// HandleCommand returns the reply to a chat message.
func (b *Bot) HandleCommand(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}

	switch fields[0] {
	case "/status":
		if len(fields) < 2 {
			return "Usage: /status <runId>"
		}
		return b.statusReply(ctx, fields[1])
	case "/metrics":
		return b.metricsReply(ctx)
	default:
		return "Commands:\n/status <runId> - show the state of a plan run\n/metrics - provider usage and system health"
	}
}

func (b *Bot) statusReply(ctx context.Context, runID string) string {
	if b.store == nil {
		return "⚠️ Run store is not configured."
	}
	state, err := run.Lookup(ctx, b.store, runID)
	if errors.Is(err, runstore.ErrUnavailable) {
		return "⚠️ Run store is unavailable, try again shortly."
	}
	if err != nil {
		log.Printf("Error reading run %s: %v", runID, err)
		return "❌ Could not read that run."
	}
	return FormatState(runID, state)
}

func (b *Bot) metricsReply(ctx context.Context) string {
	if b.metricsStore == nil {
		return "Metrics are not enabled."
	}
	usage, err := b.metricsStore.GetDailyUsage(ctx, 7)
	if err != nil {
		log.Printf("Error fetching metrics: %v", err)
		return "❌ Error fetching metrics."
	}
	providers, err := b.metricsStore.GetProviderUsage(ctx, 7)
	if err != nil {
		log.Printf("Error fetching provider metrics: %v", err)
		return "❌ Error fetching metrics."
	}
	return FormatMetrics(usage, providers, metrics.GetSysHealth(b.dataDir))
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Failed to send telegram message: %v", err)
	}
}

// FormatEvent renders a run event as a chat message.
func FormatEvent(e run.Event) string {
	switch e.Type {
	case run.EventPhase:
		return fmt.Sprintf("🔄 Run `%s`: *%s*", e.RunID, e.Phase)
	case run.EventComplete:
		if raw, ok := e.Data.(json.RawMessage); ok {
			return completeText(e.RunID, raw)
		}
		return fmt.Sprintf("✅ Run `%s` complete", e.RunID)
	case run.EventFailed:
		if detail, ok := e.Data.(run.FailurePayload); ok {
			return failedText(e.RunID, detail)
		}
		return fmt.Sprintf("❌ Run `%s` failed: %s", e.RunID, e.Message)
	default:
		return fmt.Sprintf("Run `%s`: %s", e.RunID, e.Message)
	}
}

// FormatState renders a looked-up run state.
func FormatState(runID string, state run.State) string {
	switch s := state.(type) {
	case run.Running:
		return fmt.Sprintf("⏳ Run `%s` is running\nPhase: *%s*\nStarted: %s", runID, s.Phase, humanize.Time(s.StartedAt))
	case run.Complete:
		return completeText(runID, s.Payload)
	case run.Failed:
		var detail run.FailurePayload
		if err := json.Unmarshal(s.Payload, &detail); err != nil {
			return fmt.Sprintf("❌ Run `%s` failed", runID)
		}
		return failedText(runID, detail)
	default:
		return fmt.Sprintf("❔ Run `%s` is unknown or has expired.", runID)
	}
}

func completeText(runID string, payload json.RawMessage) string {
	var a run.Artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Sprintf("✅ Run `%s` complete", runID)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Run `%s` complete\n", runID))
	sb.WriteString(fmt.Sprintf("• Plan from *%s*\n", a.Provider))
	sb.WriteString(fmt.Sprintf("• %d shopping items, total *%s*\n", len(a.ShoppingList.Items), humanize.FormatFloat("#,###.##", a.ShoppingList.TotalCost)))
	if a.FailedIngredients > 0 {
		sb.WriteString(fmt.Sprintf("• ⚠️ %d ingredients need a manual pick\n", a.FailedIngredients))
	}
	return sb.String()
}

func failedText(runID string, d run.FailurePayload) string {
	safeErr := strings.ReplaceAll(d.Error, "`", "'")
	return fmt.Sprintf("❌ Run `%s` failed (%s)\n```\n%s\n```", runID, d.Kind, safeErr)
}

// FormatMetrics renders the usage and health report.
func FormatMetrics(usage []metrics.DailyUsage, providers []metrics.ProviderUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %s tokens (%d execs, %d failed)\n", d.Date, humanize.Comma(int64(d.TotalPrompt+d.TotalCompletion)), d.TotalExecution, d.Failures))
	}

	if len(providers) > 0 {
		sb.WriteString("\n🔀 *Providers*\n")
		for _, p := range providers {
			sb.WriteString(fmt.Sprintf("• %s: %d/%d ok, avg %dms\n", p.Provider, p.Successes, p.Attempts, p.AvgLatencyMS))
		}
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %s (Alloc) / %s (Sys)\n", health.Alloc, health.Sys))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))
	return sb.String()
}
