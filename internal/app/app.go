package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"meal-plan-coordinator/internal/catalog"
	"meal-plan-coordinator/internal/config"
	"meal-plan-coordinator/internal/database"
	"meal-plan-coordinator/internal/llm"
	"meal-plan-coordinator/internal/market"
	"meal-plan-coordinator/internal/metrics"
	"meal-plan-coordinator/internal/nutrition"
	"meal-plan-coordinator/internal/planner"
	"meal-plan-coordinator/internal/run"
	"meal-plan-coordinator/internal/runstore"
	"meal-plan-coordinator/internal/server"
	"meal-plan-coordinator/internal/shopping"
	"meal-plan-coordinator/internal/telegram"
	"meal-plan-coordinator/internal/voicetoken"
)

const planTemperature = 0.4

// App holds the application's dependencies.
type App struct {
	cfg          *config.Config
	db           *database.DB
	runStore     *runstore.SQLiteStore
	metricsStore *metrics.Store
	hub          *run.Hub
	coordinator  *run.Coordinator
	planner      *planner.Planner
	resolver     *market.Resolver
	planRepo     *planner.PlanRepository
	listRepo     *shopping.Repository
	minter       *voicetoken.Minter
	bot          *telegram.Bot
	closers      []llm.Closer
}

// New opens the database and builds provider and catalog clients from cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	geminiClient, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, planTemperature)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	groqClient := llm.NewGroqClient(cfg.GroqAPIKey, planTemperature)

	providers := OrderProviders(cfg.PrimaryProvider,
		llm.Provider{Name: "gemini", Generator: geminiClient},
		llm.Provider{Name: "groq", Generator: groqClient},
	)

	a, err := Build(cfg, db, providers, NewCatalog(cfg))
	if err != nil {
		geminiClient.Close()
		db.Close()
		return nil, err
	}
	a.closers = append(a.closers, geminiClient)

	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBot(cfg, a.runStore, a.metricsStore)
		if err != nil {
			log.Printf("Telegram disabled: %v", err)
		} else {
			a.bot = bot
		}
	}
	return a, nil
}

// Build wires the application around ready providers and a catalog.
func Build(cfg *config.Config, db *database.DB, providers []llm.Provider, cat catalog.Catalog) (*App, error) {
	metricsStore := metrics.NewStore(db.SQL)

	gateway, err := llm.NewGateway(cfg.ProviderTimeout, providers...)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider gateway: %w", err)
	}
	gateway.WithRecorder(metricsStore)

	a := &App{
		cfg:          cfg,
		db:           db,
		runStore:     runstore.NewSQLiteStore(db.SQL),
		metricsStore: metricsStore,
		hub:          run.NewHub(run.DefaultBuffer),
		planner:      planner.NewPlanner(gateway),
		resolver:     market.NewResolver(cat, catalog.NewNutritionCache(cat), cfg.ResolverWorkers),
		planRepo:     planner.NewPlanRepository(db.SQL),
		listRepo:     shopping.NewRepository(db.SQL),
		minter:       voicetoken.NewMinter(cfg.VoiceScopedKey, cfg.VoiceMasterKey),
	}
	return a, nil
}

// OrderProviders puts the configured primary provider first.
func OrderProviders(primary string, gemini, groq llm.Provider) []llm.Provider {
	if primary == groq.Name {
		return []llm.Provider{groq, gemini}
	}
	return []llm.Provider{gemini, groq}
}

// NewCatalog creates the catalog client selected by CATALOG_KIND.
func NewCatalog(cfg *config.Config) catalog.Catalog {
	if cfg.CatalogKind == "html" {
		return catalog.NewHTMLClient(cfg.CatalogURL, catalog.DefaultSelectors, cfg.CatalogRPS)
	}
	return catalog.NewAPIClient(cfg.CatalogURL, cfg.CatalogAPIKey, "", cfg.CatalogRPS)
}

func (a *App) runOptions() run.Options {
	return run.Options{TTL: a.cfg.RunTTL, Timeout: a.cfg.RunTimeout}
}

// Coordinator returns the shared run coordinator, creating it on first use.
// Runs are published to the in-process hub and, when enabled, Telegram.
func (a *App) Coordinator() *run.Coordinator {
	if a.coordinator == nil {
		sinks := []run.Sink{a.hub}
		if a.bot != nil {
			sinks = append(sinks, a.bot)
		}
		a.coordinator = run.NewCoordinator(a.runStore, a.planner, a.resolver, a.runOptions(), sinks...)
	}
	return a.coordinator
}

// Port is the HTTP listen port.
func (a *App) Port() string {
	return a.cfg.Port
}

// Server builds the HTTP API.
func (a *App) Server() *server.Server {
	deps := server.Deps{
		Store:   a.runStore,
		Runs:    a.Coordinator(),
		Events:  a.hub,
		Plans:   a.planRepo,
		Lists:   a.listRepo,
		Voice:   a.minter,
		DataDir: filepath.Dir(a.cfg.DatabasePath),
	}
	if a.bot != nil {
		deps.Telegram = a.bot
	}
	return server.New(deps)
}

// StartBackground runs the Telegram sender and the expired-run janitor
// until ctx is done.
func (a *App) StartBackground(ctx context.Context, janitorEvery time.Duration) {
	if a.bot != nil {
		go a.bot.Run(ctx)
	}
	go func() {
		ticker := time.NewTicker(janitorEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := a.CleanupRuns(ctx); err != nil {
					log.Printf("Run cleanup failed: %v", err)
				} else if n > 0 {
					log.Printf("Removed %d expired run entries", n)
				}
			}
		}
	}()
}

// GenerateOnce runs the whole pipeline synchronously on an in-memory run
// store. It is used by the CLI.
func (a *App) GenerateOnce(ctx context.Context, profile nutrition.Profile) (*run.Artifact, error) {
	c := run.NewCoordinator(runstore.NewMemoryStore(), a.planner, a.resolver, a.runOptions())
	runID, err := c.StartRun(ctx, profile)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RunTimeout)
	defer cancel()
	return c.Execute(ctx, runID, profile)
}

// CleanupRuns deletes expired run records and diagnostics.
func (a *App) CleanupRuns(ctx context.Context) (int64, error) {
	return a.runStore.Cleanup(ctx)
}

// CleanupMetrics removes metric records older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	return a.metricsStore.Cleanup(ctx, days)
}

// Shutdown waits for background runs to finish or ctx to expire.
func (a *App) Shutdown(ctx context.Context) error {
	if a.coordinator == nil {
		return nil
	}
	return a.coordinator.Wait(ctx)
}

// Close releases provider clients and the database.
func (a *App) Close() error {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Printf("Failed to close client: %v", err)
		}
	}
	return a.db.Close()
}
