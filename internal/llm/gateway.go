package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"meal-plan-coordinator/internal/fallback"
	"meal-plan-coordinator/internal/shared"
)

// MaxProviders bounds the fallback chain: one primary and one secondary.
const MaxProviders = 2

// ErrProviderFailure is returned when no provider produced a valid response.
var ErrProviderFailure = errors.New("provider failure")

// Gateway calls providers in order, falling through on error, timeout or
// invalid output.
type Gateway struct {
	providers []Provider
	timeout   time.Duration
	recorder  shared.UsageRecorder
}

// NewGateway builds a gateway over one or two providers, tried in the given order.
func NewGateway(timeout time.Duration, providers ...Provider) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if len(providers) > MaxProviders {
		return nil, fmt.Errorf("at most %d providers are supported, got %d", MaxProviders, len(providers))
	}
	for _, p := range providers {
		if p.Generator == nil || p.Name == "" {
			return nil, fmt.Errorf("provider %q is not configured", p.Name)
		}
	}
	return &Gateway{providers: providers, timeout: timeout}, nil
}

// WithRecorder reports every attempt's metadata to r.
func (g *Gateway) WithRecorder(r shared.UsageRecorder) *Gateway {
	g.recorder = r
	return g
}

// ProviderNames lists the configured providers in call order.
func (g *Gateway) ProviderNames() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name
	}
	return names
}

// Result is a decoded provider response.
type Result[T any] struct {
	Value    T
	Provider string
	Meta     []shared.AgentMeta
	Failures []fallback.Failure
}

// Generate sends prompt through the gateway and decodes the first response
// that decode accepts. decode must reject structurally invalid output so the
// next provider gets a chance.
//
// Result.Meta holds exactly one entry per attempt made. An attempt abandoned
// at its timeout is reported from its failure; anything it returns later is
// ignored.
func Generate[T any](ctx context.Context, g *Gateway, agent, prompt string, decode func(content string) (T, error)) (Result[T], error) {
	seen := &attemptLog{agent: agent, recorded: make(map[string]bool)}

	attempts := make([]fallback.Attempt[T], 0, len(g.providers))
	for _, p := range g.providers {
		p := p
		attempts = append(attempts, fallback.Attempt[T]{
			Name:    p.Name,
			Timeout: g.timeout,
			Run: func(ctx context.Context) (T, error) {
				var zero T
				start := time.Now()
				resp, err := p.Generator.GenerateContent(ctx, prompt)
				meta := shared.AgentMeta{AgentName: agent, Provider: p.Name, Usage: resp.Usage, Latency: time.Since(start)}
				if err != nil {
					g.report(seen.add(meta))
					return zero, err
				}

				v, err := decode(resp.Content)
				if err != nil {
					g.report(seen.add(meta))
					return zero, fmt.Errorf("invalid response: %w", err)
				}
				meta.Success = true
				g.report(seen.add(meta))
				return v, nil
			},
		})
	}

	out, err := fallback.Run(ctx, attempts...)

	metas, late := seen.close(out.Failures)
	for _, m := range late {
		g.report(m, true)
	}
	res := Result[T]{Value: out.Value, Provider: out.Source, Meta: metas, Failures: out.Failures}

	for _, f := range out.Failures {
		slog.Warn("provider attempt failed", "agent", agent, "provider", f.Name, "elapsed", f.Elapsed, "error", f.Err)
	}

	if err != nil {
		if errors.Is(err, fallback.ErrExhausted) {
			return res, fmt.Errorf("%w: %w", ErrProviderFailure, err)
		}
		return res, err
	}
	return res, nil
}

// attemptLog collects attempt metadata until the chain settles.
type attemptLog struct {
	agent    string
	mu       sync.Mutex
	metas    []shared.AgentMeta
	recorded map[string]bool
	closed   bool
}

// add keeps meta unless the chain already settled. It reports whether meta
// was kept.
func (l *attemptLog) add(meta shared.AgentMeta) (shared.AgentMeta, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return meta, false
	}
	l.metas = append(l.metas, meta)
	l.recorded[meta.Provider] = true
	return meta, true
}

// close stops collection and fills in failed attempts that never reported,
// returning all metas and the filled-in ones.
func (l *attemptLog) close(failures []fallback.Failure) ([]shared.AgentMeta, []shared.AgentMeta) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	var late []shared.AgentMeta
	for _, f := range failures {
		if l.recorded[f.Name] {
			// A response that arrived after the timeout still counts as failed.
			for i := range l.metas {
				if l.metas[i].Provider == f.Name {
					l.metas[i].Success = false
				}
			}
			continue
		}
		m := shared.AgentMeta{AgentName: l.agent, Provider: f.Name, Latency: f.Elapsed}
		l.metas = append(l.metas, m)
		l.recorded[f.Name] = true
		late = append(late, m)
	}
	return append([]shared.AgentMeta(nil), l.metas...), late
}

func (g *Gateway) report(meta shared.AgentMeta, kept bool) {
	if !kept || g.recorder == nil {
		return
	}
	if err := g.recorder.RecordMeta(meta); err != nil {
		slog.Warn("failed to record provider usage", "provider", meta.Provider, "error", err)
	}
}

// CleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func CleanJSON(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
