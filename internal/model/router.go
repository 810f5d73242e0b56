package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sentinelworks/sentinel/internal/config"
	sentinelErrors "github.com/sentinelworks/sentinel/internal/errors"
	"github.com/sentinelworks/sentinel/internal/logger"
	"github.com/sentinelworks/sentinel/internal/model/contract"
	anthropicProvider "github.com/sentinelworks/sentinel/internal/model/providers/anthropic"
	geminiProvider "github.com/sentinelworks/sentinel/internal/model/providers/gemini"
	openaiProvider "github.com/sentinelworks/sentinel/internal/model/providers/openai"
)

// SessionRouter resolves logical model names against a static registry and
// drives the session-scoped fallback chain: when the primary backend fails
// to initialize, or exhausts its degraded-mode retry, the router switches
// to the secondary backend for the remainder of the session.
type SessionRouter struct {
	cfg       config.ModelsConfig
	timeout   time.Duration
	providers map[string]Provider

	mu             sync.RWMutex
	usingSecondary bool
}

func NewSessionRouter(cfg config.ModelsConfig) (*SessionRouter, error) {
	timeout, err := config.DurationOrDefault(cfg.RequestTimeout, config.DefaultModelRequestTimeout)
	if err != nil {
		return nil, err
	}

	r := &SessionRouter{
		cfg:       cfg,
		timeout:   timeout,
		providers: make(map[string]Provider),
	}

	for _, entry := range cfg.Registry {
		provider, err := createProvider(entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}
		r.providers[entry.Name] = provider
		slog.Info("Provider initialized", "name", entry.Name, "type", entry.Provider)
	}

	if len(r.providers) == 0 && len(cfg.Registry) > 0 {
		return nil, sentinelErrors.Backend("no providers initialized")
	}

	// Primary init failure pins the session to the secondary backend.
	if _, ok := r.providers[cfg.Default]; !ok && cfg.Default != "" {
		slog.Warn("Primary backend unavailable at session start, switching to fallback",
			"primary", cfg.Default, "fallback", cfg.Fallback)
		r.usingSecondary = true
	}

	return r, nil
}

var _ Router = (*SessionRouter)(nil)

// Resolve maps a logical model name to a registered backend id. Unmapped
// names resolve to the configured default.
func (r *SessionRouter) Resolve(logical string) string {
	logical = strings.TrimSpace(logical)
	if logical == "" {
		return r.cfg.Default
	}
	if mapped, ok := r.cfg.Aliases[logical]; ok {
		logical = mapped
	}
	if _, ok := r.providers[logical]; ok {
		return logical
	}
	return r.cfg.Default
}

// ActiveBackend reports which backend currently serves this session.
func (r *SessionRouter) ActiveBackend() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.usingSecondary {
		return r.cfg.Fallback
	}
	return r.cfg.Default
}

func (r *SessionRouter) Invoke(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	return r.invoke(ctx, req, nil)
}

func (r *SessionRouter) InvokeStream(ctx context.Context, req contract.CompletionRequest, onDelta func(string)) (*contract.CompletionResponse, error) {
	return r.invoke(ctx, req, onDelta)
}

func (r *SessionRouter) invoke(ctx context.Context, req contract.CompletionRequest, onDelta func(string)) (*contract.CompletionResponse, error) {
	traceID := logger.GetTraceID(ctx)

	backend := r.ActiveBackend()
	if requested := r.Resolve(req.Model); requested != "" && !r.isSecondaryActive() {
		backend = requested
	}

	provider, ok := r.providers[backend]
	if !ok {
		// Primary gone entirely; fall through to secondary immediately.
		return r.invokeSecondary(ctx, req, onDelta, traceID)
	}

	req.Model = backend
	resp, err := r.generate(ctx, provider, req, onDelta)
	if err == nil {
		return resp, nil
	}

	slog.Error("Backend request failed", "backend", backend, "error", err, "trace_id", traceID)

	// Degraded mode: a rejected request (tool schema, capability) gets one
	// retry on the same backend with tools unbound.
	if len(req.Tools) > 0 && sentinelErrors.IsBackendRejection(err) {
		slog.Info("Retrying without tools bound", "backend", backend, "trace_id", traceID)
		degraded := req
		degraded.Tools = nil
		if resp, derr := r.generate(ctx, provider, degraded, onDelta); derr == nil {
			return resp, nil
		}
	}

	if ctx.Err() != nil {
		return nil, sentinelErrors.Wrap(ctx.Err(), "model invocation cancelled")
	}

	r.switchToSecondary()
	return r.invokeSecondary(ctx, req, onDelta, traceID)
}

func (r *SessionRouter) invokeSecondary(ctx context.Context, req contract.CompletionRequest, onDelta func(string), traceID string) (*contract.CompletionResponse, error) {
	fallback := r.cfg.Fallback
	provider, ok := r.providers[fallback]
	if !ok {
		return nil, sentinelErrors.Backend("no model backend available")
	}

	req.Model = fallback
	resp, err := r.generate(ctx, provider, req, onDelta)
	if err != nil {
		slog.Error("Fallback backend failed", "backend", fallback, "error", err, "trace_id", traceID)
		return nil, sentinelErrors.MapError(err)
	}

	slog.Info("Request completed on fallback backend", "backend", fallback, "trace_id", traceID)
	return resp, nil
}

func (r *SessionRouter) generate(ctx context.Context, provider Provider, req contract.CompletionRequest, onDelta func(string)) (*contract.CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if onDelta != nil {
		if sp, ok := provider.(StreamingProvider); ok {
			return sp.GenerateStream(callCtx, req, onDelta)
		}
	}
	return provider.Generate(callCtx, req)
}

func (r *SessionRouter) switchToSecondary() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.usingSecondary {
		slog.Warn("Switching to fallback backend for the rest of the session",
			"primary", r.cfg.Default, "fallback", r.cfg.Fallback)
		r.usingSecondary = true
	}
}

func (r *SessionRouter) isSecondaryActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usingSecondary
}

// Embed routes an embedding request, trying the configured embedding model
// first and falling through to any other embedding-capable backend.
func (r *SessionRouter) Embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var lastErr error
	for _, name := range r.embeddingTryOrder() {
		provider, ok := r.providers[name]
		if !ok {
			continue
		}

		embedding, err := provider.Embed(callCtx, text)
		if err == nil {
			return embedding, nil
		}
		if isEmbeddingUnsupported(err) {
			continue
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, sentinelErrors.Wrap(lastErr, "embedding failed")
	}
	return nil, sentinelErrors.Backend("no embedding-capable backend configured")
}

func (r *SessionRouter) embeddingTryOrder() []string {
	seen := make(map[string]struct{}, len(r.providers)+1)
	order := make([]string, 0, len(r.providers)+1)

	appendUnique := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}

	appendUnique(r.cfg.Embedding)

	registered := make([]string, 0, len(r.providers))
	for name := range r.providers {
		registered = append(registered, name)
	}
	sort.Strings(registered)
	for _, name := range registered {
		appendUnique(name)
	}

	return order
}

func isEmbeddingUnsupported(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not supported")
}

func createProvider(entry config.ModelRegistry) (Provider, error) {
	switch entry.Provider {
	case "openai":
		return openaiProvider.New(entry.APIKey, entry.BaseURL, entry.Name), nil

	case "gemini":
		if entry.APIKey == "" && !geminiKeyInEnv() {
			return nil, sentinelErrors.InvalidInput("API key required for Gemini provider")
		}
		provider, err := geminiProvider.New(entry.APIKey, entry.Name)
		if err != nil {
			return nil, sentinelErrors.Wrap(err, "failed to create Gemini provider")
		}
		return provider, nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, sentinelErrors.InvalidInput("API key required for Anthropic provider")
		}
		return anthropicProvider.New(entry.APIKey, entry.Name), nil

	default:
		return nil, sentinelErrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}

func geminiKeyInEnv() bool {
	return strings.TrimSpace(os.Getenv("GEMINI_API_KEY")) != ""
}
