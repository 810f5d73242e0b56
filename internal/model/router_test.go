package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/model/contract"
)

type fakeProvider struct {
	name     string
	generate func(req contract.CompletionRequest) (*contract.CompletionResponse, error)
	embed    func(text string) ([]float32, error)
	calls    []contract.CompletionRequest
}

func (p *fakeProvider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	p.calls = append(p.calls, req)
	return p.generate(req)
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.embed != nil {
		return p.embed(text)
	}
	return nil, errors.New("embedding not supported")
}

func (p *fakeProvider) Name() string { return p.name }

func alwaysAnswer(text string) func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
	return func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
		return &contract.CompletionResponse{Content: text}, nil
	}
}

func alwaysFail(message string) func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
	return func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
		return nil, errors.New(message)
	}
}

func newTestRouter(cfg config.ModelsConfig, providers map[string]Provider) *SessionRouter {
	r := &SessionRouter{
		cfg:       cfg,
		timeout:   5 * time.Second,
		providers: providers,
	}
	if _, ok := providers[cfg.Default]; !ok && cfg.Default != "" {
		r.usingSecondary = true
	}
	return r
}

func TestResolve(t *testing.T) {
	router := newTestRouter(config.ModelsConfig{
		Default:  "gpt-4o-mini",
		Fallback: "gemini-2.0-flash",
		Aliases:  map[string]string{"fast": "gemini-2.0-flash"},
	}, map[string]Provider{
		"gpt-4o-mini":      &fakeProvider{name: "gpt-4o-mini", generate: alwaysAnswer("ok")},
		"gemini-2.0-flash": &fakeProvider{name: "gemini-2.0-flash", generate: alwaysAnswer("ok")},
	})

	tests := []struct {
		name    string
		logical string
		want    string
	}{
		{"Empty resolves to default", "", "gpt-4o-mini"},
		{"Registered name passes through", "gemini-2.0-flash", "gemini-2.0-flash"},
		{"Alias maps to registry entry", "fast", "gemini-2.0-flash"},
		{"Unknown falls back to default", "claude-9000", "gpt-4o-mini"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, router.Resolve(tt.logical))
		})
	}
}

func TestInvokeUsesPrimary(t *testing.T) {
	primary := &fakeProvider{name: "primary", generate: alwaysAnswer("from primary")}
	secondary := &fakeProvider{name: "secondary", generate: alwaysAnswer("from secondary")}

	router := newTestRouter(config.ModelsConfig{Default: "primary", Fallback: "secondary"},
		map[string]Provider{"primary": primary, "secondary": secondary})

	resp, err := router.Invoke(context.Background(), contract.CompletionRequest{
		Messages: []contract.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "from primary", resp.Content)
	assert.Equal(t, "primary", router.ActiveBackend())
	assert.Empty(t, secondary.calls)
}

func TestInvokeFallsBackAndStaysOnSecondary(t *testing.T) {
	primary := &fakeProvider{name: "primary", generate: alwaysFail("connection refused")}
	secondary := &fakeProvider{name: "secondary", generate: alwaysAnswer("from secondary")}

	router := newTestRouter(config.ModelsConfig{Default: "primary", Fallback: "secondary"},
		map[string]Provider{"primary": primary, "secondary": secondary})

	resp, err := router.Invoke(context.Background(), contract.CompletionRequest{
		Messages: []contract.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", resp.Content)
	assert.Equal(t, "secondary", router.ActiveBackend())

	// Fallback is session-scoped: the next request skips the primary even
	// though it would succeed now.
	primary.generate = alwaysAnswer("primary recovered")
	resp, err = router.Invoke(context.Background(), contract.CompletionRequest{
		Messages: []contract.Message{{Role: "user", Content: "again"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", resp.Content)
	assert.Len(t, primary.calls, 1)
}

func TestInvokeDegradedRetryUnbindsTools(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	primary.generate = func(req contract.CompletionRequest) (*contract.CompletionResponse, error) {
		if len(req.Tools) > 0 {
			return nil, errors.New("invalid request: tool schema rejected")
		}
		return &contract.CompletionResponse{Content: "answered without tools"}, nil
	}
	secondary := &fakeProvider{name: "secondary", generate: alwaysAnswer("from secondary")}

	router := newTestRouter(config.ModelsConfig{Default: "primary", Fallback: "secondary"},
		map[string]Provider{"primary": primary, "secondary": secondary})

	resp, err := router.Invoke(context.Background(), contract.CompletionRequest{
		Messages: []contract.Message{{Role: "user", Content: "hi"}},
		Tools:    []contract.ToolDef{{Name: "weather"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "answered without tools", resp.Content)

	// One rejected attempt with tools, one successful retry without.
	require.Len(t, primary.calls, 2)
	assert.NotEmpty(t, primary.calls[0].Tools)
	assert.Empty(t, primary.calls[1].Tools)

	// The degraded retry succeeded, so the session stays on the primary.
	assert.Equal(t, "primary", router.ActiveBackend())
	assert.Empty(t, secondary.calls)
}

func TestPrimaryInitFailurePinsSecondary(t *testing.T) {
	secondary := &fakeProvider{name: "secondary", generate: alwaysAnswer("from secondary")}

	// The primary never made it into the registry (init failure).
	router := newTestRouter(config.ModelsConfig{Default: "primary", Fallback: "secondary"},
		map[string]Provider{"secondary": secondary})

	assert.Equal(t, "secondary", router.ActiveBackend())

	resp, err := router.Invoke(context.Background(), contract.CompletionRequest{
		Messages: []contract.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", resp.Content)
}

func TestInvokeNoBackendsAvailable(t *testing.T) {
	router := newTestRouter(config.ModelsConfig{Default: "primary", Fallback: "secondary"},
		map[string]Provider{})

	_, err := router.Invoke(context.Background(), contract.CompletionRequest{
		Messages: []contract.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
}

func TestEmbedSkipsUnsupportedBackends(t *testing.T) {
	chat := &fakeProvider{name: "chat-only", generate: alwaysAnswer("ok")}
	embedder := &fakeProvider{
		name:     "embedder",
		generate: alwaysAnswer("ok"),
		embed: func(text string) ([]float32, error) {
			return []float32{0.1, 0.2, 0.3}, nil
		},
	}

	// No embedding model configured; the router walks the registry and
	// skips backends that cannot embed.
	router := newTestRouter(config.ModelsConfig{
		Default:  "chat-only",
		Fallback: "embedder",
	}, map[string]Provider{"chat-only": chat, "embedder": embedder})

	vec, err := router.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestEmbedNoCapableBackend(t *testing.T) {
	chat := &fakeProvider{name: "chat-only", generate: alwaysAnswer("ok")}

	router := newTestRouter(config.ModelsConfig{Default: "chat-only"},
		map[string]Provider{"chat-only": chat})

	_, err := router.Embed(context.Background(), "some text")
	require.Error(t, err)
}
