package model

import (
	"context"

	"github.com/sentinelworks/sentinel/internal/model/contract"
)

// Router selects between model backends with session-scoped fallback.
type Router interface {
	// Resolve maps a logical model name to a registered backend id.
	Resolve(logical string) string

	// Invoke runs a completion against the active backend, applying the
	// degraded-mode retry and permanent fallback policy.
	Invoke(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)

	// InvokeStream behaves like Invoke but reports text deltas through
	// onDelta when the active backend supports incremental emission. When
	// it does not, onDelta is never called and the full response is
	// returned; callers synthesize a streamed experience themselves.
	InvokeStream(ctx context.Context, req contract.CompletionRequest, onDelta func(string)) (*contract.CompletionResponse, error)

	// Embed routes an embedding request.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ActiveBackend reports the backend currently serving this session.
	ActiveBackend() string
}

// Provider is a single model backend.
type Provider interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// StreamingProvider is implemented by backends that support incremental
// token emission.
type StreamingProvider interface {
	Provider
	GenerateStream(ctx context.Context, req contract.CompletionRequest, onDelta func(string)) (*contract.CompletionResponse, error)
}
