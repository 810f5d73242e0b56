package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentinelworks/sentinel/internal/model/contract"
)

type titleRouter struct {
	content string
	err     error
}

func (r *titleRouter) Resolve(logical string) string { return logical }

func (r *titleRouter) Invoke(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &contract.CompletionResponse{Content: r.content}, nil
}

func (r *titleRouter) InvokeStream(ctx context.Context, req contract.CompletionRequest, onDelta func(string)) (*contract.CompletionResponse, error) {
	return r.Invoke(ctx, req)
}

func (r *titleRouter) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("not supported")
}

func (r *titleRouter) ActiveBackend() string { return "stub" }

func TestGenerateTitleUsesModel(t *testing.T) {
	router := &titleRouter{content: `"Oslo Weather Check"`}
	title := GenerateTitle(context.Background(), router, "what's the weather in Oslo?", "It is sunny.")
	assert.Equal(t, "Oslo Weather Check", title)
}

func TestGenerateTitleFallsBackOnError(t *testing.T) {
	router := &titleRouter{err: errors.New("backend down")}
	title := GenerateTitle(context.Background(), router, "what's the weather in Oslo?", "It is sunny.")
	assert.Equal(t, "what's the weather in Oslo?", title)
}

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"Short text unchanged", "hello world", "hello world"},
		{"Whitespace collapsed", "  hello\n  world ", "hello world"},
		{"Empty text", "   ", "New conversation"},
		{
			"Long text cut at word boundary",
			strings.Repeat("word ", 20),
			"word word word word word word word word word...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateTitle(tt.text)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), maxTitleLength+3)
		})
	}
}
