package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sentinelworks/sentinel/internal/model/contract"

	"github.com/sashabaranov/go-openai"
)

// Provider speaks the OpenAI chat completion API. It also serves any
// OpenAI-compatible backend (Groq, Ollama) through a custom base URL.
type Provider struct {
	client *openai.Client
	model  string
	label  string
}

func New(apiKey, baseURL, model string) *Provider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &Provider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		label:  "openai",
	}
}

func (p *Provider) Name() string {
	return p.label
}

func (p *Provider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	chatReq := p.buildRequest(req)

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	choice := resp.Choices[0]
	result := &contract.CompletionResponse{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, convertToolCall(tc, len(result.ToolCalls)))
	}

	return result, nil
}

// GenerateStream streams deltas through onDelta and returns the assembled
// response, including tool calls accumulated across chunks.
func (p *Provider) GenerateStream(ctx context.Context, req contract.CompletionRequest, onDelta func(string)) (*contract.CompletionResponse, error) {
	chatReq := p.buildRequest(req)

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai stream failed: %w", err)
	}
	defer stream.Close()

	var content strings.Builder
	// Tool call fragments arrive indexed; arguments accumulate per index.
	pending := map[int]*openai.ToolCall{}
	var order []int

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("openai stream recv: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if onDelta != nil {
				onDelta(delta.Content)
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			existing, ok := pending[idx]
			if !ok {
				cp := tc
				pending[idx] = &cp
				order = append(order, idx)
				continue
			}
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			if tc.Function.Name != "" {
				existing.Function.Name = tc.Function.Name
			}
			existing.Function.Arguments += tc.Function.Arguments
		}
	}

	result := &contract.CompletionResponse{Content: content.String()}
	for _, idx := range order {
		result.ToolCalls = append(result.ToolCalls, convertToolCall(*pending[idx], len(result.ToolCalls)))
	}

	return result, nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := p.model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

func (p *Provider) buildRequest(req contract.CompletionRequest) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Text(),
			ToolCallID: m.ToolCallID,
		}

		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Input,
				},
			})
		}

		messages = append(messages, msg)
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		params := t.Parameters
		if params == nil {
			params = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	return openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Tools:    tools,
	}
}

func convertToolCall(tc openai.ToolCall, seq int) *contract.ToolCall {
	id := tc.ID
	if id == "" {
		id = fmt.Sprintf("call_%d", seq+1)
	}
	return &contract.ToolCall{
		ID:    id,
		Name:  tc.Function.Name,
		Input: tc.Function.Arguments,
	}
}
