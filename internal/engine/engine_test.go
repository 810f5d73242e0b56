package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/model/contract"
	"github.com/sentinelworks/sentinel/internal/store"
	toolcore "github.com/sentinelworks/sentinel/internal/tool"
)

// stubRouter scripts one response per reasoning call.
type stubRouter struct {
	responses []func(req contract.CompletionRequest) (*contract.CompletionResponse, error)
	requests  []contract.CompletionRequest
}

func (r *stubRouter) Resolve(logical string) string {
	if logical == "" {
		return "openai"
	}
	return logical
}

func (r *stubRouter) Invoke(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	return r.InvokeStream(ctx, req, nil)
}

func (r *stubRouter) InvokeStream(ctx context.Context, req contract.CompletionRequest, onDelta func(string)) (*contract.CompletionResponse, error) {
	r.requests = append(r.requests, req)
	call := len(r.requests) - 1
	if call >= len(r.responses) {
		call = len(r.responses) - 1
	}
	return r.responses[call](req)
}

func (r *stubRouter) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (r *stubRouter) ActiveBackend() string { return "stub" }

func respondText(text string) func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
	return func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
		return &contract.CompletionResponse{Content: text}, nil
	}
}

func respondToolCall(id, name, input string) func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
	return func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
		return &contract.CompletionResponse{
			ToolCalls: []*contract.ToolCall{{ID: id, Name: name, Input: input}},
		}, nil
	}
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (echoTool) Execute(ctx context.Context, _ toolcore.Invocation, input json.RawMessage) (toolcore.Result, error) {
	if err := ctx.Err(); err != nil {
		return toolcore.Result{}, err
	}
	return toolcore.TextResult("echo: " + string(input)), nil
}

func newTestEngine(t *testing.T, router *stubRouter, engineCfg config.EngineConfig) *Engine {
	t.Helper()

	worker, err := store.NewWorker(config.StoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	worker.Start()
	t.Cleanup(worker.Stop)

	registry := toolcore.NewRegistry()
	registry.Register(echoTool{})

	executor, err := toolcore.NewExecutor(registry, config.ToolsConfig{})
	require.NoError(t, err)

	eng, err := New(Options{
		Router:   router,
		Registry: registry,
		Executor: executor,
		Store:    worker,
		Engine:   engineCfg,
	})
	require.NoError(t, err)
	return eng
}

func TestRunTurnDirectAnswer(t *testing.T) {
	router := &stubRouter{responses: []func(contract.CompletionRequest) (*contract.CompletionResponse, error){
		respondText("hello there"),
	}}
	eng := newTestEngine(t, router, config.EngineConfig{})

	result, err := eng.RunTurn(context.Background(), TurnRequest{
		ThreadID: "t1",
		UserID:   "u1",
		Message:  contract.Message{Content: "hi"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, "hello there", result.FinalText)
	assert.Equal(t, 1, result.Iterations)

	history, err := eng.History("t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestRunTurnToolLoop(t *testing.T) {
	router := &stubRouter{responses: []func(contract.CompletionRequest) (*contract.CompletionResponse, error){
		respondToolCall("call_1", "echo", `{"msg":"ping"}`),
		respondText("the tool said ping"),
	}}
	eng := newTestEngine(t, router, config.EngineConfig{})

	result, err := eng.RunTurn(context.Background(), TurnRequest{
		ThreadID: "t1",
		Message:  contract.Message{Content: "use the tool"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 2, result.Iterations)

	history, err := eng.History("t1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	require.Len(t, history[1].ToolCalls, 1)
	assert.Equal(t, "tool", history[2].Role)
	assert.Equal(t, "call_1", history[2].ToolCallID)
	assert.Contains(t, history[2].Content, "ping")
	assert.Equal(t, "assistant", history[3].Role)

	// The second reasoning call must carry the tool result back to the model.
	require.Len(t, router.requests, 2)
	second := router.requests[1].Messages
	assert.Equal(t, "tool", second[len(second)-1].Role)
}

func TestRunTurnIterationLimit(t *testing.T) {
	router := &stubRouter{responses: []func(contract.CompletionRequest) (*contract.CompletionResponse, error){
		respondToolCall("call_x", "echo", "{}"),
	}}
	eng := newTestEngine(t, router, config.EngineConfig{MaxIterations: 3})

	result, err := eng.RunTurn(context.Background(), TurnRequest{
		ThreadID: "t1",
		Message:  contract.Message{Content: "loop forever"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 3, result.Iterations)
	assert.Contains(t, result.FinalText, "3 reasoning steps")
	assert.Len(t, router.requests, 3)

	history, err := eng.History("t1")
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, "assistant", last.Role)
	assert.Equal(t, result.FinalText, last.Content)
}

func TestRunTurnBackendExhaustionBecomesAssistantText(t *testing.T) {
	router := &stubRouter{responses: []func(contract.CompletionRequest) (*contract.CompletionResponse, error){
		func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
			return nil, errors.New("all backends exhausted")
		},
	}}
	eng := newTestEngine(t, router, config.EngineConfig{})

	result, err := eng.RunTurn(context.Background(), TurnRequest{
		ThreadID: "t1",
		Message:  contract.Message{Content: "hi"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, result.State)
	assert.Contains(t, result.FinalText, "trouble reaching")

	history, err := eng.History("t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, result.FinalText, history[1].Content)
}

func TestRunTurnClientDisconnectKeepsToolResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := &stubRouter{responses: []func(contract.CompletionRequest) (*contract.CompletionResponse, error){
		func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
			// The client goes away right after the model requests a tool.
			cancel()
			return &contract.CompletionResponse{
				ToolCalls: []*contract.ToolCall{{ID: "call_1", Name: "echo", Input: `{"q":"rainfall"}`}},
			}, nil
		},
		func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
			return nil, context.Canceled
		},
	}}
	eng := newTestEngine(t, router, config.EngineConfig{})

	_, err := eng.RunTurn(ctx, TurnRequest{
		ThreadID: "t1",
		Message:  contract.Message{Content: "look it up"},
	}, nil)
	require.ErrorIs(t, err, context.Canceled)

	// The dispatched call completed and its real result was persisted,
	// not a cancellation failure.
	history, err := eng.History("t1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "tool", history[2].Role)
	assert.Equal(t, "call_1", history[2].ToolCallID)
	assert.Contains(t, history[2].Content, "rainfall")
	assert.NotContains(t, history[2].Content, "Error")
}

func TestRunTurnBuildsFreshSystemPromptEachIteration(t *testing.T) {
	router := &stubRouter{responses: []func(contract.CompletionRequest) (*contract.CompletionResponse, error){
		respondToolCall("call_1", "echo", "{}"),
		respondText("done"),
	}}
	eng := newTestEngine(t, router, config.EngineConfig{})

	_, err := eng.RunTurn(context.Background(), TurnRequest{
		ThreadID: "t1",
		Message:  contract.Message{Content: "go"},
	}, nil)
	require.NoError(t, err)

	require.Len(t, router.requests, 2)
	for _, req := range router.requests {
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[0].Content, "echo")

		systemCount := 0
		for _, m := range req.Messages {
			if m.Role == "system" {
				systemCount++
			}
		}
		assert.Equal(t, 1, systemCount)
	}
}

func TestRunTurnRequiresThreadID(t *testing.T) {
	router := &stubRouter{responses: []func(contract.CompletionRequest) (*contract.CompletionResponse, error){
		respondText("unused"),
	}}
	eng := newTestEngine(t, router, config.EngineConfig{})

	_, err := eng.RunTurn(context.Background(), TurnRequest{Message: contract.Message{Content: "hi"}}, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "thread id"))
}
