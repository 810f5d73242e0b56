package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelworks/sentinel/internal/config"
	sentinelErrors "github.com/sentinelworks/sentinel/internal/errors"
	"github.com/sentinelworks/sentinel/internal/memory"
	"github.com/sentinelworks/sentinel/internal/model"
	"github.com/sentinelworks/sentinel/internal/model/contract"
	"github.com/sentinelworks/sentinel/internal/store"
	toolcore "github.com/sentinelworks/sentinel/internal/tool"
	"github.com/sentinelworks/sentinel/internal/tool/discovery"
)

const backendExhaustedMessage = "I'm having trouble reaching my language model right now. " +
	"Please try again in a moment."

// Emitter receives turn events as they happen. The stream bridge
// implements this; a nil-safe no-op emitter is used in tests.
type Emitter interface {
	TextDelta(text string)
	ToolCallStart(call contract.ToolCall, args json.RawMessage)
	ToolCallResult(callID string, result string)
}

// TurnRequest is one user turn against a thread.
type TurnRequest struct {
	ThreadID string
	UserID   string
	Model    string // logical model name; empty means the default
	Message  contract.Message
}

// TurnResult reports how the turn ended. Streamed is true when the final
// text already went out as deltas; when false the caller synthesizes the
// streamed experience from FinalText.
type TurnResult struct {
	State      State
	FinalText  string
	Streamed   bool
	Iterations int
}

// Engine drives the Reasoning/Acting loop for a single turn. Callers must
// not run two turns on the same thread concurrently; the engine assumes
// at most one in-flight turn per thread.
type Engine struct {
	router    model.Router
	registry  *toolcore.Registry
	executor  *toolcore.Executor
	discovery *discovery.Client // optional
	store     *store.Worker
	memory    *memory.Manager

	maxIterations   int
	historyLimit    int
	turnTimeout     time.Duration
	systemPrompt    string
	financeKeywords []string
}

type Options struct {
	Router    model.Router
	Registry  *toolcore.Registry
	Executor  *toolcore.Executor
	Discovery *discovery.Client
	Store     *store.Worker
	Memory    *memory.Manager

	Engine          config.EngineConfig
	SystemPrompt    string
	FinanceKeywords []string
}

func New(opts Options) (*Engine, error) {
	turnTimeout, err := config.DurationOrDefault(opts.Engine.TurnTimeout, config.DefaultEngineTurnTimeout)
	if err != nil {
		return nil, err
	}

	maxIterations := opts.Engine.MaxIterations
	if maxIterations <= 0 {
		maxIterations = config.DefaultEngineMaxIterations
	}
	historyLimit := opts.Engine.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = config.DefaultEngineHistoryLimit
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = config.DefaultSystemPrompt
	}

	return &Engine{
		router:          opts.Router,
		registry:        opts.Registry,
		executor:        opts.Executor,
		discovery:       opts.Discovery,
		store:           opts.Store,
		memory:          opts.Memory,
		maxIterations:   maxIterations,
		historyLimit:    historyLimit,
		turnTimeout:     turnTimeout,
		systemPrompt:    systemPrompt,
		financeKeywords: opts.FinanceKeywords,
	}, nil
}

// RunTurn executes one full user turn: persist the user message, loop
// Reasoning and Acting until a final answer, the iteration limit, or
// backend exhaustion, and persist every appended message along the way.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest, emit Emitter) (TurnResult, error) {
	if req.ThreadID == "" {
		return TurnResult{}, sentinelErrors.InvalidInput("thread id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	if emit == nil {
		emit = noopEmitter{}
	}

	if e.discovery != nil {
		e.discovery.EnsureFresh(ctx)
	}

	history, err := e.loadHistory(req.ThreadID)
	if err != nil {
		return TurnResult{}, err
	}

	userMsg := req.Message.Normalize()
	userMsg.Role = "user"
	if err := e.appendToThread(req.ThreadID, userMsg); err != nil {
		return TurnResult{}, err
	}
	history = append(history, userMsg)

	if err := e.touchThread(req.ThreadID, req.UserID, req.Model); err != nil {
		slog.Warn("Failed to update thread metadata", "thread_id", req.ThreadID, "error", err)
	}

	memoryBlock := ""
	if e.memory != nil && req.UserID != "" {
		memoryBlock = e.memory.PromptBlock(req.UserID)
	}

	active := toolcore.ActiveDescriptors(e.registry.Descriptors(), userMsg.Content, e.financeKeywords)
	toolDefs := make([]contract.ToolDef, 0, len(active))
	for _, d := range active {
		toolDefs = append(toolDefs, d.Definition)
	}

	streamed := false
	onDelta := func(delta string) {
		streamed = true
		emit.TextDelta(delta)
	}

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		validated := validateHistory(history, e.historyLimit)
		messages := make([]contract.Message, 0, len(validated)+1)
		messages = append(messages, contract.Message{
			Role:    "system",
			Content: buildSystemPrompt(e.systemPrompt, memoryBlock, active),
		})
		messages = append(messages, validated...)

		slog.Debug("Reasoning", "thread_id", req.ThreadID, "iteration", iteration, "messages", len(messages))

		resp, err := e.router.InvokeStream(ctx, contract.CompletionRequest{
			Model:    req.Model,
			Messages: messages,
			Tools:    toolDefs,
		}, onDelta)
		if err != nil {
			if ctx.Err() == context.Canceled {
				return TurnResult{}, ctx.Err()
			}
			// Router exhaustion becomes ordinary assistant text, never a
			// dropped turn.
			slog.Error("Reasoning exhausted all backends", "thread_id", req.ThreadID, "error", err)
			failMsg := contract.Message{Role: "assistant", Content: backendExhaustedMessage}
			if appendErr := e.appendToThread(req.ThreadID, failMsg); appendErr != nil {
				slog.Error("Failed to persist failure message", "thread_id", req.ThreadID, "error", appendErr)
			}
			return TurnResult{
				State:      StateFailed,
				FinalText:  backendExhaustedMessage,
				Streamed:   false,
				Iterations: iteration,
			}, nil
		}

		if len(resp.ToolCalls) == 0 {
			finalMsg := contract.Message{Role: "assistant", Content: resp.Content}
			if err := e.appendToThread(req.ThreadID, finalMsg); err != nil {
				return TurnResult{}, err
			}
			return TurnResult{
				State:      StateDone,
				FinalText:  resp.Content,
				Streamed:   streamed,
				Iterations: iteration,
			}, nil
		}

		// Acting: persist the assistant's call request, execute, persist
		// one tool message per call.
		assistantMsg := contract.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		if err := e.appendToThread(req.ThreadID, assistantMsg); err != nil {
			return TurnResult{}, err
		}
		history = append(history, assistantMsg)

		invocation := toolcore.Invocation{ThreadID: req.ThreadID, UserID: req.UserID}
		toolMessages := e.executor.ExecuteAll(ctx, invocation, resp.ToolCalls, toolcore.Events{
			OnStart:  emit.ToolCallStart,
			OnResult: emit.ToolCallResult,
		})
		for _, tm := range toolMessages {
			if err := e.appendToThread(req.ThreadID, tm); err != nil {
				return TurnResult{}, err
			}
			history = append(history, tm)
		}
	}

	limitMessage := fmt.Sprintf(
		"I could not finish this request within %d reasoning steps. Try narrowing it down or asking again.",
		e.maxIterations)
	if err := e.appendToThread(req.ThreadID, contract.Message{Role: "assistant", Content: limitMessage}); err != nil {
		return TurnResult{}, err
	}

	slog.Warn("Turn hit iteration limit", "thread_id", req.ThreadID, "limit", e.maxIterations)
	return TurnResult{
		State:      StateFailed,
		FinalText:  limitMessage,
		Streamed:   false,
		Iterations: e.maxIterations,
	}, nil
}

// History returns the thread's persisted messages in order.
func (e *Engine) History(threadID string) ([]contract.Message, error) {
	return e.loadHistory(threadID)
}

func (e *Engine) loadHistory(threadID string) ([]contract.Message, error) {
	records, err := e.store.ReadMessages(threadID, 0)
	if err != nil {
		return nil, sentinelErrors.Wrap(err, "load history")
	}

	history := make([]contract.Message, 0, len(records))
	for _, record := range records {
		msg := contract.Message{
			Role:       string(record.Role),
			Content:    record.Content,
			ToolCallID: record.ToolCallID,
		}
		if len(record.ToolCalls) > 0 {
			if err := json.Unmarshal(record.ToolCalls, &msg.ToolCalls); err != nil {
				slog.Warn("Skipping corrupt tool calls on record", "thread_id", threadID, "record_id", record.ID, "error", err)
			}
		}
		history = append(history, msg)
	}
	return history, nil
}

func (e *Engine) appendToThread(threadID string, msg contract.Message) error {
	record := store.MessageRecord{
		Role:       store.Role(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return sentinelErrors.Wrap(err, "encode tool calls")
		}
		record.ToolCalls = data
	}
	return e.store.AppendMessage(threadID, record)
}

func (e *Engine) touchThread(threadID, userID, modelName string) error {
	meta, err := e.store.GetThread(threadID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if meta == nil {
		meta = &store.ThreadMeta{
			ID:        threadID,
			UserID:    userID,
			Model:     e.router.Resolve(modelName),
			CreatedAt: now,
		}
	}
	meta.UpdatedAt = now
	return e.store.SaveThread(meta)
}

type noopEmitter struct{}

func (noopEmitter) TextDelta(string)                              {}
func (noopEmitter) ToolCallStart(contract.ToolCall, json.RawMessage) {}
func (noopEmitter) ToolCallResult(string, string)                 {}
