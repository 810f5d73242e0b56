package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/logger"
	"github.com/sentinelworks/sentinel/internal/model/contract"
)

// Events carries the optional per-call observer hooks. OnStart fires for
// every call in original order before execution begins; OnResult fires
// once per call, also in original order, after all calls complete.
type Events struct {
	OnStart  func(call contract.ToolCall, coercedInput json.RawMessage)
	OnResult func(callID string, canonical string)
}

// Executor runs model-requested tool calls safely: arguments are coerced
// and validated, calls run concurrently under a parallelism bound, and
// every outcome, including unknown tools, timeouts, and panics, becomes
// exactly one tool message per call id in the original call order.
type Executor struct {
	registry       *Registry
	callTimeout    time.Duration
	maxParallel    int
	resultMaxChars int
	now            func() time.Time
}

func NewExecutor(registry *Registry, cfg config.ToolsConfig) (*Executor, error) {
	callTimeout, err := config.DurationOrDefault(cfg.CallTimeout, config.DefaultToolCallTimeout)
	if err != nil {
		return nil, err
	}

	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = config.DefaultToolMaxParallel
	}

	resultMaxChars := cfg.ResultMaxChars
	if resultMaxChars <= 0 {
		resultMaxChars = config.DefaultToolResultMaxChars
	}

	return &Executor{
		registry:       registry,
		callTimeout:    callTimeout,
		maxParallel:    maxParallel,
		resultMaxChars: resultMaxChars,
		now:            time.Now,
	}, nil
}

// ExecuteAll runs every call and returns one tool message per call id,
// ordered exactly as the calls were requested. Once a call is dispatched
// it runs to completion: the per-call context is detached from the
// caller's cancellation, so a client disconnect mid-turn still yields
// real results, bounded only by the call timeout.
func (e *Executor) ExecuteAll(ctx context.Context, inv Invocation, calls []*contract.ToolCall, events Events) []contract.Message {
	if len(calls) == 0 {
		return nil
	}

	type prepared struct {
		call  contract.ToolCall
		tool  Tool
		input json.RawMessage
		fail  *Result
	}

	now := e.now()
	preparedCalls := make([]prepared, len(calls))
	for i, call := range calls {
		p := prepared{call: *call, input: json.RawMessage(call.Input)}
		if len(p.input) == 0 {
			p.input = json.RawMessage("{}")
		}

		t, ok := e.registry.Get(call.Name)
		if !ok {
			failure := FailureResult("tool not found: %s", call.Name)
			p.fail = &failure
			preparedCalls[i] = p
			continue
		}
		p.tool = t

		p.input = CoerceInput(t.Parameters(), p.input, now)
		if err := ValidateInput(t.Parameters(), p.input); err != nil {
			failure := FailureResult("invalid input for %s: %v", call.Name, err)
			p.fail = &failure
		}
		preparedCalls[i] = p
	}

	if events.OnStart != nil {
		for _, p := range preparedCalls {
			events.OnStart(p.call, p.input)
		}
	}

	results := make([]Result, len(preparedCalls))
	sem := make(chan struct{}, e.maxParallel)
	var wg sync.WaitGroup

	for i := range preparedCalls {
		if preparedCalls[i].fail != nil {
			results[i] = *preparedCalls[i].fail
			continue
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			p := preparedCalls[idx]
			results[idx] = e.executeOne(ctx, inv, p.tool, p.call, p.input)
		}(i)
	}
	wg.Wait()

	messages := make([]contract.Message, len(preparedCalls))
	for i, p := range preparedCalls {
		canonical := results[i].Canonical(e.resultMaxChars)
		if events.OnResult != nil {
			events.OnResult(p.call.ID, canonical)
		}
		messages[i] = contract.Message{
			Role:       "tool",
			Content:    canonical,
			ToolCallID: p.call.ID,
		}
	}

	return messages
}

func (e *Executor) executeOne(ctx context.Context, inv Invocation, t Tool, call contract.ToolCall, input json.RawMessage) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", call.Name, "panic", r)
			result = FailureResult("executing tool %s: internal error", call.Name)
		}
	}()

	// A dispatched call must not be aborted by the caller going away; the
	// call timeout is its only deadline.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()

	start := time.Now()
	traceID := logger.GetTraceID(ctx)
	slog.Info("Executing tool", "tool", call.Name, "call_id", call.ID, "trace_id", traceID)

	res, err := t.Execute(callCtx, inv, input)

	duration := time.Since(start)
	if err != nil {
		slog.Error("Tool execution failed", "tool", call.Name, "call_id", call.ID, "error", err, "duration", duration, "trace_id", traceID)
		if callCtx.Err() == context.DeadlineExceeded {
			return FailureResult("executing tool %s: timed out", call.Name)
		}
		return FailureResult("executing tool %s: %v", call.Name, err)
	}

	slog.Info("Tool execution success", "tool", call.Name, "call_id", call.ID, "duration", duration, "trace_id", traceID)
	return res
}
