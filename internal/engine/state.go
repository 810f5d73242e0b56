package engine

// State is the turn-level state of a conversation.
type State string

const (
	// StateReasoning - the model is producing the next step.
	StateReasoning State = "reasoning"

	// StateActing - requested tool calls are executing.
	StateActing State = "acting"

	// StateDone - the turn ended with a final assistant message.
	StateDone State = "done"

	// StateFailed - the turn ended abnormally; an explanatory assistant
	// message has been appended and the thread history remains valid.
	StateFailed State = "failed"
)
