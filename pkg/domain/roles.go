package domain

// Role defines the sender of a message.
type Role string

const (
	// RoleUser indicates a message from the user, including batched tool results.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant Role = "assistant"
)

// StopReason reports why the model stopped generating.
type StopReason string

const (
	// StopReasonToolUse means the model wants one or more tools executed before it continues.
	StopReasonToolUse StopReason = "tool_use"
	// StopReasonEndTurn means the model finished its answer.
	StopReasonEndTurn StopReason = "end_turn"
	// StopReasonMaxTokens means the answer was cut off at the token limit.
	StopReasonMaxTokens StopReason = "max_tokens"
	// StopReasonStopSequence means a configured stop sequence was produced.
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Content block types.
const (
	ContentTypeText       = "text"
	ContentTypeToolUse    = "tool_use"
	ContentTypeToolResult = "tool_result"
)
