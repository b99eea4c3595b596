package model

import (
	"context"
	"strings"

	"github.com/nstogner/coursemate/pkg/domain"
)

// Block is one piece of message content. It is a closed set: TextBlock,
// ToolUseBlock and ToolResultBlock.
type Block interface {
	// Type returns the wire name of the block ("text", "tool_use", "tool_result").
	Type() string
	isBlock()
}

// TextBlock is plain text content.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	Call domain.ToolCall
}

// ToolResultBlock answers a previous ToolUseBlock.
type ToolResultBlock struct {
	Result domain.ToolResult
}

func (TextBlock) Type() string       { return domain.ContentTypeText }
func (ToolUseBlock) Type() string    { return domain.ContentTypeToolUse }
func (ToolResultBlock) Type() string { return domain.ContentTypeToolResult }

func (TextBlock) isBlock()       {}
func (ToolUseBlock) isBlock()    {}
func (ToolResultBlock) isBlock() {}

// Message represents a message in the model's conversation context.
type Message struct {
	// Role indicates the sender (user or assistant).
	Role domain.Role
	// Content holds the message parts in order.
	Content []Block
}

// UserText builds a user message holding a single text block.
func UserText(text string) Message {
	return Message{Role: domain.RoleUser, Content: []Block{TextBlock{Text: text}}}
}

// ToolChoice is the tool selection policy sent with tools.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoice = "auto"
)

// Request is a single call to the model.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []domain.ToolDefinition // omitted from the wire request when empty
	ToolChoice  ToolChoice              // only sent together with Tools
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the model's reply to a Request.
type Response struct {
	StopReason domain.StopReason
	Content    []Block
	Usage      Usage
}

// Text returns the text of the response, joining text blocks in order.
func (r *Response) Text() string {
	var parts []string
	for _, b := range r.Content {
		if t, ok := b.(TextBlock); ok && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolCalls returns the tool invocations in the order they appear.
func (r *Response) ToolCalls() []domain.ToolCall {
	var calls []domain.ToolCall
	for _, b := range r.Content {
		if tu, ok := b.(ToolUseBlock); ok {
			calls = append(calls, tu.Call)
		}
	}
	return calls
}

// Provider represents a service that provides LLMs (e.g. Anthropic, Gemini).
type Provider interface {
	// Name returns the provider's identifier (e.g. "anthropic", "gemini").
	Name() string

	// List returns the available models from this provider.
	List(ctx context.Context) ([]domain.Model, error)

	// Complete sends the request and blocks until the full response is available.
	// Transport, auth and rate-limit failures are returned as errors.
	Complete(ctx context.Context, req Request) (*Response, error)
}
