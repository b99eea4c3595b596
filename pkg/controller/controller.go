// Package controller drives the model through a bounded number of tool
// rounds and produces the final answer to a question.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/model"
	"github.com/nstogner/coursemate/pkg/tools"
)

const (
	DefaultMaxToolRounds = 2

	// Answers are deterministic and short.
	temperature = 0
	maxTokens   = 800

	fallbackAnswer = "I apologize, but I was unable to complete your request."
)

// staticInstructions is the system prompt for every model call.
const staticInstructions = `You are an assistant specialized in course materials and educational content with access to tools for course information.

Search Tool Usage:
- Use the search tool **only** for questions about specific course content or detailed educational materials
- You can make up to 2 sequential tool calls to gather information before answering
- Synthesize search results into accurate, fact-based responses
- If search yields no results, state this clearly without offering alternatives

Outline Tool Usage:
- Use the outline tool for questions about course structure, curriculum, or "what does X cover"
- Examples: "What does the MCP course cover?", "What lessons are in the Introduction course?", "Show me the outline for X"
- Returns course title, link, and complete lesson list

Sequential Tool Calling:
- For complex questions, you may call multiple tools in sequence
- Example: First get an outline to find a lesson title, then search for content about that topic
- Each tool call gives you new information to use in subsequent calls or your final answer
- Maximum 2 tool rounds per query, so use them wisely

Response Protocol:
- **General knowledge questions**: Answer using existing knowledge without searching
- **Course-specific questions**: Search or use the outline tool first, then answer
- **No meta-commentary**:
  - Provide direct answers only: no reasoning process, search explanations, or question-type analysis
  - Do not mention "based on the search results"

All responses must be:
1. **Brief, Concise and focused**: Get to the point quickly
2. **Educational**: Maintain instructional value
3. **Clear**: Use accessible language
4. **Example-supported**: Include relevant examples when they aid understanding
Provide only the direct answer to what was asked.`

// buildSystem appends the rendered conversation history, if any, to the
// static instructions.
func buildSystem(history string) string {
	if history == "" {
		return staticInstructions
	}
	return staticInstructions + "\n\nPrevious conversation:\n" + history
}

// Executor runs a named tool with the arguments chosen by the model.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (tools.Result, error)
}

var _ Executor = (*tools.Registry)(nil)

// Config configures a Controller.
type Config struct {
	// Model is the model ID passed to the provider.
	Model string
	// MaxToolRounds bounds the tool rounds per query. Nil or negative means
	// DefaultMaxToolRounds. Zero allows one tool-enabled call whose tool
	// requests are never executed.
	MaxToolRounds *int
}

// Controller answers one question at a time by calling the model and
// executing the tools it asks for.
type Controller struct {
	provider      model.Provider
	model         string
	maxToolRounds int
}

// New creates a new Controller.
func New(provider model.Provider, cfg Config) *Controller {
	rounds := DefaultMaxToolRounds
	if cfg.MaxToolRounds != nil && *cfg.MaxToolRounds >= 0 {
		rounds = *cfg.MaxToolRounds
	}
	return &Controller{
		provider:      provider,
		model:         cfg.Model,
		maxToolRounds: rounds,
	}
}

// GenerateRequest is one question with its context and tools.
type GenerateRequest struct {
	Query    string
	History  string
	Tools    []domain.ToolDefinition
	Executor Executor
}

// Answer is the outcome of Generate.
type Answer struct {
	Text    string
	Sources []domain.Source
	// ModelCalls counts provider calls, including the final synthesis.
	ModelCalls int
	// ToolRounds counts rounds in which tools were executed.
	ToolRounds int
}

// Generate answers req.Query. The model may call tools for up to
// MaxToolRounds rounds; after that, or after any tool failure, it is asked
// to answer without tools. Provider errors are returned to the caller.
func (c *Controller) Generate(ctx context.Context, req GenerateRequest) (*Answer, error) {
	g := &generation{
		ctrl:     c,
		system:   buildSystem(req.History),
		messages: []model.Message{model.UserText(req.Query)},
		answer:   &Answer{},
	}

	if len(req.Tools) == 0 || req.Executor == nil {
		resp, err := g.call(ctx, nil)
		if err != nil {
			return nil, err
		}
		return g.finish(resp.Text()), nil
	}

	for round := 0; round <= c.maxToolRounds; round++ {
		resp, err := g.call(ctx, req.Tools)
		if err != nil {
			return nil, err
		}
		g.messages = append(g.messages, model.Message{Role: domain.RoleAssistant, Content: resp.Content})

		calls := resp.ToolCalls()
		if resp.StopReason != domain.StopReasonToolUse || len(calls) == 0 {
			return g.finish(resp.Text()), nil
		}

		if round >= c.maxToolRounds {
			slog.Debug("Tool round limit reached", "rounds", round)
			return g.synthesize(ctx, "max_rounds")
		}

		hadError := g.runTools(ctx, req.Executor, calls)
		g.answer.ToolRounds++

		if hadError {
			return g.synthesize(ctx, "tool_error")
		}
	}

	return g.finish(fallbackAnswer), nil
}

// generation is the state of one Generate call.
type generation struct {
	ctrl     *Controller
	system   string
	messages []model.Message
	answer   *Answer
	seen     map[domain.Source]bool
}

// call sends the transcript to the model. Tools and the tool choice are
// only included when defs is non-empty.
func (g *generation) call(ctx context.Context, defs []domain.ToolDefinition) (*model.Response, error) {
	req := model.Request{
		Model:       g.ctrl.model,
		System:      g.system,
		Messages:    g.messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if len(defs) > 0 {
		req.Tools = defs
		req.ToolChoice = model.ToolChoiceAuto
	}

	provider := g.ctrl.provider.Name()
	start := time.Now()
	resp, err := g.ctrl.provider.Complete(ctx, req)
	modelCallDuration.WithLabelValues(provider, g.ctrl.model).Observe(time.Since(start).Seconds())
	g.answer.ModelCalls++
	if err != nil {
		modelCallsTotal.WithLabelValues(provider, g.ctrl.model, "error").Inc()
		return nil, fmt.Errorf("calling model: %w", err)
	}
	modelCallsTotal.WithLabelValues(provider, g.ctrl.model, "success").Inc()
	modelTokensTotal.WithLabelValues(provider, g.ctrl.model, "input").Add(float64(resp.Usage.InputTokens))
	modelTokensTotal.WithLabelValues(provider, g.ctrl.model, "output").Add(float64(resp.Usage.OutputTokens))
	return resp, nil
}

// runTools executes calls in order and appends their results to the
// transcript as a single user message. It reports whether any call failed.
func (g *generation) runTools(ctx context.Context, exec Executor, calls []domain.ToolCall) bool {
	var (
		blocks   = make([]model.Block, 0, len(calls))
		hadError bool
	)
	for _, call := range calls {
		result := domain.ToolResult{ToolCallID: call.ID}

		res, err := exec.Execute(ctx, call.Name, call.Input)
		if err != nil {
			slog.Warn("Tool execution failed", "tool", call.Name, "error", err)
			toolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
			result.Content = fmt.Sprintf("Error executing %s: %v", call.Name, err)
			result.IsError = true
			hadError = true
		} else {
			toolExecutionsTotal.WithLabelValues(call.Name, "success").Inc()
			result.Content = res.Content
			g.addSources(res.Sources)
		}
		blocks = append(blocks, model.ToolResultBlock{Result: result})
	}

	g.messages = append(g.messages, model.Message{Role: domain.RoleUser, Content: blocks})
	return hadError
}

// synthesize makes a final call without tools so the model answers from
// what it has gathered so far.
func (g *generation) synthesize(ctx context.Context, reason string) (*Answer, error) {
	forcedSynthesesTotal.WithLabelValues(reason).Inc()
	resp, err := g.call(ctx, nil)
	if err != nil {
		return nil, err
	}
	return g.finish(resp.Text()), nil
}

func (g *generation) addSources(sources []domain.Source) {
	if g.seen == nil {
		g.seen = make(map[domain.Source]bool)
	}
	for _, s := range sources {
		if g.seen[s] {
			continue
		}
		g.seen[s] = true
		g.answer.Sources = append(g.answer.Sources, s)
	}
}

// finish records the final text as returned by the model.
func (g *generation) finish(text string) *Answer {
	g.answer.Text = text
	toolRoundsPerQuery.Observe(float64(g.answer.ToolRounds))
	return g.answer
}
