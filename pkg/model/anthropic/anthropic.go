package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/model"
)

// Provider implements model.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Anthropic provider. Retries are disabled: failures are
// reported to the caller on the first attempt.
func New(apiKey string, opts ...option.RequestOption) *Provider {
	if apiKey == "" {
		slog.Warn("No Anthropic API key configured")
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &Provider{client: anthropic.NewClient(append(base, opts...)...)}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "anthropic" }

// List returns the models available to the API key.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	iter := p.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	for iter.Next() {
		m := iter.Current()
		models = append(models, domain.Model{
			ID:       m.ID,
			Name:     m.DisplayName,
			Provider: "anthropic",
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing anthropic models: %w", err)
	}
	return models, nil
}

// Complete sends one Messages API request and converts the reply.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	slog.Debug("Anthropic.Complete", "model", req.Model, "messageCount", len(req.Messages), "tools", len(req.Tools))

	messages, err := toParams(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages:    messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toTools(req.Tools)
		if req.ToolChoice == model.ToolChoiceAuto {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	return fromMessage(msg), nil
}

func toParams(messages []model.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range msg.Content {
			switch b := b.(type) {
			case model.TextBlock:
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case model.ToolUseBlock:
				input := b.Call.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.Call.ID, input, b.Call.Name))
			case model.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.Result.ToolCallID, b.Result.Content, b.Result.IsError))
			default:
				return nil, fmt.Errorf("unsupported content block %T", b)
			}
		}
		if len(blocks) == 0 {
			continue
		}

		switch msg.Role {
		case domain.RoleUser:
			out = append(out, anthropic.NewUserMessage(blocks...))
		case domain.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return out, nil
}

func toTools(defs []domain.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema := anthropic.ToolInputSchemaParam{Type: "object"}
		if d.InputSchema != nil {
			props := make(map[string]any, len(d.InputSchema.Properties))
			for name, prop := range d.InputSchema.Properties {
				props[name] = prop
			}
			schema.Properties = props
			schema.Required = d.InputSchema.Required
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func fromMessage(msg *anthropic.Message) *model.Response {
	resp := &model.Response{
		StopReason: domain.StopReason(msg.StopReason),
		Usage: model.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, c := range msg.Content {
		switch c.Type {
		case "text":
			resp.Content = append(resp.Content, model.TextBlock{Text: c.Text})
		case "tool_use":
			input := map[string]any{}
			if len(c.Input) > 0 {
				if err := json.Unmarshal(c.Input, &input); err != nil {
					slog.Warn("Failed to decode tool input", "tool", c.Name, "error", err)
				}
			}
			resp.Content = append(resp.Content, model.ToolUseBlock{Call: domain.ToolCall{
				ID:    c.ID,
				Name:  c.Name,
				Input: input,
			}})
		}
	}
	return resp
}
