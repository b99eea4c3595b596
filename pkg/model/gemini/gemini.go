package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/model"
	"google.golang.org/genai"
)

// Provider implements model.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// List returns available Gemini models.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}
		if !supportsGenerate(m) {
			continue
		}
		models = append(models, domain.Model{
			ID:        m.Name,
			Name:      m.DisplayName,
			Provider:  "gemini",
			MaxTokens: int(m.InputTokenLimit),
		})
	}
	return models, nil
}

func supportsGenerate(m *genai.Model) bool {
	if strings.Contains(strings.ToLower(m.Name), "gemma") {
		return false
	}
	for _, action := range m.SupportedActions {
		if action == "generateContent" {
			return true
		}
	}
	return false
}

// Complete sends a single generateContent request.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	slog.Debug("Gemini.Complete", "model", req.Model, "messageCount", len(req.Messages), "tools", len(req.Tools))

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, toContents(req.Messages), buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return fromResponse(resp), nil
}

func buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if len(req.Tools) > 0 {
		config.Tools = buildToolDeclarations(req.Tools)
		if req.ToolChoice == model.ToolChoiceAuto {
			config.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{
					Mode: genai.FunctionCallingConfigModeAuto,
				},
			}
		}
	}
	return config
}

func buildToolDeclarations(defs []domain.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		decl := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if d.InputSchema != nil {
			decl.ParametersJsonSchema = d.InputSchema
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toContents converts the transcript. Function responses need the function
// name, which is recovered from the earlier call with the same ID.
func toContents(messages []model.Message) []*genai.Content {
	var contents []*genai.Content
	toolNameMap := make(map[string]string) // tool call ID -> name

	for _, msg := range messages {
		var parts []*genai.Part
		for _, b := range msg.Content {
			switch b := b.(type) {
			case model.TextBlock:
				if b.Text != "" {
					parts = append(parts, &genai.Part{Text: b.Text})
				}
			case model.ToolUseBlock:
				toolNameMap[b.Call.ID] = b.Call.Name
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   b.Call.ID,
						Name: b.Call.Name,
						Args: b.Call.Input,
					},
				})
			case model.ToolResultBlock:
				response := map[string]any{"result": b.Result.Content}
				if b.Result.IsError {
					response = map[string]any{"error": b.Result.Content}
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       b.Result.ToolCallID,
						Name:     toolNameMap[b.Result.ToolCallID],
						Response: response,
					},
				})
			}
		}

		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents
}

func fromResponse(resp *genai.GenerateContentResponse) *model.Response {
	out := &model.Response{StopReason: domain.StopReasonEndTurn}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return out
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonMaxTokens {
		out.StopReason = domain.StopReasonMaxTokens
	}
	if cand.Content == nil {
		return out
	}

	var text strings.Builder
	var calls []model.Block
	for _, part := range cand.Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			id := fc.ID
			if id == "" {
				id = "call-" + uuid.New().String()
			}
			calls = append(calls, model.ToolUseBlock{Call: domain.ToolCall{
				ID:    id,
				Name:  fc.Name,
				Input: fc.Args,
			}})
		}
	}

	if text.Len() > 0 {
		out.Content = append(out.Content, model.TextBlock{Text: text.String()})
	}
	if len(calls) > 0 {
		out.Content = append(out.Content, calls...)
		// Gemini has no dedicated stop reason for function calls.
		out.StopReason = domain.StopReasonToolUse
	}
	return out
}
