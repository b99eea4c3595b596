package gemini

import (
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/model"
	"google.golang.org/genai"
)

func TestToContentsPairsFunctionResponses(t *testing.T) {
	messages := []model.Message{
		model.UserText("What is MCP?"),
		{Role: domain.RoleAssistant, Content: []model.Block{
			model.TextBlock{Text: "Searching."},
			model.ToolUseBlock{Call: domain.ToolCall{ID: "c1", Name: "search_course_content", Input: map[string]any{"query": "mcp"}}},
		}},
		{Role: domain.RoleUser, Content: []model.Block{
			model.ToolResultBlock{Result: domain.ToolResult{ToolCallID: "c1", Content: "hit"}},
		}},
	}

	contents := toContents(messages)
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	if contents[1].Role != "model" || contents[2].Role != "user" {
		t.Errorf("roles = %s, %s", contents[1].Role, contents[2].Role)
	}
	fr := contents[2].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "search_course_content" || fr.Response["result"] != "hit" {
		t.Errorf("function response = %+v", fr)
	}
}

func TestToContentsErrorResult(t *testing.T) {
	contents := toContents([]model.Message{{Role: domain.RoleUser, Content: []model.Block{
		model.ToolResultBlock{Result: domain.ToolResult{ToolCallID: "x", Content: "boom", IsError: true}},
	}}})
	if got := contents[0].Parts[0].FunctionResponse.Response["error"]; got != "boom" {
		t.Errorf("error response = %v", got)
	}
}

func TestBuildConfig(t *testing.T) {
	cfg := buildConfig(model.Request{
		System:     "sys",
		MaxTokens:  800,
		ToolChoice: model.ToolChoiceAuto,
		Tools: []domain.ToolDefinition{{
			Name:        "get_course_outline",
			InputSchema: &jsonschema.Schema{Type: "object"},
		}},
	})
	if cfg.MaxOutputTokens != 800 || cfg.Temperature == nil || *cfg.Temperature != 0 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("system instruction = %+v", cfg.SystemInstruction)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].FunctionDeclarations[0].Name != "get_course_outline" {
		t.Errorf("tools = %+v", cfg.Tools)
	}
	if cfg.ToolConfig == nil || cfg.ToolConfig.FunctionCallingConfig.Mode != genai.FunctionCallingConfigModeAuto {
		t.Errorf("tool config = %+v", cfg.ToolConfig)
	}

	bare := buildConfig(model.Request{MaxTokens: 800})
	if bare.Tools != nil || bare.ToolConfig != nil || bare.SystemInstruction != nil {
		t.Errorf("bare config = %+v", bare)
	}
}

func TestFromResponse(t *testing.T) {
	resp := fromResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Looking."},
				{FunctionCall: &genai.FunctionCall{Name: "search_course_content", Args: map[string]any{"query": "x"}}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 5, CandidatesTokenCount: 3},
	})

	if resp.StopReason != domain.StopReasonToolUse {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 || calls[0].ID == "" || calls[0].Name != "search_course_content" {
		t.Errorf("calls = %+v", calls)
	}
	if resp.Text() != "Looking." || resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 3 {
		t.Errorf("resp = %+v", resp)
	}

	plain := fromResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: "Done."}}},
			FinishReason: genai.FinishReasonStop,
		}},
	})
	if plain.StopReason != domain.StopReasonEndTurn || plain.Text() != "Done." {
		t.Errorf("plain = %+v", plain)
	}

	if empty := fromResponse(&genai.GenerateContentResponse{}); empty.Text() != "" || len(empty.Content) != 0 {
		t.Errorf("empty = %+v", empty)
	}
}
