package domain

import (
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Course is a single course in the catalog together with its lessons.
type Course struct {
	Title      string   `json:"title"`
	Instructor string   `json:"instructor,omitempty"`
	Link       string   `json:"course_link,omitempty"`
	Lessons    []Lesson `json:"lessons"`
}

// Lesson is one numbered lesson of a course.
type Lesson struct {
	Number int    `json:"lesson_number"`
	Title  string `json:"lesson_title"`
	Link   string `json:"lesson_link,omitempty"`
}

// Chunk is a searchable piece of course content.
type Chunk struct {
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"` // nil for course-level content
	Index        int    `json:"chunk_index"`
	Content      string `json:"content"`
}

// CourseSummary is the lightweight catalog view used for listings.
type CourseSummary struct {
	Title       string `json:"title"`
	LessonCount int    `json:"lesson_count"`
}

// Source describes where a piece of retrieved content came from.
type Source struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// Model represents an available LLM model.
type Model struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// ToolDefinition is the schema-described contract a tool presents to the model.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult represents the outcome of a tool call execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// SessionMessage is one persisted turn of a conversation.
type SessionMessage struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
