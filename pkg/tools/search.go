package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/store"
)

const SearchToolName = "search_course_content"

// Searcher is the part of the catalog the search tool needs.
type Searcher interface {
	Search(ctx context.Context, query, courseName string, lessonNumber *int) (*store.SearchResults, error)
	CourseLink(ctx context.Context, title string) (string, error)
	LessonLink(ctx context.Context, title string, lessonNumber int) (string, error)
}

// SearchTool searches course content with optional course and lesson filters.
type SearchTool struct {
	catalog Searcher
}

var _ Tool = (*SearchTool)(nil)

func NewSearchTool(catalog Searcher) *SearchTool {
	return &SearchTool{catalog: catalog}
}

func (t *SearchTool) Definition() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        SearchToolName,
		Description: "Search course materials with smart course name matching and lesson filtering",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "What to search for in the course content",
				},
				"course_name": {
					Type:        "string",
					Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": {
					Type:        "integer",
					Description: "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	query := stringArg(args, "query")
	if query == "" {
		return Result{}, errors.New("argument 'query' is required and must be a non-empty string")
	}
	courseName := stringArg(args, "course_name")
	lesson, err := intArg(args, "lesson_number")
	if err != nil {
		return Result{}, err
	}

	slog.Debug("Searching course content", "query", query, "course", courseName, "lesson", lesson)
	results, err := t.catalog.Search(ctx, query, courseName, lesson)
	if err != nil {
		// Backend failures are shown to the model as-is.
		return Result{Content: err.Error()}, nil
	}

	if results.IsEmpty() {
		var b strings.Builder
		b.WriteString("No relevant content found")
		if courseName != "" {
			fmt.Fprintf(&b, " in course '%s'", courseName)
		}
		if lesson != nil {
			fmt.Fprintf(&b, " in lesson %d", *lesson)
		}
		b.WriteString(".")
		return Result{Content: b.String()}, nil
	}

	return t.format(ctx, results), nil
}

func (t *SearchTool) format(ctx context.Context, results *store.SearchResults) Result {
	parts := make([]string, 0, len(results.Documents))
	sources := make([]domain.Source, 0, len(results.Documents))

	for i, doc := range results.Documents {
		var meta store.ChunkMetadata
		if i < len(results.Metadata) {
			meta = results.Metadata[i]
		}
		title := meta.CourseTitle
		if title == "" {
			title = "unknown"
		}

		label := title
		if meta.LessonNumber != nil {
			label = fmt.Sprintf("%s - Lesson %d", title, *meta.LessonNumber)
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", label, doc))
		sources = append(sources, domain.Source{Text: label, URL: t.link(ctx, meta)})
	}

	return Result{
		Content: strings.Join(parts, "\n\n"),
		Sources: sources,
	}
}

// link prefers the lesson link and falls back to the course link.
func (t *SearchTool) link(ctx context.Context, meta store.ChunkMetadata) string {
	if meta.CourseTitle == "" {
		return ""
	}
	if meta.LessonNumber != nil {
		url, err := t.catalog.LessonLink(ctx, meta.CourseTitle, *meta.LessonNumber)
		if err != nil {
			slog.Warn("Failed to look up lesson link", "course", meta.CourseTitle, "lesson", *meta.LessonNumber, "error", err)
		}
		if url != "" {
			return url
		}
	}
	url, err := t.catalog.CourseLink(ctx, meta.CourseTitle)
	if err != nil {
		slog.Warn("Failed to look up course link", "course", meta.CourseTitle, "error", err)
	}
	return url
}
