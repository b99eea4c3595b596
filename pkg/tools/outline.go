package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/store"
)

const OutlineToolName = "get_course_outline"

// Outliner is the part of the catalog the outline tool needs.
type Outliner interface {
	ListCourses(ctx context.Context) ([]domain.CourseSummary, error)
	ResolveCourseTitle(ctx context.Context, partial string) (string, bool, error)
	GetCourse(ctx context.Context, title string) (*store.CourseRecord, error)
}

// OutlineTool renders a course's lesson list, or the whole catalog when no
// course is named.
type OutlineTool struct {
	catalog Outliner
}

var _ Tool = (*OutlineTool)(nil)

func NewOutlineTool(catalog Outliner) *OutlineTool {
	return &OutlineTool{catalog: catalog}
}

func (t *OutlineTool) Definition() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        OutlineToolName,
		Description: "Get course structure including title, link, and complete lesson list. Use for questions about course curriculum or what a course covers.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"course_name": {
					Type:        "string",
					Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction'). If omitted, lists all available courses.",
				},
			},
		},
	}
}

func (t *OutlineTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	name := stringArg(args, "course_name")
	if name == "" {
		return Result{Content: t.catalogListing(ctx)}, nil
	}
	return Result{Content: t.outline(ctx, name)}, nil
}

func (t *OutlineTool) catalogListing(ctx context.Context) string {
	courses, err := t.catalog.ListCourses(ctx)
	if err != nil {
		return outlineError(err)
	}
	if len(courses) == 0 {
		return "No courses found in the catalog."
	}

	lines := []string{"Available courses:"}
	for _, c := range courses {
		lines = append(lines, fmt.Sprintf("- %s (%d lessons)", c.Title, c.LessonCount))
	}
	return strings.Join(lines, "\n")
}

// outlineLesson tolerates partially populated lesson records.
type outlineLesson struct {
	Number *int    `json:"lesson_number"`
	Title  *string `json:"lesson_title"`
}

func (t *OutlineTool) outline(ctx context.Context, name string) string {
	title, ok, err := t.catalog.ResolveCourseTitle(ctx, name)
	if err != nil {
		return outlineError(err)
	}
	if !ok {
		return fmt.Sprintf("No course found matching '%s'.", name)
	}

	rec, err := t.catalog.GetCourse(ctx, title)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("Course data not found for '%s'.", title)
	}
	if err != nil {
		return outlineError(err)
	}

	var lessons []outlineLesson
	if rec.LessonsJSON != "" {
		if err := json.Unmarshal([]byte(rec.LessonsJSON), &lessons); err != nil {
			return outlineError(fmt.Errorf("decoding lessons: %w", err))
		}
	}

	courseTitle := rec.Title
	if courseTitle == "" {
		courseTitle = title
	}
	link := rec.Link
	if link == "" {
		link = "No link available"
	}

	lines := []string{
		"Course: " + courseTitle,
		"Link: " + link,
		"",
	}
	if len(lessons) == 0 {
		lines = append(lines, "No lesson information available.")
		return strings.Join(lines, "\n")
	}

	// Lessons without a number sort as lesson 0.
	sort.SliceStable(lessons, func(i, j int) bool {
		return lessonKey(lessons[i]) < lessonKey(lessons[j])
	})

	lines = append(lines, "Lessons:")
	for _, l := range lessons {
		num := "?"
		if l.Number != nil {
			num = fmt.Sprint(*l.Number)
		}
		lessonTitle := "Untitled"
		if l.Title != nil {
			lessonTitle = *l.Title
		}
		lines = append(lines, fmt.Sprintf("%s. %s", num, lessonTitle))
	}
	return strings.Join(lines, "\n")
}

func lessonKey(l outlineLesson) int {
	if l.Number == nil {
		return 0
	}
	return *l.Number
}

func outlineError(err error) string {
	return fmt.Sprintf("Error retrieving course outline: %v", err)
}
