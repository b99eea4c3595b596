package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/store"
)

func TestOutlineToolCatalogListing(t *testing.T) {
	catalog := &fakeCatalog{
		courses: []domain.CourseSummary{
			{Title: "Course A", LessonCount: 3},
			{Title: "Course B", LessonCount: 0},
		},
	}
	res, err := NewOutlineTool(catalog).Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "Available courses:\n- Course A (3 lessons)\n- Course B (0 lessons)"
	if res.Content != want {
		t.Errorf("Content = %q, want %q", res.Content, want)
	}
}

func TestOutlineToolEmptyCatalog(t *testing.T) {
	res, err := NewOutlineTool(&fakeCatalog{}).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Content != "No courses found in the catalog." {
		t.Errorf("Content = %q", res.Content)
	}
}

func TestOutlineToolCourse(t *testing.T) {
	catalog := &fakeCatalog{
		resolve: map[string]string{"mcp": "MCP Course"},
		records: map[string]*store.CourseRecord{
			"MCP Course": {
				Title:       "MCP Course",
				Link:        "https://example.com/mcp",
				LessonsJSON: `[{"lesson_number":2,"lesson_title":"Servers"},{"lesson_number":0,"lesson_title":"Intro"},{"lesson_number":1}]`,
			},
		},
	}
	res, err := NewOutlineTool(catalog).Execute(context.Background(), map[string]any{"course_name": "mcp"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := strings.Join([]string{
		"Course: MCP Course",
		"Link: https://example.com/mcp",
		"",
		"Lessons:",
		"0. Intro",
		"1. Untitled",
		"2. Servers",
	}, "\n")
	if res.Content != want {
		t.Errorf("Content =\n%s\nwant\n%s", res.Content, want)
	}
	if len(res.Sources) != 0 {
		t.Errorf("outline should not report sources, got %v", res.Sources)
	}
}

func TestOutlineToolMissingValues(t *testing.T) {
	catalog := &fakeCatalog{
		resolve: map[string]string{"x": "X"},
		records: map[string]*store.CourseRecord{
			"X": {Title: "X", LessonsJSON: `[{"lesson_title":"Loose"}]`},
		},
	}
	res, err := NewOutlineTool(catalog).Execute(context.Background(), map[string]any{"course_name": "x"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Content, "Link: No link available") {
		t.Errorf("missing link placeholder in %q", res.Content)
	}
	if !strings.HasSuffix(res.Content, "Lessons:\n?. Loose") {
		t.Errorf("missing lesson number placeholder in %q", res.Content)
	}
}

func TestOutlineToolNoLessons(t *testing.T) {
	for _, lessons := range []string{"", "[]"} {
		catalog := &fakeCatalog{
			resolve: map[string]string{"x": "X"},
			records: map[string]*store.CourseRecord{"X": {Title: "X", Link: "l", LessonsJSON: lessons}},
		}
		res, err := NewOutlineTool(catalog).Execute(context.Background(), map[string]any{"course_name": "x"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		want := "Course: X\nLink: l\n\nNo lesson information available."
		if res.Content != want {
			t.Errorf("lessons %q: Content = %q, want %q", lessons, res.Content, want)
		}
	}
}

func TestOutlineToolErrors(t *testing.T) {
	tests := []struct {
		name    string
		catalog *fakeCatalog
		want    string
	}{
		{
			name:    "unresolved",
			catalog: &fakeCatalog{},
			want:    "No course found matching 'ghost'.",
		},
		{
			name:    "missing record",
			catalog: &fakeCatalog{resolve: map[string]string{"ghost": "Ghost Course"}},
			want:    "Course data not found for 'Ghost Course'.",
		},
		{
			name: "backend failure",
			catalog: &fakeCatalog{
				resolve: map[string]string{"ghost": "Ghost Course"},
				getErr:  errors.New("disk I/O error"),
			},
			want: "Error retrieving course outline: disk I/O error",
		},
		{
			name: "corrupt lessons",
			catalog: &fakeCatalog{
				resolve: map[string]string{"ghost": "Ghost Course"},
				records: map[string]*store.CourseRecord{"Ghost Course": {Title: "Ghost Course", LessonsJSON: "{not json"}},
			},
			want: "Error retrieving course outline: decoding lessons:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewOutlineTool(tt.catalog).Execute(context.Background(), map[string]any{"course_name": "ghost"})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !strings.HasPrefix(res.Content, tt.want) {
				t.Errorf("Content = %q, want prefix %q", res.Content, tt.want)
			}
		})
	}
}
