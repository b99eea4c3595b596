package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/store"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(t.TempDir()+"/test.db", opts...)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(n int) *int { return &n }

func seedCourses(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	mcp := &domain.Course{
		Title:      "MCP: Build Rich-Context AI Apps with Anthropic",
		Instructor: "Elie Schoppik",
		Link:       "https://example.com/mcp",
		Lessons: []domain.Lesson{
			{Number: 0, Title: "Introduction", Link: "https://example.com/mcp/0"},
			{Number: 1, Title: "Why MCP", Link: "https://example.com/mcp/1"},
			{Number: 2, Title: "MCP Architecture"},
		},
	}
	mcpChunks := []domain.Chunk{
		{CourseTitle: mcp.Title, LessonNumber: intPtr(0), Index: 0, Content: "MCP is a protocol that connects models to tools and data."},
		{CourseTitle: mcp.Title, LessonNumber: intPtr(1), Index: 1, Content: "Servers expose tools, resources and prompts to clients."},
		{CourseTitle: mcp.Title, LessonNumber: intPtr(2), Index: 2, Content: "The client server architecture of the protocol uses JSON-RPC."},
	}
	if err := s.AddCourse(ctx, mcp, mcpChunks); err != nil {
		t.Fatalf("AddCourse(mcp): %v", err)
	}

	retrieval := &domain.Course{
		Title: "Advanced Retrieval for AI with Chroma",
		Link:  "https://example.com/chroma",
		Lessons: []domain.Lesson{
			{Number: 1, Title: "Overview of embeddings-based retrieval"},
		},
	}
	retrievalChunks := []domain.Chunk{
		{CourseTitle: retrieval.Title, LessonNumber: intPtr(1), Index: 0, Content: "Embeddings place similar text close together for retrieval."},
		{CourseTitle: retrieval.Title, Index: 1, Content: "Query expansion improves retrieval with generated answers."},
	}
	if err := s.AddCourse(ctx, retrieval, retrievalChunks); err != nil {
		t.Fatalf("AddCourse(retrieval): %v", err)
	}
}

func TestAddCourseAndMetadata(t *testing.T) {
	s := newTestStore(t)
	seedCourses(t, s)
	ctx := context.Background()

	ok, err := s.HasCourse(ctx, "Advanced Retrieval for AI with Chroma")
	if err != nil {
		t.Fatalf("HasCourse: %v", err)
	}
	if !ok {
		t.Error("HasCourse = false, want true")
	}

	courses, err := s.ListCourses(ctx)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("ListCourses len = %d, want 2", len(courses))
	}
	if courses[0].Title != "Advanced Retrieval for AI with Chroma" || courses[0].LessonCount != 1 {
		t.Errorf("courses[0] = %+v", courses[0])
	}
	if courses[1].LessonCount != 3 {
		t.Errorf("courses[1].LessonCount = %d, want 3", courses[1].LessonCount)
	}

	rec, err := s.GetCourse(ctx, "MCP: Build Rich-Context AI Apps with Anthropic")
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if rec.Link != "https://example.com/mcp" || rec.Instructor != "Elie Schoppik" {
		t.Errorf("GetCourse = %+v", rec)
	}
	var lessons []domain.Lesson
	if err := json.Unmarshal([]byte(rec.LessonsJSON), &lessons); err != nil {
		t.Fatalf("decoding lessons: %v", err)
	}
	if len(lessons) != 3 || lessons[1].Title != "Why MCP" {
		t.Errorf("lessons = %+v", lessons)
	}

	_, err = s.GetCourse(ctx, "Nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetCourse(missing) err = %v, want ErrNotFound", err)
	}
}

func TestAddCourseReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	seedCourses(t, s)
	ctx := context.Background()

	replacement := &domain.Course{Title: "Advanced Retrieval for AI with Chroma"}
	chunks := []domain.Chunk{{CourseTitle: replacement.Title, Index: 0, Content: "Reranking with cross encoders."}}
	if err := s.AddCourse(ctx, replacement, chunks); err != nil {
		t.Fatalf("AddCourse: %v", err)
	}

	res, err := s.Search(ctx, "embeddings", "", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.IsEmpty() {
		t.Errorf("old chunks still searchable: %v", res.Documents)
	}
	titles, _ := s.CourseTitles(ctx)
	if len(titles) != 2 {
		t.Errorf("CourseTitles = %v, want 2 titles", titles)
	}
}

func TestLinks(t *testing.T) {
	s := newTestStore(t)
	seedCourses(t, s)
	ctx := context.Background()
	title := "MCP: Build Rich-Context AI Apps with Anthropic"

	link, err := s.LessonLink(ctx, title, 1)
	if err != nil {
		t.Fatalf("LessonLink: %v", err)
	}
	if link != "https://example.com/mcp/1" {
		t.Errorf("LessonLink = %q", link)
	}

	link, err = s.LessonLink(ctx, title, 2)
	if err != nil || link != "" {
		t.Errorf("LessonLink(no link) = %q, %v; want empty, nil", link, err)
	}

	link, err = s.CourseLink(ctx, "Unknown")
	if err != nil || link != "" {
		t.Errorf("CourseLink(unknown) = %q, %v; want empty, nil", link, err)
	}
}

func TestResolveCourseTitle(t *testing.T) {
	s := newTestStore(t)
	seedCourses(t, s)
	ctx := context.Background()

	tests := []struct {
		partial string
		want    string
		ok      bool
	}{
		{"advanced retrieval for ai with chroma", "Advanced Retrieval for AI with Chroma", true},
		{"MCP", "MCP: Build Rich-Context AI Apps with Anthropic", true},
		{"chroma", "Advanced Retrieval for AI with Chroma", true},
		{"retrieval course chroma", "Advanced Retrieval for AI with Chroma", true},
		{"Kubernetes", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok, err := s.ResolveCourseTitle(ctx, tt.partial)
		if err != nil {
			t.Fatalf("ResolveCourseTitle(%q): %v", tt.partial, err)
		}
		if got != tt.want || ok != tt.ok {
			t.Errorf("ResolveCourseTitle(%q) = %q, %v; want %q, %v", tt.partial, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	seedCourses(t, s)
	ctx := context.Background()

	res, err := s.Search(ctx, "What is the protocol?", "", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Documents) != 2 {
		t.Fatalf("Search hits = %d, want 2: %v", len(res.Documents), res.Documents)
	}
	if len(res.Metadata) != 2 || len(res.Distances) != 2 {
		t.Fatalf("parallel slices out of sync: %d metadata, %d distances", len(res.Metadata), len(res.Distances))
	}
	if res.Metadata[0].LessonNumber == nil || *res.Metadata[0].LessonNumber != 0 {
		t.Errorf("first hit lesson = %v, want 0", res.Metadata[0].LessonNumber)
	}

	// Best match ranks first.
	res, err = s.Search(ctx, "client server architecture", "", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.IsEmpty() || res.Metadata[0].ChunkIndex != 2 {
		t.Errorf("top hit = %+v, want chunk 2", res.Metadata)
	}
	if res.Distances[0] != 0 {
		t.Errorf("full match distance = %v, want 0", res.Distances[0])
	}
}

func TestSearchFilters(t *testing.T) {
	s := newTestStore(t)
	seedCourses(t, s)
	ctx := context.Background()

	res, err := s.Search(ctx, "retrieval", "Chroma", intPtr(1))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Documents) != 1 {
		t.Fatalf("lesson-filtered hits = %d, want 1", len(res.Documents))
	}
	if res.Metadata[0].CourseTitle != "Advanced Retrieval for AI with Chroma" {
		t.Errorf("hit course = %q", res.Metadata[0].CourseTitle)
	}

	res, err = s.Search(ctx, "retrieval", "Chroma", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Documents) != 2 {
		t.Errorf("course-filtered hits = %d, want 2", len(res.Documents))
	}
	for _, m := range res.Metadata {
		if m.ChunkIndex == 1 && m.LessonNumber != nil {
			t.Errorf("course-level chunk has lesson %d", *m.LessonNumber)
		}
	}

	// An unresolvable course is indistinguishable from no matches.
	res, err = s.Search(ctx, "retrieval", "Kubernetes", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.IsEmpty() {
		t.Errorf("unknown course returned %d hits", len(res.Documents))
	}
}

func TestSearchMaxResultsAndEscaping(t *testing.T) {
	s := newTestStore(t, WithMaxResults(1))
	seedCourses(t, s)
	ctx := context.Background()

	res, err := s.Search(ctx, "retrieval", "", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Documents) != 1 {
		t.Errorf("hits = %d, want 1", len(res.Documents))
	}

	res, err = s.Search(ctx, "100%", "", nil)
	if err != nil {
		t.Fatalf("Search(%%): %v", err)
	}
	if !res.IsEmpty() {
		t.Errorf("wildcard characters matched literally nothing but got %v", res.Documents)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	seedCourses(t, s)
	ctx := context.Background()

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	courses, err := s.ListCourses(ctx)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(courses) != 0 {
		t.Errorf("ListCourses after Clear = %v", courses)
	}
}

func TestSessionMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "s-1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	ok, err := s.SessionExists(ctx, "s-1")
	if err != nil || !ok {
		t.Fatalf("SessionExists = %v, %v", ok, err)
	}

	for i, content := range []string{"q1", "a1", "q2", "a2", "q3", "a3"} {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		if err := s.AppendMessage(ctx, &domain.SessionMessage{SessionID: "s-1", Role: role, Content: content}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.RecentMessages(ctx, "s-1", 4)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("RecentMessages len = %d, want 4", len(msgs))
	}
	if msgs[0].Content != "q2" || msgs[3].Content != "a3" {
		t.Errorf("RecentMessages = %+v, want q2..a3 in order", msgs)
	}
	if msgs[1].Role != domain.RoleAssistant {
		t.Errorf("msgs[1].Role = %q, want assistant", msgs[1].Role)
	}

	all, err := s.RecentMessages(ctx, "s-1", 0)
	if err != nil {
		t.Fatalf("RecentMessages(all): %v", err)
	}
	if len(all) != 6 {
		t.Errorf("RecentMessages(all) len = %d, want 6", len(all))
	}
}

func TestAppendMessageCreatesSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendMessage(ctx, &domain.SessionMessage{SessionID: "implicit", Role: domain.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	ok, err := s.SessionExists(ctx, "implicit")
	if err != nil || !ok {
		t.Errorf("SessionExists = %v, %v; want true", ok, err)
	}
}
