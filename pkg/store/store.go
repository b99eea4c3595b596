package store

import (
	"context"
	"errors"

	"github.com/nstogner/coursemate/pkg/domain"
)

// ErrNotFound is returned when a requested course or session does not exist.
var ErrNotFound = errors.New("not found")

// ChunkMetadata describes where a search hit came from.
type ChunkMetadata struct {
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	ChunkIndex   int    `json:"chunk_index"`
}

// SearchResults holds ordered search hits. Documents, Metadata and Distances
// are parallel slices.
type SearchResults struct {
	Documents []string
	Metadata  []ChunkMetadata
	Distances []float64
}

// IsEmpty reports whether the search matched nothing.
func (r *SearchResults) IsEmpty() bool {
	return r == nil || len(r.Documents) == 0
}

// CourseRecord is the stored catalog entry for a course. LessonsJSON is the
// raw encoded lesson list as persisted; callers decode it.
type CourseRecord struct {
	Title       string
	Instructor  string
	Link        string
	LessonsJSON string
	LessonCount int
}

// CatalogStore manages course metadata and searchable course content.
type CatalogStore interface {
	// AddCourse persists a course, its lessons and its content chunks.
	// Adding a course whose title already exists replaces it.
	AddCourse(ctx context.Context, course *domain.Course, chunks []domain.Chunk) error

	// HasCourse reports whether a course with exactly this title exists.
	HasCourse(ctx context.Context, title string) (bool, error)

	// Search returns content chunks matching query. courseName is a partial
	// course name resolved with ResolveCourseTitle; an unresolvable name yields
	// empty results. lessonNumber restricts hits to one lesson when non-nil.
	Search(ctx context.Context, query, courseName string, lessonNumber *int) (*SearchResults, error)

	// ResolveCourseTitle maps a partial course name to a full stored title.
	ResolveCourseTitle(ctx context.Context, partial string) (string, bool, error)

	// CourseLink returns the course-level link, or "" when none is stored.
	CourseLink(ctx context.Context, title string) (string, error)

	// LessonLink returns the link of one lesson, or "" when none is stored.
	LessonLink(ctx context.Context, title string, lessonNumber int) (string, error)

	// ListCourses returns every course with its lesson count, ordered by title.
	ListCourses(ctx context.Context) ([]domain.CourseSummary, error)

	// GetCourse returns the stored record for an exact title.
	// Returns ErrNotFound if the course does not exist.
	GetCourse(ctx context.Context, title string) (*CourseRecord, error)

	// CourseTitles returns all course titles, ordered by title.
	CourseTitles(ctx context.Context) ([]string, error)

	// Clear removes all courses, lessons and chunks.
	Clear(ctx context.Context) error
}

// SessionStore persists conversation history.
type SessionStore interface {
	// CreateSession persists a new, empty session with the given ID.
	CreateSession(ctx context.Context, id string) error

	// SessionExists reports whether the session has been created.
	SessionExists(ctx context.Context, id string) (bool, error)

	// AppendMessage adds a message to the end of a session, creating the
	// session if it does not exist yet.
	AppendMessage(ctx context.Context, msg *domain.SessionMessage) error

	// RecentMessages returns at most limit of the latest messages of a
	// session in chronological order. limit <= 0 returns all messages.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.SessionMessage, error)
}
