package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/store"
)

// DefaultMaxResults is the number of chunks returned by Search unless
// overridden with WithMaxResults.
const DefaultMaxResults = 5

// Store implements CatalogStore and SessionStore using SQLite.
type Store struct {
	db         *sql.DB
	maxResults int
}

// Verify interface compliance at compile time.
var _ store.CatalogStore = (*Store)(nil)
var _ store.SessionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithMaxResults sets the maximum number of chunks returned by Search.
func WithMaxResults(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db, maxResults: DefaultMaxResults}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		title TEXT PRIMARY KEY,
		instructor TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		lessons_json TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS lessons (
		course_title TEXT NOT NULL,
		number INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (course_title, number),
		FOREIGN KEY (course_title) REFERENCES courses(title) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_title TEXT NOT NULL,
		lesson_number INTEGER,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (course_title) REFERENCES courses(title) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_course_lesson ON chunks(course_title, lesson_number);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS session_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- CatalogStore ---

func (s *Store) AddCourse(ctx context.Context, course *domain.Course, chunks []domain.Chunk) error {
	if course.Title == "" {
		return errors.New("course title is required")
	}
	lessons := course.Lessons
	if lessons == nil {
		lessons = []domain.Lesson{}
	}
	lessonsJSON, err := json.Marshal(lessons)
	if err != nil {
		return fmt.Errorf("encoding lessons: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM chunks WHERE course_title=?`,
		`DELETE FROM lessons WHERE course_title=?`,
		`DELETE FROM courses WHERE title=?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, course.Title); err != nil {
			return fmt.Errorf("replacing course: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO courses (title, instructor, link, lessons_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		course.Title, course.Instructor, course.Link, string(lessonsJSON), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("inserting course: %w", err)
	}

	for _, l := range course.Lessons {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO lessons (course_title, number, title, link) VALUES (?, ?, ?, ?)`,
			course.Title, l.Number, l.Title, l.Link,
		); err != nil {
			return fmt.Errorf("inserting lesson %d: %w", l.Number, err)
		}
	}

	for _, c := range chunks {
		var lesson sql.NullInt64
		if c.LessonNumber != nil {
			lesson = sql.NullInt64{Int64: int64(*c.LessonNumber), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (course_title, lesson_number, chunk_index, content) VALUES (?, ?, ?, ?)`,
			course.Title, lesson, c.Index, c.Content,
		); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Index, err)
		}
	}

	return tx.Commit()
}

func (s *Store) HasCourse(ctx context.Context, title string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses WHERE title=?`, title).Scan(&n)
	return n > 0, err
}

func (s *Store) Search(ctx context.Context, query, courseName string, lessonNumber *int) (*store.SearchResults, error) {
	var courseTitle string
	if courseName != "" {
		title, ok, err := s.ResolveCourseTitle(ctx, courseName)
		if err != nil {
			return nil, fmt.Errorf("search error: %w", err)
		}
		if !ok {
			slog.Debug("Search course filter did not resolve", "courseName", courseName)
			return &store.SearchResults{}, nil
		}
		courseTitle = title
	}

	terms := searchTerms(query)
	if len(terms) == 0 {
		return &store.SearchResults{}, nil
	}

	var score strings.Builder
	args := make([]any, 0, len(terms)+3)
	for i, term := range terms {
		if i > 0 {
			score.WriteString(" + ")
		}
		score.WriteString(`(content LIKE ? ESCAPE '\')`)
		args = append(args, "%"+escapeLike(term)+"%")
	}

	q := `SELECT course_title, lesson_number, chunk_index, content, score FROM (
		SELECT id, course_title, lesson_number, chunk_index, content, (` + score.String() + `) AS score
		FROM chunks WHERE 1=1`
	if courseTitle != "" {
		q += ` AND course_title = ?`
		args = append(args, courseTitle)
	}
	if lessonNumber != nil {
		q += ` AND lesson_number = ?`
		args = append(args, *lessonNumber)
	}
	q += `) WHERE score > 0 ORDER BY score DESC, id ASC LIMIT ?`
	args = append(args, s.maxResults)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}
	defer rows.Close()

	results := &store.SearchResults{}
	for rows.Next() {
		var (
			meta    store.ChunkMetadata
			lesson  sql.NullInt64
			content string
			hits    int
		)
		if err := rows.Scan(&meta.CourseTitle, &lesson, &meta.ChunkIndex, &content, &hits); err != nil {
			return nil, fmt.Errorf("search error: %w", err)
		}
		if lesson.Valid {
			n := int(lesson.Int64)
			meta.LessonNumber = &n
		}
		results.Documents = append(results.Documents, content)
		results.Metadata = append(results.Metadata, meta)
		results.Distances = append(results.Distances, 1-float64(hits)/float64(len(terms)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}
	return results, nil
}

func (s *Store) ResolveCourseTitle(ctx context.Context, partial string) (string, bool, error) {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return "", false, nil
	}

	var title string
	err := s.db.QueryRowContext(ctx,
		`SELECT title FROM courses WHERE lower(title) = lower(?) LIMIT 1`, partial,
	).Scan(&title)
	if err == nil {
		return title, true, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("resolving course %q: %w", partial, err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT title FROM courses WHERE title LIKE ? ESCAPE '\' ORDER BY length(title), title LIMIT 1`,
		"%"+escapeLike(partial)+"%",
	).Scan(&title)
	if err == nil {
		return title, true, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("resolving course %q: %w", partial, err)
	}

	// Fall back to the title sharing the most words with the partial name.
	titles, err := s.CourseTitles(ctx)
	if err != nil {
		return "", false, fmt.Errorf("resolving course %q: %w", partial, err)
	}
	want := searchTerms(partial)
	best, bestScore := "", 0
	for _, t := range titles {
		have := make(map[string]bool)
		for _, w := range searchTerms(t) {
			have[w] = true
		}
		score := 0
		for _, w := range want {
			if have[w] {
				score++
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && len(t) < len(best)) {
			best, bestScore = t, score
		}
	}
	if bestScore == 0 {
		return "", false, nil
	}
	return best, true, nil
}

func (s *Store) CourseLink(ctx context.Context, title string) (string, error) {
	var link string
	err := s.db.QueryRowContext(ctx, `SELECT link FROM courses WHERE title=?`, title).Scan(&link)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return link, err
}

func (s *Store) LessonLink(ctx context.Context, title string, lessonNumber int) (string, error) {
	var link string
	err := s.db.QueryRowContext(ctx,
		`SELECT link FROM lessons WHERE course_title=? AND number=?`, title, lessonNumber,
	).Scan(&link)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return link, err
}

func (s *Store) ListCourses(ctx context.Context) ([]domain.CourseSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.title, COUNT(l.number)
		 FROM courses c LEFT JOIN lessons l ON l.course_title = c.title
		 GROUP BY c.title ORDER BY c.title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []domain.CourseSummary
	for rows.Next() {
		var c domain.CourseSummary
		if err := rows.Scan(&c.Title, &c.LessonCount); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (s *Store) GetCourse(ctx context.Context, title string) (*store.CourseRecord, error) {
	rec := &store.CourseRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT c.title, c.instructor, c.link, c.lessons_json,
		        (SELECT COUNT(*) FROM lessons l WHERE l.course_title = c.title)
		 FROM courses c WHERE c.title=?`, title,
	).Scan(&rec.Title, &rec.Instructor, &rec.Link, &rec.LessonsJSON, &rec.LessonCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("course %q: %w", title, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) CourseTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM courses ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

func (s *Store) Clear(ctx context.Context) error {
	for _, stmt := range []string{`DELETE FROM chunks`, `DELETE FROM lessons`, `DELETE FROM courses`} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing catalog: %w", err)
		}
	}
	return nil
}

// --- SessionStore ---

func (s *Store) CreateSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at) VALUES (?, ?)`, id, time.Now().UTC())
	return err
}

func (s *Store) SessionExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id=?`, id).Scan(&n)
	return n > 0, err
}

func (s *Store) AppendMessage(ctx context.Context, msg *domain.SessionMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)`, msg.SessionID, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("ensuring session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return tx.Commit()
}

func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.SessionMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at FROM session_messages
			WHERE session_id=? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.SessionMessage
	for rows.Next() {
		var m domain.SessionMessage
		if err := rows.Scan(&m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// stopWords are dropped from search queries unless nothing else remains.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "about": true, "do": true, "does": true,
	"for": true, "how": true, "in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "the": true, "to": true, "what": true, "which": true, "with": true,
}

// searchTerms lowercases text and splits it into unique words.
func searchTerms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var all, kept []string
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		all = append(all, w)
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		kept = all
	}
	return kept
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
