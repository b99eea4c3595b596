// Package ingest turns course documents into catalog entries and
// searchable chunks.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/nstogner/coursemate/pkg/domain"
)

var lessonMarker = regexp.MustCompile(`(?i)^lesson\s+(\d+)\s*:\s*(.*)$`)

// Section is a contiguous block of course text. LessonNumber is nil for
// text that precedes the first lesson marker.
type Section struct {
	LessonNumber *int
	Text         string
}

// Document is a parsed course file.
type Document struct {
	Course   domain.Course
	Sections []Section
}

// ParseCourse reads a course document. fallbackTitle is used when the
// document has no "Course Title:" header.
func ParseCourse(r io.Reader, fallbackTitle string) (*Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	doc := &Document{}
	var (
		inHeader = true
		current  *Section
		lines    []string
		// expectLink is set right after a lesson marker.
		expectLink bool
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		lines = lines[:0]
		if current == nil {
			if text != "" {
				doc.Sections = append(doc.Sections, Section{Text: text})
			}
			return
		}
		current.Text = text
		doc.Sections = append(doc.Sections, *current)
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if inHeader {
			if v, ok := headerValue(trimmed, "Course Title:"); ok {
				doc.Course.Title = v
				continue
			}
			if v, ok := headerValue(trimmed, "Course Link:"); ok {
				doc.Course.Link = v
				continue
			}
			if v, ok := headerValue(trimmed, "Course Instructor:"); ok {
				doc.Course.Instructor = v
				continue
			}
			if trimmed == "" {
				continue
			}
			inHeader = false
		}

		if m := lessonMarker.FindStringSubmatch(trimmed); m != nil {
			flush()
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("parsing lesson number %q: %w", m[1], err)
			}
			doc.Course.Lessons = append(doc.Course.Lessons, domain.Lesson{
				Number: n,
				Title:  strings.TrimSpace(m[2]),
			})
			current = &Section{LessonNumber: &n}
			expectLink = true
			continue
		}

		if expectLink {
			if v, ok := headerValue(trimmed, "Lesson Link:"); ok {
				doc.Course.Lessons[len(doc.Course.Lessons)-1].Link = v
				expectLink = false
				continue
			}
			if trimmed != "" {
				expectLink = false
			}
		}

		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading course document: %w", err)
	}
	flush()

	if doc.Course.Title == "" {
		doc.Course.Title = fallbackTitle
	}
	if doc.Course.Title == "" {
		return nil, fmt.Errorf("course document has no title")
	}
	return doc, nil
}

func headerValue(line, prefix string) (string, bool) {
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}
