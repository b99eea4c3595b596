package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/store"
)

// Catalog is the part of the catalog store that ingestion writes to.
type Catalog interface {
	AddCourse(ctx context.Context, course *domain.Course, chunks []domain.Chunk) error
	HasCourse(ctx context.Context, title string) (bool, error)
	Clear(ctx context.Context) error
}

var _ Catalog = (store.CatalogStore)(nil)

// Stats counts what a load added.
type Stats struct {
	Courses int
	Chunks  int
	Skipped int
}

// LoadDir ingests every .txt and .md file in dir. Courses already in the
// catalog are skipped. When clear is set the catalog is emptied first.
// Files that fail to parse are logged and skipped.
func LoadDir(ctx context.Context, dir string, catalog Catalog, chunker Chunker, clear bool) (Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats, fmt.Errorf("reading docs directory: %w", err)
	}

	if clear {
		slog.Info("Clearing course catalog")
		if err := catalog.Clear(ctx); err != nil {
			return stats, fmt.Errorf("clearing catalog: %w", err)
		}
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if e.IsDir() || !isCourseFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())

		doc, err := parseFile(path)
		if err != nil {
			slog.Error("Failed to parse course document", "path", path, "error", err)
			continue
		}

		exists, err := catalog.HasCourse(ctx, doc.Course.Title)
		if err != nil {
			return stats, fmt.Errorf("checking course %q: %w", doc.Course.Title, err)
		}
		if exists {
			slog.Debug("Course already loaded", "course", doc.Course.Title)
			stats.Skipped++
			continue
		}

		chunks := chunker.Chunks(doc)
		if err := catalog.AddCourse(ctx, &doc.Course, chunks); err != nil {
			return stats, fmt.Errorf("adding course %q: %w", doc.Course.Title, err)
		}
		slog.Info("Added course", "course", doc.Course.Title, "lessons", len(doc.Course.Lessons), "chunks", len(chunks))
		stats.Courses++
		stats.Chunks += len(chunks)
	}
	return stats, nil
}

func parseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseCourse(f, name)
}

func isCourseFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}
