// Package rag answers questions about the course catalog. It ties together
// the catalog, the conversation sessions and the tool-calling controller.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstogner/coursemate/pkg/controller"
	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/ingest"
	"github.com/nstogner/coursemate/pkg/model"
	"github.com/nstogner/coursemate/pkg/session"
	"github.com/nstogner/coursemate/pkg/store"
	"github.com/nstogner/coursemate/pkg/tools"
)

// System is the query facade used by the HTTP server and the CLI.
type System struct {
	catalog  store.CatalogStore
	sessions *session.Manager
	ctrl     *controller.Controller
	provider model.Provider
	chunker  ingest.Chunker
}

// Config wires a System.
type Config struct {
	Catalog  store.CatalogStore
	Sessions *session.Manager
	Provider model.Provider
	Model    string
	// MaxToolRounds bounds tool rounds per query. Nil means the default.
	MaxToolRounds *int
	Chunker       ingest.Chunker
}

// New creates a new System.
func New(cfg Config) *System {
	return &System{
		catalog:  cfg.Catalog,
		sessions: cfg.Sessions,
		provider: cfg.Provider,
		chunker:  cfg.Chunker,
		ctrl: controller.New(cfg.Provider, controller.Config{
			Model:         cfg.Model,
			MaxToolRounds: cfg.MaxToolRounds,
		}),
	}
}

// QueryResult is the answer to one question.
type QueryResult struct {
	Answer    string          `json:"answer"`
	Sources   []domain.Source `json:"sources"`
	SessionID string          `json:"session_id"`
}

// Analytics summarizes the catalog.
type Analytics struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

// newRegistry builds the tools for one query. Registries are not shared
// between queries.
func (s *System) newRegistry() (*tools.Registry, error) {
	reg := tools.NewRegistry()
	for _, t := range []tools.Tool{
		tools.NewSearchTool(s.catalog),
		tools.NewOutlineTool(s.catalog),
	} {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Query answers query in the context of a session. A new session is
// created when sessionID is empty.
func (s *System) Query(ctx context.Context, query, sessionID string) (*QueryResult, error) {
	if sessionID == "" {
		id, err := s.sessions.CreateSession(ctx)
		if err != nil {
			return nil, err
		}
		sessionID = id
	}

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	reg, err := s.newRegistry()
	if err != nil {
		return nil, fmt.Errorf("building tools: %w", err)
	}

	ans, err := s.ctrl.Generate(ctx, controller.GenerateRequest{
		Query:    "Answer this question about course materials: " + query,
		History:  history,
		Tools:    reg.Definitions(),
		Executor: reg,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.AddExchange(ctx, sessionID, query, ans.Text); err != nil {
		return nil, err
	}

	slog.Info("Answered query", "session", sessionID, "modelCalls", ans.ModelCalls, "toolRounds", ans.ToolRounds, "sources", len(ans.Sources))

	// Sources come from the answer, which gathers them across every tool
	// round. The registry is discarded with this query.
	sources := ans.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	return &QueryResult{
		Answer:    ans.Text,
		Sources:   sources,
		SessionID: sessionID,
	}, nil
}

// CourseAnalytics returns the number of courses and their titles.
func (s *System) CourseAnalytics(ctx context.Context) (*Analytics, error) {
	titles, err := s.catalog.CourseTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing course titles: %w", err)
	}
	if titles == nil {
		titles = []string{}
	}
	return &Analytics{TotalCourses: len(titles), CourseTitles: titles}, nil
}

// Outline renders the outline of one course, or the catalog listing when
// courseName is empty.
func (s *System) Outline(ctx context.Context, courseName string) (string, error) {
	res, err := tools.NewOutlineTool(s.catalog).Execute(ctx, map[string]any{"course_name": courseName})
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// CreateSession starts a new conversation.
func (s *System) CreateSession(ctx context.Context) (string, error) {
	return s.sessions.CreateSession(ctx)
}

// SessionHistory returns the retained messages of a session. It returns
// store.ErrNotFound for unknown sessions.
func (s *System) SessionHistory(ctx context.Context, id string) ([]domain.SessionMessage, error) {
	ok, err := s.sessions.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, store.ErrNotFound)
	}
	return s.sessions.Messages(ctx, id)
}

// Models lists the models offered by the configured provider.
func (s *System) Models(ctx context.Context) ([]domain.Model, error) {
	return s.provider.List(ctx)
}

// IngestDir loads course documents from dir into the catalog.
func (s *System) IngestDir(ctx context.Context, dir string, clear bool) (ingest.Stats, error) {
	return ingest.LoadDir(ctx, dir, s.catalog, s.chunker, clear)
}
