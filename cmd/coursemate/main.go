// Command coursemate answers questions about course materials.
//
// Usage:
//
//	export ANTHROPIC_API_KEY="your-api-key"
//	coursemate serve                 # load ./docs and serve the API on :8000
//	coursemate ingest --clear ./docs # rebuild the catalog
//	coursemate ask "What is covered in lesson 2 of the MCP course?"
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"github.com/nstogner/coursemate/pkg/config"
	"github.com/nstogner/coursemate/pkg/ingest"
	"github.com/nstogner/coursemate/pkg/model"
	"github.com/nstogner/coursemate/pkg/model/anthropic"
	"github.com/nstogner/coursemate/pkg/model/gemini"
	"github.com/nstogner/coursemate/pkg/rag"
	"github.com/nstogner/coursemate/pkg/server"
	"github.com/nstogner/coursemate/pkg/session"
	"github.com/nstogner/coursemate/pkg/store"
	"github.com/nstogner/coursemate/pkg/store/jsonl"
	"github.com/nstogner/coursemate/pkg/store/sqlite"
)

func main() {
	config.LoadDotEnv()

	cmd := &cli.Command{
		Name:  "coursemate",
		Usage: "answer questions about course materials",
		Flags: config.Flags(os.Args),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "load the docs directory and serve the HTTP API",
				Action: runServe,
			},
			{
				Name:      "ingest",
				Usage:     "load course documents into the catalog",
				ArgsUsage: "[dir]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "clear", Usage: "remove all courses before loading"},
				},
				Action: runIngest,
			},
			{
				Name:      "ask",
				Usage:     "answer one question and exit",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Usage: "continue an existing session"},
				},
				Action: runAsk,
			},
		},
		DefaultCommand: "serve",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// app holds everything a command needs.
type app struct {
	cfg    *config.Config
	store  *sqlite.Store
	system *rag.System
}

func setup(ctx context.Context, c *cli.Command) (*app, error) {
	cfg, err := config.New(c)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.Kitchen,
	})))
	slog.Debug("Configuration loaded", "config", cfg)

	// Initialize store.
	if dir := filepath.Dir(cfg.Store.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	st, err := sqlite.New(cfg.Store.DBPath, sqlite.WithMaxResults(cfg.RAG.MaxResults))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var sessions store.SessionStore = st
	if cfg.Store.Sessions == config.SessionsJSONL {
		js, err := jsonl.New(cfg.Store.SessionDir)
		if err != nil {
			st.Close()
			return nil, err
		}
		sessions = js
	}

	// Initialize model provider.
	provider, err := newProvider(ctx, cfg.Provider)
	if err != nil {
		st.Close()
		return nil, err
	}

	system := rag.New(rag.Config{
		Catalog:       st,
		Sessions:      session.NewManager(sessions, cfg.RAG.MaxHistory),
		Provider:      provider,
		Model:         cfg.Provider.Model,
		MaxToolRounds: &cfg.RAG.MaxToolRounds,
		Chunker:       ingest.Chunker{Size: cfg.RAG.ChunkSize, Overlap: cfg.RAG.ChunkOverlap},
	})

	return &app{cfg: cfg, store: st, system: system}, nil
}

func newProvider(ctx context.Context, cfg *config.ProviderConfig) (model.Provider, error) {
	var p model.Provider
	switch cfg.Name {
	case config.ProviderGemini:
		g, err := gemini.New(ctx, cfg.GeminiKey)
		if err != nil {
			return nil, fmt.Errorf("initializing Gemini provider: %w", err)
		}
		p = g
	default:
		p = anthropic.New(cfg.AnthropicKey)
	}
	if cfg.Breaker {
		p = model.WithCircuitBreaker(p, model.DefaultBreakerConfig())
	}
	slog.Info("Model provider ready", "provider", p.Name(), "model", cfg.Model)
	return p, nil
}

func runServe(ctx context.Context, c *cli.Command) error {
	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if _, err := os.Stat(a.cfg.Store.DocsDir); err == nil {
		stats, err := a.system.IngestDir(ctx, a.cfg.Store.DocsDir, false)
		if err != nil {
			slog.Error("Failed to load course documents", "dir", a.cfg.Store.DocsDir, "error", err)
		} else {
			slog.Info("Loaded course documents", "courses", stats.Courses, "chunks", stats.Chunks, "skipped", stats.Skipped)
		}
	} else {
		slog.Warn("Docs directory not found, serving the existing catalog", "dir", a.cfg.Store.DocsDir)
	}

	srv := server.New(a.system, a.cfg.Provider.Timeout)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(a.cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runIngest(ctx context.Context, c *cli.Command) error {
	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.store.Close()

	dir := c.Args().First()
	if dir == "" {
		dir = a.cfg.Store.DocsDir
	}
	stats, err := a.system.IngestDir(ctx, dir, c.Bool("clear"))
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d courses (%d chunks), skipped %d\n", stats.Courses, stats.Chunks, stats.Skipped)
	return nil
}

func runAsk(ctx context.Context, c *cli.Command) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("a question is required")
	}

	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if a.cfg.Provider.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Provider.Timeout)
		defer cancel()
	}

	res, err := a.system.Query(ctx, question, c.String("session"))
	if err != nil {
		return err
	}

	fmt.Println(res.Answer)
	if len(res.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range res.Sources {
			if src.URL != "" {
				fmt.Printf("  - %s (%s)\n", src.Text, src.URL)
			} else {
				fmt.Printf("  - %s\n", src.Text)
			}
		}
	}
	fmt.Printf("\nSession: %s\n", res.SessionID)
	return nil
}
