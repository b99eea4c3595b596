package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/nstogner/coursemate/pkg/domain"
)

// Result is the outcome of a tool execution. Content is what the model
// sees; Sources describe where that content came from.
type Result struct {
	Content string
	Sources []domain.Source
}

// Tool defines the interface that all assistant tools must implement.
type Tool interface {
	Definition() domain.ToolDefinition
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

type entry struct {
	tool    Tool
	schema  *jsonschema.Resolved
	sources []domain.Source
}

// Registry manages the tools available to one conversation turn.
type Registry struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*entry
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds a tool to the registry. Registering a name that already
// exists replaces the previous tool in place.
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return errors.New("tool definition must have a name")
	}

	var resolved *jsonschema.Resolved
	if def.InputSchema != nil {
		var err error
		resolved, err = def.InputSchema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("resolving input schema of %q: %w", def.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[def.Name]; ok {
		slog.Warn("Replacing registered tool", "tool", def.Name)
	} else {
		r.order = append(r.order, def.Name)
	}
	r.entries[def.Name] = &entry{tool: t, schema: resolved}
	return nil
}

// Definitions returns the definitions of all tools in registration order.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].tool.Definition())
	}
	return defs
}

// Execute runs the named tool. An unknown tool is reported in the result
// content rather than as an error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return Result{Content: fmt.Sprintf("Tool '%s' not found", name)}, nil
	}

	args, err := normalizeArgs(args)
	if err != nil {
		return Result{}, fmt.Errorf("decoding arguments: %w", err)
	}
	if e.schema != nil {
		if err := e.schema.Validate(args); err != nil {
			return Result{}, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	res, err := e.tool.Execute(ctx, args)
	if err != nil {
		return Result{}, err
	}

	// Empty results and backend errors leave the previous sources in place.
	if res.Sources != nil {
		r.mu.Lock()
		e.sources = res.Sources
		r.mu.Unlock()
	}
	return res, nil
}

// LastSources returns the sources recorded by the first tool, in
// registration order, that has produced any. A call whose result
// carries no sources does not clear what an earlier call recorded.
func (r *Registry) LastSources() []domain.Source {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if s := r.entries[name].sources; len(s) > 0 {
			return append([]domain.Source(nil), s...)
		}
	}
	return nil
}

// ResetSources clears the recorded sources of every tool.
func (r *Registry) ResetSources() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		e.sources = nil
	}
}

// normalizeArgs gives args the shape they would have after a JSON round
// trip so that schema validation sees JSON types.
func normalizeArgs(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// intArg reads an optional integer argument. Absent and null values
// return nil.
func intArg(args map[string]any, key string) (*int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}

	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != float64(int(x)) {
			return nil, fmt.Errorf("argument %q must be an integer, got %v", key, x)
		}
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("argument %q must be an integer: %w", key, err)
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("argument %q must be an integer: %w", key, err)
		}
		n = i
	default:
		return nil, fmt.Errorf("argument %q must be an integer, got %T", key, v)
	}
	return &n, nil
}
