package session

import (
	"context"
	"testing"

	"github.com/nstogner/coursemate/pkg/store/sqlite"
)

func newTestManager(t *testing.T, maxHistory int) *Manager {
	t.Helper()
	st, err := sqlite.New(t.TempDir() + "/sessions.db")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewManager(st, maxHistory)
}

func TestCreateSession(t *testing.T) {
	m := newTestManager(t, 2)
	ctx := context.Background()

	a, err := m.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	b, err := m.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if a == "" || a == b {
		t.Errorf("session IDs not unique: %q, %q", a, b)
	}

	ok, err := m.Exists(ctx, a)
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v; want true", ok, err)
	}
	ok, err = m.Exists(ctx, "missing")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false", ok, err)
	}
}

func TestHistoryKeepsLastExchanges(t *testing.T) {
	m := newTestManager(t, 2)
	ctx := context.Background()

	id, err := m.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	exchanges := [][2]string{
		{"What is MCP?", "A protocol."},
		{"Who teaches it?", "Elie."},
		{"How many lessons?", "Nine."},
	}
	for _, ex := range exchanges {
		if err := m.AddExchange(ctx, id, ex[0], ex[1]); err != nil {
			t.Fatalf("AddExchange: %v", err)
		}
	}

	got, err := m.History(ctx, id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := "User: Who teaches it?\nAssistant: Elie.\nUser: How many lessons?\nAssistant: Nine."
	if got != want {
		t.Errorf("History =\n%s\nwant\n%s", got, want)
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	m := newTestManager(t, 2)
	ctx := context.Background()

	for _, id := range []string{"", "nope"} {
		got, err := m.History(ctx, id)
		if err != nil {
			t.Fatalf("History(%q): %v", id, err)
		}
		if got != "" {
			t.Errorf("History(%q) = %q, want empty", id, got)
		}
	}
}

func TestNewManagerDefaultsHistory(t *testing.T) {
	if m := NewManager(nil, 0); m.maxHistory != DefaultMaxHistory {
		t.Errorf("maxHistory = %d, want %d", m.maxHistory, DefaultMaxHistory)
	}
}
