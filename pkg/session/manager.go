// Package session keeps short conversation histories so follow-up
// questions can refer to earlier answers.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/store"
)

const DefaultMaxHistory = 2

// Manager creates sessions and renders their recent history.
type Manager struct {
	store      store.SessionStore
	maxHistory int
}

// NewManager returns a manager that keeps the last maxHistory exchanges
// (question and answer pairs) in the rendered history.
func NewManager(st store.SessionStore, maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{store: st, maxHistory: maxHistory}
}

// CreateSession starts a new, empty session and returns its ID.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	id := uuid.New().String()
	if err := m.store.CreateSession(ctx, id); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return id, nil
}

// Exists reports whether the session has been created.
func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	return m.store.SessionExists(ctx, id)
}

// AddExchange records a question and its answer.
func (m *Manager) AddExchange(ctx context.Context, id, question, answer string) error {
	for _, msg := range []*domain.SessionMessage{
		{SessionID: id, Role: domain.RoleUser, Content: question},
		{SessionID: id, Role: domain.RoleAssistant, Content: answer},
	} {
		if err := m.store.AppendMessage(ctx, msg); err != nil {
			return fmt.Errorf("recording %s message: %w", msg.Role, err)
		}
	}
	return nil
}

// Messages returns the retained messages of a session, oldest first.
func (m *Manager) Messages(ctx context.Context, id string) ([]domain.SessionMessage, error) {
	msgs, err := m.store.RecentMessages(ctx, id, m.maxHistory*2)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return msgs, nil
}

// History renders the retained messages as "User: ..." and
// "Assistant: ..." lines. An unknown session has empty history.
func (m *Manager) History(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	msgs, err := m.Messages(ctx, id)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, roleLabel(msg.Role)+": "+msg.Content)
	}
	return strings.Join(lines, "\n"), nil
}

func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleUser:
		return "User"
	case domain.RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}
