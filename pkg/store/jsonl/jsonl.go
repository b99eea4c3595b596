// Package jsonl stores conversation sessions as append-only JSONL files,
// one file per session. The first line of each file is a session header;
// every following line is one message.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/store"
)

const (
	typeSession = "session"
	typeMessage = "message"
)

// line is one record of a session file.
type line struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
	Content   string      `json:"content,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store implements store.SessionStore on a directory of JSONL files.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Verify interface compliance.
var _ store.SessionStore = (*Store)(nil)

// New creates the session directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(s.dir, id+".jsonl"), nil
}

func (s *Store) CreateSession(ctx context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("creating session file: %w", err)
	}
	defer f.Close()
	return writeLine(f, line{Type: typeSession, ID: id, Timestamp: time.Now().UTC()})
}

func (s *Store) SessionExists(ctx context.Context, id string) (bool, error) {
	p, err := s.path(id)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) AppendMessage(ctx context.Context, msg *domain.SessionMessage) error {
	p, err := s.path(msg.SessionID)
	if err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		if err := writeLine(f, line{Type: typeSession, ID: msg.SessionID, Timestamp: msg.CreatedAt}); err != nil {
			return err
		}
	}
	return writeLine(f, line{
		Type:      typeMessage,
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: msg.CreatedAt,
	})
}

func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.SessionMessage, error) {
	p, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close()

	var msgs []domain.SessionMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		var l line
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
		}
		if l.Type != typeMessage {
			continue
		}
		msgs = append(msgs, domain.SessionMessage{
			SessionID: sessionID,
			Role:      l.Role,
			Content:   l.Content,
			CreatedAt: l.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func writeLine(f *os.File, l line) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}
