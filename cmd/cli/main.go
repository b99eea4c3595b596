// Command cli is a terminal chat client for a running coursemate server.
//
// Usage:
//
//	coursemate serve &
//	go run ./cmd/cli --server http://localhost:8000
//
// Commands:
//
//	/exit    - Exit the program
//	/new     - Start a new session
//	/courses - Browse the course catalog
//	<message> - Ask a question about the courses
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"

	"github.com/nstogner/coursemate/pkg/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingLeft(2)

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1) // Red
)

type state int

const (
	stateMenu state = iota
	stateSelectingCourse
	stateChatting
)

// reply is one websocket answer: either a query result or an error detail.
type reply struct {
	Answer    string          `json:"answer"`
	Sources   []domain.Source `json:"sources"`
	SessionID string          `json:"session_id"`
	Detail    string          `json:"detail"`
}

// roleOutline marks transcript entries that show a course outline.
const roleOutline domain.Role = "outline"

type errMsg struct{ err error }
type replyMsg reply
type coursesMsg []string
type outlineMsg string

// client talks to the coursemate server.
type client struct {
	base *url.URL
	http *http.Client

	mu sync.Mutex
	ws *websocket.Conn
}

func newClient(server string) (*client, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	return &client{base: u, http: http.DefaultClient}, nil
}

// connect opens the chat websocket.
func (c *client) connect(ctx context.Context) error {
	ws := *c.base
	ws.Scheme = "ws"
	if c.base.Scheme == "https" {
		ws.Scheme = "wss"
	}
	ws.Path = strings.TrimSuffix(ws.Path, "/") + "/api/chat"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ws.String(), nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", ws.String(), err)
	}
	c.ws = conn
	slog.Info("Connected", "url", ws.String())
	return nil
}

func (c *client) close() {
	if c.ws != nil {
		c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.ws.Close()
	}
}

// ask sends one question and waits for its answer.
func (c *client) ask(query, sessionID string) (reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var r reply
	req := map[string]string{"query": query}
	if sessionID != "" {
		req["session_id"] = sessionID
	}
	if err := c.ws.WriteJSON(req); err != nil {
		return r, fmt.Errorf("sending question: %w", err)
	}
	if err := c.ws.ReadJSON(&r); err != nil {
		return r, fmt.Errorf("reading answer: %w", err)
	}
	return r, nil
}

func (c *client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Detail string `json:"detail"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, e.Detail)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

type entry struct {
	role    domain.Role
	text    string
	sources []domain.Source
}

type model struct {
	ctx    context.Context
	client *client

	// State
	state     state
	sessionID string
	pending   bool
	courses   []string
	cursor    int
	width     int
	height    int
	err       error

	// UI Components
	viewport viewport.Model
	textarea textarea.Model

	// Data
	entries  []entry
	renderer *glamour.TermRenderer
}

func initialModel(ctx context.Context, c *client) model {
	ta := textarea.New()
	ta.Placeholder = "Ask about courses, lessons or specific content..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 1000

	ta.SetWidth(80)
	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent("Welcome! Select an option.")

	// Use "light" style to avoid terminal queries that leak into input
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	return model{
		ctx:      ctx,
		client:   c,
		state:    stateMenu,
		textarea: ta,
		viewport: vp,
		renderer: r,
	}
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	// Keep menu keys out of the textarea.
	switch msg.(type) {
	case tea.KeyMsg:
		if m.state == stateChatting {
			m.textarea, tiCmd = m.textarea.Update(msg)
			cmds = append(cmds, tiCmd)
		}
	default:
		m.textarea, tiCmd = m.textarea.Update(msg)
		cmds = append(cmds, tiCmd)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 2 // Header + Margin
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.viewport.YPosition = 2

		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.state == stateSelectingCourse {
				m.state = stateMenu
				m.cursor = 0
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEnter:
			switch m.state {
			case stateMenu:
				if m.cursor == 0 {
					m.state = stateChatting
					m.refresh()
					return m, nil
				}
				return m, m.loadCourses()
			case stateSelectingCourse:
				if len(m.courses) == 0 {
					return m, nil
				}
				m.state = stateChatting
				return m, m.loadOutline(m.courses[m.cursor])
			case stateChatting:
				m.err = nil // Clear error on new message
				return m.sendMessage()
			}
		case tea.KeyUp:
			if m.state != stateChatting && m.cursor > 0 {
				m.cursor--
			}
		case tea.KeyDown:
			maxCursor := 1 // 2 menu options
			if m.state == stateSelectingCourse {
				maxCursor = len(m.courses) - 1
			}
			if m.state != stateChatting && m.cursor < maxCursor {
				m.cursor++
			}
		}

	case replyMsg:
		m.pending = false
		if msg.Detail != "" {
			m.err = fmt.Errorf("%s", msg.Detail)
			break
		}
		m.sessionID = msg.SessionID
		m.entries = append(m.entries, entry{role: domain.RoleAssistant, text: msg.Answer, sources: msg.Sources})
		m.refresh()

	case coursesMsg:
		m.courses = msg
		m.cursor = 0
		m.state = stateSelectingCourse

	case outlineMsg:
		m.entries = append(m.entries, entry{role: roleOutline, text: string(msg)})
		m.refresh()

	case errMsg:
		m.pending = false
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("\nError: %v", m.err))
	}

	switch m.state {
	case stateMenu:
		header := titleStyle.Render("Course Materials Assistant")
		return lipgloss.JoinVertical(lipgloss.Left, header, "", m.list([]string{"Ask Questions", "Browse Courses"}), "", "Press Enter to select, Esc to quit.", errorView)

	case stateSelectingCourse:
		header := titleStyle.Render(fmt.Sprintf("Courses (%d)", len(m.courses)))
		body := m.list(m.courses)
		if len(m.courses) == 0 {
			body = "No courses loaded."
		}
		return lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", "Press Enter to view the outline, Esc to go back.", errorView)
	}

	title := "Chat"
	if m.sessionID != "" {
		title = fmt.Sprintf("Chat (%s)", m.sessionID)
	}
	if m.pending {
		title += " - thinking..."
	}
	return fmt.Sprintf(
		"%s\n%s\n%s%s",
		titleStyle.Render(title),
		m.viewport.View(),
		m.textarea.View(),
		errorView,
	)
}

// list renders choices with the cursor, scrolled to keep it visible.
func (m model) list(choices []string) string {
	maxViewable := max(m.height-7, 1)
	start := 0
	if m.cursor >= maxViewable {
		start = m.cursor - maxViewable + 1
	}
	end := min(start+maxViewable, len(choices))

	var lines []string
	for i := start; i < end; i++ {
		cursor := " "
		line := choices[i]
		if m.cursor == i {
			cursor = ">"
			line = selectedItemStyle.Render(line)
		}
		lines = append(lines, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), line))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) sendMessage() (model, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" || m.pending {
		return m, nil
	}
	m.textarea.Reset()

	switch v {
	case "/exit":
		return m, tea.Quit
	case "/new":
		m.sessionID = ""
		m.entries = nil
		m.refresh()
		return m, nil
	case "/courses":
		return m, m.loadCourses()
	}

	m.entries = append(m.entries, entry{role: domain.RoleUser, text: v})
	m.pending = true
	m.refresh()

	c, sessionID := m.client, m.sessionID
	return m, func() tea.Msg {
		r, err := c.ask(v, sessionID)
		if err != nil {
			return errMsg{err}
		}
		return replyMsg(r)
	}
}

func (m model) loadCourses() tea.Cmd {
	return func() tea.Msg {
		var stats struct {
			CourseTitles []string `json:"course_titles"`
		}
		if err := m.client.getJSON(m.ctx, "/api/courses", nil, &stats); err != nil {
			return errMsg{err}
		}
		return coursesMsg(stats.CourseTitles)
	}
}

func (m model) loadOutline(title string) tea.Cmd {
	return func() tea.Msg {
		var body struct {
			Outline string `json:"outline"`
		}
		if err := m.client.getJSON(m.ctx, "/api/courses/outline", url.Values{"name": {title}}, &body); err != nil {
			return errMsg{err}
		}
		return outlineMsg(body.Outline)
	}
}

// refresh re-renders the transcript into the viewport.
func (m *model) refresh() {
	var sb strings.Builder
	for _, e := range m.entries {
		switch e.role {
		case domain.RoleUser:
			sb.WriteString(userStyle.Render("You: "))
		case domain.RoleAssistant:
			sb.WriteString(senderStyle.Render("Assistant: "))
		default:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("Outline: "))
		}
		sb.WriteString("\n")
		sb.WriteString(m.render(e.text))
		if len(e.sources) > 0 {
			sb.WriteString(sourceStyle.Render("Sources:"))
			sb.WriteString("\n")
			for _, src := range e.sources {
				line := "- " + src.Text
				if src.URL != "" {
					line += " " + src.URL
				}
				sb.WriteString(sourceStyle.Render(line))
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	}
	if len(m.entries) == 0 {
		sb.WriteString("Ask a question about the course materials. Type /courses to browse, /new for a new session.")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *model) render(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n" // Fallback
	}
	return out
}

// --- Main ---

func main() {
	cmd := &cli.Command{
		Name:  "cli",
		Usage: "chat with a coursemate server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Aliases: []string{"s"}, Value: "http://localhost:8000", Usage: "coursemate server URL", Sources: cli.EnvVars("COURSEMATE_SERVER")},
			&cli.StringFlag{Name: "log", Value: "coursemate-cli.log", Usage: "log file", Sources: cli.EnvVars("COURSEMATE_CLI_LOG")},
			&cli.StringFlag{Name: "loglevel", Value: "info", Usage: "log level", Sources: cli.EnvVars("LOG_LEVEL")},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The terminal belongs to the UI, so logs go to a file.
	f, err := os.OpenFile(c.String("log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("loglevel"))); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})))
	slog.Info("Logging initialized", "level", level)

	client, err := newClient(c.String("server"))
	if err != nil {
		return err
	}
	if err := client.connect(ctx); err != nil {
		return err
	}
	defer client.close()

	p := tea.NewProgram(initialModel(ctx, client))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}
