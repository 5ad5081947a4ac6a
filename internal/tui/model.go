// Package tui implements the terminal raw-mode shell named as an external
// collaborator in spec.md §1 ("terminal UI... interface only"). Grounded on
// intelligencedev-manifold's internal/tui/model.go: a single bubbletea
// Model owning a scrollback viewport, a multi-line textarea input, and a
// streaming-delta channel read via a recurring tea.Cmd, simplified from
// manifold's two-pane chat/tools layout to a single scrollback pane since
// this assistant has no separate tool-call side panel in spec.md's data
// model. Markdown responses are rendered through glamour, kept behind this
// package so internal/loop never imports a rendering library (spec.md §1
// "markdown renderer... interface only").
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"forgeloop/internal/loop"
	"forgeloop/internal/permission"
)

type chatEntry struct {
	role    string
	content string
}

// Model is the bubbletea program driving one terminal session.
type Model struct {
	ctx context.Context
	l   *loop.Loop

	viewport viewport.Model
	input    textarea.Model
	renderer *glamour.TermRenderer

	entries            []chatEntry
	streaming          strings.Builder
	running            bool
	turnCancel         context.CancelFunc
	awaitingPermission *permissionRequest

	deltaCh    chan string
	promptCh   chan permissionRequest
	promptResp chan permission.UserResponse

	userStyle   lipgloss.Style
	agentStyle  lipgloss.Style
	systemStyle lipgloss.Style
	inputStyle  lipgloss.Style
}

type permissionRequest struct {
	toolName string
	argsJSON []byte
}

type (
	deltaMsg      string
	turnDoneMsg   struct{ err error }
	permissionMsg permissionRequest
)

// New builds a Model around an already-wired Loop. l.OnTextDelta and
// l.OnPrompt are overwritten to route through the bubbletea event loop.
func New(ctx context.Context, l *loop.Loop) *Model {
	vp := viewport.New(90, 24)
	in := textarea.New()
	in.Placeholder = "Ask the assistant..."
	in.SetHeight(3)
	in.ShowLineNumbers = false
	in.Prompt = "› "
	in.Focus()

	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(88))

	m := &Model{
		ctx:        ctx,
		l:          l,
		viewport:   vp,
		input:      in,
		renderer:   renderer,
		deltaCh:    make(chan string, 64),
		promptCh:   make(chan permissionRequest, 1),
		promptResp: make(chan permission.UserResponse),

		userStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#2D7FFF")).Bold(true),
		agentStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("#7E57C2")).Bold(true),
		systemStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		inputStyle:  lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(0, 1),
	}

	l.OnTextDelta = func(text string) { m.deltaCh <- text }
	l.OnPrompt = func(ctx context.Context, toolName string, argsJSON []byte) permission.UserResponse {
		m.promptCh <- permissionRequest{toolName: toolName, argsJSON: argsJSON}
		select {
		case resp := <-m.promptResp:
			return resp
		case <-ctx.Done():
			return permission.ResponseDeny
		}
	}

	return m
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			// Cancel only the in-flight turn (spec's cancellation-safety
			// requirement); with no turn running, ctrl+c quits, as ctrl+d
			// does.
			if m.running {
				if m.turnCancel != nil {
					m.turnCancel()
				}
				return m, nil
			}
			return m, tea.Quit
		case "ctrl+d":
			if !m.running {
				return m, tea.Quit
			}
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")

			if m.awaitingPermission != nil {
				m.promptResp <- parsePermissionReply(text)
				m.awaitingPermission = nil
				return m, nil
			}
			if m.running {
				return m, nil
			}
			m.entries = append(m.entries, chatEntry{role: "you", content: text})
			m.streaming.Reset()
			m.running = true
			turnCtx, cancel := context.WithCancel(m.ctx)
			m.turnCancel = cancel
			m.refreshViewport()
			return m, tea.Batch(m.runTurn(turnCtx, text), m.readDelta(), m.readPromptRequest())
		}

	case deltaMsg:
		m.streaming.WriteString(string(msg))
		m.refreshViewport()
		return m, m.readDelta()

	case turnDoneMsg:
		m.running = false
		m.turnCancel = nil
		switch {
		case errors.Is(msg.err, context.Canceled):
			if m.streaming.Len() > 0 {
				m.entries = append(m.entries, chatEntry{role: "assistant", content: m.streaming.String()})
			}
			m.entries = append(m.entries, chatEntry{role: "system", content: "turn interrupted"})
		case msg.err != nil:
			m.entries = append(m.entries, chatEntry{role: "system", content: fmt.Sprintf("turn failed: %v", msg.err)})
		case m.streaming.Len() > 0:
			m.entries = append(m.entries, chatEntry{role: "assistant", content: m.streaming.String()})
		}
		m.streaming.Reset()
		m.refreshViewport()
		return m, nil

	case permissionMsg:
		req := permissionRequest(msg)
		m.awaitingPermission = &req
		m.entries = append(m.entries, chatEntry{
			role:    "system",
			content: fmt.Sprintf("permission requested for %s %s — reply allow / session / always / deny", msg.toolName, string(msg.argsJSON)),
		})
		m.refreshViewport()
		return m, m.readPromptRequest()

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 6
		m.input.SetWidth(msg.Width - 4)
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	return m.viewport.View() + "\n" + m.inputStyle.Render(m.input.View())
}

func (m *Model) refreshViewport() {
	var b strings.Builder
	for _, e := range m.entries {
		b.WriteString(m.renderEntry(e.role, e.content))
		b.WriteString("\n\n")
	}
	if m.streaming.Len() > 0 {
		b.WriteString(m.renderEntry("assistant", m.streaming.String()))
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderEntry(role, content string) string {
	switch role {
	case "you":
		rendered := content
		return m.userStyle.Render("you") + "\n" + rendered
	case "assistant":
		rendered := content
		if m.renderer != nil {
			if out, err := m.renderer.Render(content); err == nil {
				rendered = out
			}
		}
		return m.agentStyle.Render("assistant") + "\n" + rendered
	default:
		return m.systemStyle.Render(content)
	}
}

func (m *Model) runTurn(ctx context.Context, text string) tea.Cmd {
	return func() tea.Msg {
		err := m.l.HandleTurn(ctx, text)
		return turnDoneMsg{err: err}
	}
}

func (m *Model) readDelta() tea.Cmd {
	return func() tea.Msg {
		d, ok := <-m.deltaCh
		if !ok {
			return nil
		}
		return deltaMsg(d)
	}
}

func parsePermissionReply(text string) permission.UserResponse {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "allow", "o", "once":
		return permission.ResponseAllowOnce
	case "session", "s":
		return permission.ResponseAllowSession
	case "always", "a", "remember":
		return permission.ResponseRemember
	default:
		return permission.ResponseDeny
	}
}

func (m *Model) readPromptRequest() tea.Cmd {
	return func() tea.Msg {
		req, ok := <-m.promptCh
		if !ok {
			return nil
		}
		return permissionMsg(req)
	}
}
