package consoleui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/milankumarIS/swaram-agent-worker/core/session"
	"github.com/milankumarIS/swaram-agent-worker/core/transcript"
	"github.com/muesli/reflow/wordwrap"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	agentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	statusStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// TranscriptMsg is one line of the conversation.
type TranscriptMsg transcript.Message

// SessionEndedMsg reports the outcome of the console session.
type SessionEndedMsg session.Result

// TranscriptFromPayload decodes a payload published on the room's data
// channel. ok is false for anything that is not a transcript.
func TranscriptFromPayload(payload []byte) (msg TranscriptMsg, ok bool) {
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type != transcript.MessageType {
		return TranscriptMsg{}, false
	}
	return msg, true
}

type Model struct {
	roomName string
	onQuit   func()

	viewport viewport.Model
	ready    bool
	lines    []TranscriptMsg
	status   string
	ended    bool
}

// New builds the transcript view. onQuit runs once when the user leaves.
func New(roomName string, onQuit func()) Model {
	return Model{
		roomName: roomName,
		onQuit:   onQuit,
		status:   "listening, press q to leave",
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.onQuit != nil && !m.ended {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		height := max(msg.Height-4, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refresh()

	case TranscriptMsg:
		m.lines = append(m.lines, msg)
		m.refresh()

	case SessionEndedMsg:
		m.ended = true
		if msg.Err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("session %s: %v", msg.State, msg.Err))
		} else {
			m.status = fmt.Sprintf("session %s, press q to exit", msg.State)
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.render(m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Model) render(width int) string {
	var b strings.Builder
	for _, line := range m.lines {
		label := agentStyle.Render("agent")
		if line.Role == transcript.RoleUser {
			label = userStyle.Render("you  ")
		}
		b.WriteString(label)
		b.WriteString("  ")
		b.WriteString(indent(wordwrap.String(line.Text, max(width-7, 10)), 7))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) View() string {
	header := titleStyle.Render("swaram console") + statusStyle.Render("  "+m.roomName)
	if !m.ready {
		return header + "\n\n" + m.render(80) + "\n" + statusStyle.Render(m.status)
	}
	return header + "\n\n" + m.viewport.View() + "\n" + statusStyle.Render(m.status)
}

// indent pads every line after the first so wrapped text lines up with the
// first line's text.
func indent(text string, width int) string {
	return strings.ReplaceAll(text, "\n", "\n"+strings.Repeat(" ", width))
}
