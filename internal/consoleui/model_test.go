package consoleui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/milankumarIS/swaram-agent-worker/core/session"
	"github.com/milankumarIS/swaram-agent-worker/core/transcript"
)

func TestTranscriptFromPayload(t *testing.T) {
	msg, ok := TranscriptFromPayload([]byte(`{"type":"transcript","role":"user","text":"hello"}`))
	if !ok || msg.Role != transcript.RoleUser || msg.Text != "hello" {
		t.Fatalf("unexpected transcript %+v %v", msg, ok)
	}

	if _, ok := TranscriptFromPayload([]byte(`{"type":"state"}`)); ok {
		t.Fatalf("expected non-transcript payload to be ignored")
	}
	if _, ok := TranscriptFromPayload([]byte(`not json`)); ok {
		t.Fatalf("expected malformed payload to be ignored")
	}
}

func TestModelRendersTranscripts(t *testing.T) {
	var m tea.Model = New("console-1", nil)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	m, _ = m.Update(TranscriptMsg(transcript.NewMessage(transcript.RoleUser, "What is my balance?")))
	m, _ = m.Update(TranscriptMsg(transcript.NewMessage(transcript.RoleAgent, "Let me check.")))

	view := m.View()
	for _, want := range []string{"console-1", "What is my balance?", "Let me check."} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestModelQuitDisconnectsOnce(t *testing.T) {
	quits := 0
	var m tea.Model = New("console-1", func() { quits++ })

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if quits != 1 {
		t.Fatalf("expected onQuit to run once, got %d", quits)
	}

	m, _ = m.Update(SessionEndedMsg(session.Result{State: session.StateTerminated, Err: errors.New("boom")}))
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if quits != 1 {
		t.Fatalf("expected no disconnect after the session ended, got %d", quits)
	}
	if !strings.Contains(m.View(), "boom") {
		t.Fatalf("expected session error in view")
	}
}
