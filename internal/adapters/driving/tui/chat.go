// Package tui provides the interactive chat terminal UI.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
)

// refreshInterval drives transcript redraws while a generation streams.
const refreshInterval = 80 * time.Millisecond

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// generationDoneMsg signals that a submitted turn has resolved.
type generationDoneMsg struct {
	err error
}

// tickMsg triggers a transcript refresh while streaming.
type tickMsg time.Time

// Model is the Bubble Tea model for the chat view.
type Model struct {
	service  ChatPort
	input    textinput.Model
	viewport viewport.Model
	status   string
	ready    bool
}

// New creates a new chat model over the given service.
func New(service ChatPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		service:  service,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Ready. Esc stops generation, Ctrl+R reloads prompts, Ctrl+C quits.",
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, tick, and completion events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ih := inputBoxStyle.GetFrameSize()
		height := msg.Height - ih - 4 // header, input line, status, spacer
		if height < 3 {
			height = 3
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = height
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.service.IsGenerating() {
				m.service.Cancel()
				m.status = "Generation stopped."
				m.refresh()
			}
			return m, nil
		case tea.KeyCtrlR:
			m.service.ReloadPrompts()
			m.status = "Prompts reloaded."
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		}

	case tickMsg:
		m.refresh()
		if m.service.IsGenerating() {
			return m, tick()
		}
		return m, nil

	case generationDoneMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("Error: %v", msg.err))
		} else if tps := m.service.TokensPerTurn(); len(tps) > 0 {
			m.status = fmt.Sprintf("Done (%.1f tokens/s).", tps[len(tps)-1])
		} else {
			m.status = "Done."
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts a generation for the current input value.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.service.IsGenerating() {
		return m, nil
	}

	m.input.Reset()
	m.status = "Thinking..."

	service := m.service
	submitCmd := func() tea.Msg {
		return generationDoneMsg{err: service.SubmitUserMessage(context.Background(), text)}
	}
	return m, tea.Batch(submitCmd, tick())
}

// tick schedules the next streaming refresh.
func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh redraws the transcript and follows the tail.
func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.service.Transcript(), m.viewport.Width))
	m.viewport.GotoBottom()
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Parley")
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + m.viewport.View() + "\n" + input + "\n" + status
}

// renderTranscript formats the conversation turns for display.
func renderTranscript(turns []domain.ConversationTurn, width int) string {
	if len(turns) == 0 {
		return statusStyle.Render("No messages yet. Ask something about your documents.")
	}

	wrap := lipgloss.NewStyle().Width(max(20, width))
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch turn.Role {
		case domain.RoleUser:
			b.WriteString(userStyle.Render("You") + "\n")
		case domain.RoleAssistant:
			b.WriteString(assistantStyle.Render("Parley") + "\n")
		default:
			b.WriteString(headerStyle.Render(string(turn.Role)) + "\n")
		}
		b.WriteString(wrap.Render(turn.Content))
	}
	return b.String()
}

// Run starts the chat TUI and blocks until the user quits.
func Run(service ChatPort) error {
	p := tea.NewProgram(New(service), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
