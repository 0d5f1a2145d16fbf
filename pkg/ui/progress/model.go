package progress

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"yap/pkg/bus"
	"yap/pkg/session"
)

const previewRunes = 60

type eventMsg bus.Event

type eventsClosedMsg struct{}

type runResultMsg struct {
	summary session.Summary
	err     error
}

type model struct {
	ctx    context.Context
	cancel context.CancelFunc
	run    RunFunc
	events <-chan bus.Event
	info   Info

	theme     theme
	spinner   spinner.Model
	viewport  viewport.Model
	lines     []string
	width     int
	height    int
	isReady   bool
	running   bool
	stopping  bool
	followLog bool

	success int
	failed  int
	summary session.Summary
	err     error
}

func newModel(ctx context.Context, run RunFunc, events <-chan bus.Event, info Info) *model {
	ctx, cancel := context.WithCancel(ctx)

	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	return &model{
		ctx:       ctx,
		cancel:    cancel,
		run:       run,
		events:    events,
		info:      info,
		theme:     defaultTheme(),
		spinner:   spin,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		running:   true,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, runCmd(m.ctx, m.run), waitForEvent(m.events))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport()
		m.isReady = true
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc", "q":
			// The run stops at its next wait; the result message ends the program.
			m.stopping = true
			m.cancel()
			return m, nil
		}
		m.handleViewportKey(typed)
		return m, nil
	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case eventMsg:
		m.applyEvent(bus.Event(typed))
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		return m, nil
	case runResultMsg:
		m.running = false
		m.summary = typed.summary
		m.err = typed.err
		m.success = typed.summary.Success
		m.failed = typed.summary.Failed
		m.cancel()
		return m, tea.Quit
	}

	return m, nil
}

func (m *model) applyEvent(event bus.Event) {
	m.success = event.Success
	m.failed = event.Failed
	if line := formatEvent(m.theme, event); line != "" {
		m.lines = append(m.lines, line)
	}
	m.refreshViewport()
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport()
	}

	header := m.theme.header.Width(m.width - 2).Render("📣 yap · conversation delivery")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"channel:%s · messages:%s · posts:%d · voices:%d · strategy:%s",
		displayOrNA(m.info.Channel),
		displayOrNA(m.info.Source),
		m.info.Posts,
		m.info.Identities,
		displayOrNA(m.info.Strategy),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	parts := []string{header, meta, line, m.theme.viewport.Width(m.width - 2).Render(m.viewport.View()), m.statusLine()}
	if !m.running {
		parts = append(parts, RenderSummary(m.summary))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}

func (m *model) statusLine() string {
	done := m.success + m.failed
	switch {
	case m.err != nil:
		return m.theme.statusErr.Render("🚨 run stopped: " + m.err.Error())
	case !m.running:
		return m.theme.status.Render(fmt.Sprintf("✅ run complete · %d/%d posts attempted", done, m.info.Posts))
	case m.stopping:
		return m.theme.statusBusy.Render(fmt.Sprintf("%s stopping after the current post...", m.spinner.View()))
	default:
		return m.theme.statusBusy.Render(fmt.Sprintf("%s posting %d/%d", m.spinner.View(), done, m.info.Posts)) +
			"  " + m.theme.hint.Render("PgUp/PgDn scroll · q/Esc stop")
	}
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-12)

	m.viewport.Width = w
	m.viewport.Height = h
}

func (m *model) refreshViewport() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if m.followLog {
		m.viewport.GotoBottom()
	}
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "up", "k":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "down", "j":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func runCmd(ctx context.Context, run RunFunc) tea.Cmd {
	return func() tea.Msg {
		summary, err := run(ctx)
		return runResultMsg{summary: summary, err: err}
	}
}

func waitForEvent(events <-chan bus.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(event)
	}
}

// formatEvent renders one progress line; events with nothing to show
// return "".
func formatEvent(th theme, event bus.Event) string {
	switch event.Type {
	case bus.EventRunStarted:
		return th.hint.Render(fmt.Sprintf("Posting %d posts to %s", event.Total, event.Channel))
	case bus.EventMessagePosted:
		return th.posted.Render(fmt.Sprintf("✓ [%d] @%s", event.Message, event.User)) + " " + preview(event.Text)
	case bus.EventMessageFailed:
		return th.failed.Render(fmt.Sprintf("✗ [%d] message failed: %s", event.Message, event.Error))
	case bus.EventReactionAdded:
		return th.reaction.Render(fmt.Sprintf("    + :%s:", event.Reaction))
	case bus.EventReactionFailed:
		return th.failed.Render(fmt.Sprintf("    ✗ :%s: not added", event.Reaction))
	case bus.EventReplyPosted:
		return th.reply.Render(fmt.Sprintf("    ├─ @%s:", event.User)) + " " + preview(event.Text)
	case bus.EventReplyFailed:
		return th.failed.Render(fmt.Sprintf("    ✗ reply %d failed: %s", event.Reply, event.Error))
	default:
		return ""
	}
}

func preview(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}
