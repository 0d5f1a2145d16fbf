package progress

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"yap/pkg/bus"
	"yap/pkg/session"
)

// RunFunc performs the delivery run the view reports on.
type RunFunc func(ctx context.Context) (session.Summary, error)

// Info is the static header shown above the progress log.
type Info struct {
	Channel    string
	Source     string
	Posts      int
	Identities int
	Strategy   string
}

// Run shows a live progress view while run executes, then returns the
// run's own result. events must be subscribed before the call so no early
// event is missed.
func Run(ctx context.Context, events <-chan bus.Event, info Info, run RunFunc) (session.Summary, error) {
	m := newModel(ctx, run, events, info)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		m.cancel()
		return session.Summary{}, fmt.Errorf("progress view: %w", err)
	}

	done, ok := final.(*model)
	if !ok {
		return session.Summary{}, errors.New("progress view returned an unexpected model")
	}
	return done.summary, done.err
}

// Follow writes one line per event to w until the run completes or the
// channel closes.
func Follow(events <-chan bus.Event, w io.Writer) {
	th := defaultTheme()
	for event := range events {
		if line := formatEvent(th, event); line != "" {
			fmt.Fprintln(w, line)
		}
		if event.Terminal() {
			return
		}
	}
}

// RenderSummary renders the completion panel for a run.
func RenderSummary(summary session.Summary) string {
	th := defaultTheme()
	body := lipgloss.JoinVertical(lipgloss.Left,
		th.success.Render(fmt.Sprintf("✓ %d successful", summary.Success)),
		th.failure.Render(fmt.Sprintf("✗ %d failed", summary.Failed)),
		th.total.Render(fmt.Sprintf("%d/%d total posts", summary.Success, summary.Total)),
	)
	return th.panel.Render(body)
}
