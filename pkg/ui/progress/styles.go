package progress

import "github.com/charmbracelet/lipgloss"

// theme groups reusable styles for progress UI regions.
type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	posted     lipgloss.Style
	reply      lipgloss.Style
	reaction   lipgloss.Style
	failed     lipgloss.Style
	status     lipgloss.Style
	statusBusy lipgloss.Style
	statusErr  lipgloss.Style
	hint       lipgloss.Style
	viewport   lipgloss.Style
	panel      lipgloss.Style
	success    lipgloss.Style
	failure    lipgloss.Style
	total      lipgloss.Style
}

// defaultTheme defines the terminal palette used by the progress view.
func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("25")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("153")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("31")),
		posted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")),
		reply: lipgloss.NewStyle().
			Foreground(lipgloss.Color("176")),
		reaction: lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")),
		failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Bold(true),
		statusBusy: lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true),
		statusErr: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("31")).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 2),
		success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("114")),
		failure: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("203")),
		total: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),
	}
}
