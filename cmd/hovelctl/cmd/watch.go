package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hovel-dev/hovel/internal/hovelclient"
	"github.com/hovel-dev/hovel/internal/model"
)

// WatchCmd returns the `hovelctl watch` command: a live, polling table of
// every branch known to the server.
func WatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live table of branches, refreshed on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client(cmd)
			p := tea.NewProgram(newWatchModel(c), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	otherStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

var quitKey = key.NewBinding(
	key.WithKeys("q", "ctrl+c"),
	key.WithHelp("q", "quit"),
)

type tickMsg time.Time

type branchesMsg struct {
	branches []*model.Branch
	err      error
}

type watchModel struct {
	client   *hovelclient.Client
	branches []*model.Branch
	err      error
	quitting bool
}

func newWatchModel(c *hovelclient.Client) watchModel {
	return watchModel{client: c}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(fetchBranches(m.client), tick())
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchBranches(c *hovelclient.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := c.List(context.Background())
		if err != nil {
			return branchesMsg{err: err}
		}
		return branchesMsg{branches: resp.Branches}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(fetchBranches(m.client), tick())
	case branchesMsg:
		m.branches = msg.branches
		m.err = msg.err
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var b string
	b += headerStyle.Render(fmt.Sprintf("%-20s %-8s %-10s %s", "NAME", "PORT", "STATUS", "SERVICES")) + "\n"

	if m.err != nil {
		return b + failedStyle.Render("error: "+m.err.Error()) + "\n"
	}
	if len(m.branches) == 0 {
		return b + "(no branches)\n"
	}

	for _, br := range m.branches {
		style := otherStyle
		switch br.Status {
		case model.StatusRunning:
			style = runningStyle
		case model.StatusFailed:
			style = failedStyle
		}
		b += fmt.Sprintf("%-20s %-8d %s %v\n", br.Name, br.Port, style.Render(string(br.Status)), br.Services)
	}

	b += "\npress q to quit\n"
	return b
}
