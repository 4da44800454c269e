package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/unicahq/unica-go/internal/client"
	"github.com/unicahq/unica-go/internal/models"
)

const pollInterval = 2 * time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *models.IndexingJob
	err error
}

// progressModel is the bubbletea model for an indexing run.
type progressModel struct {
	client   *client.Client
	actionID string
	job      *models.IndexingJob
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(c *client.Client, job *models.IndexingJob) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		actionID: job.ActionID(),
		job:      job,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.job = msg.job

		if m.job.Status.Terminal() {
			m.done = true
			if m.job.Status == models.StatusError {
				if m.job.Error != nil {
					m.err = fmt.Errorf("%s", *m.job.Error)
				} else {
					m.err = fmt.Errorf("run failed with unknown error")
				}
			}
			return m, tea.Quit
		}

		// Continue polling for active runs
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.job == nil {
		return "Loading run status...\n"
	}

	status := m.theme.statusStyle().Render(
		fmt.Sprintf("[%s/%s]", m.job.Status, m.job.Stage))

	progressBar := m.progress.ViewAs(m.job.Progress.ProgressPercent / 100)
	counts := fmt.Sprintf("%d/%d documents, %d/%d chunks",
		m.job.Progress.ProcessedDocuments, m.job.Progress.TotalDocuments,
		m.job.Progress.ProcessedChunks, m.job.Progress.TotalChunks)

	line := fmt.Sprintf("%s %s %s\n", status, progressBar, counts)
	if m.job.DisplayText != "" {
		line += m.job.DisplayText + "\n"
	}
	line += m.theme.hintStyle().Render("Press Ctrl+C to continue in background") + "\n"
	return line
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nRun %s continues in background.\nUse 'unica jobs status %s' to check on it.\n",
			m.actionID, m.actionID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Run failed: %s\n", m.err))
	}

	if m.job != nil && m.job.Status == models.StatusCanceled {
		return m.theme.hintStyle().Render("\nRun canceled.\n")
	}

	if m.job != nil {
		return m.theme.completedStyle().Render("✓ Completed") +
			fmt.Sprintf("\n\n  Documents indexed: %d\n  Chunks embedded:   %d\n",
				m.job.Progress.ProcessedDocuments, m.job.Progress.ProcessedChunks)
	}
	return m.theme.completedStyle().Render("✓ Completed\n")
}

// fetchJob fetches the current job status from the server.
// Runs as a command to avoid blocking Update().
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.client.GetJob(ctx, m.actionID)
		return jobUpdateMsg{job: job, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunJobProgress runs the interactive progress UI for an indexing run.
// Returns nil on success or Ctrl+C (run continues in background), error on
// run failure.
func RunJobProgress(c *client.Client, job *models.IndexingJob) error {
	model := newProgressModel(c, job)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}
