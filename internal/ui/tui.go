package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws a spinner and progress bar with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *buildModel
	started bool
	done    chan struct{}
}

var _ Renderer = (*TUIRenderer)(nil)

// NewTUIRenderer creates an interactive renderer. Output must be a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	model := newBuildModel(NewProgressTracker(), cfg.Title)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{cfg: cfg, model: model, done: make(chan struct{})}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithInput(nil)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.model.tracker.Set(event)
	r.send(progressMsg(event))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.send(completeMsg(stats))
}

// Fail implements Renderer.
func (r *TUIRenderer) Fail(corpus string, err error) {
	r.send(failMsg{corpus: corpus, err: err})
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()

	if p == nil {
		return nil
	}
	p.Send(finishMsg{})
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		p.Kill()
	}
	return nil
}

type (
	progressMsg ProgressEvent
	completeMsg CompletionStats
	failMsg     struct {
		corpus string
		err    error
	}
	finishMsg struct{}
	tickMsg   time.Time
)

// buildModel is the bubbletea model for corpus builds.
type buildModel struct {
	tracker  *ProgressTracker
	title    string
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
	lines    []string
	finished bool
}

func newBuildModel(tracker *ProgressTracker, title string) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &buildModel{
		tracker: tracker,
		title:   title,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = max(20, min(msg.Width-30, 60))
	case progressMsg:
		return m, nil
	case completeMsg:
		m.lines = append(m.lines, m.styles.Success.Render("✓ ")+completionLine(CompletionStats(msg)))
	case failMsg:
		m.lines = append(m.lines, m.styles.Error.Render(fmt.Sprintf("✗ %s: %v", msg.corpus, msg.err)))
	case finishMsg:
		m.finished = true
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *buildModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Header.Render(m.title))
	b.WriteString("\n")
	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.finished {
		return b.String()
	}

	stats := m.tracker.Stats()
	if stats.Corpus == "" {
		b.WriteString(m.spinner.View() + " " + m.styles.Dim.Render("Preparing..."))
		b.WriteString("\n")
		return b.String()
	}

	label := m.styles.Active.Render(stats.Corpus) + " " + m.styles.Label.Render(stats.Stage.String())
	if stats.Total == 0 {
		b.WriteString(m.spinner.View() + " " + label + "\n")
		return b.String()
	}

	line := fmt.Sprintf("%s %s  %s %3.0f%%  %s",
		m.spinner.View(), label, m.bar.ViewAs(stats.Progress), stats.Progress*100,
		m.styles.Label.Render(fmt.Sprintf("%d/%d", stats.Current, stats.Total)))
	if stats.ETA > 0 {
		line += m.styles.Dim.Render("  ETA " + formatDuration(stats.ETA))
	}
	b.WriteString(line + "\n")
	return b.String()
}
