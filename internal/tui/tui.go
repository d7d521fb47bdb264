// Package tui is the interactive search screen: a query box over an opened
// index, with scrollable ranked results.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/corpusrag/internal/document"
	"github.com/Aman-CERP/corpusrag/internal/index"
	"github.com/Aman-CERP/corpusrag/internal/ui"
)

// maxSnippetRunes bounds how much of each chunk is shown.
const maxSnippetRunes = 600

// Searcher runs a top-k query. *index.Retriever satisfies it.
type Searcher interface {
	SearchTopK(ctx context.Context, query string, k int) ([]index.Result, error)
	K() int
}

// Options configures Run.
type Options struct {
	Input   io.Reader
	Output  io.Writer
	NoColor bool
	// K overrides the searcher's default result count when > 0.
	K     int
	Title string
}

// Run shows the search screen until the user quits or ctx is canceled.
func Run(ctx context.Context, searcher Searcher, opts Options) error {
	if !ui.IsTTY(opts.Output) {
		return fmt.Errorf("interactive search needs a terminal; use 'corpusrag search' instead")
	}

	m := NewModel(ctx, searcher, opts)
	progOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}

	_, err := tea.NewProgram(m, progOpts...).Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("run search ui: %w", err)
	}
	return nil
}

// resultsMsg carries a finished search back to the model.
type resultsMsg struct {
	query   string
	results []index.Result
	err     error
	elapsed time.Duration
}

// Model is the bubbletea model of the search screen.
type Model struct {
	ctx      context.Context
	searcher Searcher
	k        int
	title    string
	styles   ui.Styles

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	width     int
	height    int
	searching bool
	query     string
	results   []index.Result
	err       error
	elapsed   time.Duration
	searches  int
}

// NewModel creates the search model.
func NewModel(ctx context.Context, searcher Searcher, opts Options) Model {
	styles := ui.DefaultStyles()
	if opts.NoColor || ui.DetectNoColor() {
		styles = ui.NoColorStyles()
	}

	in := textinput.New()
	in.Placeholder = "Ask the corpus..."
	in.Prompt = "> "
	in.CharLimit = 1024
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Active

	k := opts.K
	if k <= 0 {
		k = searcher.K()
	}
	title := opts.Title
	if title == "" {
		title = "search"
	}

	return Model{
		ctx:      ctx,
		searcher: searcher,
		k:        k,
		title:    title,
		styles:   styles,
		input:    in,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   24,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-4, 10)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-6, 3)
		m.viewport.SetContent(m.renderResults())
		return m, nil

	case resultsMsg:
		m.searching = false
		m.query = msg.query
		m.results = msg.results
		m.err = msg.err
		m.elapsed = msg.elapsed
		m.searches++
		m.viewport.SetContent(m.renderResults())
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.searching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" || m.searching {
		return m, nil
	}
	m.searching = true
	return m, tea.Batch(m.spinner.Tick, m.search(query))
}

func (m Model) search(query string) tea.Cmd {
	ctx, searcher, k := m.ctx, m.searcher, m.k
	return func() tea.Msg {
		start := time.Now()
		results, err := searcher.SearchTopK(ctx, query, k)
		return resultsMsg{query: query, results: results, err: err, elapsed: time.Since(start)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Header.Render("corpusrag • " + m.title))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	switch {
	case m.searching:
		b.WriteString(m.spinner.View() + " " + m.styles.Dim.Render("searching..."))
	case m.err != nil:
		b.WriteString(m.styles.Error.Render("✗ " + m.err.Error()))
	case m.searches > 0:
		b.WriteString(m.styles.Label.Render(fmt.Sprintf("%d results for %q in %s",
			len(m.results), m.query, m.elapsed.Round(time.Millisecond))))
	default:
		b.WriteString(m.styles.Dim.Render(fmt.Sprintf("top %d • enter to search • ↑/↓ scroll • esc to quit", m.k)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	return b.String()
}

func (m Model) renderResults() string {
	if m.searches == 0 || m.err != nil {
		return ""
	}
	if len(m.results) == 0 {
		return m.styles.Dim.Render("No matching chunks.")
	}

	wrap := lipgloss.NewStyle().Width(max(m.width-4, 20)).PaddingLeft(3)
	var b strings.Builder
	for i, r := range m.results {
		fmt.Fprintf(&b, "%2d. %s  %s%s\n",
			i+1,
			m.styles.Score.Render(fmt.Sprintf("%.3f", r.Score)),
			m.styles.Source.Render(r.Document.Source()),
			pageSuffix(r.Document))
		b.WriteString(wrap.Render(snippet(r.Document.Content)))
		b.WriteString("\n\n")
	}
	return b.String()
}

func pageSuffix(doc document.Document) string {
	if page, ok := doc.Metadata[document.KeyPage].(int); ok {
		return fmt.Sprintf(" (page %d)", page+1)
	}
	return ""
}

func snippet(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= maxSnippetRunes {
		return content
	}
	return string(runes[:maxSnippetRunes]) + "..."
}
