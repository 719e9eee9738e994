package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"courserag/internal/domain"
	"courserag/internal/tokenizer"
)

// Retriever is the TUI-facing subset of the service.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (domain.Retrieval, error)
}

// Model is the Bubble Tea model for the interactive shell.
type Model struct {
	service   Retriever
	timeout   time.Duration
	input     textinput.Model
	viewport  viewport.Model
	retrieval domain.Retrieval
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

type retrievedMsg struct {
	req       domain.RetrieveRequest
	retrieval domain.Retrieval
	err       error
}

// New creates a new TUI model. summary is shown under the header.
func New(service Retriever, summary string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "[@course:] [#lesson] question, then Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		timeout:  timeout,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Loaded. Type to search.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) retrieve(req domain.RetrieveRequest) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if m.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
		res, err := m.service.Retrieve(ctx, req)
		return retrievedMsg{req: req, retrieval: res, err: err}
	}
}

// Update handles key, window and retrieval events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, max(3, msg.Height-reserved)-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case retrievedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.retrieval = domain.Retrieval{}
		} else {
			m.status = statusLine(msg.req, msg.retrieval)
			m.retrieval = msg.retrieval
			m.cursor = 0
			m.lastQuery = msg.req.Query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			req, err := ParseInput(line)
			if err != nil {
				m.status = "Error: " + err.Error()
				return m, nil
			}
			m.busy = true
			m.status = "Searching..."
			return m, m.retrieve(req)
		case "down":
			if n := len(m.retrieval.Results); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if n := len(m.retrieval.Results); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func statusLine(req domain.RetrieveRequest, r domain.Retrieval) string {
	scope := ""
	if r.ResolvedCourse != "" {
		scope = " in " + r.ResolvedCourse
	}
	if req.LessonHint != nil {
		scope += fmt.Sprintf(" lesson %d", *req.LessonHint)
	}
	return fmt.Sprintf("%d results for %q%s", len(r.Results), req.Query, scope)
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Course Materials Search")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.retrieval.Results) == 0 {
		return "No results yet."
	}
	r := m.retrieval.Results[m.cursor]
	src := m.retrieval.Sources[m.cursor]
	title := fmt.Sprintf("Result %d/%d  score=%.3f  %s", m.cursor+1, len(m.retrieval.Results), r.Score, sourceStyle.Render(src.Text()))
	if src.Link != "" {
		title += "\n" + linkStyle.Render(src.Link)
	}
	body := highlightBestSentence(r.Chunk.Text, m.lastQuery)
	return title + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	linkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Underline(true)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence renders the sentence sharing the most terms with
// the query in the highlight style.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := splitSentences(text)
	qTerms := termSet(query)
	if len(qTerms) == 0 {
		return strings.Join(trimAll(sentences), " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := overlap(qTerms, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	out := trimAll(sentences)
	out[bestIdx] = highlightStyle.Render(out[bestIdx])
	return strings.Join(out, " ")
}

// splitSentences keeps trailing text that has no terminal punctuation, as
// chunks often end mid-sentence.
func splitSentences(text string) []string {
	locs := sentenceRe.FindAllStringIndex(text, -1)
	sentences := make([]string, 0, len(locs)+1)
	end := 0
	for _, loc := range locs {
		sentences = append(sentences, text[loc[0]:loc[1]])
		end = loc[1]
	}
	if tail := strings.TrimSpace(text[end:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func termSet(s string) map[string]struct{} {
	terms := tokenizer.Terms(s)
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

func overlap(query map[string]struct{}, sentence string) int {
	score := 0
	for t := range termSet(sentence) {
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}
