// Package tui is the terminal front end of the chat widget.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"leo-chat/internal/usecase"
)

const (
	defaultStatusInterval = 30 * time.Second
	chromeHeight          = 5 // title, alert, input, help and a spacer
)

type Options struct {
	StatusInterval time.Duration
	// MarkdownStyle is a glamour standard style name; "dark" when empty.
	MarkdownStyle string
}

// taskDoneMsg carries a finished widget task back to the event loop.
// tracked tasks keep the spinner running.
type taskDoneMsg struct {
	result  usecase.Result
	tracked bool
}

type statusTickMsg struct{}

// Model drives a usecase.Widget from Bubble Tea. The widget is only touched
// inside Update and View.
type Model struct {
	ctx    context.Context
	widget *usecase.Widget
	opts   Options

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width    int
	height   int
	ready    bool
	tasks    int
	alert    string
	panel    string
	rendered int
	quitting bool
}

func New(ctx context.Context, w *usecase.Widget, opts Options) Model {
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = defaultStatusInterval
	}

	in := textinput.New()
	in.Placeholder = "Ask about MOSDAC, or type /commands..."
	in.CharLimit = 1000
	in.Prompt = "> "
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = dimStyle

	if w.Len() == 0 {
		w.Greet()
	}

	return Model{
		ctx:      ctx,
		widget:   w,
		opts:     opts,
		viewport: viewport.New(80, 20),
		input:    in,
		spinner:  sp,
		width:    80,
		height:   25,
		rendered: -1,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		runTask(m.ctx, m.widget.CheckStatus(), false),
		m.scheduleStatus(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight-lipgloss.Height(m.panelView()), 3)
		m.input.Width = max(msg.Width-4, 10)
		m.renderer = newRenderer(m.opts.MarkdownStyle, msg.Width)
		m.ready = true
		m.rendered = -1
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m.quit()
		case tea.KeyEsc:
			if m.panel != "" {
				m.panel = ""
				m.resize()
				return m, nil
			}
			return m.quit()
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			idle := m.tasks == 0
			var cmd tea.Cmd
			m, cmd = m.submit(line)
			if m.quitting {
				return m, tea.Quit
			}
			cmds = append(cmds, cmd)
			if idle && m.tasks > 0 {
				cmds = append(cmds, m.spinner.Tick)
			}
			m.refresh()
			return m, tea.Batch(cmds...)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case taskDoneMsg:
		m = m.apply(msg)
		return m, nil

	case statusTickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tea.Batch(runTask(m.ctx, m.widget.CheckStatus(), false), m.scheduleStatus())

	case spinner.TickMsg:
		if m.tasks == 0 {
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

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render("LEO · MOSDAC Assistant") + "  " + statusLine(m.widget.Status())
	parts := []string{title, m.viewport.View()}
	if p := m.panelView(); p != "" {
		parts = append(parts, p)
	}
	alert := ""
	if m.alert != "" {
		alert = alertStyle.Render(m.alert)
	}
	parts = append(parts, alert, inputStyle.Width(max(m.width-2, 10)).Render(m.input.View()), m.helpLine())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// submit handles one line of input: a slash command or a question.
func (m Model) submit(line string) (Model, tea.Cmd) {
	line = strings.TrimSpace(line)
	if line == "" {
		return m, nil
	}
	m.alert = ""

	cmd, err := parseCommand(line)
	if errors.Is(err, errNotCommand) {
		task, ok := m.widget.Send(line)
		if !ok {
			return m, nil
		}
		m.tasks++
		return m, runTask(m.ctx, task, true)
	}
	if err != nil {
		m.alert = err.Error()
		return m, nil
	}
	return m.command(cmd)
}

func (m Model) command(c command) (Model, tea.Cmd) {
	switch c.name {
	case "start":
		m.alert = controlAlert(m.widget.StartGuide())
	case "next":
		m.alert = controlAlert(m.widget.NextStep())
	case "help":
		m.alert = controlAlert(m.widget.StepHelp())
	case "stop":
		m.alert = controlAlert(m.widget.StopGuide())
	case "rate":
		return m.rate(c)
	case "skip":
		m.widget.CloseFeedback()
		m.alert = "Feedback skipped."
	case "sources", "source":
		m.showSource(c)
	case "lang":
		if len(c.args) != 1 {
			m.alert = "usage: /lang <code> (" + strings.Join(usecase.Languages(), ", ") + ")"
			break
		}
		if err := m.widget.SetLanguage(c.args[0]); err != nil {
			m.alert = fmt.Sprintf("Unsupported language %q. Choose one of %s.", c.args[0], strings.Join(usecase.Languages(), ", "))
		}
	case "status":
		m.panel = "status"
		m.resize()
		return m, runTask(m.ctx, m.widget.CheckStatus(), false)
	case "commands":
		m.alert = commandHelp
	case "quit", "exit":
		m.quitting = true
		m.widget.Close()
	default:
		m.alert = fmt.Sprintf("Unknown command /%s. %s", c.name, commandHelp)
	}
	return m, nil
}

func (m Model) rate(c command) (Model, tea.Cmd) {
	n, comment, err := c.rating()
	if err != nil {
		m.alert = err.Error()
		return m, nil
	}
	if _, open := m.widget.FeedbackDraft(); !open {
		id, ok := m.widget.LatestRatable()
		if !ok {
			m.alert = "There is no answer to rate yet."
			return m, nil
		}
		if _, err := m.widget.OpenFeedback(id); err != nil {
			m.alert = err.Error()
			return m, nil
		}
	}
	if err := m.widget.SetRating(n); err != nil {
		m.alert = "Please select a rating from 1 to 5."
		return m, nil
	}
	task, err := m.widget.SubmitFeedback(comment)
	if err != nil {
		m.alert = "Please select a rating from 1 to 5."
		return m, nil
	}
	if task == nil {
		return m, nil
	}
	m.tasks++
	return m, runTask(m.ctx, task, true)
}

func (m *Model) showSource(c command) {
	n, err := c.index()
	if err != nil {
		m.alert = err.Error()
		return
	}
	msgs := m.widget.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if len(msgs[i].Sources) == 0 {
			continue
		}
		view, err := m.widget.Source(msgs[i].ID, n-1)
		if err != nil {
			m.alert = fmt.Sprintf("The last answer has %d sources.", len(msgs[i].Sources))
			return
		}
		m.panel = renderSource(view)
		m.resize()
		return
	}
	m.alert = "No answer with sources yet."
}

func (m Model) apply(msg taskDoneMsg) Model {
	if msg.tracked && m.tasks > 0 {
		m.tasks--
	}
	out := m.widget.Apply(msg.result)
	if out.Alert != "" {
		m.alert = out.Alert
	}
	if out.StatusUpdated && m.panel == "status" {
		m.resize()
	}
	m.refresh()
	return m
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.widget.Close()
	return m, tea.Quit
}

// refresh re-renders the transcript when the log has grown.
func (m *Model) refresh() {
	if !m.ready || m.widget.Len() == m.rendered {
		return
	}
	atBottom := m.viewport.AtBottom() || m.rendered < 0
	m.viewport.SetContent(renderTranscript(m.widget.Messages(), m.renderer, m.width))
	m.rendered = m.widget.Len()
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize() {
	if !m.ready {
		return
	}
	m.viewport.Height = max(m.height-chromeHeight-lipgloss.Height(m.panelView()), 3)
	m.viewport.GotoBottom()
}

func (m Model) panelView() string {
	switch m.panel {
	case "":
		return ""
	case "status":
		sv := m.widget.Status()
		body := "Checking system status..."
		if sv.Checked && sv.Online {
			body = FormatStatus(sv.System)
		} else if sv.Checked {
			body = "Backend unreachable."
		}
		return panelStyle.Render(body + "\n" + dimStyle.Render("esc to close"))
	default:
		return panelStyle.Render(m.panel + "\n" + dimStyle.Render("esc to close"))
	}
}

func (m Model) helpLine() string {
	var hints []string
	if m.tasks > 0 {
		hints = append(hints, m.spinner.View()+" LEO is typing...")
	}
	if _, ok := m.widget.LatestRatable(); ok {
		hints = append(hints, "/rate <1-5> to rate the last answer")
	}
	if m.widget.NavigationState().Active() {
		hints = append(hints, "/next · /help · /stop")
	}
	hints = append(hints, "/commands", "ctrl+c quit")
	return dimStyle.Render(strings.Join(hints, "  ·  "))
}

func (m Model) scheduleStatus() tea.Cmd {
	return tea.Tick(m.opts.StatusInterval, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func runTask(ctx context.Context, task usecase.Task, tracked bool) tea.Cmd {
	if task == nil {
		return nil
	}
	return func() tea.Msg {
		return taskDoneMsg{result: task(ctx), tracked: tracked}
	}
}

func controlAlert(err error) string {
	var ue *usecase.Error
	if err == nil || !errors.As(err, &ue) {
		return ""
	}
	switch ue.Code {
	case usecase.ErrorEmptyGuide:
		return ""
	case usecase.ErrorInvalidState:
		return "No navigation step is active. Ask how to find something on MOSDAC first."
	default:
		return ue.Error()
	}
}
