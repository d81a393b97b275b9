package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/Ciarands/jsbridge/bridge"
	"github.com/Ciarands/jsbridge/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	inputEchoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#874BFD"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

const historyLimit = 200

// replEntry is one evaluated chunk and its rendered outcome.
type replEntry struct {
	input  string
	output string
	isErr  bool
}

type replModel struct {
	wasmFile string
	memPages uint32
	log      *zap.Logger

	bctx    *bridge.Context
	loading bool
	loadErr error

	input   textinput.Model
	pending []string // continuation lines of an incomplete unit
	history []replEntry
	line    uint32
}

type bridgeReadyMsg struct {
	bctx *bridge.Context
	err  error
}

type evalDoneMsg struct {
	entry replEntry
}

func newReplModel(wasmFile string, memPages uint32, log *zap.Logger) replModel {
	ti := textinput.New()
	ti.Placeholder = "1n << 64n"
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 80
	ti.Prompt = promptStyle.Render("> ")

	return replModel{
		wasmFile: wasmFile,
		memPages: memPages,
		log:      log,
		loading:  true,
		input:    ti,
		line:     1,
	}
}

func (m replModel) Init() tea.Cmd {
	return func() tea.Msg {
		bctx, err := openBridge(context.Background(), m.wasmFile, m.memPages, m.log)
		return bridgeReadyMsg{bctx: bctx, err: err}
	}
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case bridgeReadyMsg:
		m.loading = false
		m.bctx = msg.bctx
		m.loadErr = msg.err
		return m, nil

	case evalDoneMsg:
		m.history = append(m.history, msg.entry)
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			if m.bctx != nil {
				m.bctx.Close(context.Background())
			}
			return m, tea.Quit

		case "ctrl+l":
			m.history = nil
			return m, nil

		case "esc":
			// Abandon the half-typed unit.
			m.pending = nil
			m.input.SetValue("")
			return m, nil

		case "enter":
			if m.loading || m.loadErr != nil {
				return m, nil
			}
			return m.submitLine()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m replModel) submitLine() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.SetValue("")

	if cmd, handled := m.command(strings.TrimSpace(line)); handled {
		return m, cmd
	}

	m.pending = append(m.pending, line)
	source := strings.Join(m.pending, "\n")
	if strings.TrimSpace(source) == "" {
		m.pending = nil
		return m, nil
	}

	ctx := context.Background()
	complete, err := m.bctx.IsCompilableUnit(ctx, source)
	if err == nil && !complete {
		// Keep accumulating lines until the unit closes.
		m.input.Prompt = promptStyle.Render("... ")
		return m, nil
	}

	m.pending = nil
	m.input.Prompt = promptStyle.Render("> ")
	startLine := m.line
	m.line += uint32(strings.Count(source, "\n")) + 1
	bctx := m.bctx

	return m, func() tea.Msg {
		v, err := bctx.Eval(ctx, source, engine.EvalOptions{
			Filename: "@repl",
			Line:     startLine,
		})
		if err != nil {
			return evalDoneMsg{entry: replEntry{input: source, output: err.Error(), isErr: true}}
		}
		out, err := formatValue(v, 0)
		if err != nil {
			return evalDoneMsg{entry: replEntry{input: source, output: err.Error(), isErr: true}}
		}
		return evalDoneMsg{entry: replEntry{input: source, output: out}}
	}
}

// command handles dot-prefixed REPL directives. It reports whether the
// line was a directive.
func (m *replModel) command(line string) (tea.Cmd, bool) {
	switch line {
	case ".gc":
		bctx := m.bctx
		return func() tea.Msg {
			err := bctx.Collect(context.Background())
			if err != nil {
				return evalDoneMsg{entry: replEntry{input: line, output: err.Error(), isErr: true}}
			}
			return evalDoneMsg{entry: replEntry{input: line, output: "collected"}}
		}, true

	case ".stats":
		st := m.bctx.Stats()
		out := fmt.Sprintf("pins=%d associations=%d handles=%d", st.Pins, st.Associations, st.Handles)
		return func() tea.Msg {
			return evalDoneMsg{entry: replEntry{input: line, output: out}}
		}, true

	case ".help":
		out := ".gc collect  .stats bridge counters  .help this text  ctrl+d quit"
		return func() tea.Msg {
			return evalDoneMsg{entry: replEntry{input: line, output: out}}
		}, true
	}
	return nil, false
}

func (m replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("jsrepl"))
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString("Loading engine...\n")
		return b.String()
	}
	if m.loadErr != nil {
		b.WriteString(errorStyle.Render("Failed to load engine: " + m.loadErr.Error()))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("ctrl+c quit"))
		b.WriteString("\n")
		return b.String()
	}

	for _, e := range m.history {
		for _, l := range strings.Split(e.input, "\n") {
			b.WriteString(inputEchoStyle.Render("> " + l))
			b.WriteString("\n")
		}
		if e.isErr {
			b.WriteString(errorStyle.Render(e.output))
		} else {
			b.WriteString(resultStyle.Render(e.output))
		}
		b.WriteString("\n")
	}

	for _, l := range m.pending {
		b.WriteString(inputEchoStyle.Render("> " + l))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter eval • esc cancel input • ctrl+l clear • ctrl+d quit"))
	b.WriteString("\n")

	return b.String()
}

func runInteractive(wasmFile string, memPages uint32, log *zap.Logger) error {
	p := tea.NewProgram(newReplModel(wasmFile, memPages, log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
