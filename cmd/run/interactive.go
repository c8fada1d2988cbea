package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-host/component"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/runtime"
	"github.com/wippyai/wasm-host/transcoder"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DDDDDD")).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			PaddingLeft(1)

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD166"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

// interactiveModel calls exports of one instance until the user quits or
// the instance reaches a terminal state.
type interactiveModel struct {
	ctx      context.Context
	err      error
	opts     *options
	rt       *runtime.Runtime
	linked   *linker.Linked
	st       *host.State
	out      stdio
	instance *runtime.Instance
	path     string
	bin      []byte
	result   string
	output   string
	exports  []component.Export
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

func newInteractiveModel(ctx context.Context, path string, bin []byte, o *options) *interactiveModel {
	return &interactiveModel{
		ctx:   ctx,
		opts:  o,
		path:  path,
		bin:   bin,
		state: stateSelectFunc,
	}
}

type loadedMsg struct {
	err     error
	rt      *runtime.Runtime
	linked  *linker.Linked
	exports []component.Export
}

type callResultMsg struct {
	err    error
	result string
	output string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

// load links the component up front so import problems show before any
// export is picked.
func (m *interactiveModel) load() tea.Msg {
	rt, err := newRuntime(m.ctx, m.opts)
	if err != nil {
		return loadedMsg{err: err}
	}
	comp, err := rt.LoadComponent(m.ctx, m.bin)
	if err != nil {
		rt.Close(m.ctx)
		return loadedMsg{err: err}
	}
	linked, err := rt.Link(comp)
	if err != nil {
		rt.Close(m.ctx)
		return loadedMsg{err: err}
	}

	exports := append([]component.Export(nil), comp.Exports()...)
	sort.Slice(exports, func(i, j int) bool { return exports[i].Name < exports[j].Name })
	return loadedMsg{rt: rt, linked: linked, exports: exports}
}

func (m *interactiveModel) close() {
	if m.instance != nil {
		m.instance.Close(m.ctx)
		m.instance = nil
	}
	if m.st != nil {
		m.st.Close()
		m.st = nil
	}
	if m.rt != nil {
		m.rt.Close(m.ctx)
		m.rt = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.exports)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.exports) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.call
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.call

			case stateShowResult:
				m.reset()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.reset()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.linked = msg.linked
		m.exports = msg.exports

	case callResultMsg:
		m.result = msg.result
		m.output = msg.output
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.result = ""
	m.output = ""
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	exp := m.exports[m.selected]
	types := paramTypeNames(exp.Type)
	m.inputs = make([]textinput.Model, len(exp.Type.Params))
	for i, p := range exp.Type.Params {
		ti := textinput.New()
		ti.Placeholder = types[i]
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// call instantiates on first use and invokes the selected export. Output
// captured during the call is shown with its result.
func (m *interactiveModel) call() tea.Msg {
	if m.instance == nil {
		if m.linked == nil {
			return callResultMsg{err: fmt.Errorf("component not loaded")}
		}
		st, out, err := newState(m.opts)
		if err != nil {
			return callResultMsg{err: err}
		}
		inst, err := m.rt.Instantiate(m.ctx, m.linked, st)
		if err != nil {
			st.Close()
			return callResultMsg{err: err}
		}
		m.st, m.out, m.instance = st, out, inst
	}

	exp := m.exports[m.selected]
	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	args, err := convertArgs(values, exp.Type.ParamTypes())
	if err != nil {
		return callResultMsg{err: err}
	}

	results, err := m.instance.Invoke(m.ctx, exp.Name, args...)
	output := m.drain()
	if err != nil {
		return callResultMsg{err: err, output: output}
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = formatValue(r)
	}
	result := strings.Join(parts, ", ")
	if result == "" {
		result = "ok"
	}
	return callResultMsg{result: result, output: output}
}

// drain returns and clears captured stdout and stderr.
func (m *interactiveModel) drain() string {
	var b strings.Builder
	if m.out.stdout != nil {
		b.WriteString(m.out.stdout.String())
		m.out.stdout.Reset()
	}
	if m.out.stderr != nil {
		b.WriteString(m.out.stderr.String())
		m.out.stderr.Reset()
	}
	return b.String()
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("%s\n\nPress q to quit.", describe(m.err)))
	}

	if m.linked == nil {
		return "Loading component..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Runner"))
	b.WriteString(" ")
	b.WriteString(m.path)
	if m.instance != nil {
		b.WriteString(" ")
		b.WriteString(stateStyle.Render("[" + m.instance.State().String() + "]"))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select an export to call:\n\n")
		for i, exp := range m.exports {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatExport(exp)))
			} else {
				b.WriteString("  " + formatExport(exp))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		exp := m.exports[m.selected]
		types := paramTypeNames(exp.Type)
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(exp.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(types[i]))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		exp := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(exp.Name)))
		if m.output != "" {
			b.WriteString(outputStyle.Render(strings.TrimRight(m.output, "\n")))
			b.WriteString("\n\n")
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(describe(m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatExport(exp component.Export) string {
	types := paramTypeNames(exp.Type)
	params := make([]string, len(exp.Type.Params))
	for i, p := range exp.Type.Params {
		params[i] = p.Name + ": " + typeStyle.Render(types[i])
	}
	result := ""
	if len(exp.Type.Results) > 0 {
		result = " -> " + typeStyle.Render(transcoder.TypeName(exp.Type.Results[0]))
	}
	return funcStyle.Render(exp.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(ctx context.Context, path string, bin []byte, o *options) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	p := tea.NewProgram(newInteractiveModel(ctx, path, bin, o), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
