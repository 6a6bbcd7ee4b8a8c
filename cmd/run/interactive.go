package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/instance"
	"github.com/wippyai/wasm-substrate/trap"
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

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectExport modelState = iota
	stateInputArgs
	stateShowResult
)

type exportRow struct {
	name   string
	entity descriptor.EntityIndex
}

type interactiveModel struct {
	err      error
	loaded   *loaded
	filename string
	relaxed  bool
	result   string
	exports  []exportRow
	input    textinput.Model
	selected int
	state    modelState
}

func newInteractiveModel(filename string, relaxed bool) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		relaxed:  relaxed,
		state:    stateSelectExport,
	}
}

type loadedMsg struct {
	err error
	l   *loaded
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	l, err := load(context.Background(), m.filename, m.relaxed)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{l: l}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			if m.loaded != nil {
				m.loaded.close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectExport && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectExport && m.selected < len(m.exports)-1 {
				m.selected++
			}

		case "g":
			if m.state == stateSelectExport && m.loaded != nil {
				if row := m.exports[m.selected]; row.entity.Kind == descriptor.EntityMemory {
					return m, m.growMemory(row)
				}
			}

		case "enter":
			switch m.state {
			case stateSelectExport:
				if m.loaded == nil {
					break
				}
				row := m.exports[m.selected]
				switch row.entity.Kind {
				case descriptor.EntityFunc:
					m.prepareInput()
					m.state = stateInputArgs
				default:
					return m, m.describeExport(row)
				}

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectExport
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectExport
			case stateShowResult:
				m.state = stateSelectExport
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.loaded = msg.l
		for _, name := range msg.l.module.ExportNames {
			m.exports = append(m.exports, exportRow{name: name, entity: msg.l.module.Exports[name]})
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Placeholder = "comma-separated u64 args, empty for none"
	ti.Prompt = "args: "
	ti.Width = 48
	ti.Focus()
	m.input = ti
}

func (m *interactiveModel) callFunction() tea.Msg {
	row := m.exports[m.selected]
	args, err := parseArgs(strings.TrimSpace(m.input.Value()))
	if err != nil {
		return callResultMsg{err: err}
	}

	results, err := m.loaded.handle.Invoke(row.name, args)
	if err != nil {
		if t, ok := err.(*trap.Trap); ok {
			return callResultMsg{err: fmt.Errorf("trapped: %w", t)}
		}
		return callResultMsg{err: err}
	}
	return callResultMsg{result: fmt.Sprintf("%v", results)}
}

// growMemory grows the selected memory by one page and reports the
// mirrored definition so the mutate-then-mirror discipline is visible.
func (m *interactiveModel) growMemory(row exportRow) tea.Cmd {
	return func() tea.Msg {
		idx := descriptor.MemoryIndex(row.entity.Index)
		old, ok := m.loaded.handle.MemoryGrow(idx, 1)
		if !ok {
			return callResultMsg{err: fmt.Errorf("grow failed: memory %q at its limit", row.name)}
		}
		exp := m.loaded.handle.LookupByDeclaration(row.entity).(instance.ExportMemory)
		base, length := readDefinition(exp.Context, exp.Definition)
		return callResultMsg{result: fmt.Sprintf(
			"grew %q: %d -> %d pages, mirrored base=0x%x length=%d",
			row.name, old, old+1, base, length)}
	}
}

func (m *interactiveModel) describeExport(row exportRow) tea.Cmd {
	return func() tea.Msg {
		switch exp := m.loaded.handle.LookupByDeclaration(row.entity).(type) {
		case instance.ExportTable:
			base, elems := readDefinition(exp.Context, exp.Definition)
			return callResultMsg{result: fmt.Sprintf(
				"table %q: definition@0x%x base=0x%x elements=%d", row.name, exp.Definition, base, elems)}
		case instance.ExportMemory:
			base, length := readDefinition(exp.Context, exp.Definition)
			return callResultMsg{result: fmt.Sprintf(
				"memory %q: definition@0x%x base=0x%x length=%d", row.name, exp.Definition, base, length)}
		case instance.ExportGlobal:
			bits, _ := readDefinition(exp.Context, exp.Definition)
			return callResultMsg{result: fmt.Sprintf(
				"global %q: definition@0x%x bits=0x%x", row.name, exp.Definition, bits)}
		default:
			return callResultMsg{result: row.name}
		}
	}
}

// readDefinition reads a two-word record straight out of the raw
// context region, exactly as compiled code would.
func readDefinition(c *instance.VMContext, off uint32) (uint64, uint64) {
	buf := c.Bytes()
	return binary.LittleEndian.Uint64(buf[off:]), binary.LittleEndian.Uint64(buf[off+8:])
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.loaded == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("wasm-substrate"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString(helpStyle.Render(fmt.Sprintf("  context=%dB", m.loaded.offsets.ContextSize())))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectExport:
		b.WriteString("Exports:\n\n")
		for i, row := range m.exports {
			line := m.formatRow(row)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call/describe • g grow memory • q quit"))

	case stateInputArgs:
		row := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(row.name)))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		row := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("%s:\n\n", funcStyle.Render(row.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatRow(row exportRow) string {
	kind := typeStyle.Render(fmt.Sprintf("%-6s", row.entity.Kind))
	return kind + " " + funcStyle.Render(row.name)
}

func runInteractive(filename string, relaxed bool) error {
	p := tea.NewProgram(newInteractiveModel(filename, relaxed), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
