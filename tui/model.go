// Package tui is an interactive terminal viewer: an OpenQASM editor next to
// a panel that re-simulates the circuit on every edit.
package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"qbranch/circuit"
	"qbranch/manager"
	"qbranch/qasm"
)

// focus represents which panel/mode has keyboard input.
type focus int

const (
	focusEditor focus = iota
	focusResults
	focusMenu
)

// report is the outcome of simulating the editor contents.
type report struct {
	circuit  *circuit.Circuit
	probs    []float64
	branches []manager.Branch
	stats    manager.Stats
}

// Model is the viewer state.
type Model struct {
	path      string
	editor    textarea.Model
	focus     focus
	width     int
	height    int
	lastSrc   string
	statusMsg string // transient status message (e.g. save confirmation)

	opts   []manager.Option
	result *report
	err    error

	menuCat  int
	menuItem int
}

// New returns a viewer editing src. A non-empty path is where ctrl+s
// writes the editor contents. opts configure the manager used for every
// re-simulation.
func New(path, src string, opts ...manager.Option) Model {
	ta := textarea.New()
	ta.Placeholder = "OPENQASM 2.0; ..."
	ta.SetWidth(40)
	ta.SetHeight(20)
	ta.ShowLineNumbers = true
	ta.CharLimit = 0
	ta.KeyMap.InsertNewline.SetEnabled(true)
	ta.SetValue(src)
	ta.Focus()

	m := Model{
		path:   path,
		editor: ta,
		focus:  focusEditor,
		opts:   opts,
	}
	m.evaluate()
	return m
}

// Run starts the viewer on the alternate screen and blocks until it quits.
func Run(path, src string, opts ...manager.Option) error {
	_, err := tea.NewProgram(New(path, src, opts...), tea.WithAltScreen()).Run()
	return err
}

// evaluate re-parses and re-simulates when the editor text has changed. A
// failing parse keeps the previous result on screen next to the error.
func (m *Model) evaluate() {
	src := m.editor.Value()
	if src == m.lastSrc && (m.result != nil || m.err != nil) {
		return
	}
	m.lastSrc = src

	c, err := qasm.Parse(src)
	if err != nil {
		m.err = err
		return
	}
	mgr := manager.New(m.opts...)
	if err := mgr.Execute(c); err != nil {
		m.err = err
		return
	}
	probs, err := mgr.Probabilities()
	if err != nil {
		m.err = err
		return
	}
	branches, err := mgr.Branches()
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.result = &report{circuit: c, probs: probs, branches: branches, stats: mgr.Stats()}
}

func (m *Model) save() {
	if m.path == "" {
		m.statusMsg = "no file to save to"
		return
	}
	if err := os.WriteFile(m.path, []byte(m.editor.Value()), 0o644); err != nil {
		m.statusMsg = fmt.Sprintf("save failed: %v", err)
		return
	}
	m.statusMsg = "saved " + m.path
}

func (m *Model) setFocus(f focus) tea.Cmd {
	m.focus = f
	if f == focusEditor {
		return m.editor.Focus()
	}
	m.editor.Blur()
	return nil
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.editor.SetWidth(max(msg.Width/2-6, minEditorW))
		m.editor.SetHeight(max(msg.Height-controlsH-8, 4))
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		m.statusMsg = ""

		switch key {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+s":
			m.save()
			return m, nil
		}

		switch m.focus {
		case focusEditor:
			if key == "tab" || key == "esc" {
				return m, m.setFocus(focusResults)
			}

		case focusResults:
			switch key {
			case "q":
				return m, tea.Quit
			case "tab", "enter", "i":
				return m, m.setFocus(focusEditor)
			case "a":
				m.menuCat, m.menuItem = 0, 0
				return m, m.setFocus(focusMenu)
			}
			return m, nil

		case focusMenu:
			switch key {
			case "esc", "q":
				return m, m.setFocus(focusResults)
			case "left", "h":
				m.menuCat = (m.menuCat + len(gateMenu) - 1) % len(gateMenu)
				m.menuItem = 0
			case "right", "l", "tab":
				m.menuCat = (m.menuCat + 1) % len(gateMenu)
				m.menuItem = 0
			case "up", "k":
				if m.menuItem > 0 {
					m.menuItem--
				}
			case "down", "j":
				if m.menuItem < len(gateMenu[m.menuCat].items)-1 {
					m.menuItem++
				}
			case "enter":
				item := m.selectedItem()
				cmd := m.setFocus(focusEditor)
				m.editor.InsertString(item.snippet + "\n")
				m.evaluate()
				m.statusMsg = "inserted " + item.kind.String()
				return m, cmd
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	m.evaluate()
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	editorW := m.width / 2
	resultsW := m.width - editorW - 4
	panelH := max(m.height-controlsH-2, 6)

	results := m.renderResultsPanel(resultsW, panelH)
	editor := m.renderEditorPanel(editorW, panelH)
	controls := m.renderControlsPanel(m.width-4, controlsH-2)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, editor, results)
	frame := lipgloss.JoinVertical(lipgloss.Left, topRow, controls)

	if m.focus == focusMenu {
		frame = overlayAt(frame, m.renderMenu(), 2, 2)
	}
	return frame
}
