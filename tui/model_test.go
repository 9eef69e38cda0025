package tui

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"qbranch/gates"
	"qbranch/qasm"
)

const bell = `OPENQASM 2.0;
qreg q[2];
creg c[2];
h q[0];
cx q[0],q[1];
measure q[0] -> c[0];
`

func press(t *testing.T, m Model, keys ...tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(Model)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func approx(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestNewSimulates(t *testing.T) {
	m := New("", bell)
	if m.err != nil {
		t.Fatalf("unexpected error: %v", m.err)
	}
	if m.result == nil {
		t.Fatal("expected a result")
	}
	if !approx(m.result.probs, []float64{0.5, 0, 0, 0.5}) {
		t.Errorf("probs = %v", m.result.probs)
	}
	if len(m.result.branches) != 2 {
		t.Errorf("expected 2 branches, got %d", len(m.result.branches))
	}
}

func TestEditResimulates(t *testing.T) {
	m, _ := press(t, New("", bell), runes("x q[1];"))
	if m.err != nil {
		t.Fatalf("unexpected error: %v", m.err)
	}
	if !strings.HasSuffix(m.editor.Value(), "x q[1];") {
		t.Fatalf("editor = %q", m.editor.Value())
	}
	if !approx(m.result.probs, []float64{0, 0.5, 0.5, 0}) {
		t.Errorf("probs = %v", m.result.probs)
	}
}

func TestParseErrorKeepsResult(t *testing.T) {
	m, _ := press(t, New("", bell), runes("@"))
	if m.err == nil {
		t.Fatal("expected a parse error")
	}
	if m.result == nil || !approx(m.result.probs, []float64{0.5, 0, 0, 0.5}) {
		t.Error("previous result should stay on screen")
	}
}

func TestEmptySource(t *testing.T) {
	m := New("", "")
	if m.err == nil {
		t.Error("empty source should report a missing qreg")
	}
	if m.result != nil {
		t.Error("expected no result")
	}
}

func TestFocusCycle(t *testing.T) {
	m, _ := press(t, New("", bell), tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != focusResults {
		t.Fatalf("focus = %d, want results", m.focus)
	}
	before := m.editor.Value()
	// keys on the results panel never reach the editor
	m, _ = press(t, m, runes("z"))
	if m.editor.Value() != before {
		t.Errorf("editor changed: %q", m.editor.Value())
	}
	m, _ = press(t, m, runes("i"))
	if m.focus != focusEditor {
		t.Errorf("focus = %d, want editor", m.focus)
	}
}

func TestQuit(t *testing.T) {
	m, cmd := press(t, New("", bell), tea.KeyMsg{Type: tea.KeyEsc}, runes("q"))
	if m.focus != focusResults {
		t.Fatalf("focus = %d, want results", m.focus)
	}
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q on the results panel should quit")
	}

	_, cmd = press(t, New("", bell), tea.KeyMsg{Type: tea.KeyCtrlC})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
}

func TestMenuInsert(t *testing.T) {
	m, _ := press(t, New("", bell),
		tea.KeyMsg{Type: tea.KeyTab},
		runes("a"),
	)
	if m.focus != focusMenu {
		t.Fatalf("focus = %d, want menu", m.focus)
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRight}, tea.KeyMsg{Type: tea.KeyEnter})

	if m.focus != focusEditor {
		t.Errorf("focus = %d, want editor", m.focus)
	}
	if !strings.Contains(m.editor.Value(), "rx(pi/2) q[0];") {
		t.Errorf("editor = %q", m.editor.Value())
	}
	if m.err != nil {
		t.Fatalf("unexpected error: %v", m.err)
	}
	if got := m.result.circuit.GateCount(); got != 4 {
		t.Errorf("gate count = %d, want 4", got)
	}
	if m.statusMsg != "inserted Rx" {
		t.Errorf("status = %q", m.statusMsg)
	}
}

func TestMenuNavigationWraps(t *testing.T) {
	m, _ := press(t, New("", bell), tea.KeyMsg{Type: tea.KeyTab}, runes("a"), tea.KeyMsg{Type: tea.KeyLeft})
	if m.menuCat != len(gateMenu)-1 {
		t.Errorf("menuCat = %d, want %d", m.menuCat, len(gateMenu)-1)
	}
	for range 10 {
		m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	}
	if m.menuItem != len(gateMenu[m.menuCat].items)-1 {
		t.Errorf("menuItem = %d, want last", m.menuItem)
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.focus != focusResults {
		t.Errorf("focus = %d, want results", m.focus)
	}
}

func TestMenuCoversCatalogue(t *testing.T) {
	seen := make(map[gates.Kind]bool)
	for _, cat := range gateMenu {
		if len(cat.items) == 0 {
			t.Errorf("category %s is empty", cat.name)
		}
		for _, item := range cat.items {
			if seen[item.kind] {
				t.Errorf("%s listed twice", item.kind)
			}
			seen[item.kind] = true

			src := "qreg q[3];\ncreg c[1];\n" + item.snippet
			if _, err := qasm.Parse(src); err != nil {
				t.Errorf("snippet %q: %v", item.snippet, err)
			}
		}
	}
	for _, k := range gates.Kinds() {
		if !seen[k] {
			t.Errorf("%s missing from menu", k)
		}
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bell.qasm")
	m, _ := press(t, New(path, bell), tea.KeyMsg{Type: tea.KeyCtrlS})
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != m.editor.Value() {
		t.Errorf("saved %q, editor holds %q", data, m.editor.Value())
	}
	if m.statusMsg != "saved "+path {
		t.Errorf("status = %q", m.statusMsg)
	}

	m, _ = press(t, New("", bell), tea.KeyMsg{Type: tea.KeyCtrlS})
	if m.statusMsg != "no file to save to" {
		t.Errorf("status = %q", m.statusMsg)
	}
}

func TestView(t *testing.T) {
	m := New("", bell)
	if got := m.View(); got != "Loading..." {
		t.Errorf("view before size = %q", got)
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	m = next.(Model)
	view := m.View()
	for _, want := range []string{"QASM Editor [ACTIVE]", "Simulation", "|00⟩", "|11⟩", "Branches:", "0.5000"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "|01⟩") {
		t.Error("zero-probability basis state should be hidden")
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab}, runes("a"))
	if view := m.View(); !strings.Contains(view, "Insert Statement") {
		t.Error("menu overlay not drawn")
	}
}

func TestSpliceLineAt(t *testing.T) {
	tests := []struct {
		bg, ov string
		x      int
		want   string
	}{
		{"abcdef", "XY", 2, "abXYef"},
		{"ab", "XY", 4, "ab  XY"},
		{"\x1b[1mabcdef\x1b[0m", "XY", 1, "\x1b[1maXYdef\x1b[0m"},
	}
	for _, tt := range tests {
		if got := spliceLineAt(tt.bg, tt.ov, tt.x); got != tt.want {
			t.Errorf("spliceLineAt(%q, %q, %d) = %q, want %q", tt.bg, tt.ov, tt.x, got, tt.want)
		}
	}
	if n := visibleLen("\x1b[31mred\x1b[0m"); n != 3 {
		t.Errorf("visibleLen = %d, want 3", n)
	}
}
