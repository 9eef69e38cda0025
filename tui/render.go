package tui

import (
	"fmt"
	"math"
	"strings"

	"qbranch/manager"
)

// probThreshold hides basis states that carry no visible probability.
const probThreshold = 1e-9

// bar draws p as a filled fraction of w cells.
func bar(p float64, w int) string {
	filled := int(math.Round(p * float64(w)))
	filled = min(max(filled, 0), w)
	return barStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", w-filled))
}

func clbitString(bits []uint8) string {
	var sb strings.Builder
	for i := len(bits) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%d", bits[i])
	}
	return sb.String()
}

// renderResultsPanel renders the probability bars, live branches and cache
// counters of the last successful simulation.
func (m Model) renderResultsPanel(width, height int) string {
	var sb strings.Builder

	title := "Simulation"
	if m.focus == focusResults {
		title += " [ACTIVE]"
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")

	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n\n")
	}

	r := m.result
	if r == nil {
		sb.WriteString(dimStyle.Render("no circuit yet"))
		return resultsStyle.Width(width).Height(height).Render(sb.String())
	}

	n := r.circuit.QubitNum
	fmt.Fprintf(&sb, "%d qubits  %d clbits  %d gates\n\n", n, r.circuit.ClbitNum, r.circuit.GateCount())

	rows := max(height-12-len(r.branches), 1)
	shown := 0
	for i, p := range r.probs {
		if p <= probThreshold {
			continue
		}
		if shown == rows {
			sb.WriteString(dimStyle.Render("  ..."))
			sb.WriteString("\n")
			break
		}
		label := basisStyle.Render("|" + manager.Bitstring(i, n) + "⟩")
		fmt.Fprintf(&sb, "%s%s%s %.4f\n", label, strings.Repeat(" ", labelPad), bar(p, barW), p)
		shown++
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%s %d\n", activeStyle.Render("Branches:"), len(r.branches))
	if r.circuit.ClbitNum > 0 {
		for _, b := range r.branches {
			fmt.Fprintf(&sb, "  c=%s  w=%.4f\n", clbitStyle.Render(clbitString(b.Clbits)), b.Weight)
		}
	}
	s := r.stats
	sb.WriteString(dimStyle.Render(fmt.Sprintf("cache hits %d  misses %d  invalidations %d  splits %d  peak %d",
		s.Hits, s.Misses, s.Invalidations, s.Splits, s.PeakBranches)))

	return resultsStyle.Width(width).Height(height).Render(sb.String())
}

// renderEditorPanel renders the QASM editor panel.
func (m Model) renderEditorPanel(width, height int) string {
	var sb strings.Builder

	title := "QASM Editor"
	if m.focus == focusEditor {
		title += " [ACTIVE]"
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")
	sb.WriteString(m.editor.View())

	return editorStyle.Width(width).Height(height).Render(sb.String())
}

// renderControlsPanel renders the bottom help/controls bar.
func (m Model) renderControlsPanel(width, height int) string {
	var sb strings.Builder

	sb.WriteString(activeStyle.Render("Editor:  "))
	sb.WriteString("type to edit, the circuit re-runs on every change  Esc/Tab Leave")
	sb.WriteString("\n")

	sb.WriteString(activeStyle.Render("Results: "))
	sb.WriteString("Tab/i Edit  a Insert gate  ^S Save  q/^C Quit")
	if m.statusMsg != "" {
		fmt.Fprintf(&sb, "  │  %s", activeStyle.Render(m.statusMsg))
	}

	return controlsStyle.Width(width).Height(height).Render(sb.String())
}

// overlayAt composites the overlay string on top of the background at position (x, y).
func overlayAt(bg, overlay string, x, y int) string {
	bgLines := strings.Split(bg, "\n")
	ovLines := strings.Split(overlay, "\n")

	for i, ovLine := range ovLines {
		bgIdx := y + i
		if bgIdx < 0 || bgIdx >= len(bgLines) {
			continue
		}
		bgLines[bgIdx] = spliceLineAt(bgLines[bgIdx], ovLine, x)
	}
	return strings.Join(bgLines, "\n")
}

func isEscEnd(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

// skipEscape returns the index just past the escape sequence starting at i.
func skipEscape(runes []rune, i int) int {
	for i++; i < len(runes); i++ {
		if isEscEnd(runes[i]) {
			return i + 1
		}
	}
	return i
}

// spliceLineAt replaces visible columns starting at x in bgLine with
// overlay, keeping escape sequences of the background intact.
func spliceLineAt(bgLine, overlay string, x int) string {
	runes := []rune(bgLine)
	ovWidth := visibleLen(overlay)

	var prefix strings.Builder
	col, i := 0, 0
	for i < len(runes) && col < x {
		if runes[i] == '\x1b' {
			end := skipEscape(runes, i)
			prefix.WriteString(string(runes[i:end]))
			i = end
			continue
		}
		prefix.WriteRune(runes[i])
		col++
		i++
	}
	for ; col < x; col++ {
		prefix.WriteRune(' ')
	}

	for skipped := 0; i < len(runes) && skipped < ovWidth; {
		if runes[i] == '\x1b' {
			i = skipEscape(runes, i)
			continue
		}
		skipped++
		i++
	}

	return prefix.String() + overlay + string(runes[i:])
}

// visibleLen returns the number of visible (non-ANSI-escape) characters in a string.
func visibleLen(s string) int {
	runes := []rune(s)
	n := 0
	for i := 0; i < len(runes); {
		if runes[i] == '\x1b' {
			i = skipEscape(runes, i)
			continue
		}
		n++
		i++
	}
	return n
}
