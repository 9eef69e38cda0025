package tui

import (
	"fmt"
	"strings"

	"qbranch/gates"
	"qbranch/qasm"
)

// menuItem is one insertable statement in the gate picker.
type menuItem struct {
	kind    gates.Kind
	snippet string
}

// menuCategory groups related menu items under a tab.
type menuCategory struct {
	name  string
	items []menuItem
}

var categoryNames = [...]string{"Single Qubit", "Rotation", "Multi Qubit", "Classical"}

func categoryOf(k gates.Kind) int {
	switch {
	case k == gates.Measure || k == gates.Barrier:
		return 3
	case k.Parametric():
		return 1
	case k.Arity() > 1:
		return 2
	}
	return 0
}

// snippet is a ready-to-edit statement for k on the lowest qubits.
func snippet(k gates.Kind) string {
	switch k {
	case gates.Measure:
		return "measure q[0] -> c[0];"
	case gates.Barrier:
		return "barrier q;"
	}
	operands := make([]string, k.Arity())
	for i := range operands {
		operands[i] = fmt.Sprintf("q[%d]", i)
	}
	name := qasm.Name(k)
	if k.Parametric() {
		name += "(pi/2)"
	}
	return name + " " + strings.Join(operands, ",") + ";"
}

// buildMenu groups the gate catalogue into picker tabs.
func buildMenu() []menuCategory {
	menu := make([]menuCategory, len(categoryNames))
	for i, name := range categoryNames {
		menu[i].name = name
	}
	for _, k := range gates.Kinds() {
		c := categoryOf(k)
		menu[c].items = append(menu[c].items, menuItem{kind: k, snippet: snippet(k)})
	}
	return menu
}

var gateMenu = buildMenu()

func (m Model) selectedItem() menuItem {
	return gateMenu[m.menuCat].items[m.menuItem]
}

// renderMenu renders the floating gate-picker popup.
func (m Model) renderMenu() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Insert Statement"))
	sb.WriteString("\n")

	for i, cat := range gateMenu {
		name := " " + cat.name + " "
		if i == m.menuCat {
			sb.WriteString(activeStyle.Render(name))
		} else {
			sb.WriteString(dimStyle.Render(name))
		}
		if i < len(gateMenu)-1 {
			sb.WriteString(dimStyle.Render("│"))
		}
	}
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(strings.Repeat("─", 46)))
	sb.WriteString("\n")

	for i, item := range gateMenu[m.menuCat].items {
		label := fmt.Sprintf("%-8s", item.kind)
		if i == m.menuItem {
			sb.WriteString(menuSelectedStyle.Render(" ▸ " + label))
			sb.WriteString(barStyle.Render(item.snippet))
		} else {
			sb.WriteString("   " + menuNormalStyle.Render(label))
			sb.WriteString(dimStyle.Render(item.snippet))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("←→ Category  ↑↓ Select  Enter Insert  Esc Cancel"))
	return menuBorderStyle.Render(sb.String())
}
