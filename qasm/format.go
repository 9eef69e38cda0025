package qasm

import (
	"fmt"
	"strings"

	"qbranch/circuit"
	"qbranch/condition"
	"qbranch/gates"
)

var qasmNames = map[gates.Kind]string{
	gates.I:  "id",
	gates.Sd: "sdg",
	gates.Td: "tdg",
}

// Name is the OpenQASM 2.0 spelling of k.
func Name(k gates.Kind) string {
	if name, ok := qasmNames[k]; ok {
		return name
	}
	return strings.ToLower(k.String())
}

// Format writes c as OpenQASM 2.0 with one register q and one register c.
// Units are written back to back. A condition must read either one clbit or
// the whole classical register in order; anything else has no OpenQASM 2.0
// spelling and fails with ErrUnsupported.
func Format(c *circuit.Circuit) (string, error) {
	var sb strings.Builder
	sb.WriteString("OPENQASM 2.0;\n")
	sb.WriteString("include \"qelib1.inc\";\n\n")
	fmt.Fprintf(&sb, "qreg q[%d];\n", c.QubitNum)
	if c.ClbitNum > 0 {
		fmt.Fprintf(&sb, "creg c[%d];\n", c.ClbitNum)
	}
	sb.WriteString("\n")

	for ui, u := range c.Units {
		for gi, g := range u.Gates {
			if err := writeGate(&sb, g, c.ClbitNum); err != nil {
				return "", fmt.Errorf("unit %d, gate %d: %w", ui, gi, err)
			}
		}
	}
	return sb.String(), nil
}

func writeGate(sb *strings.Builder, g circuit.GateUnit, clbits int) error {
	qubits := make([]string, len(g.Qubits))
	for i, q := range g.Qubits {
		qubits[i] = fmt.Sprintf("q[%d]", q)
	}

	switch {
	case g.IsMeasure():
		fmt.Fprintf(sb, "measure %s -> c[%d];\n", qubits[0], g.Clbit)
		return nil
	case g.IsBarrier():
		fmt.Fprintf(sb, "barrier %s;\n", strings.Join(qubits, ", "))
		return nil
	}

	if g.Cond != nil {
		guard, err := formatCondition(*g.Cond, clbits)
		if err != nil {
			return err
		}
		sb.WriteString(guard)
	}
	sb.WriteString(Name(g.Kind))
	if g.HasAngle {
		fmt.Fprintf(sb, "(%s)", FormatAngle(g.Angle))
	}
	fmt.Fprintf(sb, " %s;\n", strings.Join(qubits, ", "))
	return nil
}

func formatCondition(cond condition.Condition, clbits int) (string, error) {
	bits := cond.Clbits()
	if len(bits) == 1 {
		return fmt.Sprintf("if(c[%d]%s%d) ", bits[0], cond.Relation(), cond.Value()), nil
	}
	if len(bits) != clbits {
		return "", fmt.Errorf("condition %s: %w", cond, ErrUnsupported)
	}
	for i, b := range bits {
		if b != i {
			return "", fmt.Errorf("condition %s: %w", cond, ErrUnsupported)
		}
	}
	return fmt.Sprintf("if(c%s%d) ", cond.Relation(), cond.Value()), nil
}
