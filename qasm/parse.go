// Package qasm reads and writes the OpenQASM 2.0 subset understood by the
// simulator.
package qasm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"qbranch/circuit"
	"qbranch/condition"
	"qbranch/gates"
)

var (
	// ErrSyntax is returned for malformed statements.
	ErrSyntax = errors.New("qasm: syntax error")
	// ErrUnsupported is returned for valid OpenQASM the simulator cannot run,
	// such as reset, custom gate bodies or conditioned measurements.
	ErrUnsupported = errors.New("qasm: unsupported statement")
)

const operandPattern = `\w+(?:\s*\[\s*\d+\s*\])?`

// Pre-compiled regexps for QASM parsing.
var (
	qregRegex    = regexp.MustCompile(`^qreg\s+(\w+)\s*\[\s*(\d+)\s*\]$`)
	cregRegex    = regexp.MustCompile(`^creg\s+(\w+)\s*\[\s*(\d+)\s*\]$`)
	measureRegex = regexp.MustCompile(`^measure\s+(` + operandPattern + `)\s*->\s*(` + operandPattern + `)$`)
	ifRegex      = regexp.MustCompile(`^if\s*\(\s*(\w+)(?:\s*\[\s*(\d+)\s*\])?\s*(==|!=|<=|>=|<|>)\s*(\d+)\s*\)\s*(.+)$`)
	gateRegex    = regexp.MustCompile(`^([a-zA-Z]\w*)\s*(?:\(([^)]*)\))?\s*(.*)$`)
	operandRegex = regexp.MustCompile(`^(\w+)(?:\s*\[\s*(\d+)\s*\])?$`)
)

type register struct {
	offset int
	size   int
}

type parser struct {
	qregs  map[string]register
	cregs  map[string]register
	qubits int
	clbits int
	unit   *circuit.Unit
}

// Parse reads an OpenQASM 2.0 program. Classical registers are flattened in
// declaration order, as are quantum registers. Every operation lands in a
// single unit of the returned circuit.
func Parse(src string) (*circuit.Circuit, error) {
	p := &parser{
		qregs: make(map[string]register),
		cregs: make(map[string]register),
		unit:  circuit.NewUnit(0),
	}

	for n, line := range strings.Split(src, "\n") {
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if err := p.statement(stmt); err != nil {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
		}
	}

	if p.qubits == 0 {
		return nil, fmt.Errorf("no qreg declared: %w", ErrSyntax)
	}
	p.unit.QubitNum = p.qubits
	c := circuit.New(p.qubits, p.clbits).Add(p.unit)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *parser) statement(s string) error {
	switch {
	case strings.HasPrefix(s, "OPENQASM"), strings.HasPrefix(s, "include"):
		return nil
	case strings.HasPrefix(s, "qreg"):
		name, size, err := declaration(qregRegex, s)
		if err != nil {
			return err
		}
		return declare(p.qregs, name, size, &p.qubits)
	case strings.HasPrefix(s, "creg"):
		name, size, err := declaration(cregRegex, s)
		if err != nil {
			return err
		}
		return declare(p.cregs, name, size, &p.clbits)
	case keyword(s, "gate"), keyword(s, "opaque"), keyword(s, "reset"), s == "}":
		return fmt.Errorf("%q: %w", s, ErrUnsupported)
	}

	if matches := ifRegex.FindStringSubmatch(s); matches != nil {
		cond, err := p.condition(matches[1], matches[2], matches[3], matches[4])
		if err != nil {
			return err
		}
		return p.operation(strings.TrimSpace(matches[5]), &cond)
	}
	if m := gateRegex.FindStringSubmatch(s); m != nil && m[1] == "if" {
		return fmt.Errorf("%q: %w", s, ErrSyntax)
	}
	return p.operation(s, nil)
}

func keyword(s, kw string) bool {
	return s == kw || strings.HasPrefix(s, kw+" ")
}

func declaration(re *regexp.Regexp, s string) (string, int, error) {
	matches := re.FindStringSubmatch(s)
	if matches == nil {
		return "", 0, fmt.Errorf("%q: %w", s, ErrSyntax)
	}
	size, err := strconv.Atoi(matches[2])
	if err != nil || size < 1 {
		return "", 0, fmt.Errorf("register %s size %q: %w", matches[1], matches[2], ErrSyntax)
	}
	return matches[1], size, nil
}

func declare(regs map[string]register, name string, size int, total *int) error {
	if _, ok := regs[name]; ok {
		return fmt.Errorf("register %s redeclared: %w", name, ErrSyntax)
	}
	regs[name] = register{offset: *total, size: size}
	*total += size
	return nil
}

// resolve expands an operand into flat indices. A bare register name expands
// to every bit of the register.
func resolve(regs map[string]register, operand string) ([]int, error) {
	matches := operandRegex.FindStringSubmatch(strings.TrimSpace(operand))
	if matches == nil {
		return nil, fmt.Errorf("operand %q: %w", operand, ErrSyntax)
	}
	reg, ok := regs[matches[1]]
	if !ok {
		return nil, fmt.Errorf("undeclared register %s: %w", matches[1], ErrSyntax)
	}
	if matches[2] == "" {
		out := make([]int, reg.size)
		for i := range out {
			out[i] = reg.offset + i
		}
		return out, nil
	}
	idx, err := strconv.Atoi(matches[2])
	if err != nil || idx >= reg.size {
		return nil, fmt.Errorf("%s index %s out of range %d: %w", matches[1], matches[2], reg.size, ErrSyntax)
	}
	return []int{reg.offset + idx}, nil
}

// condition builds the guard for if(reg==v) over every bit of reg, or
// if(reg[i]==v) over a single bit.
func (p *parser) condition(name, bit, rel, value string) (condition.Condition, error) {
	operand := name
	if bit != "" {
		operand = name + "[" + bit + "]"
	}
	clbits, err := resolve(p.cregs, operand)
	if err != nil {
		return condition.Condition{}, err
	}
	r, err := condition.ParseRelation(rel)
	if err != nil {
		return condition.Condition{}, fmt.Errorf("%v: %w", err, ErrSyntax)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return condition.Condition{}, fmt.Errorf("condition value %q: %w", value, ErrSyntax)
	}
	return condition.New(clbits, r, v), nil
}

func (p *parser) operation(s string, cond *condition.Condition) error {
	if keyword(s, "measure") {
		if cond != nil {
			return fmt.Errorf("conditioned measure: %w", ErrUnsupported)
		}
		return p.measure(s)
	}

	matches := gateRegex.FindStringSubmatch(s)
	if matches == nil {
		return fmt.Errorf("%q: %w", s, ErrSyntax)
	}
	name, params, operands := matches[1], strings.TrimSpace(matches[2]), strings.TrimSpace(matches[3])
	if operands == "" {
		return fmt.Errorf("%s without operands: %w", name, ErrSyntax)
	}

	if name == "barrier" {
		if cond != nil {
			return fmt.Errorf("conditioned barrier: %w", ErrUnsupported)
		}
		var qs []int
		for _, op := range strings.Split(operands, ",") {
			idx, err := resolve(p.qregs, op)
			if err != nil {
				return err
			}
			qs = append(qs, idx...)
		}
		p.unit.Barrier(qs...)
		return nil
	}
	if name == "if" || name == "reset" || name == "measure" {
		return fmt.Errorf("%q: %w", s, ErrUnsupported)
	}

	kind, err := gates.ParseKind(name)
	if err != nil || !kind.Unitary() {
		return fmt.Errorf("gate %s: %w", name, ErrUnsupported)
	}

	var angle float64
	switch {
	case kind.Parametric():
		angles, err := ParseAngles(params)
		if err != nil {
			return err
		}
		if len(angles) != 1 {
			return fmt.Errorf("%s takes one parameter, got %d: %w", name, len(angles), ErrSyntax)
		}
		angle = angles[0]
	case params != "":
		return fmt.Errorf("%s takes no parameters: %w", name, ErrSyntax)
	}

	args, err := p.broadcast(strings.Split(operands, ","))
	if err != nil {
		return err
	}
	for _, qs := range args {
		if len(qs) != kind.Arity() {
			return fmt.Errorf("%s on %d qubits, want %d: %w", name, len(qs), kind.Arity(), circuit.ErrArity)
		}
		if kind.Parametric() {
			p.unit.Rotation(kind, angle, qs...)
		} else {
			p.unit.Gate(kind, qs...)
		}
		if cond != nil {
			p.unit.If(*cond)
		}
	}
	return nil
}

// broadcast applies the OpenQASM register rule: bare registers of equal size
// expand element-wise and single qubits repeat.
func (p *parser) broadcast(operands []string) ([][]int, error) {
	lists := make([][]int, len(operands))
	width := 1
	for i, op := range operands {
		idx, err := resolve(p.qregs, op)
		if err != nil {
			return nil, err
		}
		lists[i] = idx
		if len(idx) == 1 {
			continue
		}
		if width != 1 && width != len(idx) {
			return nil, fmt.Errorf("register size mismatch in %v: %w", operands, ErrSyntax)
		}
		width = len(idx)
	}

	out := make([][]int, width)
	for j := range out {
		qs := make([]int, len(lists))
		for i, l := range lists {
			if len(l) == 1 {
				qs[i] = l[0]
			} else {
				qs[i] = l[j]
			}
		}
		out[j] = qs
	}
	return out, nil
}

func (p *parser) measure(s string) error {
	matches := measureRegex.FindStringSubmatch(s)
	if matches == nil {
		return fmt.Errorf("%q: %w", s, ErrSyntax)
	}
	qs, err := resolve(p.qregs, matches[1])
	if err != nil {
		return err
	}
	cs, err := resolve(p.cregs, matches[2])
	if err != nil {
		return err
	}
	if len(qs) != len(cs) {
		return fmt.Errorf("measure %d qubits into %d clbits: %w", len(qs), len(cs), ErrSyntax)
	}
	for i := range qs {
		p.unit.Measure(qs[i], cs[i])
	}
	return nil
}
