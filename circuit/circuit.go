// Package circuit describes programs as ordered units of gate operations.
package circuit

import (
	"errors"
	"fmt"
	"strings"

	"qbranch/condition"
	"qbranch/gates"
	"qbranch/matrix"
	"qbranch/state"
)

var (
	// ErrArity is returned when a gate has the wrong number of qubits.
	ErrArity = errors.New("circuit: wrong number of qubits for gate")
	// ErrInvalidGate is returned for unknown kinds and for conditions attached
	// to a measurement or barrier.
	ErrInvalidGate = errors.New("circuit: invalid gate")
	// ErrNotUnitary is returned by Execute for units that measure or branch on
	// classical bits.
	ErrNotUnitary = errors.New("circuit: unit is not purely unitary")
)

// GateUnit is one scheduled operation. Clbit is only meaningful for
// measurements and is -1 otherwise. Cond, when set, guards the gate.
type GateUnit struct {
	Kind     gates.Kind
	Qubits   []int
	Angle    float64
	HasAngle bool
	Clbit    int
	Cond     *condition.Condition
}

func (g GateUnit) IsMeasure() bool { return g.Kind == gates.Measure }

func (g GateUnit) IsBarrier() bool { return g.Kind == gates.Barrier }

func (g GateUnit) Conditioned() bool { return g.Cond != nil }

// Matrix returns the gate's unitary.
func (g GateUnit) Matrix() (*matrix.Matrix, error) {
	return gates.Matrix(g.Kind, g.Angle)
}

// Equal compares every field, including the condition.
func (g GateUnit) Equal(o GateUnit) bool {
	if g.Kind != o.Kind || g.HasAngle != o.HasAngle || g.Clbit != o.Clbit {
		return false
	}
	if g.HasAngle && g.Angle != o.Angle {
		return false
	}
	if len(g.Qubits) != len(o.Qubits) {
		return false
	}
	for i := range g.Qubits {
		if g.Qubits[i] != o.Qubits[i] {
			return false
		}
	}
	switch {
	case g.Cond == nil && o.Cond == nil:
		return true
	case g.Cond == nil || o.Cond == nil:
		return false
	}
	return g.Cond.Equal(*o.Cond)
}

func (g GateUnit) String() string {
	var sb strings.Builder
	if g.Cond != nil {
		fmt.Fprintf(&sb, "if(%s) ", g.Cond)
	}
	sb.WriteString(strings.ToLower(g.Kind.String()))
	if g.HasAngle {
		fmt.Fprintf(&sb, "(%g)", g.Angle)
	}
	for i, q := range g.Qubits {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "q[%d]", q)
	}
	if g.IsMeasure() {
		fmt.Fprintf(&sb, " -> c[%d]", g.Clbit)
	}
	return sb.String()
}

func (g GateUnit) validate(qubits, clbits int) error {
	if !g.Kind.Valid() {
		return fmt.Errorf("%s: %w", g.Kind, ErrInvalidGate)
	}
	if g.IsBarrier() {
		if len(g.Qubits) == 0 {
			return fmt.Errorf("barrier with no qubits: %w", ErrArity)
		}
	} else if len(g.Qubits) != g.Kind.Arity() {
		return fmt.Errorf("%s on %d qubits, want %d: %w", g.Kind, len(g.Qubits), g.Kind.Arity(), ErrArity)
	}
	for i, q := range g.Qubits {
		if q < 0 || q >= qubits {
			return fmt.Errorf("%s qubit %d of %d: %w", g.Kind, q, qubits, state.ErrQubitOutOfRange)
		}
		for _, p := range g.Qubits[:i] {
			if p == q {
				return fmt.Errorf("%s on %v: %w", g.Kind, g.Qubits, state.ErrDuplicateQubit)
			}
		}
	}
	if g.IsMeasure() && (g.Clbit < 0 || g.Clbit >= clbits) {
		return fmt.Errorf("measure into clbit %d of %d: %w", g.Clbit, clbits, state.ErrClbitOutOfRange)
	}
	if g.Cond != nil {
		if g.IsMeasure() || g.IsBarrier() {
			return fmt.Errorf("conditioned %s: %w", g.Kind, ErrInvalidGate)
		}
		if err := g.Cond.Validate(clbits); err != nil {
			return err
		}
	}
	return nil
}

// Unit is an ordered run of gates built against QubitNum qubits.
type Unit struct {
	QubitNum   int
	MeasureNum int
	Gates      []GateUnit
}

// NewUnit starts an empty unit over qubits.
func NewUnit(qubits int) *Unit {
	return &Unit{QubitNum: qubits}
}

func (u *Unit) add(g GateUnit) *Unit {
	u.Gates = append(u.Gates, g)
	if g.IsMeasure() {
		u.MeasureNum++
	}
	return u
}

// Gate appends a fixed gate on qs.
func (u *Unit) Gate(kind gates.Kind, qs ...int) *Unit {
	return u.add(GateUnit{Kind: kind, Qubits: append([]int(nil), qs...), Clbit: -1})
}

// Rotation appends a parametric gate with angle in radians.
func (u *Unit) Rotation(kind gates.Kind, angle float64, qs ...int) *Unit {
	return u.add(GateUnit{Kind: kind, Qubits: append([]int(nil), qs...), Angle: angle, HasAngle: true, Clbit: -1})
}

// Measure appends a measurement of qubit into clbit.
func (u *Unit) Measure(qubit, clbit int) *Unit {
	return u.add(GateUnit{Kind: gates.Measure, Qubits: []int{qubit}, Clbit: clbit})
}

// Barrier appends a barrier over qs.
func (u *Unit) Barrier(qs ...int) *Unit {
	return u.add(GateUnit{Kind: gates.Barrier, Qubits: append([]int(nil), qs...), Clbit: -1})
}

// If guards the most recently added gate with cond. It is a no-op on an
// empty unit.
func (u *Unit) If(cond condition.Condition) *Unit {
	if len(u.Gates) == 0 {
		return u
	}
	c := cond
	u.Gates[len(u.Gates)-1].Cond = &c
	return u
}

// Unitary reports whether the unit has neither measurements nor conditions.
func (u *Unit) Unitary() bool {
	for _, g := range u.Gates {
		if g.IsMeasure() || g.Conditioned() {
			return false
		}
	}
	return true
}

func (u *Unit) Equal(o *Unit) bool {
	if u.QubitNum != o.QubitNum || len(u.Gates) != len(o.Gates) {
		return false
	}
	for i := range u.Gates {
		if !u.Gates[i].Equal(o.Gates[i]) {
			return false
		}
	}
	return true
}

// Execute applies the unit's gates, in order, to each state.
func (u *Unit) Execute(states []*state.QuantumState) error {
	if !u.Unitary() {
		return ErrNotUnitary
	}
	for i, g := range u.Gates {
		if g.IsBarrier() {
			continue
		}
		m, err := g.Matrix()
		if err != nil {
			return fmt.Errorf("gate %d: %w", i, err)
		}
		for _, s := range states {
			if err := s.ApplyGate(g.Kind, g.Qubits, m); err != nil {
				return fmt.Errorf("gate %d: %w", i, err)
			}
		}
	}
	return nil
}

// Circuit is the full program.
type Circuit struct {
	QubitNum int
	ClbitNum int
	Units    []Unit
}

// New returns an empty circuit.
func New(qubits, clbits int) *Circuit {
	return &Circuit{QubitNum: qubits, ClbitNum: clbits}
}

// Add appends a copy of u.
func (c *Circuit) Add(u *Unit) *Circuit {
	cp := *u
	cp.Gates = append([]GateUnit(nil), u.Gates...)
	c.Units = append(c.Units, cp)
	return c
}

// GateCount is the number of gate units across all units.
func (c *Circuit) GateCount() int {
	n := 0
	for _, u := range c.Units {
		n += len(u.Gates)
	}
	return n
}

func (c *Circuit) Equal(o *Circuit) bool {
	if c.QubitNum != o.QubitNum || len(c.Units) != len(o.Units) {
		return false
	}
	for i := range c.Units {
		if !c.Units[i].Equal(&o.Units[i]) {
			return false
		}
	}
	return true
}

// Validate checks register sizes, gate arity, index ranges and conditions.
func (c *Circuit) Validate() error {
	if c.QubitNum < 1 || c.QubitNum > state.MaxQubits {
		return fmt.Errorf("circuit with %d qubits: %w", c.QubitNum, state.ErrQubitOutOfRange)
	}
	if c.ClbitNum < 0 {
		return fmt.Errorf("circuit with %d clbits: %w", c.ClbitNum, state.ErrClbitOutOfRange)
	}
	for ui, u := range c.Units {
		if u.QubitNum > c.QubitNum {
			return fmt.Errorf("unit %d built for %d qubits: %w", ui, u.QubitNum, state.ErrQubitOutOfRange)
		}
		qubits := u.QubitNum
		if qubits == 0 {
			qubits = c.QubitNum
		}
		for gi, g := range u.Gates {
			if err := g.validate(qubits, c.ClbitNum); err != nil {
				return fmt.Errorf("unit %d, gate %d: %w", ui, gi, err)
			}
		}
	}
	return nil
}

// Execute runs every unit against states. It fails with ErrNotUnitary when
// any unit measures or is conditioned.
func (c *Circuit) Execute(states []*state.QuantumState) error {
	for i := range c.Units {
		if err := c.Units[i].Execute(states); err != nil {
			return fmt.Errorf("unit %d: %w", i, err)
		}
	}
	return nil
}
