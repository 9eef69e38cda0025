// Package gates is the catalogue of gate kinds and their unitary matrices.
//
// Multi-qubit matrices are written with the first target qubit as the most
// significant index bit, so CX on targets [control, target] is the textbook
// controlled-NOT.
package gates

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"qbranch/matrix"
)

var (
	ErrUnknownGate = errors.New("gates: unknown gate")
	ErrNoMatrix    = errors.New("gates: gate has no matrix")
)

// Kind identifies a gate in the catalogue.
type Kind int

const (
	Invalid Kind = iota
	I
	H
	X
	Y
	Z
	Rx
	Ry
	Rz
	P
	S
	Sd
	T
	Td
	CX
	CY
	CZ
	Swap
	CCX
	Measure
	Barrier
)

var kindNames = [...]string{
	Invalid: "INVALID",
	I:       "I",
	H:       "H",
	X:       "X",
	Y:       "Y",
	Z:       "Z",
	Rx:      "Rx",
	Ry:      "Ry",
	Rz:      "Rz",
	P:       "P",
	S:       "S",
	Sd:      "Sd",
	T:       "T",
	Td:      "Td",
	CX:      "CX",
	CY:      "CY",
	CZ:      "CZ",
	Swap:    "SWAP",
	CCX:     "CCX",
	Measure: "MEASURE",
	Barrier: "BARRIER",
}

// aliases maps lower-cased spellings accepted by ParseKind.
var aliases = map[string]Kind{
	"id":      I,
	"sdg":     Sd,
	"tdg":     Td,
	"u1":      P,
	"phase":   P,
	"cnot":    CX,
	"ycon":    CY,
	"zcon":    CZ,
	"toffoli": CCX,
}

// Kinds lists every valid kind in catalogue order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := I; k <= Barrier; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is a catalogue kind.
func (k Kind) Valid() bool {
	return k > Invalid && k <= Barrier
}

// Arity is the number of qubits the kind acts on. Barrier spans any number
// of qubits and reports 0.
func (k Kind) Arity() int {
	switch k {
	case CX, CY, CZ, Swap:
		return 2
	case CCX:
		return 3
	case Barrier, Invalid:
		return 0
	default:
		if !k.Valid() {
			return 0
		}
		return 1
	}
}

// Parametric reports whether the kind takes an angle.
func (k Kind) Parametric() bool {
	switch k {
	case Rx, Ry, Rz, P:
		return true
	}
	return false
}

// Unitary reports whether the kind is a plain gate with a matrix.
func (k Kind) Unitary() bool {
	return k.Valid() && k != Measure && k != Barrier
}

// ParseKind resolves a gate name case-insensitively.
func ParseKind(name string) (Kind, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if k, ok := aliases[lower]; ok {
		return k, nil
	}
	for k := I; k <= Barrier; k++ {
		if strings.ToLower(kindNames[k]) == lower {
			return k, nil
		}
	}
	return Invalid, fmt.Errorf("%q: %w", name, ErrUnknownGate)
}

// RX is the rotation about the X axis by theta radians.
func RX(theta float64) *matrix.Matrix {
	c := complex(math.Cos(theta/2), 0)
	js := complex(0, -math.Sin(theta/2))
	return matrix.MustFromRows([][]complex128{{c, js}, {js, c}})
}

// RY is the rotation about the Y axis by theta radians.
func RY(theta float64) *matrix.Matrix {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return matrix.MustFromRows([][]complex128{{c, -s}, {s, c}})
}

// RZ is the rotation about the Z axis by theta radians.
func RZ(theta float64) *matrix.Matrix {
	phase := cmplx.Exp(complex(0, theta/2))
	return matrix.MustFromRows([][]complex128{{cmplx.Conj(phase), 0}, {0, phase}})
}

// Phase is diag(1, e^{i theta}).
func Phase(theta float64) *matrix.Matrix {
	return matrix.MustFromRows([][]complex128{{1, 0}, {0, cmplx.Exp(complex(0, theta))}})
}

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	fixed = map[Kind]*matrix.Matrix{
		I:  matrix.Identity(2),
		H:  matrix.MustFromRows([][]complex128{{invSqrt2, invSqrt2}, {invSqrt2, -invSqrt2}}),
		X:  matrix.MustFromRows([][]complex128{{0, 1}, {1, 0}}),
		Y:  matrix.MustFromRows([][]complex128{{0, -1i}, {1i, 0}}),
		Z:  matrix.MustFromRows([][]complex128{{1, 0}, {0, -1}}),
		S:  matrix.MustFromRows([][]complex128{{1, 0}, {0, 1i}}),
		Sd: matrix.MustFromRows([][]complex128{{1, 0}, {0, -1i}}),
		T:  matrix.MustFromRows([][]complex128{{1, 0}, {0, cmplx.Exp(complex(0, math.Pi/4))}}),
		Td: matrix.MustFromRows([][]complex128{{1, 0}, {0, cmplx.Exp(complex(0, -math.Pi/4))}}),
		CX: matrix.MustFromRows([][]complex128{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0, 0, 0, 1},
			{0, 0, 1, 0},
		}),
		CY: matrix.MustFromRows([][]complex128{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0, 0, 0, -1i},
			{0, 0, 1i, 0},
		}),
		CZ: matrix.MustFromRows([][]complex128{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0, 0, 1, 0},
			{0, 0, 0, -1},
		}),
		Swap: matrix.MustFromRows([][]complex128{
			{1, 0, 0, 0},
			{0, 0, 1, 0},
			{0, 1, 0, 0},
			{0, 0, 0, 1},
		}),
		CCX: toffoli(),
	}
)

func toffoli() *matrix.Matrix {
	m := matrix.Identity(8)
	_ = m.Set(6, 6, 0)
	_ = m.Set(7, 7, 0)
	_ = m.Set(6, 7, 1)
	_ = m.Set(7, 6, 1)
	return m
}

// Matches reports whether m is the catalogue matrix of the fixed gate kind.
// It is false for parametric kinds.
func Matches(kind Kind, m *matrix.Matrix) bool {
	f, ok := fixed[kind]
	return ok && f.Equal(m)
}

// Matrix returns the unitary for kind. The angle is ignored for fixed gates.
// The returned matrix is a copy and may be modified by the caller.
func Matrix(kind Kind, angle float64) (*matrix.Matrix, error) {
	switch kind {
	case Rx:
		return RX(angle), nil
	case Ry:
		return RY(angle), nil
	case Rz:
		return RZ(angle), nil
	case P:
		return Phase(angle), nil
	case Measure, Barrier:
		return nil, fmt.Errorf("%s: %w", kind, ErrNoMatrix)
	}
	m, ok := fixed[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrUnknownGate)
	}
	return m.Clone(), nil
}
