package state

import (
	"fmt"
	"math"
	"math/cmplx"

	"qbranch/gates"
	"qbranch/matrix"
)

// ApplyGate applies m to the subspace spanned by targets. targets[0] is the
// most significant bit of m's row index. The result equals
// matrix.Lift(m, targets, Qubits()) times the amplitude vector.
//
// For catalogue kinds without an angle a specialised kernel is used when m is
// that kind's catalogue matrix; any other m goes through the general kernel.
func (s *QuantumState) ApplyGate(kind gates.Kind, targets []int, m *matrix.Matrix) error {
	if len(targets) == 0 {
		return fmt.Errorf("%s with no targets: %w", kind, ErrQubitOutOfRange)
	}
	for i, t := range targets {
		if err := s.checkQubit(t); err != nil {
			return err
		}
		for _, u := range targets[:i] {
			if u == t {
				return fmt.Errorf("%s on %v: %w", kind, targets, ErrDuplicateQubit)
			}
		}
	}
	dim := 1 << len(targets)
	if m == nil || m.Rows() != dim || m.Cols() != dim {
		return fmt.Errorf("%s on %d qubits: %w", kind, len(targets), matrix.ErrDimensionMismatch)
	}

	if kind.Arity() == len(targets) && gates.Matches(kind, m) && s.applyKnown(kind, targets) {
		return nil
	}
	if len(targets) == 1 {
		s.apply1(targets[0], m)
		return nil
	}
	s.applyN(targets, m)
	return nil
}

// applyKnown runs a dedicated kernel and reports whether kind had one.
func (s *QuantumState) applyKnown(kind gates.Kind, t []int) bool {
	switch kind {
	case gates.I:
	case gates.X:
		s.applyX(t[0])
	case gates.Y:
		s.applyY(t[0])
	case gates.Z:
		s.applyPhase(t[0], -1)
	case gates.S:
		s.applyPhase(t[0], 1i)
	case gates.Sd:
		s.applyPhase(t[0], -1i)
	case gates.T:
		s.applyPhase(t[0], cmplx.Exp(complex(0, math.Pi/4)))
	case gates.Td:
		s.applyPhase(t[0], cmplx.Exp(complex(0, -math.Pi/4)))
	case gates.CX:
		s.applyCX(t[0], t[1])
	case gates.CZ:
		s.applyCZ(t[0], t[1])
	case gates.Swap:
		s.applySwap(t[0], t[1])
	default:
		return false
	}
	return true
}

// apply1 is the pair-update kernel for any 2x2 matrix.
func (s *QuantumState) apply1(q int, m *matrix.Matrix) {
	r0, r1 := m.Row(0), m.Row(1)
	bit := 1 << q
	for i := range s.amps {
		if i&bit == 0 {
			j := i | bit
			a0, a1 := s.amps[i], s.amps[j]
			s.amps[i] = r0[0]*a0 + r0[1]*a1
			s.amps[j] = r1[0]*a0 + r1[1]*a1
		}
	}
}

// applyN gathers each 2^k-dimensional block of the target subspace,
// multiplies it by m and scatters it back.
func (s *QuantumState) applyN(targets []int, m *matrix.Matrix) {
	k := len(targets)
	dim := 1 << k
	offsets := make([]int, dim)
	for sub := range offsets {
		off := 0
		for j, t := range targets {
			if sub>>(k-1-j)&1 == 1 {
				off |= 1 << t
			}
		}
		offsets[sub] = off
	}
	mask := offsets[dim-1]

	rows := make([][]complex128, dim)
	for r := range rows {
		rows[r] = m.Row(r)
	}
	in := make([]complex128, dim)
	for base := range s.amps {
		if base&mask != 0 {
			continue
		}
		for sub, off := range offsets {
			in[sub] = s.amps[base|off]
		}
		for r, row := range rows {
			var sum complex128
			for c, v := range row {
				if v != 0 {
					sum += v * in[c]
				}
			}
			s.amps[base|offsets[r]] = sum
		}
	}
}

func (s *QuantumState) applyX(q int) {
	bit := 1 << q
	for i := range s.amps {
		if i&bit == 0 {
			j := i | bit
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

func (s *QuantumState) applyY(q int) {
	bit := 1 << q
	for i := range s.amps {
		if i&bit == 0 {
			j := i | bit
			s.amps[i], s.amps[j] = -1i*s.amps[j], 1i*s.amps[i]
		}
	}
}

// applyPhase multiplies the |1> component of q by factor.
func (s *QuantumState) applyPhase(q int, factor complex128) {
	bit := 1 << q
	for i := range s.amps {
		if i&bit != 0 {
			s.amps[i] *= factor
		}
	}
}

func (s *QuantumState) applyCX(control, target int) {
	cBit := 1 << control
	tBit := 1 << target
	for i := range s.amps {
		if i&cBit != 0 && i&tBit == 0 {
			j := i | tBit
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

func (s *QuantumState) applyCZ(control, target int) {
	cBit := 1 << control
	tBit := 1 << target
	for i := range s.amps {
		if i&cBit != 0 && i&tBit != 0 {
			s.amps[i] *= -1
		}
	}
}

func (s *QuantumState) applySwap(q1, q2 int) {
	bit1 := 1 << q1
	bit2 := 1 << q2
	for i := range s.amps {
		if i&bit1 != 0 && i&bit2 == 0 {
			j := (i &^ bit1) | bit2
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}
