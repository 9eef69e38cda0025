package state

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Outcome is one possible result of a measurement.
type Outcome struct {
	Value       uint8
	Probability float64
	State       *QuantumState
}

// Measure measures qubit into clbit, omitting outcomes below DefaultEpsilon.
func (s *QuantumState) Measure(qubit, clbit int) ([]Outcome, error) {
	return s.MeasureTol(qubit, clbit, DefaultEpsilon)
}

// MeasureTol measures qubit into clbit. Each returned branch is collapsed,
// renormalised, has clbit set to its value and its weight scaled by the
// outcome probability. Outcomes with probability below eps are omitted,
// except that at least the more probable outcome is always returned.
//
// The receiver is consumed: it becomes the State of the first outcome, and a
// copy is made only when both outcomes survive.
func (s *QuantumState) MeasureTol(qubit, clbit int, eps float64) ([]Outcome, error) {
	if err := s.checkQubit(qubit); err != nil {
		return nil, err
	}
	if err := s.checkClbit(clbit); err != nil {
		return nil, err
	}

	bit := 1 << qubit
	var mass [2]float64
	for i, a := range s.amps {
		p := real(a * cmplx.Conj(a))
		if i&bit == 0 {
			mass[0] += p
		} else {
			mass[1] += p
		}
	}
	total := mass[0] + mass[1]
	if total == 0 {
		return nil, fmt.Errorf("measure qubit %d: %w", qubit, ErrZeroNorm)
	}

	outcomes := make([]Outcome, 0, 2)
	for v := uint8(0); v < 2; v++ {
		if p := mass[v] / total; p >= eps {
			outcomes = append(outcomes, Outcome{Value: v, Probability: p})
		}
	}
	// the more probable outcome always survives
	if len(outcomes) == 0 {
		v := uint8(0)
		if mass[1] > mass[0] {
			v = 1
		}
		outcomes = append(outcomes, Outcome{Value: v, Probability: mass[v] / total})
	}

	switch len(outcomes) {
	case 2:
		other := s.Clone()
		other.collapse(bit, clbit, 1, mass[1], outcomes[1].Probability)
		outcomes[1].State = other
		fallthrough
	case 1:
		o := &outcomes[0]
		s.collapse(bit, clbit, o.Value, mass[o.Value], o.Probability)
		o.State = s
	}
	return outcomes, nil
}

// collapse zeroes amplitudes outside the outcome subspace and rescales the
// rest by 1/sqrt(mass).
func (s *QuantumState) collapse(bit, clbit int, value uint8, mass, prob float64) {
	scale := complex(1/math.Sqrt(mass), 0)
	for i := range s.amps {
		set := i&bit != 0
		if set == (value == 1) {
			s.amps[i] *= scale
		} else {
			s.amps[i] = 0
		}
	}
	s.clbits[clbit] = value
	s.weight *= prob
}
