// Package state holds one branch of the simulation: a dense amplitude vector
// with its own classical-bit assignment.
//
// Qubit q is bit q of the basis index, so amplitude i of a 3-qubit state is
// the basis state |q2 q1 q0> with q0 = i&1.
package state

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// MaxQubits bounds New so that 1<<qubits stays addressable.
const MaxQubits = 30

// DefaultEpsilon is the probability below which a measurement outcome is
// treated as impossible.
const DefaultEpsilon = 1e-12

// MaxEpsilon bounds a usable epsilon from above. At 0.5 or more both outcomes
// of a balanced qubit would fall below it.
const MaxEpsilon = 0.5

var (
	ErrQubitOutOfRange = errors.New("state: qubit out of range")
	ErrClbitOutOfRange = errors.New("state: clbit out of range")
	ErrDuplicateQubit  = errors.New("state: duplicate target qubit")
	ErrZeroNorm        = errors.New("state: zero norm")
)

// QuantumState is one branch. Amplitudes are kept at unit norm; Weight is the
// probability of the measurement history that produced this branch.
type QuantumState struct {
	qubits int
	amps   []complex128
	clbits []uint8
	weight float64
}

// New returns |0...0> with all clbits zero and weight 1.
func New(qubits, clbits int) (*QuantumState, error) {
	if qubits < 1 || qubits > MaxQubits {
		return nil, fmt.Errorf("%d qubits (want 1..%d): %w", qubits, MaxQubits, ErrQubitOutOfRange)
	}
	if clbits < 0 {
		return nil, fmt.Errorf("%d clbits: %w", clbits, ErrClbitOutOfRange)
	}
	amps := make([]complex128, 1<<qubits)
	amps[0] = 1
	return &QuantumState{
		qubits: qubits,
		amps:   amps,
		clbits: make([]uint8, clbits),
		weight: 1,
	}, nil
}

func (s *QuantumState) Clone() *QuantumState {
	amps := make([]complex128, len(s.amps))
	copy(amps, s.amps)
	bits := make([]uint8, len(s.clbits))
	copy(bits, s.clbits)
	return &QuantumState{qubits: s.qubits, amps: amps, clbits: bits, weight: s.weight}
}

func (s *QuantumState) Qubits() int { return s.qubits }

func (s *QuantumState) ClbitNum() int { return len(s.clbits) }

func (s *QuantumState) Weight() float64 { return s.weight }

// Amplitudes returns a copy of the amplitude vector.
func (s *QuantumState) Amplitudes() []complex128 {
	out := make([]complex128, len(s.amps))
	copy(out, s.amps)
	return out
}

// Amplitude returns amplitude i, or 0 when i is out of range.
func (s *QuantumState) Amplitude(i int) complex128 {
	if i < 0 || i >= len(s.amps) {
		return 0
	}
	return s.amps[i]
}

// Clbits returns a copy of the classical-bit assignment.
func (s *QuantumState) Clbits() []uint8 {
	out := make([]uint8, len(s.clbits))
	copy(out, s.clbits)
	return out
}

// Clbit returns the value of one classical bit.
func (s *QuantumState) Clbit(i int) (uint8, error) {
	if i < 0 || i >= len(s.clbits) {
		return 0, fmt.Errorf("clbit %d of %d: %w", i, len(s.clbits), ErrClbitOutOfRange)
	}
	return s.clbits[i], nil
}

// Norm is the sum of squared magnitudes.
func (s *QuantumState) Norm() float64 {
	sum := 0.0
	for _, a := range s.amps {
		sum += real(a * cmplx.Conj(a))
	}
	return sum
}

// Probabilities returns |a_i|^2 for every basis index, not scaled by weight.
func (s *QuantumState) Probabilities() []float64 {
	out := make([]float64, len(s.amps))
	for i, a := range s.amps {
		out[i] = real(a * cmplx.Conj(a))
	}
	return out
}

type QubitProbability struct {
	Prob0 float64
	Prob1 float64
}

// QubitProbabilities returns the marginal distribution of each qubit.
func (s *QuantumState) QubitProbabilities() []QubitProbability {
	probs := make([]QubitProbability, s.qubits)
	for i, a := range s.amps {
		prob := real(a * cmplx.Conj(a))
		for q := 0; q < s.qubits; q++ {
			if i&(1<<q) != 0 {
				probs[q].Prob1 += prob
			} else {
				probs[q].Prob0 += prob
			}
		}
	}
	return probs
}

// BasisAmplitude is one non-negligible entry of the state vector.
type BasisAmplitude struct {
	Index     int
	Amplitude complex128
	Prob      float64
	Phase     float64
	Hamming   int
}

// Support lists basis states whose probability exceeds threshold, in index
// order.
func (s *QuantumState) Support(threshold float64) []BasisAmplitude {
	out := make([]BasisAmplitude, 0)
	for i, a := range s.amps {
		prob := real(a * cmplx.Conj(a))
		if prob <= threshold {
			continue
		}
		out = append(out, BasisAmplitude{
			Index:     i,
			Amplitude: a,
			Prob:      prob,
			Phase:     cmplx.Phase(a),
			Hamming:   bitsCount(i),
		})
	}
	return out
}

func bitsCount(x int) int {
	count := 0
	for x > 0 {
		count += x & 1
		x >>= 1
	}
	return count
}

func (s *QuantumState) checkQubit(q int) error {
	if q < 0 || q >= s.qubits {
		return fmt.Errorf("qubit %d of %d: %w", q, s.qubits, ErrQubitOutOfRange)
	}
	return nil
}

func (s *QuantumState) checkClbit(c int) error {
	if c < 0 || c >= len(s.clbits) {
		return fmt.Errorf("clbit %d of %d: %w", c, len(s.clbits), ErrClbitOutOfRange)
	}
	return nil
}

func (s *QuantumState) String() string {
	return fmt.Sprintf("state(%d qubits, weight %.6g, norm %.6g)", s.qubits, s.weight, math.Sqrt(s.Norm()))
}
