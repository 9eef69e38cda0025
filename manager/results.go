package manager

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"sort"

	"qbranch/state"
)

// Branch is a snapshot of one live branch.
type Branch struct {
	Weight     float64
	Clbits     []uint8
	Amplitudes []complex128
}

func (m *Manager) done() error {
	if m.phase != Done {
		return fmt.Errorf("phase %s: %w", m.phase, ErrNotExecuted)
	}
	return nil
}

// Branches returns every live branch in ensemble order.
func (m *Manager) Branches() ([]Branch, error) {
	if err := m.done(); err != nil {
		return nil, err
	}
	out := make([]Branch, len(m.states))
	for i, s := range m.states {
		out[i] = Branch{Weight: s.Weight(), Clbits: s.Clbits(), Amplitudes: s.Amplitudes()}
	}
	return out, nil
}

// Probabilities returns sum_b w_b |a_b,i|^2 for every basis index i.
func (m *Manager) Probabilities() ([]float64, error) {
	if err := m.done(); err != nil {
		return nil, err
	}
	out := make([]float64, 1<<m.qubits)
	for _, s := range m.states {
		w := s.Weight()
		for i := range out {
			a := s.Amplitude(i)
			out[i] += w * real(a*cmplx.Conj(a))
		}
	}
	return out, nil
}

// Marginals returns the weighted per-qubit distribution over all branches.
func (m *Manager) Marginals() ([]state.QubitProbability, error) {
	if err := m.done(); err != nil {
		return nil, err
	}
	out := make([]state.QubitProbability, m.qubits)
	for _, s := range m.states {
		w := s.Weight()
		for q, p := range s.QubitProbabilities() {
			out[q].Prob0 += w * p.Prob0
			out[q].Prob1 += w * p.Prob1
		}
	}
	return out, nil
}

// Support lists, per branch in ensemble order, the basis states whose
// unweighted probability exceeds threshold.
func (m *Manager) Support(threshold float64) ([][]state.BasisAmplitude, error) {
	if err := m.done(); err != nil {
		return nil, err
	}
	out := make([][]state.BasisAmplitude, len(m.states))
	for i, s := range m.states {
		out[i] = s.Support(threshold)
	}
	return out, nil
}

// StateVector returns the single branch's amplitudes when one branch is
// live; otherwise the weighted sum sum_b sqrt(w_b) a_b. Branches split by a
// measurement have disjoint support on the measured qubit, so the squared
// magnitudes of this vector match Probabilities until a later gate mixes
// amplitude across that qubit.
func (m *Manager) StateVector() ([]complex128, error) {
	if err := m.done(); err != nil {
		return nil, err
	}
	if len(m.states) == 1 {
		return m.states[0].Amplitudes(), nil
	}
	out := make([]complex128, 1<<m.qubits)
	for _, s := range m.states {
		w := complex(math.Sqrt(s.Weight()), 0)
		for i := range out {
			out[i] += w * s.Amplitude(i)
		}
	}
	return out, nil
}

// Float64Source is satisfied by *rand.Rand.
type Float64Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Counts samples shots basis states from Probabilities. Keys are bitstrings
// with qubit n-1 first. A nil rng uses the process-wide generator.
func (m *Manager) Counts(shots int, rng Float64Source) (map[string]int, error) {
	probs, err := m.Probabilities()
	if err != nil {
		return nil, err
	}
	if shots < 0 {
		return nil, fmt.Errorf("negative shot count %d", shots)
	}
	if rng == nil {
		rng = globalSource{}
	}

	cdf := make([]float64, len(probs))
	acc := 0.0
	for i, p := range probs {
		acc += p
		cdf[i] = acc
	}

	counts := make(map[string]int)
	for n := 0; n < shots; n++ {
		r := rng.Float64() * acc
		i := sort.SearchFloat64s(cdf, r)
		// skip zero-width buckets hit exactly on their edge
		for i < len(cdf)-1 && probs[i] == 0 {
			i++
		}
		if i >= len(cdf) {
			i = len(cdf) - 1
		}
		counts[Bitstring(i, m.qubits)]++
	}
	return counts, nil
}

// Bitstring formats basis index i over n qubits, qubit n-1 first.
func Bitstring(i, n int) string {
	return fmt.Sprintf("%0*b", n, i)
}
