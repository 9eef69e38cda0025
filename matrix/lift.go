package matrix

import "fmt"

// SubIndex packs the bits of basis index i selected by targets into a gate
// matrix index. targets[0] becomes the most significant bit.
func SubIndex(i int, targets []int) int {
	sub := 0
	for _, t := range targets {
		sub = sub<<1 | (i>>t)&1
	}
	return sub
}

// Lift expands a 2^k x 2^k gate acting on targets into the full 2^n x 2^n
// operator. Qubit q is bit q of the basis index. For contiguous targets
// [n-1, n-2, ...] this equals g ⊗ I, and in general it is the tensor of g with
// identities on the untouched qubits after reordering.
func Lift(g *Matrix, targets []int, n int) (*Matrix, error) {
	k := len(targets)
	if g.rows != 1<<k || g.cols != 1<<k {
		return nil, fmt.Errorf("lift %dx%d onto %d qubits: %w", g.rows, g.cols, k, ErrDimensionMismatch)
	}
	mask := 0
	for _, t := range targets {
		if t < 0 || t >= n {
			return nil, fmt.Errorf("lift target %d of %d qubits: %w", t, n, ErrIndexOutOfBounds)
		}
		mask |= 1 << t
	}
	dim := 1 << n
	out, err := New(dim, dim)
	if err != nil {
		return nil, err
	}
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			if i&^mask != j&^mask {
				continue
			}
			out.data[i*dim+j] = g.at(SubIndex(i, targets), SubIndex(j, targets))
		}
	}
	return out, nil
}
