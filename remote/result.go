package remote

import (
	"fmt"
	"strconv"
	"strings"

	"qbranch/state"
)

// ParseResult extracts the probability array that follows the "execution"
// key of a task_finished payload and folds it to 1<<qubits entries.
func ParseResult(msg string, qubits int) ([]float64, error) {
	key := strings.Index(msg, "execution")
	if key < 0 {
		return nil, fmt.Errorf("no execution key: %w", ErrMalformedResult)
	}
	rest := msg[key+len("execution"):]
	start := strings.IndexByte(rest, '[')
	if start < 0 {
		return nil, fmt.Errorf("no result array: %w", ErrMalformedResult)
	}
	end := strings.IndexByte(rest[start+1:], ']')
	if end < 0 {
		return nil, fmt.Errorf("unterminated result array: %w", ErrMalformedResult)
	}

	var probs []float64
	for _, tok := range strings.Split(rest[start+1:start+1+end], ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		p, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", tok, ErrMalformedResult)
		}
		probs = append(probs, p)
	}
	return Fold(probs, qubits)
}

// Fold sums contiguous groups of probs so the result has 1<<qubits entries.
// The backend reports over its full register, which may be wider than the
// task's.
func Fold(probs []float64, qubits int) ([]float64, error) {
	if qubits < 1 || qubits > state.MaxQubits {
		return nil, fmt.Errorf("qubit count %d: %w", qubits, ErrMalformedResult)
	}
	n := 1 << qubits
	if len(probs) < n || len(probs)%n != 0 {
		return nil, fmt.Errorf("%d entries for %d qubits: %w", len(probs), qubits, ErrMalformedResult)
	}
	group := len(probs) / n
	out := make([]float64, n)
	for i := range out {
		for _, p := range probs[i*group : (i+1)*group] {
			out[i] += p
		}
	}
	return out, nil
}
