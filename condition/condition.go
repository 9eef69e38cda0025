// Package condition implements classical-register predicates that guard gates.
package condition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalid is returned for a condition with no clbits, a negative clbit or
// a clbit listed twice.
var ErrInvalid = errors.New("condition: invalid")

// Relation is the comparison applied between the packed clbits and the value.
type Relation int

const (
	EQ Relation = iota
	NE
	LT
	GT
	LE
	GE
)

var relationSymbols = [...]string{EQ: "==", NE: "!=", LT: "<", GT: ">", LE: "<=", GE: ">="}

var relationNames = [...]string{EQ: "EQ", NE: "NE", LT: "LT", GT: "GT", LE: "LE", GE: "GE"}

func (r Relation) String() string {
	if r < EQ || r > GE {
		return "Relation(" + strconv.Itoa(int(r)) + ")"
	}
	return relationSymbols[r]
}

// Name returns the upper-case mnemonic, such as "EQ".
func (r Relation) Name() string {
	if r < EQ || r > GE {
		return r.String()
	}
	return relationNames[r]
}

// ParseRelation accepts a symbol ("==") or a mnemonic ("eq").
func ParseRelation(s string) (Relation, error) {
	s = strings.TrimSpace(s)
	for r := EQ; r <= GE; r++ {
		if s == relationSymbols[r] || strings.EqualFold(s, relationNames[r]) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown relation %q: %w", s, ErrInvalid)
}

func (r Relation) compare(a, b int) bool {
	switch r {
	case EQ:
		return a == b
	case NE:
		return a != b
	case LT:
		return a < b
	case GT:
		return a > b
	case LE:
		return a <= b
	case GE:
		return a >= b
	}
	return false
}

// Condition is an immutable predicate over an ordered list of clbits.
type Condition struct {
	clbits   []int
	relation Relation
	value    int
	key      string
}

// New returns a condition over clbits. Bit i of the list becomes bit i of the
// packed value. The clbits are copied. New does not validate; see IsValid.
func New(clbits []int, relation Relation, value int) Condition {
	bits := make([]int, len(clbits))
	copy(bits, clbits)
	c := Condition{clbits: bits, relation: relation, value: value}
	c.key = c.buildKey()
	return c
}

// Clbits returns a copy of the referenced clbits in packing order.
func (c Condition) Clbits() []int {
	out := make([]int, len(c.clbits))
	copy(out, c.clbits)
	return out
}

func (c Condition) Relation() Relation { return c.relation }

func (c Condition) Value() int { return c.value }

// IsValid reports whether the clbit list is non-empty, non-negative and free
// of duplicates, and the relation is known.
func (c Condition) IsValid() bool {
	if len(c.clbits) == 0 || c.relation < EQ || c.relation > GE {
		return false
	}
	seen := make(map[int]struct{}, len(c.clbits))
	for _, b := range c.clbits {
		if b < 0 {
			return false
		}
		if _, dup := seen[b]; dup {
			return false
		}
		seen[b] = struct{}{}
	}
	return true
}

// Within reports whether every clbit is below clbitNum.
func (c Condition) Within(clbitNum int) bool {
	for _, b := range c.clbits {
		if b >= clbitNum {
			return false
		}
	}
	return true
}

// Validate combines IsValid and Within into an error.
func (c Condition) Validate(clbitNum int) error {
	if !c.IsValid() {
		return fmt.Errorf("%s: %w", c, ErrInvalid)
	}
	if !c.Within(clbitNum) {
		return fmt.Errorf("%s: clbit beyond register of %d: %w", c, clbitNum, ErrInvalid)
	}
	return nil
}

// Packed returns the referenced bits of assignment as an integer. Bits
// outside the assignment read as zero.
func (c Condition) Packed(assignment []uint8) int {
	packed := 0
	for i, b := range c.clbits {
		if b >= 0 && b < len(assignment) && assignment[b] != 0 {
			packed |= 1 << i
		}
	}
	return packed
}

// Evaluate applies the relation between the packed assignment and the value.
func (c Condition) Evaluate(assignment []uint8) bool {
	return c.relation.compare(c.Packed(assignment), c.value)
}

// Key is a canonical string identifying the condition. Equal conditions have
// equal keys.
func (c Condition) Key() string {
	if c.key == "" {
		return c.buildKey()
	}
	return c.key
}

func (c Condition) buildKey() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, b := range c.clbits {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(b))
	}
	sb.WriteByte(']')
	sb.WriteString(c.relation.Name())
	sb.WriteString(strconv.Itoa(c.value))
	return sb.String()
}

// Hash is a stable 64-bit digest of the key.
func (c Condition) Hash() uint64 {
	return xxhash.Sum64String(c.Key())
}

// Equal compares clbits, relation and value.
func (c Condition) Equal(o Condition) bool {
	if c.relation != o.relation || c.value != o.value || len(c.clbits) != len(o.clbits) {
		return false
	}
	for i := range c.clbits {
		if c.clbits[i] != o.clbits[i] {
			return false
		}
	}
	return true
}

func (c Condition) String() string {
	parts := make([]string, len(c.clbits))
	for i, b := range c.clbits {
		parts[i] = "c" + strconv.Itoa(b)
	}
	return fmt.Sprintf("{%s} %s %d", strings.Join(parts, ","), c.relation, c.value)
}
