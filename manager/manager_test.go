package manager

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"qbranch/circuit"
	"qbranch/condition"
	"qbranch/gates"
	"qbranch/state"
)

const tol = 1e-9

func eq(clbits []int, value int) condition.Condition {
	return condition.New(clbits, condition.EQ, value)
}

func shouldMatchProbabilities(got, want []float64) {
	So(len(got), ShouldEqual, len(want))
	for i := range want {
		So(got[i], ShouldAlmostEqual, want[i], tol)
	}
}

func TestScenarios(t *testing.T) {
	Convey("Given a single qubit rotated by 180 degrees about X", t, func() {
		c := circuit.New(1, 1).Add(circuit.NewUnit(1).Rotation(gates.Rx, math.Pi, 0).Measure(0, 0))
		m := New()

		Convey("Measuring it yields |1> with certainty", func() {
			So(m.Execute(c), ShouldBeNil)
			probs, err := m.Probabilities()
			So(err, ShouldBeNil)
			shouldMatchProbabilities(probs, []float64{0, 1})

			branches, _ := m.Branches()
			So(len(branches), ShouldEqual, 1)
			So(branches[0].Clbits[0], ShouldEqual, uint8(1))
		})
	})

	Convey("Given two qubits measured with no gates", t, func() {
		c := circuit.New(2, 2).Add(circuit.NewUnit(2).Measure(0, 0).Measure(1, 1))
		m := New()

		Convey("The ground state is observed", func() {
			So(m.Execute(c), ShouldBeNil)
			probs, _ := m.Probabilities()
			shouldMatchProbabilities(probs, []float64{1, 0, 0, 0})
			So(m.Stats().PeakBranches, ShouldEqual, 1)
		})
	})

	Convey("Given a conditioned gate after a deterministic measurement", t, func() {
		cond := eq([]int{0}, 1)
		c := circuit.New(3, 1).Add(circuit.NewUnit(3).
			Gate(gates.X, 0).
			Measure(0, 0).
			Gate(gates.X, 1).If(cond).
			Gate(gates.X, 2).If(cond))
		m := New()

		Convey("Both guarded gates execute, the first missing the cache and the second hitting it", func() {
			So(m.Execute(c), ShouldBeNil)
			probs, _ := m.Probabilities()
			want := make([]float64, 8)
			want[7] = 1
			shouldMatchProbabilities(probs, want)

			st := m.Stats()
			So(st.Misses, ShouldEqual, 1)
			So(st.Hits, ShouldEqual, 1)
		})

		Convey("A false condition leaves the branch untouched", func() {
			c := circuit.New(2, 1).Add(circuit.NewUnit(2).
				Measure(0, 0).
				Gate(gates.X, 1).If(cond))
			So(m.Execute(c), ShouldBeNil)
			probs, _ := m.Probabilities()
			shouldMatchProbabilities(probs, []float64{1, 0, 0, 0})
		})
	})
}

func TestBranching(t *testing.T) {
	Convey("Given a qubit in equal superposition", t, func() {
		m := New()
		c := circuit.New(1, 1).Add(circuit.NewUnit(1).Gate(gates.H, 0).Measure(0, 0))
		So(m.Execute(c), ShouldBeNil)

		Convey("Measurement splits the ensemble into weighted branches", func() {
			branches, err := m.Branches()
			So(err, ShouldBeNil)
			So(len(branches), ShouldEqual, 2)
			So(branches[0].Weight, ShouldAlmostEqual, 0.5, tol)
			So(branches[1].Weight, ShouldAlmostEqual, 0.5, tol)
			So(branches[0].Clbits[0], ShouldEqual, uint8(0))
			So(branches[1].Clbits[0], ShouldEqual, uint8(1))
			So(m.Stats().Splits, ShouldEqual, 1)
			So(m.Stats().PeakBranches, ShouldEqual, 2)

			probs, _ := m.Probabilities()
			shouldMatchProbabilities(probs, []float64{0.5, 0.5})
		})

		Convey("The aggregated state vector reproduces the probabilities", func() {
			vec, err := m.StateVector()
			So(err, ShouldBeNil)
			So(real(vec[0]), ShouldAlmostEqual, 1/math.Sqrt2, tol)
			So(real(vec[1]), ShouldAlmostEqual, 1/math.Sqrt2, tol)
		})

		Convey("Execute always starts from a fresh ground state", func() {
			single := circuit.New(1, 0).Add(circuit.NewUnit(1).Gate(gates.X, 0))
			So(m.Execute(single), ShouldBeNil)
			branches, _ := m.Branches()
			So(len(branches), ShouldEqual, 1)
			vec, _ := m.StateVector()
			So(real(vec[1]), ShouldAlmostEqual, 1, tol)
		})
	})

	Convey("Given a teleportation circuit", t, func() {
		c := circuit.New(3, 2).
			Add(circuit.NewUnit(3).
				Gate(gates.X, 0).
				Gate(gates.H, 1).
				Gate(gates.CX, 1, 2).
				Gate(gates.CX, 0, 1).
				Gate(gates.H, 0)).
			Add(circuit.NewUnit(3).
				Measure(0, 0).
				Measure(1, 1).
				Gate(gates.X, 2).If(eq([]int{1}, 1)).
				Gate(gates.Z, 2).If(eq([]int{0}, 1)))

		Convey("The target qubit always ends in |1> across four branches", func() {
			for _, opts := range [][]Option{nil, {WithoutCache()}} {
				m := New(opts...)
				So(m.Execute(c), ShouldBeNil)

				branches, _ := m.Branches()
				So(len(branches), ShouldEqual, 4)
				for _, b := range branches {
					So(b.Weight, ShouldAlmostEqual, 0.25, tol)
				}

				probs, _ := m.Probabilities()
				p1 := 0.0
				for i, p := range probs {
					if i&4 != 0 {
						p1 += p
					}
				}
				So(p1, ShouldAlmostEqual, 1, tol)
			}
		})
	})
}

func TestCacheInvalidation(t *testing.T) {
	Convey("Given a condition cached before its clbit is measured again", t, func() {
		cond := eq([]int{0}, 1)
		other := eq([]int{1}, 0)
		pair := condition.New([]int{0, 1}, condition.GE, 1)
		c := circuit.New(2, 2).Add(circuit.NewUnit(2).
			Gate(gates.X, 0).
			Measure(0, 0).
			Measure(1, 1).
			Gate(gates.Z, 1).If(cond).
			Gate(gates.Z, 1).If(other).
			Gate(gates.Z, 1).If(pair).
			Gate(gates.X, 0).
			Measure(0, 0).
			Gate(gates.X, 1).If(cond).
			Gate(gates.X, 1).If(other))

		m := New()
		So(m.Execute(c), ShouldBeNil)

		Convey("Only entries reading the rewritten clbit are dropped", func() {
			st := m.Stats()
			// cond and pair read c0; other survives and is hit.
			So(st.Invalidations, ShouldEqual, 2)
			So(st.Misses, ShouldEqual, 4)
			So(st.Hits, ShouldEqual, 1)
			So(m.secondary[1], ShouldContainKey, other.Hash())
			So(m.secondary[1], ShouldNotContainKey, pair.Hash())
			So(m.entry(other), ShouldNotBeNil)
			So(m.entry(cond), ShouldBeNil)
		})

		Convey("The stale entry does not apply the guarded gate", func() {
			probs, _ := m.Probabilities()
			// c0 is 0 after the second measurement, so X on qubit 1 only fires
			// through the surviving c1 == 0 entry.
			shouldMatchProbabilities(probs, []float64{0, 0, 1, 0})
		})
	})

	Convey("Given a cached condition followed by a branching measurement", t, func() {
		cond := eq([]int{0}, 1)
		c := circuit.New(3, 2).Add(circuit.NewUnit(3).
			Gate(gates.H, 0).
			Measure(0, 0).
			Gate(gates.X, 2).If(cond).
			Gate(gates.H, 1).
			Measure(1, 1).
			Gate(gates.X, 2).If(cond))

		Convey("Children of cached branches inherit the entry", func() {
			cached := New()
			So(cached.Execute(c), ShouldBeNil)
			So(cached.Stats().Hits, ShouldEqual, 1)
			e := cached.entry(cond)
			So(e, ShouldNotBeNil)
			So(e.states, ShouldResemble, []int{1, 3})

			plain := New(WithoutCache())
			So(plain.Execute(c), ShouldBeNil)
			a, _ := cached.Probabilities()
			b, _ := plain.Probabilities()
			shouldMatchProbabilities(a, b)
		})
	})
}

func TestCacheHashCollision(t *testing.T) {
	Convey("Given a foreign entry chained under a condition's hash", t, func() {
		cond := eq([]int{0}, 1)
		foreign := eq([]int{0}, 0)
		m := New()
		c := circuit.New(1, 1).Add(circuit.NewUnit(1).Gate(gates.H, 0).Measure(0, 0))
		So(m.Execute(c), ShouldBeNil)
		h := cond.Hash()
		m.condState[h] = []*cacheEntry{{cond: foreign, states: []int{0}}}

		Convey("Lookup does not mistake it for a hit", func() {
			got := m.lookup(cond)
			So(got, ShouldResemble, []int{1})
			So(m.Stats().Misses, ShouldEqual, 1)
			So(m.Stats().Hits, ShouldEqual, 0)
			So(len(m.condState[h]), ShouldEqual, 2)

			So(m.lookup(foreign), ShouldResemble, []int{0})
			So(m.Stats().Hits, ShouldEqual, 1)
		})

		Convey("Invalidation drops only the entries reading the clbit", func() {
			other := eq([]int{1}, 0)
			m.condState[h] = append(m.condState[h], &cacheEntry{cond: other, states: []int{0}})
			m.secondary[0] = map[uint64]struct{}{h: {}}
			m.secondary[1] = map[uint64]struct{}{h: {}}
			m.invalidate(0)
			So(m.condState[h], ShouldHaveLength, 1)
			So(m.condState[h][0].cond.Equal(other), ShouldBeTrue)
			So(m.secondary[1], ShouldContainKey, h)
			So(m.secondary, ShouldNotContainKey, 0)
		})
	})
}

func TestOrderingViolation(t *testing.T) {
	Convey("Given a circuit whose guard reads a clbit that is never measured", t, func() {
		base := []func(*circuit.Unit){
			func(u *circuit.Unit) { u.Gate(gates.H, 0) },
			func(u *circuit.Unit) { u.Measure(0, 0) },
			func(u *circuit.Unit) { u.Gate(gates.CX, 0, 1) },
			func(u *circuit.Unit) { u.Gate(gates.X, 1).If(eq([]int{0}, 1)) },
			func(u *circuit.Unit) { u.Measure(1, 0) },
		}
		bad := eq([]int{1}, 1)

		Convey("Every insertion position fails with the ordering error", func() {
			for pos := 0; pos <= len(base); pos++ {
				u := circuit.NewUnit(2)
				for i, add := range base {
					if i == pos {
						u.Gate(gates.Z, 1).If(bad)
					}
					add(u)
				}
				if pos == len(base) {
					u.Gate(gates.Z, 1).If(bad)
				}
				m := New()
				err := m.Execute(circuit.New(2, 2).Add(u))
				So(errors.Is(err, ErrUnmeasuredClbit), ShouldBeTrue)
				So(errors.Is(err, state.ErrClbitOutOfRange), ShouldBeFalse)
				So(m.Phase(), ShouldEqual, Idle)
			}
		})

		Convey("A guard placed before the measurement that writes its clbit also fails", func() {
			u := circuit.NewUnit(1).Gate(gates.X, 0).If(eq([]int{0}, 1)).Measure(0, 0)
			err := New().Execute(circuit.New(1, 1).Add(u))
			So(errors.Is(err, ErrUnmeasuredClbit), ShouldBeTrue)
		})

		Convey("Out-of-range and malformed conditions report their own kinds", func() {
			u := circuit.NewUnit(1).Measure(0, 0).Gate(gates.X, 0).If(eq([]int{3}, 1))
			err := New().Execute(circuit.New(1, 1).Add(u))
			So(errors.Is(err, condition.ErrInvalid), ShouldBeTrue)
			So(errors.Is(err, ErrUnmeasuredClbit), ShouldBeFalse)

			u = circuit.NewUnit(1).Gate(gates.X, 2)
			err = New().Execute(circuit.New(1, 0).Add(u))
			So(errors.Is(err, state.ErrQubitOutOfRange), ShouldBeTrue)
		})
	})
}

func TestLifecycle(t *testing.T) {
	Convey("Given a fresh manager", t, func() {
		m := New()

		Convey("Results are unavailable before execution", func() {
			So(m.Phase(), ShouldEqual, Idle)
			_, err := m.Probabilities()
			So(errors.Is(err, ErrNotExecuted), ShouldBeTrue)
			_, err = m.StateVector()
			So(errors.Is(err, ErrNotExecuted), ShouldBeTrue)
			_, err = m.Branches()
			So(errors.Is(err, ErrNotExecuted), ShouldBeTrue)
			_, err = m.Counts(10, nil)
			So(errors.Is(err, ErrNotExecuted), ShouldBeTrue)
		})

		Convey("A successful execution reaches Done", func() {
			So(m.Execute(circuit.New(1, 0)), ShouldBeNil)
			So(m.Phase(), ShouldEqual, Done)
			So(m.Phase().String(), ShouldEqual, "done")
		})
	})

	Convey("Given a branch budget of two", t, func() {
		m := New(WithMaxBranches(2))
		u := circuit.NewUnit(2).Gate(gates.H, 0).Gate(gates.H, 1).Measure(0, 0).Measure(1, 1)

		Convey("A third branch aborts the execution", func() {
			err := m.Execute(circuit.New(2, 2).Add(u))
			So(errors.Is(err, ErrBranchLimit), ShouldBeTrue)
			So(m.Phase(), ShouldEqual, Idle)
			_, err = m.Probabilities()
			So(errors.Is(err, ErrNotExecuted), ShouldBeTrue)
		})
	})

	Convey("Given a large epsilon", t, func() {
		m := New(WithEpsilon(0.2))
		c := circuit.New(1, 1).Add(circuit.NewUnit(1).Rotation(gates.Ry, 0.5, 0).Measure(0, 0))

		Convey("Unlikely outcomes are pruned", func() {
			So(m.Execute(c), ShouldBeNil)
			branches, _ := m.Branches()
			So(len(branches), ShouldEqual, 1)
			So(branches[0].Clbits[0], ShouldEqual, uint8(0))
		})
	})

	Convey("Given an epsilon of one half or more", t, func() {
		m := New(WithEpsilon(0.6))
		c := circuit.New(1, 1).Add(circuit.NewUnit(1).Gate(gates.H, 0).Measure(0, 0))

		Convey("It is ignored and both outcomes survive", func() {
			So(func() { So(m.Execute(c), ShouldBeNil) }, ShouldNotPanic)
			branches, _ := m.Branches()
			So(len(branches), ShouldEqual, 2)
		})
	})
}

func TestMarginalsAndSupport(t *testing.T) {
	Convey("Given a guarded X that copies a measured superposition", t, func() {
		m := New()
		_, err := m.Marginals()
		So(errors.Is(err, ErrNotExecuted), ShouldBeTrue)

		c := circuit.New(2, 1).Add(circuit.NewUnit(2).
			Gate(gates.H, 0).
			Measure(0, 0).
			Gate(gates.X, 1).If(eq([]int{0}, 1)))
		So(m.Execute(c), ShouldBeNil)

		Convey("Each qubit is weighted evenly across branches", func() {
			marg, err := m.Marginals()
			So(err, ShouldBeNil)
			So(marg, ShouldHaveLength, 2)
			for _, p := range marg {
				So(p.Prob0, ShouldAlmostEqual, 0.5, tol)
				So(p.Prob1, ShouldAlmostEqual, 0.5, tol)
			}
		})

		Convey("Each branch supports a single basis state", func() {
			sup, err := m.Support(1e-10)
			So(err, ShouldBeNil)
			So(sup, ShouldHaveLength, 2)
			So(sup[0], ShouldHaveLength, 1)
			So(sup[0][0].Index, ShouldEqual, 0)
			So(sup[1], ShouldHaveLength, 1)
			So(sup[1][0].Index, ShouldEqual, 3)
			So(sup[1][0].Hamming, ShouldEqual, 2)
			So(sup[1][0].Prob, ShouldAlmostEqual, 1, tol)
		})
	})
}

func TestCounts(t *testing.T) {
	Convey("Given a deterministic two-qubit circuit", t, func() {
		m := New()
		So(m.Execute(circuit.New(2, 0).Add(circuit.NewUnit(2).Gate(gates.X, 1))), ShouldBeNil)

		Convey("Every shot lands on the same bitstring with qubit 1 first", func() {
			counts, err := m.Counts(100, rand.New(rand.NewPCG(1, 1)))
			So(err, ShouldBeNil)
			So(counts, ShouldResemble, map[string]int{"10": 100})
		})
	})

	Convey("Given a Bell pair", t, func() {
		m := New()
		So(m.Execute(circuit.New(2, 0).Add(circuit.NewUnit(2).Gate(gates.H, 0).Gate(gates.CX, 0, 1))), ShouldBeNil)

		Convey("Only correlated outcomes are sampled", func() {
			counts, err := m.Counts(2000, rand.New(rand.NewPCG(9, 9)))
			So(err, ShouldBeNil)
			So(counts["00"]+counts["11"], ShouldEqual, 2000)
			So(counts["00"], ShouldBeGreaterThan, 800)
			So(counts["11"], ShouldBeGreaterThan, 800)
		})

		Convey("Negative shot counts are rejected", func() {
			_, err := m.Counts(-1, nil)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Bitstrings are zero padded", t, func() {
		So(Bitstring(1, 3), ShouldEqual, "001")
		So(Bitstring(6, 3), ShouldEqual, "110")
	})
}

// randomCircuit builds a circuit mixing gates, measurements and guards that
// only read clbits written earlier.
func randomCircuit(rng *rand.Rand, qubits, clbits, length int) *circuit.Circuit {
	c := circuit.New(qubits, clbits)
	u := circuit.NewUnit(qubits)
	var written []int
	seen := map[int]bool{}
	for i := 0; i < length; i++ {
		switch r := rng.IntN(10); {
		case r < 3:
			u.Gate([]gates.Kind{gates.H, gates.X, gates.S, gates.T}[rng.IntN(4)], rng.IntN(qubits))
		case r < 4:
			u.Rotation([]gates.Kind{gates.Rx, gates.Ry, gates.Rz}[rng.IntN(3)], rng.Float64()*2*math.Pi, rng.IntN(qubits))
		case r < 5:
			qs := rng.Perm(qubits)
			u.Gate(gates.CX, qs[0], qs[1])
		case r < 7:
			b := rng.IntN(clbits)
			u.Measure(rng.IntN(qubits), b)
			if !seen[b] {
				seen[b] = true
				written = append(written, b)
			}
		default:
			if len(written) == 0 {
				continue
			}
			perm := rng.Perm(len(written))
			n := 1 + rng.IntN(len(written))
			bits := make([]int, n)
			for j := range bits {
				bits[j] = written[perm[j]]
			}
			rel := condition.Relation(rng.IntN(6))
			cond := condition.New(bits, rel, rng.IntN(1<<n))
			if rng.IntN(2) == 0 {
				u.Gate(gates.H, rng.IntN(qubits)).If(cond)
			} else {
				u.Rotation(gates.Ry, rng.Float64()*math.Pi, rng.IntN(qubits)).If(cond)
			}
		}
		if rng.IntN(8) == 0 {
			c.Add(u)
			u = circuit.NewUnit(qubits)
		}
	}
	return c.Add(u)
}

func TestCacheTransparency(t *testing.T) {
	Convey("Given random circuits with mid-circuit measurement and guards", t, func() {
		for seed := uint64(1); seed <= 40; seed++ {
			rng := rand.New(rand.NewPCG(seed, 2*seed+1))
			c := randomCircuit(rng, 3, 3, 30)

			cached := New()
			plain := New(WithoutCache())
			So(cached.Execute(c), ShouldBeNil)
			So(plain.Execute(c), ShouldBeNil)

			a, _ := cached.Probabilities()
			b, _ := plain.Probabilities()
			shouldMatchProbabilities(a, b)
			So(plain.Stats().Hits, ShouldEqual, 0)

			total := 0.0
			for _, p := range a {
				total += p
			}
			So(total, ShouldAlmostEqual, 1, 1e-6)

			branches, _ := cached.Branches()
			for _, br := range branches {
				norm := 0.0
				for _, amp := range br.Amplitudes {
					norm += real(amp)*real(amp) + imag(amp)*imag(amp)
				}
				So(norm, ShouldAlmostEqual, 1, tol)
			}
		}
	})
}
