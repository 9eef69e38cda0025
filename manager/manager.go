// Package manager executes circuits against an ensemble of branch states.
//
// A measurement replaces every live branch by its possible outcomes, so the
// ensemble grows with each unconditioned mid-circuit measurement. Conditioned
// gates are applied only to the branches whose classical bits satisfy the
// condition; the matching branch indices are cached per condition, keyed by
// the condition's 64-bit hash, and the cache is invalidated through a clbit -> condition reverse index whenever a
// measurement writes a bit.
package manager

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"qbranch/circuit"
	"qbranch/condition"
	"qbranch/state"
)

var (
	// ErrUnmeasuredClbit is returned when a condition reads a classical bit
	// that no earlier measurement has written.
	ErrUnmeasuredClbit = errors.New("manager: condition reads an unmeasured clbit")
	// ErrBranchLimit is returned when a measurement would exceed the
	// configured branch budget.
	ErrBranchLimit = errors.New("manager: branch limit exceeded")
	// ErrNotExecuted is returned by result accessors before a successful
	// Execute.
	ErrNotExecuted = errors.New("manager: no completed execution")
)

// Phase is the lifecycle position of a Manager.
type Phase int

const (
	Idle Phase = iota
	Running
	Done
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Done:
		return "done"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Stats counts condition cache activity for the last execution.
type Stats struct {
	Hits          int
	Misses        int
	Invalidations int
	Splits        int
	PeakBranches  int
}

type cacheEntry struct {
	cond   condition.Condition
	states []int
}

// Manager owns one branch ensemble. It is not safe for concurrent use; use
// one Manager per goroutine.
type Manager struct {
	logger      *log.Logger
	epsilon     float64
	maxBranches int
	cache       bool

	phase         Phase
	qubits        int
	states        []*state.QuantumState
	writtenClbits map[int]struct{}
	// entries sharing a hash are chained and told apart with Equal
	condState map[uint64][]*cacheEntry
	secondary map[int]map[uint64]struct{}
	stats     Stats
}

type Option func(*Manager)

// WithLogger sets the logger used for debug records.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithEpsilon sets the probability below which measurement outcomes are
// dropped. Values outside (0, state.MaxEpsilon) are ignored.
func WithEpsilon(eps float64) Option {
	return func(m *Manager) {
		if eps > 0 && eps < state.MaxEpsilon {
			m.epsilon = eps
		}
	}
}

// WithMaxBranches bounds the ensemble size. Zero means unbounded.
func WithMaxBranches(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxBranches = n
		}
	}
}

// WithoutCache re-evaluates every condition against every branch.
func WithoutCache() Option {
	return func(m *Manager) { m.cache = false }
}

func New(opts ...Option) *Manager {
	m := &Manager{
		logger:  log.New(io.Discard),
		epsilon: state.DefaultEpsilon,
		cache:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Phase() Phase { return m.phase }

func (m *Manager) Stats() Stats { return m.stats }

func (m *Manager) reset(c *circuit.Circuit) error {
	ground, err := state.New(c.QubitNum, c.ClbitNum)
	if err != nil {
		return err
	}
	m.qubits = c.QubitNum
	m.states = []*state.QuantumState{ground}
	m.writtenClbits = make(map[int]struct{})
	m.condState = make(map[uint64][]*cacheEntry)
	m.secondary = make(map[int]map[uint64]struct{})
	m.stats = Stats{PeakBranches: 1}
	return nil
}

func (m *Manager) fail(err error) error {
	m.phase = Idle
	m.states = nil
	m.logger.Debug("execution aborted", "err", err)
	return err
}

// Execute discards any previous ensemble and runs c from |0...0>.
func (m *Manager) Execute(c *circuit.Circuit) error {
	if err := c.Validate(); err != nil {
		return m.fail(err)
	}
	if err := m.reset(c); err != nil {
		return m.fail(err)
	}
	m.phase = Running
	m.logger.Debug("execution started", "qubits", c.QubitNum, "clbits", c.ClbitNum, "units", len(c.Units), "cache", m.cache)

	for ui := range c.Units {
		u := &c.Units[ui]
		if u.Unitary() {
			if err := u.Execute(m.states); err != nil {
				return m.fail(fmt.Errorf("unit %d: %w", ui, err))
			}
			continue
		}
		for gi, g := range u.Gates {
			if err := m.step(g); err != nil {
				return m.fail(fmt.Errorf("unit %d, gate %d: %w", ui, gi, err))
			}
		}
	}

	m.phase = Done
	m.logger.Debug("execution finished", "branches", len(m.states), "hits", m.stats.Hits, "misses", m.stats.Misses)
	return nil
}

func (m *Manager) step(g circuit.GateUnit) error {
	switch {
	case g.IsBarrier():
		return nil
	case g.IsMeasure():
		return m.measure(g.Qubits[0], g.Clbit)
	}

	mat, err := g.Matrix()
	if err != nil {
		return err
	}
	if g.Cond == nil {
		for _, s := range m.states {
			if err := s.ApplyGate(g.Kind, g.Qubits, mat); err != nil {
				return err
			}
		}
		return nil
	}

	if err := m.checkClbits(*g.Cond); err != nil {
		return err
	}
	for _, i := range m.lookup(*g.Cond) {
		if err := m.states[i].ApplyGate(g.Kind, g.Qubits, mat); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) checkClbits(cond condition.Condition) error {
	for _, b := range cond.Clbits() {
		if _, ok := m.writtenClbits[b]; !ok {
			return fmt.Errorf("%s reads c[%d]: %w", cond, b, ErrUnmeasuredClbit)
		}
	}
	return nil
}

// entry returns the cached entry equal to cond, or nil.
func (m *Manager) entry(cond condition.Condition) *cacheEntry {
	for _, e := range m.condState[cond.Hash()] {
		if e.cond.Equal(cond) {
			return e
		}
	}
	return nil
}

// lookup returns the indices of branches satisfying cond, in ascending order.
func (m *Manager) lookup(cond condition.Condition) []int {
	key := cond.Key()
	if m.cache {
		if e := m.entry(cond); e != nil {
			m.stats.Hits++
			m.logger.Debug("condition cache hit", "cond", key, "branches", len(e.states))
			return e.states
		}
	}
	m.stats.Misses++

	matched := make([]int, 0, len(m.states))
	for i, s := range m.states {
		if cond.Evaluate(s.Clbits()) {
			matched = append(matched, i)
		}
	}
	m.logger.Debug("condition cache miss", "cond", key, "branches", len(matched))
	if !m.cache {
		return matched
	}

	h := cond.Hash()
	m.condState[h] = append(m.condState[h], &cacheEntry{cond: cond, states: matched})
	for _, b := range cond.Clbits() {
		deps, ok := m.secondary[b]
		if !ok {
			deps = make(map[uint64]struct{})
			m.secondary[b] = deps
		}
		deps[h] = struct{}{}
	}
	return matched
}

func (m *Manager) measure(qubit, clbit int) error {
	live := len(m.states)
	children := make(map[int]int)
	for i := 0; i < live; i++ {
		outcomes, err := m.states[i].MeasureTol(qubit, clbit, m.epsilon)
		if err != nil {
			return err
		}
		m.states[i] = outcomes[0].State
		if len(outcomes) == 1 {
			continue
		}
		if m.maxBranches > 0 && len(m.states) >= m.maxBranches {
			return fmt.Errorf("measuring qubit %d with %d branches: %w", qubit, len(m.states), ErrBranchLimit)
		}
		m.states = append(m.states, outcomes[1].State)
		children[i] = len(m.states) - 1
	}
	m.writtenClbits[clbit] = struct{}{}

	m.invalidate(clbit)
	if len(children) > 0 {
		m.stats.Splits += len(children)
		m.adopt(children)
		m.logger.Debug("branches split", "qubit", qubit, "clbit", clbit, "new", len(children), "branches", len(m.states))
	}
	if len(m.states) > m.stats.PeakBranches {
		m.stats.PeakBranches = len(m.states)
	}
	return nil
}

// invalidate drops every cache entry whose condition reads clbit.
func (m *Manager) invalidate(clbit int) {
	deps := m.secondary[clbit]
	if len(deps) == 0 {
		return
	}
	for h := range deps {
		var kept, dropped []*cacheEntry
		for _, e := range m.condState[h] {
			if reads(e.cond, clbit) {
				dropped = append(dropped, e)
			} else {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(m.condState, h)
		} else {
			m.condState[h] = kept
		}
		for _, e := range dropped {
			m.stats.Invalidations++
			for _, b := range e.cond.Clbits() {
				if b == clbit || bucketReads(kept, b) {
					continue
				}
				if other := m.secondary[b]; other != nil {
					delete(other, h)
					if len(other) == 0 {
						delete(m.secondary, b)
					}
				}
			}
			m.logger.Debug("condition cache invalidated", "cond", e.cond.Key(), "clbit", clbit)
		}
	}
	delete(m.secondary, clbit)
}

func reads(cond condition.Condition, clbit int) bool {
	for _, b := range cond.Clbits() {
		if b == clbit {
			return true
		}
	}
	return false
}

func bucketReads(bucket []*cacheEntry, clbit int) bool {
	for _, e := range bucket {
		if reads(e.cond, clbit) {
			return true
		}
	}
	return false
}

// adopt extends the surviving cache entries with the branches appended by a
// split. A child differs from its parent only in the clbit just written, which
// no surviving entry reads, so it satisfies exactly the parent's conditions.
// Children are appended in parent order, so entries stay sorted.
func (m *Manager) adopt(children map[int]int) {
	for _, bucket := range m.condState {
		for _, e := range bucket {
			for _, i := range e.states {
				if c, ok := children[i]; ok {
					e.states = append(e.states, c)
				}
			}
		}
	}
}
