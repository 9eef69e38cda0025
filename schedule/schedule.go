package schedule

import (
	"fmt"
	"math"
	"strings"

	"qbranch/condition"
	"qbranch/gates"
)

var backendNames = map[gates.Kind]string{
	gates.CX: "CNOT",
	gates.CY: "YCON",
	gates.CZ: "ZCON",
}

// BackendName is the gate label understood by the remote backend.
func BackendName(k gates.Kind) string {
	if name, ok := backendNames[k]; ok {
		return name
	}
	return k.String()
}

// Degrees converts radians to the backend's angle unit.
func Degrees(theta float64) float64 {
	return math.Mod(theta, 2*math.Pi) / math.Pi * 180
}

// Operation is one gate placed in a time slot.
type Operation struct {
	Name     string
	TimeSlot int
	Qubits   []int
	Angle    float64 // degrees
	HasAngle bool
	Cond     *condition.Condition
}

func (op Operation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%3d  ", op.TimeSlot)
	if op.Cond != nil {
		fmt.Fprintf(&sb, "if(%s) ", op.Cond)
	}
	sb.WriteString(op.Name)
	if op.HasAngle {
		fmt.Fprintf(&sb, "(%.1f)", op.Angle)
	}
	for i, q := range op.Qubits {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "q[%d]", q)
	}
	return sb.String()
}

// Schedule walks the DAG in topological order and assigns each gate the
// first slot in which all its qubits are free: the maximum of the next free
// slot of every touched qubit. A conditioned gate also waits for the
// measurements that wrote its clbits, and a measurement waits for the earlier
// writer and every earlier reader of its clbit. Barriers emit no operation;
// they align their qubits to a common next slot.
func (dag *DAG) Schedule() []Operation {
	timeList := make([]int, dag.NumQubits)
	clbitReady := make([]int, dag.NumClbits)
	// first slot after the last conditioned gate reading each clbit
	readDone := make([]int, dag.NumClbits)
	ops := make([]Operation, 0, len(dag.Nodes))

	for _, node := range dag.TopologicalSort() {
		g := node.Gate
		slot := 0
		for _, q := range g.Qubits {
			slot = max(slot, timeList[q])
		}
		if g.IsBarrier() {
			for _, q := range g.Qubits {
				timeList[q] = slot
			}
			continue
		}
		if g.Cond != nil {
			for _, b := range g.Cond.Clbits() {
				slot = max(slot, clbitReady[b])
			}
		}
		if g.IsMeasure() {
			slot = max(slot, clbitReady[g.Clbit], readDone[g.Clbit])
			clbitReady[g.Clbit] = slot + 1
		}
		for _, q := range g.Qubits {
			timeList[q] = slot + 1
		}
		if g.Cond != nil {
			for _, b := range g.Cond.Clbits() {
				readDone[b] = max(readDone[b], slot+1)
			}
		}

		op := Operation{
			Name:     BackendName(g.Kind),
			TimeSlot: slot,
			Qubits:   append([]int(nil), g.Qubits...),
			Cond:     g.Cond,
		}
		if g.HasAngle {
			op.Angle = Degrees(g.Angle)
			op.HasAngle = true
		}
		ops = append(ops, op)
	}
	return ops
}

// Depth is the number of time slots the schedule occupies.
func Depth(ops []Operation) int {
	depth := 0
	for _, op := range ops {
		depth = max(depth, op.TimeSlot+1)
	}
	return depth
}
