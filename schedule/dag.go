// Package schedule orders a circuit's operations into backend time slots.
package schedule

import (
	"fmt"
	"sort"

	"qbranch/circuit"
)

// Node represents a gate in the circuit as a node in a DAG.
// Dependencies represent ordering constraints: a gate cannot execute before
// the gates that touch the same qubits, or the classical bits it reads or
// writes, earlier in the program.
type Node struct {
	ID           string           // Unique identifier for this node
	Index        int              // Position in program order across all units
	Gate         circuit.GateUnit // The operation itself
	Dependencies []string         // IDs of nodes that must execute before this one
}

// DAG is the dependency graph of one circuit.
type DAG struct {
	Nodes     map[string]*Node
	NumQubits int
	NumClbits int
	rootNodes []string
	order     []string
}

// generateNodeID creates a unique ID for a node based on its properties.
func generateNodeID(g circuit.GateUnit, index int) string {
	q := -1
	if len(g.Qubits) > 0 {
		q = g.Qubits[0]
	}
	return fmt.Sprintf("%s_q%d_n%d", g.Kind, q, index)
}

// Build validates c and derives its dependency graph.
func Build(c *circuit.Circuit) (*DAG, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	dag := &DAG{
		Nodes:     make(map[string]*Node),
		NumQubits: c.QubitNum,
		NumClbits: c.ClbitNum,
	}

	// Track the last node on each wire
	lastOnQubit := make(map[int]string)
	lastWrite := make(map[int]string)
	readers := make(map[int][]string)

	index := 0
	for _, u := range c.Units {
		for _, g := range u.Gates {
			node := &Node{ID: generateNodeID(g, index), Index: index, Gate: g}
			index++

			deps := make(map[string]bool)
			for _, q := range g.Qubits {
				if id, ok := lastOnQubit[q]; ok {
					deps[id] = true
				}
			}
			if g.Cond != nil {
				for _, b := range g.Cond.Clbits() {
					if id, ok := lastWrite[b]; ok {
						deps[id] = true
					}
				}
			}
			if g.IsMeasure() {
				if id, ok := lastWrite[g.Clbit]; ok {
					deps[id] = true
				}
				for _, id := range readers[g.Clbit] {
					deps[id] = true
				}
			}
			for id := range deps {
				node.Dependencies = append(node.Dependencies, id)
			}
			sort.Slice(node.Dependencies, func(i, j int) bool {
				return dag.Nodes[node.Dependencies[i]].Index < dag.Nodes[node.Dependencies[j]].Index
			})

			dag.Nodes[node.ID] = node
			dag.order = append(dag.order, node.ID)
			for _, q := range g.Qubits {
				lastOnQubit[q] = node.ID
			}
			if g.Cond != nil {
				for _, b := range g.Cond.Clbits() {
					readers[b] = append(readers[b], node.ID)
				}
			}
			if g.IsMeasure() {
				lastWrite[g.Clbit] = node.ID
				readers[g.Clbit] = nil
			}
		}
	}
	dag.updateRootNodes()
	return dag, nil
}

// updateRootNodes recalculates the list of root nodes (nodes with no dependencies).
func (dag *DAG) updateRootNodes() {
	dag.rootNodes = dag.rootNodes[:0]
	for _, id := range dag.order {
		if len(dag.Nodes[id].Dependencies) == 0 {
			dag.rootNodes = append(dag.rootNodes, id)
		}
	}
}

// Roots returns the nodes with no dependencies in program order.
func (dag *DAG) Roots() []*Node {
	out := make([]*Node, len(dag.rootNodes))
	for i, id := range dag.rootNodes {
		out[i] = dag.Nodes[id]
	}
	return out
}

// TopologicalSort returns nodes in topological order (respecting dependencies).
// Ties are broken by program order, so the result is deterministic.
func (dag *DAG) TopologicalSort() []*Node {
	visited := make(map[string]bool)
	result := make([]*Node, 0, len(dag.Nodes))

	var visit func(nodeID string)
	visit = func(nodeID string) {
		if visited[nodeID] {
			return
		}
		visited[nodeID] = true

		node := dag.Nodes[nodeID]
		for _, depID := range node.Dependencies {
			visit(depID)
		}
		result = append(result, node)
	}

	for _, id := range dag.order {
		visit(id)
	}
	return result
}

// NodesOnQubit returns all nodes that reference a specific qubit.
func (dag *DAG) NodesOnQubit(qubit int) []*Node {
	var result []*Node
	for _, id := range dag.order {
		node := dag.Nodes[id]
		for _, q := range node.Gate.Qubits {
			if q == qubit {
				result = append(result, node)
				break
			}
		}
	}
	return result
}
