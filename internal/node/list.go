package node

import (
	"github.com/RoaringBitmap/roaring"
)

// List is the ordered, append-only collection of accepted nodes. It owns
// every node and the derived edge structure. Ids are assigned by append
// order starting at 0, so identical inputs always reproduce identical ids.
type List struct {
	nodes []*Node
}

// Append takes ownership of n and assigns the next node id.
func (l *List) Append(n *Node) {
	n.ID = len(l.nodes)
	l.nodes = append(l.nodes, n)
}

func (l *List) Len() int { return len(l.nodes) }

// At returns the node with id i.
func (l *List) At(i int) *Node { return l.nodes[i] }

// Nodes returns the backing slice in id order. Callers must not reorder it.
func (l *List) Nodes() []*Node { return l.nodes }

// PopulateLinks derives the downstream sets in a single pass: each setpoint
// collects every node that follows it up to and including the next
// setpoint. Nodes before the first setpoint belong to no downstream set and
// remain isolated vertices. A trailing setpoint keeps an empty set.
//
// Every downstream set is rebuilt from scratch, so running this again on an
// already-linked list reproduces the same edges.
func (l *List) PopulateLinks() {
	var current *Node
	for _, n := range l.nodes {
		if n.IsSetpoint() {
			if current != nil {
				current.Downstream.Add(uint32(n.ID))
			}
			n.Downstream = roaring.New()
			current = n
		} else {
			n.Downstream = nil
			if current != nil {
				current.Downstream.Add(uint32(n.ID))
			}
		}
	}
}

// Edge is one directed setpoint → downstream connection.
type Edge struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// Edges flattens the link structure into a stable edge list: setpoints in
// id order, each followed by its downstream members in ascending id order.
func (l *List) Edges() []Edge {
	var edges []Edge
	for _, n := range l.nodes {
		if n.Downstream == nil {
			continue
		}
		it := n.Downstream.Iterator()
		for it.HasNext() {
			edges = append(edges, Edge{Source: n.ID, Target: int(it.Next())})
		}
	}
	return edges
}

// DownstreamIDs returns the ids a setpoint feeds, in ascending order. Nil
// for observers and for setpoints before linking.
func (n *Node) DownstreamIDs() []int {
	if n.Downstream == nil {
		return nil
	}
	out := make([]int, 0, n.Downstream.GetCardinality())
	it := n.Downstream.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}
