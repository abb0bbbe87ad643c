// Package topology adapts an undirected edge set over opaque node
// identifiers into a symmetric distance map and a per-node neighbor
// index.
package topology

import (
	"sort"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
)

// DefaultDistance is the delay charged to any edge that does not carry
// an explicit weight.
const DefaultDistance int64 = 10

// WeightedEdge is one undirected edge in the graph consumer interface.
// Weight of 0 means "use DefaultDistance".
type WeightedEdge struct {
	U, V   message.NodeID
	Weight int64
}

// Graph is the topology consumer interface expected from external
// graph generators: an iterable node set and edge set.
type Graph interface {
	Nodes() []message.NodeID
	Edges() []WeightedEdge
}

// Distances is a symmetric lookup table keyed by ordered pair; Lookup
// resolves both (u,v) and (v,u) to the same value.
type Distances struct {
	byOrderedPair map[[2]message.NodeID]int64
}

// Lookup returns the distance between u and v and whether an edge
// exists between them. u == v always resolves to (0, true) (used for
// self-addressed retransmission events, which are not graph edges).
func (d *Distances) Lookup(u, v message.NodeID) (int64, bool) {
	if u == v {
		return 0, true
	}
	if w, ok := d.byOrderedPair[[2]message.NodeID{u, v}]; ok {
		return w, true
	}
	if w, ok := d.byOrderedPair[[2]message.NodeID{v, u}]; ok {
		return w, true
	}
	return 0, false
}

// Adapter holds the product of adapting a Graph: the symmetric
// distance table and each node's neighbor list.
type Adapter struct {
	Distances *Distances
	Neighbors map[message.NodeID][]message.NodeID
}

// Adapt builds an Adapter from g. Edges with Weight == 0 are stamped
// with DefaultDistance. Neighbor lists are sorted for deterministic
// iteration before any fanout shuffle is applied downstream.
func Adapt(g Graph) *Adapter {
	dist := &Distances{byOrderedPair: make(map[[2]message.NodeID]int64)}
	neighbors := make(map[message.NodeID][]message.NodeID)

	for _, n := range g.Nodes() {
		if _, ok := neighbors[n]; !ok {
			neighbors[n] = nil
		}
	}

	for _, e := range g.Edges() {
		w := e.Weight
		if w == 0 {
			w = DefaultDistance
		}
		dist.byOrderedPair[[2]message.NodeID{e.U, e.V}] = w
		neighbors[e.U] = append(neighbors[e.U], e.V)
		neighbors[e.V] = append(neighbors[e.V], e.U)
	}

	for n, ns := range neighbors {
		sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
		neighbors[n] = ns
	}

	return &Adapter{Distances: dist, Neighbors: neighbors}
}
