// Package graphgen produces undirected graphs satisfying
// topology.Graph for CLI convenience. It sits outside the simulator's
// core: swapping in a real graph library, or a hand-authored topology,
// never touches the simulator or node packages, since both only
// depend on the Graph interface.
package graphgen

import (
	"math/rand"
	"strconv"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/topology"
)

// erdosRenyi is a Graph built by including each of the n(n-1)/2
// possible undirected edges independently with probability p.
type erdosRenyi struct {
	nodes []message.NodeID
	edges []topology.WeightedEdge
}

func (g *erdosRenyi) Nodes() []message.NodeID        { return g.nodes }
func (g *erdosRenyi) Edges() []topology.WeightedEdge { return g.edges }

// ErdosRenyi builds a G(n, p) graph with no isolated nodes: after the
// probabilistic pass, any node left with no edges is wired to a
// uniformly chosen other node. The result is not guaranteed to be
// connected; separate components of two or more nodes are left as
// they are.
// Panics if n < 1, matching the project's construction-time-misuse
// convention for programmer error over runtime error.
func ErdosRenyi(n int, p float64, rng *rand.Rand) topology.Graph {
	if n < 1 {
		panic("graphgen.ErdosRenyi: n must be >= 1")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	nodes := make([]message.NodeID, n)
	for i := range nodes {
		nodes[i] = nodeID(i)
	}

	degree := make([]int, n)
	var edges []topology.WeightedEdge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Float64() < p {
				edges = append(edges, topology.WeightedEdge{U: nodeID(i), V: nodeID(j)})
				degree[i]++
				degree[j]++
			}
		}
	}

	for i := 0; i < n; i++ {
		if degree[i] > 0 || n == 1 {
			continue
		}
		j := rng.Intn(n)
		for j == i {
			j = rng.Intn(n)
		}
		edges = append(edges, topology.WeightedEdge{U: nodeID(i), V: nodeID(j)})
		degree[i]++
		degree[j]++
	}

	return &erdosRenyi{nodes: nodes, edges: edges}
}

func nodeID(i int) message.NodeID {
	return message.NodeID(strconv.Itoa(i))
}
