package simulator_test

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/graphgen"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/node"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/simulator"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/topology"
)

type testGraph struct {
	nodes []message.NodeID
	edges []topology.WeightedEdge
}

func (g testGraph) Nodes() []message.NodeID        { return g.nodes }
func (g testGraph) Edges() []topology.WeightedEdge { return g.edges }

func buildNodes(t *testing.T, adapter *topology.Adapter, fanout, noNews int, initial map[message.NodeID]float64) map[message.NodeID]node.Handler {
	t.Helper()
	nodes := make(map[message.NodeID]node.Handler, len(adapter.Neighbors))
	seed := int64(1)
	for id, neighbors := range adapter.Neighbors {
		n := node.New(node.Config{
			ID:         id,
			Neighbors:  neighbors,
			Fanout:     fanout,
			NoNewsSize: noNews,
			InitialSum: initial[id],
			RNG:        rand.New(rand.NewSource(seed)),
		})
		nodes[id] = n
		seed++
	}
	return nodes
}

func asNode(t *testing.T, h node.Handler) *node.Node {
	t.Helper()
	n, ok := h.(*node.Node)
	require.True(t, ok)
	return n
}

// A two-node line with equal starting values should converge
// immediately: neither side has anything to move toward, and the run
// should settle in well under the no-news window's worth of churn.
func TestConvergesOnTwoNodeLineWithEqualValues(t *testing.T) {
	g := testGraph{
		nodes: []message.NodeID{"0", "1"},
		edges: []topology.WeightedEdge{{U: "0", V: "1"}},
	}
	adapter := topology.Adapt(g)
	nodes := buildNodes(t, adapter, 1, 5, map[message.NodeID]float64{"0": 3, "1": 3})

	sim := simulator.New(nodes, adapter.Distances, 0, 1_000_000, rand.New(rand.NewSource(7)))
	sim.Start(message.Msg{Kind: message.KindGossipRequest}, "0")

	for _, n := range nodes {
		assert.InDelta(t, 3.0, asNode(t, n).Aggregate(), 1e-3)
	}
	assert.Less(t, sim.EventsDelivered(), 30)
}

// On a complete graph with every node starting at the same value, the
// aggregate equals that value exactly everywhere, and total sum is
// preserved exactly since nothing needed to move.
func TestConvergesExactlyOnCompleteGraphWithUniformValues(t *testing.T) {
	g := testGraph{
		nodes: []message.NodeID{"0", "1", "2", "3"},
		edges: []topology.WeightedEdge{
			{U: "0", V: "1"}, {U: "0", V: "2"}, {U: "0", V: "3"},
			{U: "1", V: "2"}, {U: "1", V: "3"}, {U: "2", V: "3"},
		},
	}
	adapter := topology.Adapt(g)
	initial := map[message.NodeID]float64{"0": 10, "1": 10, "2": 10, "3": 10}
	nodes := buildNodes(t, adapter, 2, 3, initial)

	sim := simulator.New(nodes, adapter.Distances, 0, 1_000_000, rand.New(rand.NewSource(17)))
	sim.Start(message.Msg{Kind: message.KindGossipRequest}, "0")

	var totalSum float64
	for _, n := range nodes {
		assert.InDelta(t, 10.0, asNode(t, n).Aggregate(), 1e-3)
		totalSum += asNode(t, n).Sum()
	}
	assert.InDelta(t, 40.0, totalSum, 1e-9)
}

// On a two-node line with unequal starting values, both nodes converge
// to the mean, and the first RESPONSE arrives after exactly one round
// trip across the edge (out and back at the default edge distance).
func TestConvergesToMeanOnTwoNodeLineWithUnequalValues(t *testing.T) {
	g := testGraph{
		nodes: []message.NodeID{"0", "1"},
		edges: []topology.WeightedEdge{{U: "0", V: "1"}},
	}
	adapter := topology.Adapt(g)
	initial := map[message.NodeID]float64{"0": 0, "1": 6}
	nodes := buildNodes(t, adapter, 1, 5, initial)

	sim := simulator.New(nodes, adapter.Distances, 0, 1_000_000, rand.New(rand.NewSource(23)))
	delivered := sim.Start(message.Msg{Kind: message.KindGossipRequest}, "0")

	for _, n := range nodes {
		assert.InDelta(t, 3.0, asNode(t, n).Aggregate(), 1e-3)
	}

	var firstResponse int64 = -1
	for _, e := range delivered {
		if e.Msg.Kind == message.KindGossipResponse {
			firstResponse = e.Instant
			break
		}
	}
	require.NotEqual(t, int64(-1), firstResponse, "expected at least one RESPONSE event")
	assert.Equal(t, int64(20), firstResponse)
}

// Convergence to the injected mean doesn't depend on the specific
// topology, only on connectivity: an eight-node random graph converges
// to the mean of its injected values just as the hand-built graphs do.
func TestConvergesToMeanOnRandomGraph(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := graphgen.ErdosRenyi(8, 0.5, rng)
	adapter := topology.Adapt(g)

	initial := make(map[message.NodeID]float64, 8)
	for i := 0; i < 8; i++ {
		initial[message.NodeID(strconv.Itoa(i))] = float64(i + 1)
	}
	nodes := buildNodes(t, adapter, 3, 5, initial)

	sim := simulator.New(nodes, adapter.Distances, 0, 1_000_000, rand.New(rand.NewSource(42)))
	sim.Start(message.Msg{Kind: message.KindGossipRequest}, "0")

	for _, n := range nodes {
		assert.InDelta(t, 4.5, asNode(t, n).Aggregate(), 1e-2)
	}
}

// Every GOSSIP exchange only transfers (sum, weight) between two
// nodes, never creates or destroys it, so the totals across the whole
// run must equal what was injected at construction.
func TestMassIsConservedUnderLosslessGossip(t *testing.T) {
	g := testGraph{
		nodes: []message.NodeID{"0", "1", "2", "3"},
		edges: []topology.WeightedEdge{
			{U: "0", V: "1"}, {U: "0", V: "2"}, {U: "0", V: "3"},
			{U: "1", V: "2"}, {U: "1", V: "3"}, {U: "2", V: "3"},
		},
	}
	adapter := topology.Adapt(g)
	initial := map[message.NodeID]float64{"0": 4, "1": 8, "2": 2, "3": 6}
	nodes := buildNodes(t, adapter, 2, 3, initial)

	sim := simulator.New(nodes, adapter.Distances, 0, 100_000, rand.New(rand.NewSource(11)))
	sim.Start(message.Msg{Kind: message.KindGossipRequest}, "0")

	var totalSum, totalWeight float64
	for _, n := range nodes {
		totalSum += asNode(t, n).Sum()
		totalWeight += asNode(t, n).Weight()
	}
	assert.InDelta(t, 20.0, totalSum, 1e-9)
	assert.InDelta(t, 4.0, totalWeight, 1e-9) // one unit of weight per node, never created or destroyed
}

// Round counters never decrease. Checked incrementally inside
// internal/node's own test; here we just confirm the final rounds are
// all non-negative and the run actually advanced at least one round
// everywhere reachable.
func TestRoundCounterNeverDecreasesAcrossRun(t *testing.T) {
	g := testGraph{
		nodes: []message.NodeID{"0", "1"},
		edges: []topology.WeightedEdge{{U: "0", V: "1"}},
	}
	adapter := topology.Adapt(g)
	nodes := buildNodes(t, adapter, 1, 5, nil)

	sim := simulator.New(nodes, adapter.Distances, 0, 10_000, rand.New(rand.NewSource(3)))
	sim.Start(message.Msg{Kind: message.KindGossipRequest}, "0")

	for _, n := range nodes {
		assert.GreaterOrEqual(t, asNode(t, n).Round(), 1)
	}
}

// The delivered event list is non-decreasing in instant.
func TestDeliveredEventsAreOrderedByInstant(t *testing.T) {
	g := testGraph{
		nodes: []message.NodeID{"0", "1", "2"},
		edges: []topology.WeightedEdge{{U: "0", V: "1"}, {U: "1", V: "2"}},
	}
	adapter := topology.Adapt(g)
	nodes := buildNodes(t, adapter, 1, 5, nil)

	sim := simulator.New(nodes, adapter.Distances, 0, 10_000, rand.New(rand.NewSource(5)))
	delivered := sim.Start(message.Msg{Kind: message.KindGossipRequest}, "0")

	var last int64 = -1
	for _, e := range delivered {
		assert.GreaterOrEqual(t, e.Instant, last)
		last = e.Instant
	}
}

// Under total loss, every attempt times out and backs off until the
// seed->peer link's RTO saturates at its configured ceiling, and the
// run still terminates at the horizon rather than looping forever.
func TestBackoffSaturatesAtMaxRTOUnderTotalLoss(t *testing.T) {
	g := testGraph{
		nodes: []message.NodeID{"0", "1"},
		edges: []topology.WeightedEdge{{U: "0", V: "1"}},
	}
	adapter := topology.Adapt(g)
	nodes := buildNodes(t, adapter, 1, 5, nil)

	sim := simulator.New(nodes, adapter.Distances, 1.0, 1000, rand.New(rand.NewSource(9)))
	sim.Start(message.Msg{Kind: message.KindGossipRequest}, "0")

	assert.Greater(t, sim.Retransmissions(), 0)
	assert.LessOrEqual(t, sim.CurrentInstant(), int64(2000)) // loop stops once horizon is exceeded
	assert.Equal(t, int64(1000), asNode(t, nodes["0"]).RTO("1"))
}

// With no loss and a connected small graph, the event queue empties
// before a generous horizon instead of running out the clock.
func TestTerminatesBeforeHorizonWhenLossless(t *testing.T) {
	g := testGraph{
		nodes: []message.NodeID{"0", "1", "2", "3"},
		edges: []topology.WeightedEdge{
			{U: "0", V: "1"}, {U: "1", V: "2"}, {U: "2", V: "3"}, {U: "3", V: "0"},
		},
	}
	adapter := topology.Adapt(g)
	nodes := buildNodes(t, adapter, 2, 3, nil)

	sim := simulator.New(nodes, adapter.Distances, 0, 1_000_000, rand.New(rand.NewSource(13)))
	sim.Start(message.Msg{Kind: message.KindGossipRequest}, "0")

	assert.LessOrEqual(t, sim.CurrentInstant(), int64(1_000_000))
}
