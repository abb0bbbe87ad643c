package harness_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/harness"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/metrics"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/topology"
)

type lineGraph struct{}

func (lineGraph) Nodes() []message.NodeID { return []message.NodeID{"0", "1"} }
func (lineGraph) Edges() []topology.WeightedEdge {
	return []topology.WeightedEdge{{U: "0", V: "1"}}
}

func baseSpec(name string, seed int64) harness.RunSpec {
	return harness.RunSpec{
		Name:        name,
		Graph:       lineGraph{},
		InitialMsg:  message.Msg{Kind: message.KindGossipRequest},
		SeedNode:    "0",
		Fanout:      1,
		NoNewsSize:  5,
		FaultChance: 0,
		HorizonMs:   1_000_000,
		InitialSum:  map[message.NodeID]float64{"0": 3, "1": 3},
		Seed:        seed,
	}
}

func TestHarness_Run_ConvergesToMean(t *testing.T) {
	h := harness.New(nil, nil)
	result := h.Run(baseSpec("single", 1))

	for id, agg := range result.FinalAggregate {
		assert.InDeltaf(t, 3.0, agg, 1e-3, "node %s", id)
	}
}

func TestHarness_Run_PanicsOnNilGraph(t *testing.T) {
	h := harness.New(nil, nil)
	assert.Panics(t, func() {
		h.Run(harness.RunSpec{})
	})
}

func TestHarness_Run_RecordsMetrics(t *testing.T) {
	m := metrics.New("harness-test")
	h := harness.New(m, nil)
	h.Run(baseSpec("with-metrics", 2))

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "pushsum_events_delivered_total" {
			found = true
			for _, mm := range f.GetMetric() {
				assert.Greater(t, mm.GetCounter().GetValue(), float64(0))
			}
		}
	}
	assert.True(t, found)
}

func TestHarness_RunMany_IndependentRuns(t *testing.T) {
	h := harness.New(nil, nil)
	specs := []harness.RunSpec{
		baseSpec("a", 1),
		baseSpec("b", 2),
		baseSpec("c", 3),
	}

	results, err := h.RunMany(context.Background(), specs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, spec := range specs {
		assert.Equal(t, spec.Name, results[i].Name)
		for id, agg := range results[i].FinalAggregate {
			assert.InDeltaf(t, 3.0, agg, 1e-3, "run %s node %s", spec.Name, id)
		}
	}
}

func TestHarness_RunMany_CancelledContext(t *testing.T) {
	h := harness.New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.RunMany(ctx, []harness.RunSpec{baseSpec("a", 1)})
	assert.Error(t, err)
}
