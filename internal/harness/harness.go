// Package harness wires a topology, a set of Push-Sum nodes, and a
// Simulator into one runnable unit, and fans independent runs out
// concurrently for parameter sweeps. It is the one place a simulation
// boundary is crossed by goroutines: each run owns its own RNG, its
// own node set, and its own Simulator — nothing is shared, so runs can
// execute in parallel without synchronization.
package harness

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/metrics"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/node"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/simlog"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/simulator"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/topology"
)

// RunSpec parameterizes one simulation run.
type RunSpec struct {
	Name string

	Graph      topology.Graph
	InitialMsg message.Msg
	SeedNode   message.NodeID

	Fanout      int
	NoNewsSize  int
	FaultChance float64
	HorizonMs   int64

	// InitialSum supplies each node's starting sum by id; nodes absent
	// from the map start at 0.
	InitialSum map[message.NodeID]float64

	Seed int64
}

// RunResult is the outcome of one run: the final per-node state plus
// the simulation-level counters a caller would otherwise have to pull
// off the Simulator and every node by hand.
type RunResult struct {
	Name string

	CurrentInstant  int64
	EventsDelivered int
	EventsDropped   int
	Retransmissions int
	MessagesByKind  map[message.MsgKind]int

	FinalAggregate map[message.NodeID]float64
	FinalRound     map[message.NodeID]int
}

// Harness builds and runs Simulators from RunSpecs. Metrics is
// optional (nil-safe): passing nil opts out of Prometheus export
// entirely.
type Harness struct {
	Metrics *metrics.Metrics
	Logger  *simlog.Logger
}

// New constructs a Harness. A nil metrics registry is valid and simply
// means RunMany does not export Prometheus collectors.
func New(m *metrics.Metrics, logger *simlog.Logger) *Harness {
	if logger == nil {
		logger = simlog.Default("harness")
	}
	return &Harness{Metrics: m, Logger: logger}
}

// Run executes one RunSpec to quiescence or horizon and returns its
// result. Panics if spec.Graph is nil or spec.Fanout is negative —
// both are construction-time misuse, not runtime conditions.
func (h *Harness) Run(spec RunSpec) RunResult {
	if spec.Graph == nil {
		panic("harness: RunSpec.Graph must not be nil")
	}
	if spec.Fanout < 0 {
		panic("harness: RunSpec.Fanout must not be negative")
	}

	adapter := topology.Adapt(spec.Graph)
	rng := rand.New(rand.NewSource(spec.Seed))

	nodes := make(map[message.NodeID]node.Handler, len(adapter.Neighbors))
	for id, neighbors := range adapter.Neighbors {
		nodes[id] = node.New(node.Config{
			ID:         id,
			Neighbors:  neighbors,
			Fanout:     spec.Fanout,
			NoNewsSize: spec.NoNewsSize,
			InitialSum: spec.InitialSum[id],
			RNG:        rand.New(rand.NewSource(rng.Int63())),
			Logger:     h.Logger.With("run", spec.Name),
		})
	}

	sim := simulator.New(nodes, adapter.Distances, spec.FaultChance, spec.HorizonMs, rng)
	sim.Start(spec.InitialMsg, spec.SeedNode)

	result := RunResult{
		Name:            spec.Name,
		CurrentInstant:  sim.CurrentInstant(),
		EventsDelivered: sim.EventsDelivered(),
		EventsDropped:   sim.EventsDropped(),
		Retransmissions: sim.Retransmissions(),
		MessagesByKind:  sim.MessagesByKind(),
		FinalAggregate:  make(map[message.NodeID]float64, len(nodes)),
		FinalRound:      make(map[message.NodeID]int, len(nodes)),
	}

	for id, n := range nodes {
		pn, ok := n.(*node.Node)
		if !ok {
			continue
		}
		result.FinalAggregate[id] = pn.Aggregate()
		result.FinalRound[id] = pn.Round()
	}

	if h.Metrics != nil {
		h.Metrics.EventsDelivered.Add(float64(result.EventsDelivered))
		h.Metrics.EventsDropped.Add(float64(result.EventsDropped))
		h.Metrics.Retransmissions.Add(float64(result.Retransmissions))
		h.Metrics.ObserveMessageCounts(result.MessagesByKind)
		h.Metrics.RunDurationMs.Set(float64(result.CurrentInstant))
		for id := range nodes {
			h.Metrics.ObserveNode(id, result.FinalRound[id], result.FinalAggregate[id])
		}
	}

	h.Logger.Info("run complete", "name", spec.Name, "instant", result.CurrentInstant, "delivered", result.EventsDelivered)
	return result
}

// RunMany executes specs concurrently, one goroutine per run via
// errgroup.Group, and returns results in the same order as specs. The
// first run to return an error cancels ctx for the rest; Run itself
// never returns an error (construction misuse panics instead), so in
// practice RunMany only ever fails if ctx is already canceled before
// a run starts. Completion and cancellation are logged against ctx via
// InfoCtx/ErrorCtx so a caller's tracing/cancellation deadline is
// attached to the log record.
func (h *Harness) RunMany(ctx context.Context, specs []RunSpec) ([]RunResult, error) {
	results := make([]RunResult, len(specs))
	g, ctx := errgroup.WithContext(ctx)

	for i, spec := range specs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				h.Logger.ErrorCtx(ctx, "run skipped: context already done", "name", spec.Name, "err", err)
				return err
			}
			results[i] = h.Run(spec)
			h.Logger.InfoCtx(ctx, "run finished", "name", spec.Name, "index", i)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		h.Logger.ErrorCtx(ctx, "run batch cancelled", "err", err)
		return nil, simlog.WrapError(err, "harness: run cancelled")
	}
	return results, nil
}
