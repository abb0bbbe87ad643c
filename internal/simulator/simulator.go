// Package simulator implements a faulty discrete-event simulator: it
// drives the event scheduler, applies probabilistic message loss and a
// validity filter, invokes node handlers, and bounds a run by a
// logical-time horizon. The New/Start/Proceed API shape and the
// "horizon is the only cancellation mechanism" pattern follow the
// shared-clock loop structure of the one discrete-event cluster
// simulator found in the reference corpus.
package simulator

import (
	"math/rand"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/node"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/scheduler"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/simlog"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/topology"
)

// Simulator drives one simulation run to quiescence or horizon. It is
// not safe for concurrent use by multiple goroutines; Harness.RunMany
// runs independent Simulator values on separate goroutines instead of
// sharing one.
type Simulator struct {
	nodes       map[message.NodeID]node.Handler
	distances   *topology.Distances
	faultChance float64
	horizon     int64

	queue          *scheduler.Queue
	currentInstant int64
	delivered      []message.Event

	rng    *rand.Rand
	logger *simlog.Logger

	// Stats, exported via internal/metrics by the harness.
	eventsDelivered    int
	eventsDropped      int
	messagesByKind     map[message.MsgKind]int
	retransmissions    int
}

// New constructs a Simulator over the given nodes and distance table.
// faultChance is the per-delivery independent Bernoulli loss
// probability; horizonMs bounds logical time. rng must be supplied by
// the caller (per-simulation seeding, not process-global, so
// concurrent runs never share mutable RNG state); a nil rng is
// replaced with an unseeded-but-deterministic default so the zero
// value is still usable in tests.
func New(nodes map[message.NodeID]node.Handler, distances *topology.Distances, faultChance float64, horizonMs int64, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	return &Simulator{
		nodes:          nodes,
		distances:      distances,
		faultChance:    faultChance,
		horizon:        horizonMs,
		queue:          scheduler.New(),
		rng:            rng,
		logger:         simlog.Default("simulator"),
		messagesByKind: make(map[message.MsgKind]int),
	}
}

// Start seeds one event at instant 0 with src = ⊥ (bootstrap) destined
// for initialNode, runs the loop, and returns the ordered list of
// delivered events (the audit trail).
func (s *Simulator) Start(initialMsg message.Msg, initialNode message.NodeID) []message.Event {
	s.queue.Push(message.Event{
		Instant:        0,
		SrcIsBootstrap: true,
		Dst:            initialNode,
		Msg:            initialMsg,
	})
	s.run()
	return s.delivered
}

// Proceed extends the horizon by extraMs and resumes the loop.
func (s *Simulator) Proceed(extraMs int64) []message.Event {
	s.horizon += extraMs
	s.run()
	return s.delivered
}

// CurrentInstant returns the logical time reached so far.
func (s *Simulator) CurrentInstant() int64 { return s.currentInstant }

// EventsDelivered returns the count of events that passed the loss and
// validity filters and were dispatched to a node handler.
func (s *Simulator) EventsDelivered() int { return s.eventsDelivered }

// EventsDropped returns the count of events dropped by the loss
// filter.
func (s *Simulator) EventsDropped() int { return s.eventsDropped }

// MessagesByKind returns a copy of the per-kind delivered message
// counts.
func (s *Simulator) MessagesByKind() map[message.MsgKind]int {
	out := make(map[message.MsgKind]int, len(s.messagesByKind))
	for k, v := range s.messagesByKind {
		out[k] = v
	}
	return out
}

// Retransmissions returns the count of delivered RETRANSMISSION
// events that actually re-issued a message (timer still pending).
func (s *Simulator) Retransmissions() int { return s.retransmissions }

func (s *Simulator) run() {
	for !s.queue.Empty() && s.currentInstant <= s.horizon {
		e, ok := s.queue.PopMin()
		if !ok {
			break
		}
		s.currentInstant = e.Instant

		if s.shouldDrop(e) {
			s.eventsDropped++
			continue
		}
		if !s.isValid(e) {
			continue
		}

		s.delivered = append(s.delivered, e)
		s.eventsDelivered++
		s.messagesByKind[e.Msg.Kind]++

		handler, ok := s.nodes[e.Dst]
		if !ok {
			continue
		}
		outgoing := handler.Handle(e.Src, e.SrcIsBootstrap, e.Msg, s.currentInstant)
		if e.Msg.Kind == message.KindRetransmission && len(outgoing) > 0 {
			s.retransmissions++
		}
		for _, o := range outgoing {
			distance := s.linkDistance(e.Dst, o.Dst)
			s.queue.Push(message.Event{
				Instant: s.currentInstant + distance + o.Delay,
				Src:     e.Dst,
				Dst:     o.Dst,
				Msg:     o.Msg,
			})
		}
	}
}

// shouldDrop applies the loss filter. The seed event (bootstrap) and
// self-addressed retransmission timers are exempt from loss: exempting
// the bootstrap guarantees the run always starts, and exempting
// self-events guarantees a retransmission timer always fires so the
// reliability controller can observe it and decide whether to suppress
// itself.
func (s *Simulator) shouldDrop(e message.Event) bool {
	if e.SrcIsBootstrap {
		return false
	}
	if e.Src == e.Dst {
		return false
	}
	return s.rng.Float64() < s.faultChance
}

// isValid applies the validity filter: reject if dst is not a known
// node; otherwise accept if an edge exists between src and dst (either
// direction), or the event is self-addressed, or it is the bootstrap
// seed.
func (s *Simulator) isValid(e message.Event) bool {
	if _, ok := s.nodes[e.Dst]; !ok {
		return false
	}
	if e.SrcIsBootstrap || e.Src == e.Dst {
		return true
	}
	_, ok := s.distances.Lookup(e.Src, e.Dst)
	return ok
}

// linkDistance resolves the delay charged to a message from src to
// dst: 0 for self-addressed events (retransmission timers), otherwise
// the symmetric edge distance.
func (s *Simulator) linkDistance(src, dst message.NodeID) int64 {
	if src == dst {
		return 0
	}
	d, ok := s.distances.Lookup(src, dst)
	if !ok {
		return 0
	}
	return d
}
