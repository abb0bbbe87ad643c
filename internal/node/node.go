// Package node implements the Push-Sum gossip state machine: the
// request/response/ack/retransmission message handling, round
// advancement, and local termination detection for one participant.
// The struct shape — mutex-guarded per-round maps, a component-scoped
// logger, a bloom-filter duplicate pre-check in front of the
// authoritative dedup sets — follows the project's own gossip manager
// (seenFilter-backed deduplication, slog logging).
package node

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/reliability"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/simlog"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/window"
)

// Handler is the minimal interface a node implementation exposes to
// the simulator. *Node (Push-Sum) is the only implementation shipped;
// the interface exists so a future hybrid eager/lazy node (an
// IHAVE/ASK/PERIODIC/GC gossip variant) could be substituted without
// touching the scheduler or simulator.
type Handler interface {
	Handle(src message.NodeID, bootstrap bool, msg message.Msg, instant int64) []message.Outbound
}

// Node is one Push-Sum participant: (sum, weight) state, per-round
// request/response bookkeeping, and an embedded link reliability
// controller.
type Node struct {
	mu sync.Mutex

	id        message.NodeID
	neighbors []message.NodeID
	fanout    int

	sum, weight float64
	round       int
	aggregate   float64

	responded map[int]map[message.NodeID]struct{}
	requested map[int]map[message.NodeID]struct{}

	noNews *window.Window[float64]

	reliability *reliability.Controller
	seqCounter  uint64
	seen        *bloom.BloomFilter

	rng    *rand.Rand
	logger *simlog.Logger
}

// Config parameterizes a new Node.
type Config struct {
	ID         message.NodeID
	Neighbors  []message.NodeID
	Fanout     int
	NoNewsSize int

	// InitialSum is the node's starting sum (the per-node
	// "initial_value" configuration knob). Every node starts at
	// weight=1 (standard push-sum initialization: Σweight is conserved
	// at N for the life of the run, which is what makes the aggregate
	// converge to the mean of the injected sums rather than their
	// total). The seed event's own payload carries weight 0 — it
	// credits nothing — and the bootstrap node's local weight is
	// already 1 by construction; the bootstrap branch of Handle only
	// reconfirms it there.
	InitialSum float64

	RNG    *rand.Rand
	Logger *simlog.Logger
}

// New constructs a Node in its initial state: sum=cfg.InitialSum,
// weight=1, round=0, no responses or requests recorded for any round.
func New(cfg Config) *Node {
	fanout := cfg.Fanout
	if fanout > len(cfg.Neighbors) {
		fanout = len(cfg.Neighbors)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = simlog.Default("node")
	}
	rng := cfg.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Node{
		id:          cfg.ID,
		neighbors:   append([]message.NodeID(nil), cfg.Neighbors...),
		fanout:      fanout,
		sum:         cfg.InitialSum,
		weight:      1,
		responded:   make(map[int]map[message.NodeID]struct{}),
		requested:   make(map[int]map[message.NodeID]struct{}),
		noNews:      window.New[float64](cfg.NoNewsSize),
		reliability: reliability.New(logger.With("subcomponent", "reliability")),
		seen:        bloom.NewWithEstimates(2048, 0.01),
		rng:         rng,
		logger:      logger.With("node", string(cfg.ID)),
	}
}

// Handle processes one incoming message and returns zero or more
// outgoing tuples for the simulator to schedule. bootstrap=true marks
// the seed event (src has no node identity); src is meaningless in
// that case.
func (n *Node) Handle(src message.NodeID, bootstrap bool, msg message.Msg, instant int64) []message.Outbound {
	n.mu.Lock()
	defer n.mu.Unlock()

	if bootstrap {
		// The seed node's weight is already 1 by construction; this
		// just reconfirms it before the node kicks off round
		// advancement. No payload is credited.
		n.weight = 1
		return n.attemptRoundAdvancement(instant)
	}

	switch msg.Kind {
	case message.KindGossipRequest:
		return n.handleRequest(src, msg, instant)
	case message.KindGossipResponse:
		return n.handleResponse(src, msg, instant)
	case message.KindAck:
		n.reliability.OnAck(src, msg.AckOf, instant)
		return nil
	case message.KindRetransmission:
		return n.handleRetransmission(msg, instant)
	default:
		return nil
	}
}

func (n *Node) handleRequest(src message.NodeID, msg message.Msg, instant int64) []message.Outbound {
	r := msg.Gossip.Round

	if n.isDuplicateRequest(r, src) {
		return []message.Outbound{n.ack(src, msg.ID)}
	}
	n.markRequested(r, src)

	// Halve-and-respond occurs before crediting the incoming payload,
	// so the responder mixes its pre-merge half back into the sender.
	n.sum /= 2
	n.weight /= 2

	responseID := n.nextMsgID()
	response := message.Msg{
		Kind: message.KindGossipResponse,
		ID:   responseID,
		Gossip: &message.GossipPayload{
			Round:  r,
			Sum:    n.sum,
			Weight: n.weight,
		},
	}

	n.sum += msg.Gossip.Sum
	n.weight += msg.Gossip.Weight

	out := n.safeSend(src, response, instant)
	out = append(out, n.ack(src, msg.ID))
	out = append(out, n.attemptRoundAdvancement(instant)...)
	return out
}

func (n *Node) handleResponse(src message.NodeID, msg message.Msg, instant int64) []message.Outbound {
	r := msg.Gossip.Round

	if n.isDuplicateResponse(r, src) {
		return []message.Outbound{n.ack(src, msg.ID)}
	}
	n.markResponded(r, src)

	n.sum += msg.Gossip.Sum
	n.weight += msg.Gossip.Weight

	out := []message.Outbound{n.ack(src, msg.ID)}
	out = append(out, n.attemptRoundAdvancement(instant)...)
	return out
}

func (n *Node) handleRetransmission(msg message.Msg, instant int64) []message.Outbound {
	retr := msg.Retrans
	if !n.reliability.HasPendingTimer(retr.Msg.ID) {
		// The ACK was received meanwhile; drop silently.
		return nil
	}
	n.reliability.OnRetransmissionFire(retr.Dst)
	n.reliability.ClearTimer(retr.Msg.ID)

	renewed := retr.Msg
	renewed.ID = n.nextMsgID() // fresh identity for the renewed attempt
	return n.safeSend(retr.Dst, renewed, instant)
}

// safeSend installs a timer for msg and schedules a self-addressed
// RETRANSMISSION carrying the original tuple, so a missing ACK within
// the link's RTO can trigger a retry.
func (n *Node) safeSend(dst message.NodeID, msg message.Msg, now int64) []message.Outbound {
	n.reliability.OnSafeSend(msg.ID, now)
	rto := n.reliability.RTO(dst)

	retransMsg := message.Msg{
		Kind:    message.KindRetransmission,
		ID:      n.nextMsgID(),
		Retrans: &message.Retransmission{Dst: dst, Msg: msg},
	}

	return []message.Outbound{
		{Dst: dst, Msg: msg, Delay: 0},
		{Dst: n.id, Msg: retransMsg, Delay: rto},
	}
}

func (n *Node) ack(dst message.NodeID, of message.MsgID) message.Outbound {
	return message.Outbound{
		Dst: dst,
		Msg: message.Msg{Kind: message.KindAck, ID: n.nextMsgID(), AckOf: of},
	}
}

// attemptRoundAdvancement decides whether the node has heard back from
// enough of the current round's peers, and its aggregate has not yet
// saturated the no-news window, to push a new round out to a fresh
// fanout sample. It is
// called after every GOSSIP handling (and once, for the bootstrap
// event).
func (n *Node) attemptRoundAdvancement(now int64) []message.Outbound {
	if n.weight == 0 {
		n.aggregate = n.sum
	} else {
		n.aggregate = math.Round(n.sum/n.weight*1000) / 1000
	}

	respondedSet, exists := n.responded[n.round]
	condA := !exists || len(respondedSet) >= n.fanout
	condB := !n.noNews.AllEqual(n.aggregate)

	var out []message.Outbound
	if condA && condB {
		n.round++
		n.responded[n.round] = make(map[message.NodeID]struct{})

		chosen := n.pickFanout()
		denom := float64(n.fanout + 1)
		n.sum /= denom
		n.weight /= denom

		for _, nb := range chosen {
			msg := message.Msg{
				Kind: message.KindGossipRequest,
				ID:   n.nextMsgID(),
				Gossip: &message.GossipPayload{
					Round:  n.round,
					Sum:    n.sum,
					Weight: n.weight,
				},
			}
			out = append(out, n.safeSend(nb, msg, now)...)
		}
		n.logger.Debug("round advanced", "round", n.round, "fanout", len(chosen), "aggregate", n.aggregate)
	}

	n.noNews.Add(n.aggregate)
	return out
}

// pickFanout shuffles the neighbor list and returns the first fanout
// distinct entries.
func (n *Node) pickFanout() []message.NodeID {
	if n.fanout == 0 {
		return nil
	}
	shuffled := append([]message.NodeID(nil), n.neighbors...)
	n.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n.fanout]
}

func (n *Node) nextMsgID() message.MsgID {
	n.seqCounter++
	return message.NewMsgID(n.id, n.seqCounter)
}

func (n *Node) isDuplicateRequest(round int, src message.NodeID) bool {
	key := fmt.Sprintf("req:%d:%s", round, src)
	if !n.seen.TestString(key) {
		// The bloom filter guarantees no false negatives, so a miss is
		// conclusive: this cannot be a duplicate.
		return false
	}
	_, dup := n.requested[round][src]
	return dup
}

func (n *Node) isDuplicateResponse(round int, src message.NodeID) bool {
	key := fmt.Sprintf("resp:%d:%s", round, src)
	if !n.seen.TestString(key) {
		return false
	}
	_, dup := n.responded[round][src]
	return dup
}

func (n *Node) markRequested(round int, src message.NodeID) {
	if n.requested[round] == nil {
		n.requested[round] = make(map[message.NodeID]struct{})
	}
	n.requested[round][src] = struct{}{}
	n.seen.AddString(fmt.Sprintf("req:%d:%s", round, src))
}

func (n *Node) markResponded(round int, src message.NodeID) {
	if n.responded[round] == nil {
		n.responded[round] = make(map[message.NodeID]struct{})
	}
	n.responded[round][src] = struct{}{}
	n.seen.AddString(fmt.Sprintf("resp:%d:%s", round, src))
}

// Aggregate returns the node's last computed sum/weight ratio.
func (n *Node) Aggregate() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.aggregate
}

// Round returns the node's current round number.
func (n *Node) Round() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.round
}

// Sum returns the node's current sum share (for mass-conservation
// property tests).
func (n *Node) Sum() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sum
}

// Weight returns the node's current weight share.
func (n *Node) Weight() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.weight
}

// RTO returns the current retransmission timeout estimate for the
// link to dst (for reliability-controller assertions in tests).
func (n *Node) RTO(dst message.NodeID) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reliability.RTO(dst)
}

// ID returns the node's identifier.
func (n *Node) ID() message.NodeID { return n.id }

// Terminated reports whether the node has locally detected
// convergence (its no-news window is saturated with its current
// aggregate).
func (n *Node) Terminated() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.noNews.AllEqual(n.aggregate)
}

var _ Handler = (*Node)(nil)
