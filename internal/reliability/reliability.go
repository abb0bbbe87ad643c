// Package reliability implements the per-link adaptive retransmission
// estimator (Jacobson SRTT/RTTVAR/RTO) used by each Push-Sum node to
// recover from message loss without the node ever observing loss
// directly. The per-neighbor map-of-state-guarded-by-a-mutex shape,
// plus the component-scoped logger, follow the same pattern as the
// project's reputation manager (per-peer state table, EMA update,
// NewX(logger) constructor).
package reliability

import (
	"sync"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
	"github.com/nmxmxh/pushsum-gossip-sim/internal/simlog"
)

const (
	initialRTO    = 60
	minRTO        = 20
	maxRTO        = 1000
	unsetEstimate = -1
)

type linkState struct {
	rto, srtt, rttvar float64
}

// Controller tracks, per destination neighbor, the adaptive RTO
// estimate and the set of in-flight messages awaiting an ACK.
type Controller struct {
	mu     sync.Mutex
	links  map[message.NodeID]*linkState
	timers map[message.MsgID]int64 // msg id -> send instant
	logger *simlog.Logger
}

// New creates an empty Controller. logger may be nil, in which case a
// default component logger is used.
func New(logger *simlog.Logger) *Controller {
	if logger == nil {
		logger = simlog.Default("reliability")
	}
	return &Controller{
		links:  make(map[message.NodeID]*linkState),
		timers: make(map[message.MsgID]int64),
		logger: logger,
	}
}

func (c *Controller) linkFor(dst message.NodeID) *linkState {
	ls, ok := c.links[dst]
	if !ok {
		ls = &linkState{rto: initialRTO, srtt: unsetEstimate, rttvar: unsetEstimate}
		c.links[dst] = ls
	}
	return ls
}

// RTO returns the current retransmission timeout for dst, creating its
// link state with the initial estimate if this is the first contact.
func (c *Controller) RTO(dst message.NodeID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(c.linkFor(dst).rto)
}

// OnSafeSend records that id was sent to dst at instant now and is
// awaiting an ACK. The caller is responsible for also scheduling the
// self-addressed RETRANSMISSION event with delay RTO(dst).
func (c *Controller) OnSafeSend(id message.MsgID, now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[id] = now
}

// OnAck processes an ACK for id received from src at instant now,
// updating src's SRTT/RTTVAR/RTO per Jacobson's algorithm and clearing
// the in-flight timer. It reports whether a timer for id was found
// (false means the ACK is stale/duplicate and nothing else was done).
func (c *Controller) OnAck(src message.NodeID, id message.MsgID, now int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sendInstant, ok := c.timers[id]
	if !ok {
		return false
	}
	delete(c.timers, id)

	rtt := float64(now - sendInstant)
	ls := c.linkFor(src)

	if ls.srtt == unsetEstimate {
		ls.srtt = rtt
		ls.rttvar = rtt / 2
	} else {
		ls.rttvar = 0.75*ls.rttvar + 0.25*abs(ls.srtt-rtt)
		ls.srtt = 0.875*ls.srtt + 0.125*rtt
	}
	ls.rto = clamp(ls.srtt+max(minRTO, 4*ls.rttvar), minRTO, maxRTO)

	c.logger.Debug("ack processed", "peer", string(src), "msg_id", string(id), "rtt", rtt, "rto", ls.rto)
	return true
}

// HasPendingTimer reports whether id is still awaiting an ACK. Used by
// a firing RETRANSMISSION event to decide whether to suppress itself:
// if the timer for the referenced msg id is absent, the ACK was
// received meanwhile and the retransmission should drop silently.
func (c *Controller) HasPendingTimer(id message.MsgID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[id]
	return ok
}

// ClearTimer removes the in-flight entry for id, used when replacing a
// retransmitted message's timer with its successor.
func (c *Controller) ClearTimer(id message.MsgID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, id)
}

// OnRetransmissionFire applies exponential backoff to dst's RTO,
// doubling it up to maxRTO. The caller is responsible for re-issuing
// the message with a new unique id, installing a new timer via
// OnSafeSend, and scheduling a new RETRANSMISSION event with delay
// RTO(dst).
func (c *Controller) OnRetransmissionFire(dst message.NodeID) (newRTO int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.linkFor(dst)
	ls.rto = min(ls.rto*2, maxRTO)
	c.logger.Debug("retransmission backoff", "peer", string(dst), "rto", ls.rto)
	return int64(ls.rto)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func clamp(x, lo, hi float64) float64 {
	return min(max(x, lo), hi)
}
