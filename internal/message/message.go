// Package message defines the wire-level vocabulary the simulator and
// the Push-Sum node exchange: node identifiers, message identifiers,
// the tagged Msg variant, and the scheduler's Event tuple.
package message

import "fmt"

// NodeID is an opaque node identifier. The simulator never interprets
// it beyond equality and hashing.
type NodeID string

// MsgID uniquely identifies a message within its originating node's
// lifetime, shaped "[node,seq]" per the protocol's id convention.
type MsgID string

// NewMsgID allocates a fresh identifier for a message originated by
// origin with the given per-node monotonic sequence number.
func NewMsgID(origin NodeID, seq uint64) MsgID {
	return MsgID(fmt.Sprintf("[%s,%d]", origin, seq))
}

// MsgKind discriminates the tagged Msg variants. GC, IHAVE, ASK, and
// PERIODIC belong to a hybrid eager/lazy gossip variant and are not
// used by the Push-Sum core; they are omitted here rather than carried
// as dead enum arms.
type MsgKind int

const (
	KindGossipRequest MsgKind = iota
	KindGossipResponse
	KindAck
	KindRetransmission
)

func (k MsgKind) String() string {
	switch k {
	case KindGossipRequest:
		return "GOSSIP_REQUEST"
	case KindGossipResponse:
		return "GOSSIP_RESPONSE"
	case KindAck:
		return "ACK"
	case KindRetransmission:
		return "RETRANSMISSION"
	default:
		return "UNKNOWN"
	}
}

// GossipPayload carries a Push-Sum (sum, weight) pair tagged with the
// round it belongs to.
type GossipPayload struct {
	Round  int
	Sum    float64
	Weight float64
}

// Msg is the tagged variant exchanged between nodes. Exactly one of
// Gossip, AckOf, or Retrans is meaningful, selected by Kind.
type Msg struct {
	Kind MsgKind
	ID   MsgID

	// Gossip is set iff Kind is KindGossipRequest or KindGossipResponse.
	Gossip *GossipPayload

	// AckOf is set iff Kind == KindAck: the id of the message being
	// acknowledged.
	AckOf MsgID

	// Retrans is set iff Kind == KindRetransmission: the full original
	// outbound tuple to be re-sent.
	Retrans *Retransmission
}

// Retransmission is the payload of a self-addressed RETRANSMISSION
// event: the original message plus the destination it was bound for,
// so the reliability controller can look its timer up by id and,
// if still pending, re-issue it with a fresh identity.
type Retransmission struct {
	Dst     NodeID
	Msg     Msg
}

// Outbound is one tuple a node handler returns: a message to deliver
// to dst after delay logical-time units (in addition to link
// distance, which the simulator adds).
type Outbound struct {
	Dst   NodeID
	Msg   Msg
	Delay int64
}

// Event is a scheduled (instant, src, dst, msg) tuple. SrcIsBootstrap
// marks the seed event, whose source has no node identity; NodeID("")
// is otherwise a legal opaque id, so the sentinel is carried
// explicitly rather than overloaded onto it.
type Event struct {
	Instant        int64
	Src            NodeID
	SrcIsBootstrap bool
	Dst            NodeID
	Msg            Msg

	// seq is the insertion sequence number, used only to break ties
	// between events sharing the same Instant (FIFO order).
	seq uint64
}

// WithSeq returns a copy of e stamped with the given insertion
// sequence number. Used by the scheduler at push time.
func (e Event) WithSeq(seq uint64) Event {
	e.seq = seq
	return e
}

// Seq returns the insertion sequence number stamped by the scheduler.
func (e Event) Seq() uint64 { return e.seq }

// SelfAddressed reports whether the event is a node talking to itself
// (used for retransmission timers).
func (e Event) SelfAddressed() bool {
	return !e.SrcIsBootstrap && e.Src == e.Dst
}
