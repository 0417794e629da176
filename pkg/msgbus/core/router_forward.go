package core

import (
	"encoding/binary"
	"time"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// forwardOne implements the forwarding algorithm (spec §4.2 "Forwarding
// algorithm") for one message fetched from ingress (nil means it arrived on
// the parent uplink).
func (r *Router) forwardOne(ingress *routedNode, msg types.Message, now time.Time) {
	if msg.ExceedsHopCeiling() {
		r.stats.recordDropped()
		return
	}
	if msg.Age.TooOld(msg.Priority) {
		r.stats.recordDropped()
		return
	}
	r.stats.recordAge(msg.Age.Duration())
	msg = msg.Forwarded(0)

	fromParent := ingress == nil
	if msg.ID.IsSpecial() && msg.ID != types.MsgBlobFragment && msg.ID != types.MsgBlobResend {
		if !r.dispatchSpecial(ingress, msg, now) {
			return
		}
	}

	if msg.TargetID.IsValid() {
		r.forwardTargeted(fromParent, msg)
		return
	}
	r.forwardBroadcast(ingress, fromParent, msg)
}

func (r *Router) forwardTargeted(fromParent bool, msg types.Message) {
	if _, gone := r.recentlyDisconnected[msg.TargetID]; gone {
		r.stats.recordDropped()
		return
	}
	if node, ok := r.nodes[msg.TargetID]; ok {
		if node.admits(msg.ID) && node.conn.Send(msg) {
			r.stats.recordForwarded()
			return
		}
		r.stats.recordDropped()
		return
	}
	if r.parent != nil && !fromParent {
		if r.parent.Send(msg) {
			r.stats.recordForwarded()
			return
		}
	}
	r.stats.recordDropped()
}

func (r *Router) forwardBroadcast(ingress *routedNode, fromParent bool, msg types.Message) {
	anyLocal := r.broadcastTo(ingress, msg)
	anyParent := false
	if r.parent != nil && !fromParent {
		anyParent = r.parent.Send(msg)
	}
	if anyLocal || anyParent {
		r.stats.recordForwarded()
		return
	}
	r.stats.recordDropped()
}

// broadcastTo fans msg out to every node subscribed to msg.ID, plus every
// node whose maybe_router flag is still set, excluding ingress (spec §4.2
// step 6). Iteration order over subscribers is ascending by id; the
// maybe_router sweep has no ordering guarantee (spec §5 "Ordering" (e)).
func (r *Router) broadcastTo(ingress *routedNode, msg types.Message) bool {
	any := false
	sent := make(map[types.EndpointID]bool)

	for _, id := range r.subs.subscribers(msg.ID) {
		node, ok := r.nodes[id]
		if !ok || node == ingress {
			continue
		}
		sent[id] = true
		if node.admits(msg.ID) && node.conn.Send(msg) {
			any = true
		}
	}
	for id, node := range r.nodes {
		if sent[id] || node == ingress || !node.maybeRouter {
			continue
		}
		if node.admits(msg.ID) && node.conn.Send(msg) {
			any = true
		}
	}
	return any
}

// dispatchSpecial handles one bus-internal message locally (spec §4.2 step
// 4). It returns whether the message should still be forwarded onward
// (true only for the observed-and-forwarded carve-out).
func (r *Router) dispatchSpecial(ingress *routedNode, msg types.Message, now time.Time) bool {
	switch msg.ID {
	case types.MsgSubscribeTo:
		if ingress == nil {
			return false
		}
		// only endpoints announce their own subscriptions.
		ingress.maybeRouter = false
		if target, ok := decodeMessageID(msg.Payload); ok {
			r.subs.subscribe(ingress.id, target)
			if info := r.infos[ingress.id]; info != nil {
				info.Subscribe(target)
			}
		}
		return false

	case types.MsgUnsubFrom:
		if ingress == nil {
			return false
		}
		if target, ok := decodeMessageID(msg.Payload); ok {
			r.subs.unsubscribe(ingress.id, target)
			if info := r.infos[ingress.id]; info != nil {
				info.Unsubscribe(target)
			}
		}
		return false

	case types.MsgQrySubscrp:
		if ingress == nil {
			return false
		}
		if info := r.infos[msg.TargetID]; info != nil {
			ingress.conn.Send(types.RespondTo(msg, msg.TargetID, types.MsgQrySubscrp, encodeSubscriptionList(info.SubscriptionList())))
		}
		return false

	case types.MsgQrySubscrb:
		if ingress == nil {
			return false
		}
		queried, ok := decodeMessageID(msg.Payload)
		if !ok {
			return false
		}
		reply := types.MsgNotSubTo
		if info := r.infos[msg.TargetID]; info != nil && info.IsSubscribed(queried) {
			reply = types.MsgSubscribeTo
		}
		ingress.conn.Send(types.RespondTo(msg, msg.TargetID, reply, msg.Payload))
		return false

	case types.MsgClrBlkList:
		if ingress != nil {
			ingress.filter.ClearBlock()
		}
		return false
	case types.MsgMsgBlkList:
		if ingress != nil {
			if id, ok := decodeMessageID(msg.Payload); ok {
				ingress.filter.Block(id)
			}
		}
		return false
	case types.MsgClrAlwList:
		if ingress != nil {
			ingress.filter.ClearAllow()
		}
		return false
	case types.MsgMsgAlwList:
		if ingress != nil {
			if id, ok := decodeMessageID(msg.Payload); ok {
				ingress.filter.Allow(id)
			}
		}
		return false

	case types.MsgNotARouter:
		if ingress != nil {
			ingress.maybeRouter = false
		}
		return false

	case types.MsgAnnounceID:
		if ingress != nil {
			if info := r.infos[ingress.id]; info != nil {
				info.Touch(now)
			}
		}
		return types.IsObservedAndForwarded(msg.ID)

	case types.MsgStillAlive:
		if ingress != nil {
			if info := r.infos[ingress.id]; info != nil {
				info.Touch(now)
				if info.ObserveProcessInstance(msg.SequenceNo) {
					r.log.Warnf("endpoint %s re-launched: process instance changed", ingress.id)
				}
			}
		}
		return types.IsObservedAndForwarded(msg.ID)

	case types.MsgByeByeEndp, types.MsgByeByeBridge:
		if ingress != nil {
			r.teardownNode(ingress.id, now)
		}
		return false

	case types.MsgPing:
		if ingress != nil {
			ingress.conn.Send(types.RespondTo(msg, 0, types.MsgPong, msg.Payload))
		}
		return false
	}

	return types.IsObservedAndForwarded(msg.ID)
}

// encodeMessageID and decodeMessageID mirror the endpoint package's wire
// shape for (class, method) pairs: a 2-byte length prefix ahead of each
// field. Duplicated rather than imported to avoid a core<->endpoint cycle;
// both sides speak the same format by construction (spec §4.1/§4.2 rely on
// it for the identical subscription-query/subscriber-query exchange).
func encodeMessageID(id types.MessageID) []byte {
	class := []byte(id.Class)
	method := []byte(id.Method)
	buf := make([]byte, 2+len(class)+2+len(method))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(class)))
	copy(buf[2:], class)
	off := 2 + len(class)
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(method)))
	copy(buf[off+2:], method)
	return buf
}

func decodeMessageID(buf []byte) (types.MessageID, bool) {
	if len(buf) < 2 {
		return types.MessageID{}, false
	}
	cl := binary.BigEndian.Uint16(buf[0:2])
	if len(buf) < int(2+cl+2) {
		return types.MessageID{}, false
	}
	class := string(buf[2 : 2+cl])
	rest := buf[2+cl:]
	ml := binary.BigEndian.Uint16(rest[0:2])
	if len(rest) < int(2+ml) {
		return types.MessageID{}, false
	}
	method := string(rest[2 : 2+ml])
	return types.NewMessageID(types.MessageClass(class), method), true
}

func encodeSubscriptionList(ids []types.MessageID) []byte {
	var out []byte
	for _, id := range ids {
		enc := encodeMessageID(id)
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(enc)))
		out = append(out, lenBuf...)
		out = append(out, enc...)
	}
	return out
}
