package endpoint

import (
	"encoding/binary"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// dispatchSpecial handles one bus-internal message before it would
// otherwise reach an inbox queue (spec §4.1 "Special-message handling").
// It returns true if the message was fully consumed here.
func (e *Endpoint) dispatchSpecial(msg types.Message) bool {
	switch msg.ID {
	case types.MsgAssignID:
		if len(msg.Payload) < 8 {
			return true
		}
		id := types.EndpointID(binary.BigEndian.Uint64(msg.Payload))
		e.id.AssignFromRouter(id)
		e.id.MarkUsable()
		e.signals.emit(Signal{Kind: SignalIDAssigned, HasID: true, ID: id})
		return true

	case types.MsgConfirmID:
		if len(msg.Payload) < 8 {
			return true
		}
		id := types.EndpointID(binary.BigEndian.Uint64(msg.Payload))
		if !e.id.ConfirmPreconfigured(id) {
			e.log.Errorf("router confirmed id %d but endpoint preconfigured a different one", id)
			return true
		}
		e.id.MarkUsable()
		e.signals.emit(Signal{Kind: SignalIDAssigned, HasID: true, ID: id})
		return true

	case types.MsgBlobFragment:
		e.blobs.ProcessIncoming(msg)
		return true

	case types.MsgBlobResend:
		e.blobs.ProcessResend(msg)
		return true

	case types.MsgFlowInfo:
		if len(msg.Payload) >= 8 {
			e.avgAgeMs = binary.BigEndian.Uint64(msg.Payload)
		}
		return true

	case types.MsgQrySubscrp:
		e.respondSubscriptionList(msg)
		return true

	case types.MsgQrySubscrb:
		e.respondSubscriberQuery(msg)
		return true

	case types.MsgTopoQuery, types.MsgStatsQuery:
		// router-local diagnostics queries; a full topology/stats reply
		// belongs to higher-level services (spec §1 non-goals) but the
		// bus-internal id is acknowledged so the router doesn't retry.
		return true

	case types.MsgPing:
		e.post(types.MsgPong, msg.SourceID, msg.Payload)
		return true

	case types.MsgPong:
		return true

	case types.MsgEptCertQuery, types.MsgEptCertPem, types.MsgEptSignNonce,
		types.MsgEptNonceSig, types.MsgRtrCertQuery, types.MsgRtrCertPem,
		types.MsgReqRouterPwd, types.MsgEncRouterPwd:
		// inert pass-through per SUPPLEMENTED FEATURES: the bus carries
		// these shapes but performs no cryptographic verification itself.
		return true

	case types.MsgByeByeRouter:
		e.handleConnectionLost()
		return true

	case types.MsgNotSubTo:
		return true
	}
	return false
}

func (e *Endpoint) respondSubscriptionList(trigger types.Message) {
	var payload []byte
	for id, q := range e.inbox {
		if q.refcount == 0 {
			continue
		}
		enc := encodeMessageID(id)
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(enc)))
		payload = append(payload, lenBuf...)
		payload = append(payload, enc...)
	}
	msg := types.RespondTo(trigger, e.id.ID(), types.MsgQrySubscrp, payload)
	e.enqueue(msg)
}

func (e *Endpoint) respondSubscriberQuery(trigger types.Message) {
	queried, ok := decodeMessageID(trigger.Payload)
	if !ok {
		return
	}
	q, subscribed := e.inbox[queried]
	reply := types.MsgNotSubTo
	if subscribed && q.refcount > 0 {
		reply = types.MsgSubscribeTo
	}
	msg := types.RespondTo(trigger, e.id.ID(), reply, trigger.Payload)
	e.enqueue(msg)
}
