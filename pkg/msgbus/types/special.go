package types

// Special message ids reserved under the bus-internal class (spec §6).
// Every router and endpoint implementation dispatches on these exact
// values before any application-level delivery is attempted.
var (
	MsgRequestID     = NewMessageID(ClassBusInternal, "requestId")
	MsgAssignID      = NewMessageID(ClassBusInternal, "assignId")
	MsgConfirmID     = NewMessageID(ClassBusInternal, "confirmId")
	MsgAnnounceID    = NewMessageID(ClassBusInternal, "annEndptId")
	MsgByeByeEndp    = NewMessageID(ClassBusInternal, "byeByeEndp")
	MsgByeByeRouter  = NewMessageID(ClassBusInternal, "byeByeRutr")
	MsgByeByeBridge  = NewMessageID(ClassBusInternal, "byeByeBrdg")
	MsgStillAlive    = NewMessageID(ClassBusInternal, "stillAlive")
	MsgSubscribeTo   = NewMessageID(ClassBusInternal, "subscribTo")
	MsgUnsubFrom     = NewMessageID(ClassBusInternal, "unsubFrom")
	MsgNotSubTo      = NewMessageID(ClassBusInternal, "notSubTo")
	MsgQrySubscrp    = NewMessageID(ClassBusInternal, "qrySubscrp")
	MsgQrySubscrb    = NewMessageID(ClassBusInternal, "qrySubscrb")
	MsgClrBlkList    = NewMessageID(ClassBusInternal, "clrBlkList")
	MsgMsgBlkList    = NewMessageID(ClassBusInternal, "msgBlkList")
	MsgClrAlwList    = NewMessageID(ClassBusInternal, "clrAlwList")
	MsgMsgAlwList    = NewMessageID(ClassBusInternal, "msgAlwList")
	MsgBlobFragment  = NewMessageID(ClassBusInternal, "blobFrgmnt")
	MsgBlobResend    = NewMessageID(ClassBusInternal, "blobResend")
	MsgFlowInfo      = NewMessageID(ClassBusInternal, "msgFlowInf")
	MsgTopoQuery     = NewMessageID(ClassBusInternal, "topoQuery")
	MsgTopoRouterCn  = NewMessageID(ClassBusInternal, "topoRutrCn")
	MsgTopoBridgeCn  = NewMessageID(ClassBusInternal, "topoBrdgCn")
	MsgTopoEndpoint  = NewMessageID(ClassBusInternal, "topoEndpt")
	MsgStatsQuery    = NewMessageID(ClassBusInternal, "statsQuery")
	MsgStatsRouter   = NewMessageID(ClassBusInternal, "statsRutr")
	MsgStatsBridge   = NewMessageID(ClassBusInternal, "statsBrdg")
	MsgStatsEndpoint = NewMessageID(ClassBusInternal, "statsEndpt")
	MsgEptCertQuery  = NewMessageID(ClassBusInternal, "eptCertQry")
	MsgEptCertPem    = NewMessageID(ClassBusInternal, "eptCertPem")
	MsgEptSignNonce  = NewMessageID(ClassBusInternal, "eptSigNnce")
	MsgEptNonceSig   = NewMessageID(ClassBusInternal, "eptNnceSig")
	MsgRtrCertQuery  = NewMessageID(ClassBusInternal, "rtrCertQry")
	MsgRtrCertPem    = NewMessageID(ClassBusInternal, "rtrCertPem")
	MsgReqRouterPwd  = NewMessageID(ClassBusInternal, "reqRutrPwd")
	MsgEncRouterPwd  = NewMessageID(ClassBusInternal, "encRutrPwd")
	MsgPing          = NewMessageID(ClassBusInternal, "ping")
	MsgPong          = NewMessageID(ClassBusInternal, "pong")
	MsgNotARouter    = NewMessageID(ClassBusInternal, "notARouter")
)

// locallyHandled is the set of special ids the router consumes itself and
// never forwards onward (spec §4.2 step 4).
//
// blobFrgmnt/blobResend are deliberately excluded even though they are
// bus-internal: their target_id names the ultimate receiving endpoint, not
// the router, so a multi-hop transfer needs the router to forward them like
// any other targeted message. Router.forwardOne skips special dispatch for
// them and forwards them by target_id.
var locallyHandled = map[MessageID]bool{
	MsgRequestID:    true,
	MsgAssignID:     true,
	MsgConfirmID:    true,
	MsgSubscribeTo:  true,
	MsgUnsubFrom:    true,
	MsgQrySubscrp:   true,
	MsgQrySubscrb:   true,
	MsgClrBlkList:   true,
	MsgMsgBlkList:   true,
	MsgClrAlwList:   true,
	MsgMsgAlwList:   true,
	MsgPing:         true,
	MsgPong:         true,
	MsgNotARouter:   true,
	MsgReqRouterPwd: true,
	MsgEncRouterPwd: true,
	MsgStillAlive:   true,
}

// observedAndForwarded is the set of special ids the router both acts on
// locally (to update its own view) and still relays onward, per spec
// §4.2 step 4's "forwarded *and* observed" carve-out.
var observedAndForwarded = map[MessageID]bool{
	MsgTopoRouterCn:  true,
	MsgTopoBridgeCn:  true,
	MsgTopoEndpoint:  true,
	MsgStatsRouter:   true,
	MsgStatsBridge:   true,
	MsgStatsEndpoint: true,
	MsgFlowInfo:      true,
}

// IsLocallyHandled reports whether the router fully consumes this special
// message id itself instead of forwarding it.
func IsLocallyHandled(id MessageID) bool {
	return locallyHandled[id]
}

// IsObservedAndForwarded reports whether the router updates its own state
// from this special message id and still relays it onward.
func IsObservedAndForwarded(id MessageID) bool {
	return observedAndForwarded[id]
}
