package core

import (
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// routedNode wraps one promoted connection with its message-type firewall
// and maybe-router bookkeeping (spec §3 "Routed node"). It is accessed only
// from the router's own update tick except for the filter, which carries its
// own lock per spec §5 "Shared-resource policy".
type routedNode struct {
	id   types.EndpointID
	conn Connection

	filter *types.MessageFilter

	// maybeRouter starts true and is cleared once this peer behaves like a
	// plain endpoint by sending a subscribe-to message, or on receipt of a
	// not-a-router marker (spec §4.2 step 3).
	maybeRouter bool

	disconnectRequested bool
}

func newRoutedNode(id types.EndpointID, conn Connection) *routedNode {
	return &routedNode{
		id:          id,
		conn:        conn,
		filter:      types.NewMessageFilter(),
		maybeRouter: true,
	}
}

// admits reports whether msg may be forwarded onto this node's connection.
func (n *routedNode) admits(msg types.MessageID) bool {
	return n.filter.Admits(msg)
}
