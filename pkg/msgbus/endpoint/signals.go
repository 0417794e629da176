package endpoint

import "github.com/go-msgbus/msgbus/pkg/msgbus/types"

// Signal is one of the decoupled event emitters spec §9 requires endpoints
// to expose: connection_established, connection_lost, id_assigned, plus the
// BLOB stream events re-exported from the blob package.
type Signal struct {
	Kind  SignalKind
	HasID bool
	ID    types.EndpointID
}

// SignalKind tags a Signal.
type SignalKind uint8

const (
	SignalConnectionEstablished SignalKind = iota
	SignalConnectionLost
	SignalIDAssigned
)

// SignalHandler receives Signal events, registered via Endpoint.OnSignal.
type SignalHandler func(Signal)

type signalBus struct {
	handlers []SignalHandler
}

func (s *signalBus) subscribe(h SignalHandler) {
	s.handlers = append(s.handlers, h)
}

func (s *signalBus) emit(sig Signal) {
	for _, h := range s.handlers {
		h(sig)
	}
}
