// Package msgbus is the top-level facade: Bus bundles one router with a
// default in-process acceptor the way the teacher's root mcast package
// bundles a Unity's transport/state-machine/storage behind one constructor
// (pkg/mcast/protocol.go's NewUnity). Callers who don't need router/endpoint
// internals compose against this package; everything it does is a thin
// wrapper over pkg/msgbus/core and pkg/msgbus/endpoint.
package msgbus

import (
	"time"

	"github.com/go-msgbus/msgbus/pkg/msgbus/core"
	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
	"github.com/go-msgbus/msgbus/pkg/msgbus/endpoint"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// Config configures a Bus's router (spec §4.2, §6).
type Config struct {
	// Name labels this bus's default acceptor and log lines; several buses
	// in one process (e.g. tests) should each pick a distinct one.
	Name string

	// IDs is the router's endpoint-id sub-range (spec §3 "Identifiers").
	// The zero value lets core.RouterConfig pick its own wide default.
	IDs types.IDRange

	// Password, non-empty, requires every attaching endpoint to answer the
	// router's nonce challenge (spec §4.2 step 2).
	Password string
}

// Bus is one router plus the default in-process acceptor endpoints attach
// through via Attach.
type Bus struct {
	Router       *core.Router
	acceptorName string
	log          types.Logger
}

// New starts a Bus: a router over conf's id range, with one default
// in-process acceptor already installed.
func New(conf Config) *Bus {
	name := conf.Name
	if name == "" {
		name = "bus"
	}
	log := definition.NewDefaultLogger(name)
	router := core.NewRouter(core.RouterConfig{
		IDs:      conf.IDs,
		Password: conf.Password,
		Name:     name,
	}, log)
	router.AddAcceptor(core.NewInProcessAcceptor(name))
	return &Bus{Router: router, acceptorName: name, log: log}
}

// AddAcceptor installs an additional listening acceptor beyond the default
// in-process one, e.g. one built by core.NewAcceptorFromAddress from a
// configured "msgbus.router.address" entry (spec §6).
func (b *Bus) AddAcceptor(a core.Acceptor) {
	b.Router.AddAcceptor(a)
}

// Attach dials a fresh in-process connection into this bus's router and
// wraps it in a new Endpoint (spec §4.1 C2).
func (b *Bus) Attach(conf endpoint.Config) *endpoint.Endpoint {
	conn := core.DialInProcess(b.acceptorName, 0)
	return endpoint.New(conf, conn, b.log)
}

// Update drives one router maintenance-and-routing tick. Attached endpoints
// still drive their own Update independently (spec §5's per-component
// cooperative scheduling model is not hidden behind this facade).
func (b *Bus) Update(now time.Time) bool {
	return b.Router.Update(now)
}

// Finish shuts the bus's router down (spec §4.2 "finish").
func (b *Bus) Finish() {
	b.Router.Finish()
}
