// Package msgbustest is the shared test harness for the msgbus module,
// playing the role the teacher's test package plays for its own cluster/
// unity fixtures: bus/endpoint builders plus WaitThisOrTimeout. It lives
// under internal/ rather than pkg/ since it is test-only scaffolding, not a
// public API, and under its own package (not core/endpoint's _test.go
// files) so both packages can share it without an import cycle.
package msgbustest

import (
	"runtime"
	"testing"
	"time"

	"github.com/go-msgbus/msgbus/pkg/msgbus/core"
	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
	"github.com/go-msgbus/msgbus/pkg/msgbus/endpoint"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// Bus bundles one in-process router with the endpoints attached to it,
// driving every member's Update loop together on one tick, the way the
// teacher's UnityCluster drives a fixed-size replica set.
type Bus struct {
	t            *testing.T
	acceptorName string
	Router       *core.Router
	Endpoints    []*endpoint.Endpoint
}

// NewBus starts a router over [1, 1<<20) with one named in-process acceptor
// ready for Attach calls.
func NewBus(t *testing.T, conf core.RouterConfig) *Bus {
	t.Helper()
	if conf.IDs.Empty() {
		conf.IDs = types.IDRange{Base: 1, End: 1 << 20}
	}
	if conf.Name == "" {
		conf.Name = t.Name()
	}
	r := core.NewRouter(conf, definition.NewNoopLogger())
	acceptorName := t.Name()
	r.AddAcceptor(core.NewInProcessAcceptor(acceptorName))
	return &Bus{t: t, acceptorName: acceptorName, Router: r}
}

// Attach dials a fresh in-process connection into the bus's router and
// wraps it in a new Endpoint, optionally with a preconfigured id.
func (b *Bus) Attach(preconfigured types.EndpointID) *endpoint.Endpoint {
	b.t.Helper()
	conn := core.DialInProcess(b.acceptorName, 0)
	ep := endpoint.New(endpoint.Config{PreconfiguredID: preconfigured, NoIDTimeout: time.Millisecond}, conn, definition.NewNoopLogger())
	b.Endpoints = append(b.Endpoints, ep)
	return ep
}

// Tick drives the router and every attached endpoint once.
func (b *Bus) Tick(now time.Time) {
	b.Router.Update(now)
	for _, ep := range b.Endpoints {
		ep.Update(now)
	}
}

// DriveUntil pumps tick until cond reports done or timeout elapses, failing
// the test otherwise. Runs entirely on the calling goroutine so cond and
// tick may freely call testing.T assertions.
func DriveUntil(t *testing.T, timeout time.Duration, cond func() bool, tick func()) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		tick()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// DriveBusUntil is DriveUntil specialized to a Bus's own Tick.
func DriveBusUntil(t *testing.T, b *Bus, timeout time.Duration, cond func() bool) {
	t.Helper()
	DriveUntil(t, timeout, cond, func() { b.Tick(time.Now()) })
}

// WaitThisOrTimeout runs cb in a goroutine and reports whether it finished
// before duration elapses. Grounded on the teacher's own helper of the same
// name and signature (test/testing.go).
func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan bool, 1)
	go func() {
		cb()
		done <- true
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}

// PrintStackTrace dumps every goroutine's stack into a test failure, for
// diagnosing a hang. Grounded on the teacher's helper of the same name.
func PrintStackTrace(t *testing.T) {
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	t.Errorf("%s", buf[:n])
}
