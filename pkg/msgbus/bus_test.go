package msgbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-msgbus/msgbus/pkg/msgbus"
	"github.com/go-msgbus/msgbus/pkg/msgbus/endpoint"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

func TestBusFacadeConnectsTwoEndpoints(t *testing.T) {
	bus := msgbus.New(msgbus.Config{Name: t.Name()})
	a := bus.Attach(endpoint.Config{NoIDTimeout: time.Millisecond})
	b := bus.Attach(endpoint.Config{NoIDTimeout: time.Millisecond})

	topic := types.NewMessageID("eagiTest", "hello")
	b.Subscribe(topic)

	var aID, bID types.EndpointID
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		now := time.Now()
		bus.Update(now)
		a.Update(now)
		b.Update(now)
		var okA, okB bool
		aID, okA = a.GetID()
		bID, okB = b.GetID()
		if okA && okB {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, aID.IsValid())
	require.True(t, bID.IsValid())

	require.True(t, a.Post(topic, bID, []byte("hi")))

	var received types.Message
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		now := time.Now()
		bus.Update(now)
		a.Update(now)
		b.Update(now)
		if b.ProcessOne(topic, func(m types.Message) { received = m }) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, aID, received.SourceID)
	assert.Equal(t, []byte("hi"), received.Payload)

	bus.Finish()
}
