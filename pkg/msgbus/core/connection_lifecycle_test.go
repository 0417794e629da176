package core

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// These exercise the two connection kinds spec §5 calls out as running
// dedicated goroutines behind Cleanup (the stdio-tunnel's reader/writer
// pair and the remote connection's read loop), the way the teacher's own
// fuzzy/commit_test.go wraps a cluster shutdown in goleak.VerifyNone.

func TestStdioTunnelConnectionLeavesNoGoroutinesAfterCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	pr, pw := io.Pipe()
	conn := NewStdioTunnelConnection(pr, io.Discard)

	require.True(t, conn.Send(types.NewMessage(types.NewMessageID("x", "y"), 1, 2, []byte("hi"))))
	require.NoError(t, conn.Cleanup())
	require.NoError(t, pr.Close())
	require.NoError(t, pw.Close())
}

func TestRemoteConnectionLeavesNoGoroutinesAfterCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, client := net.Pipe()
	defer client.Close()

	conn := NewRemoteConnection(server)
	require.NoError(t, conn.Cleanup())
}
