package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestResolveIPv4ParsesLiteralWithoutLookup(t *testing.T) {
	addr, err := resolveIPv4("127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{127, 0, 0, 1}, addr)
}

func TestDialNonBlockingConnectsToListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port

	fd, err := dialNonBlocking("127.0.0.1", port)
	require.NoError(t, err)
	defer unix.Close(fd)
	assert.GreaterOrEqual(t, fd, 0)

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	assert.NoError(t, socketError(fd))
}
