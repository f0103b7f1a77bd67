package client_test

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xRadioAc7iv/segcask/client"
	"github.com/0xRadioAc7iv/segcask/core"
	"github.com/0xRadioAc7iv/segcask/internal/protocol"
	"github.com/0xRadioAc7iv/segcask/internal/server"
	"github.com/0xRadioAc7iv/segcask/pkg/keys"
)

// startServer runs a real server over a fresh store in dir.
func startServer(t *testing.T, dir string) string {
	t.Helper()

	store, err := core.Open(dir, core.OneMegabyte, keys.String)
	require.NoError(t, err)

	ln, err := server.Listen("127.0.0.1", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.New(store, nil).Serve(ctx, ln)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		assert.NoError(t, store.Close())
	})

	return ln.Addr().String()
}

// startFakeServer answers every command with resp.
func startFakeServer(t *testing.T, resp protocol.Response) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			if _, err := protocol.DecodeCommand(conn); err != nil {
				return
			}
			encoded, _ := protocol.EncodeResponse(resp)
			if _, err := conn.Write(encoded); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func mustConnect(t *testing.T, addr string) *client.Client {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	c, err := client.Connect(
		client.WithHost(host),
		client.WithPort(port),
		client.WithDialTimeout(time.Second),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func TestClientRoundTrip(t *testing.T) {
	c := mustConnect(t, startServer(t, t.TempDir()))

	require.NoError(t, c.Ping())

	_, found, err := c.Get("foo")
	require.NoError(t, err)
	assert.False(t, found)

	listed, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.NoError(t, c.Set("foo", []byte("bar")))
	require.NoError(t, c.Set("baz", []byte{0, 1, 2}))

	value, found, err := c.Get("foo")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "bar", string(value))

	value, _, err = c.Get("baz")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, value)

	exists, err := c.Exists("foo")
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	listed, err = c.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"baz", "foo"}, listed)

	require.NoError(t, c.Delete("foo"))

	exists, err = c.Exists("foo")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClientExecute(t *testing.T) {
	c := mustConnect(t, startServer(t, t.TempDir()))

	tests := []struct {
		cmd, key, value string
		want            string
	}{
		{"set", "city", "new york", "ok"},
		{"get", "city", "", "new york"},
		{"get", "missing", "", "(nil)"},
		{"count", "", "", "1"},
		{"bogus", "", "", `(error) invalid command "bogus"`},
	}

	for _, tt := range tests {
		got, err := c.Execute(tt.cmd, tt.key, tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s", tt.cmd, tt.key)
	}
}

func TestClientServerError(t *testing.T) {
	c := mustConnect(t, startFakeServer(t, protocol.Error("boom")))

	err := c.Set("k", []byte("v"))
	var serverErr *client.ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, protocol.CmdSet, serverErr.Command)
	assert.Equal(t, "boom", serverErr.Message)

	_, _, err = c.Get("k")
	assert.True(t, errors.As(err, &serverErr))

	_, err = c.List()
	assert.True(t, errors.As(err, &serverErr))
}

func TestClientUnexpectedNil(t *testing.T) {
	c := mustConnect(t, startFakeServer(t, protocol.Nil()))

	_, err := c.Count()
	assert.ErrorContains(t, err, "unexpected nil reply")
}

func TestClientConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = client.Connect(client.WithHost("127.0.0.1"), client.WithPort(port))
	assert.Error(t, err)
}

func TestClientClosedServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c := mustConnect(t, ln.Addr().String())
	assert.Error(t, c.Ping())
}
