// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package svdrp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type MockUpdater struct{ mock.Mock }

func (m *MockUpdater) Start() bool { return m.Called().Bool(0) }

type count int

func (c count) Len() int { return int(c) }

func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return ln.Addr().String()
}

func send(t *testing.T, addr, cmd string) Reply {
	t.Helper()
	r, err := Client{Timeout: 2 * time.Second}.Send(context.Background(), addr, cmd)
	require.NoError(t, err)
	return r
}

func TestUPDT_Replies(t *testing.T) {
	u := new(MockUpdater)
	u.On("Start").Return(true).Once()
	u.On("Start").Return(false).Once()
	addr := serve(t, NewServer(u, count(2), 0, 0, "test"))

	assert.Equal(t, Reply{CodeOK, TextUpdateStarted}, send(t, addr, "UPDT"))
	assert.Equal(t, Reply{CodeFailed, TextAlreadyRunning}, send(t, addr, "updt"))
	u.AssertExpectations(t)
}

func TestUPDT_NoSources(t *testing.T) {
	u := new(MockUpdater)
	addr := serve(t, NewServer(u, count(0), 0, 0, "test"))

	assert.Equal(t, Reply{CodeFailed, TextNoSources}, send(t, addr, "UPDT"))
	u.AssertNotCalled(t, "Start")
}

func TestHELP(t *testing.T) {
	addr := serve(t, NewServer(new(MockUpdater), count(1), 0, 0, "test"))

	r := send(t, addr, "HELP UPDT")
	assert.Equal(t, CodeHelp, r.Code)
	assert.Equal(t, "UPDT\n    Start epg update\nEnd of HELP info", r.Text)

	r = send(t, addr, "HELP")
	assert.Equal(t, CodeHelp, r.Code)
	assert.Contains(t, r.Text, "    UPDT")

	r = send(t, addr, "HELP NOPE")
	assert.Equal(t, 504, r.Code)
}

func TestUnknownAndQuit(t *testing.T) {
	addr := serve(t, NewServer(new(MockUpdater), count(1), 0, 0, "test"))

	r := send(t, addr, "LSTE")
	assert.Equal(t, CodeUnknown, r.Code)
	assert.Contains(t, r.Text, "LSTE")

	r = send(t, addr, "QUIT")
	assert.Equal(t, CodeClosing, r.Code)
}

func TestRateLimit(t *testing.T) {
	u := new(MockUpdater)
	u.On("Start").Return(false)
	addr := serve(t, NewServer(u, count(1), 0.001, 1, "test"))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	rd := bufio.NewReader(conn)

	greeting, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(greeting, "220 "))

	_, err = conn.Write([]byte("UPDT\r\nUPDT\r\n"))
	require.NoError(t, err)
	first, err := rd.ReadString('\n')
	require.NoError(t, err)
	second, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "550 Update already running\r\n", first)
	assert.True(t, strings.HasPrefix(second, "451 "), second)
}

func TestIdleTimeout(t *testing.T) {
	s := NewServer(new(MockUpdater), count(1), 0, 0, "test")
	s.IdleTimeout = 50 * time.Millisecond
	addr := serve(t, s)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	rd := bufio.NewReader(conn)
	_, err = rd.ReadString('\n')
	require.NoError(t, err)

	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "221 "), line)
}

func TestShutdownClosesOpenConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := NewServer(new(MockUpdater), count(1), 0, 0, "test")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_, err = bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.NotNil(t, s.Addr())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
