// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package svdrp

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"
)

// Reply is a server answer.
type Reply struct {
	Code int
	Text string
}

func (r Reply) String() string { return fmt.Sprintf("%d %s", r.Code, r.Text) }

// OK reports a 2xx reply.
func (r Reply) OK() bool { return r.Code >= 200 && r.Code < 300 }

// Client sends single commands.
type Client struct {
	Timeout time.Duration
}

// Send connects to addr, sends cmd and returns its reply. The connection is
// closed with QUIT afterwards.
func (c Client) Send(ctx context.Context, addr, cmd string) (Reply, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Reply{}, fmt.Errorf("svdrp dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	tp := textproto.NewConn(conn)
	if _, _, err := tp.ReadResponse(CodeReady); err != nil {
		return Reply{}, fmt.Errorf("svdrp greeting: %w", err)
	}
	if err := tp.PrintfLine("%s", cmd); err != nil {
		return Reply{}, fmt.Errorf("svdrp send: %w", err)
	}
	code, msg, err := tp.ReadResponse(0)
	if err != nil {
		if _, ok := err.(*textproto.Error); !ok {
			return Reply{}, fmt.Errorf("svdrp read: %w", err)
		}
	}
	if !strings.EqualFold(strings.TrimSpace(cmd), "QUIT") {
		_ = tp.PrintfLine("QUIT")
	}
	return Reply{Code: code, Text: msg}, nil
}
