// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package svdrp serves the line based remote command protocol used by
// receiver tooling to trigger an EPG update.
package svdrp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"
)

// Reply codes.
const (
	CodeHelp        = 214
	CodeReady       = 220
	CodeClosing     = 221
	CodeOK          = 250
	CodeRateLimited = 451
	CodeUnknown     = 500
	CodeFailed      = 550
)

// Reply texts of UPDT.
const (
	TextNoSources      = "No epg sources installed"
	TextUpdateStarted  = "Update started"
	TextAlreadyRunning = "Update already running"
)

// DefaultIdleTimeout closes connections without traffic.
const DefaultIdleTimeout = 300 * time.Second

// Updater is the executor side of UPDT.
type Updater interface {
	Start() bool
}

// SourceCounter tells whether any source is installed.
type SourceCounter interface {
	Len() int
}

type helpPage struct {
	command string
	text    []string
}

var helpPages = []helpPage{
	{"UPDT", []string{"Start epg update"}},
	{"HELP", []string{"[ <topic> ]", "Show help for all commands or one topic"}},
	{"QUIT", []string{"Close the connection"}},
}

// Server accepts SVDRP connections.
type Server struct {
	updater Updater
	sources SourceCounter
	limit   rate.Limit
	burst   int
	version string

	IdleTimeout time.Duration

	logger zerolog.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
}

// NewServer builds a server. limit is commands per second per connection;
// zero disables limiting.
func NewServer(updater Updater, sources SourceCounter, limit float64, burst int, version string) *Server {
	if burst <= 0 {
		burst = 1
	}
	l := rate.Limit(limit)
	if limit <= 0 {
		l = rate.Inf
	}
	return &Server{
		updater:     updater,
		sources:     sources,
		limit:       l,
		burst:       burst,
		version:     version,
		IdleTimeout: DefaultIdleTimeout,
		logger:      xglog.WithComponent("svdrp"),
		conns:       make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("svdrp listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Addr returns the listening address once serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections on ln until ctx is done. Open connections are
// closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("svdrp server listening")

	var wg conc.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("svdrp accept: %w", err)
		}
		s.track(conn, true)
		wg.Go(func() {
			defer s.track(conn, false)
			s.handle(conn)
		})
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
	_ = c.Close()
}

func (s *Server) handle(c net.Conn) {
	logger := s.logger.With().Str("remote", c.RemoteAddr().String()).Logger()
	tp := textproto.NewConn(c)
	limiter := rate.NewLimiter(s.limit, s.burst)

	host, _ := os.Hostname()
	if err := s.reply(c, tp, CodeReady, fmt.Sprintf("%s SVDRP epgmerge %s; %s; UTF-8",
		host, s.version, time.Now().Format(time.RFC1123Z))); err != nil {
		return
	}

	for {
		if s.IdleTimeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}
		line, err := tp.ReadLine()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				_ = s.reply(c, tp, CodeClosing, "timeout, closing connection")
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		cmd = strings.ToUpper(cmd)

		if !limiter.Allow() {
			metrics.IncSVDRPCommand(cmd, CodeRateLimited)
			if err := s.reply(c, tp, CodeRateLimited, "Too many commands, slow down"); err != nil {
				return
			}
			continue
		}

		code, lines := s.dispatch(cmd, strings.TrimSpace(arg))
		metrics.IncSVDRPCommand(cmd, code)
		logger.Debug().Str(xglog.FieldCommand, cmd).Int("code", code).Msg("svdrp command")
		if err := s.reply(c, tp, code, lines...); err != nil {
			return
		}
		if code == CodeClosing {
			return
		}
	}
}

func (s *Server) dispatch(cmd, arg string) (int, []string) {
	switch cmd {
	case "UPDT":
		return s.update()
	case "HELP":
		return help(arg)
	case "QUIT":
		return CodeClosing, []string{"closing connection"}
	default:
		return CodeUnknown, []string{fmt.Sprintf("Command unrecognized: %q", cmd)}
	}
}

func (s *Server) update() (int, []string) {
	if s.sources.Len() == 0 {
		return CodeFailed, []string{TextNoSources}
	}
	if s.updater.Start() {
		return CodeOK, []string{TextUpdateStarted}
	}
	return CodeFailed, []string{TextAlreadyRunning}
}

func help(topic string) (int, []string) {
	var lines []string
	if topic == "" {
		lines = append(lines, "Commands:")
		for _, p := range helpPages {
			lines = append(lines, "    "+p.command)
		}
	} else {
		found := false
		for _, p := range helpPages {
			if strings.EqualFold(p.command, topic) {
				lines = append(lines, p.command)
				for _, t := range p.text {
					lines = append(lines, "    "+t)
				}
				found = true
			}
		}
		if !found {
			return 504, []string{fmt.Sprintf("HELP topic %q unknown", topic)}
		}
	}
	lines = append(lines, "End of HELP info")
	return CodeHelp, lines
}

// reply writes a possibly multi-line reply: "ccc-text" for all lines but
// the last, which is "ccc text".
func (s *Server) reply(c net.Conn, tp *textproto.Conn, code int, lines ...string) error {
	_ = c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if len(lines) == 0 {
		lines = []string{""}
	}
	for i, l := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		if err := tp.PrintfLine("%d%s%s", code, sep, l); err != nil {
			return err
		}
	}
	return nil
}
