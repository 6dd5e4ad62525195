// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package openwebif adapts an Enigma2 receiver running OpenWebIF to the
// host interfaces: timers come from /api/timerlist and the guide is
// rebuilt through /api/loadepg.
package openwebif

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/host"
)

const (
	defaultTimeout      = 10 * time.Second
	maxBodyBytes        = 4 << 20
	maxErrorBodyBytes   = 256
	breakerThreshold    = 3
	breakerResetTimeout = 30 * time.Second
)

// Client talks to one receiver.
type Client struct {
	base     string
	username string
	password string
	http     *http.Client
	breaker  *CircuitBreaker
}

var (
	_ host.TimerSource = (*Client)(nil)
	_ host.GuideIndex  = (*Client)(nil)
)

// New returns a client for the configured receiver.
func New(cfg config.OpenWebIFConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: NewCircuitBreaker(breakerThreshold, breakerResetTimeout),
	}
}

// Breaker exposes the circuit breaker guarding the receiver.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

type timerList struct {
	Result bool        `json:"result"`
	Timers []timerItem `json:"timers"`
}

type timerItem struct {
	ServiceRef          string `json:"serviceref"`
	Begin               int64  `json:"begin"`
	End                 int64  `json:"end"`
	EIT                 int64  `json:"eit"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	DescriptionExtended string `json:"descriptionextended"`
	Disabled            int    `json:"disabled"`
}

// Timers lists enabled recording timers with their events.
func (c *Client) Timers(ctx context.Context) ([]host.Timer, error) {
	var list timerList
	if err := c.getJSON(ctx, "timers", "/api/timerlist", &list); err != nil {
		return nil, err
	}

	out := make([]host.Timer, 0, len(list.Timers))
	for _, it := range list.Timers {
		if it.Disabled != 0 || it.ServiceRef == "" {
			continue
		}
		t := host.Timer{
			ID:        fmt.Sprintf("%s@%d", it.ServiceRef, it.Begin),
			ChannelID: it.ServiceRef,
		}
		if it.EIT > 0 && it.End > it.Begin {
			t.Event = &host.Event{
				ID:          uint32(it.EIT),
				ChannelID:   it.ServiceRef,
				Start:       time.Unix(it.Begin, 0).UTC(),
				Duration:    time.Duration(it.End-it.Begin) * time.Second,
				Title:       it.Name,
				ShortText:   it.Description,
				Description: it.DescriptionExtended,
				HasTimer:    true,
			}
		}
		out = append(out, t)
	}
	return out, nil
}

type simpleResult struct {
	Result  bool   `json:"result"`
	Message string `json:"message"`
}

// Invalidate asks the receiver to reload its guide.
func (c *Client) Invalidate(ctx context.Context) error {
	var res simpleResult
	if err := c.getJSON(ctx, "loadepg", "/api/loadepg", &res); err != nil {
		return err
	}
	if !res.Result {
		return &OWIError{Sentinel: ErrUpstreamBadResponse, Operation: "loadepg", Body: res.Message}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, dst any) error {
	if c.base == "" {
		return &OWIError{Sentinel: ErrNotConfigured, Operation: op}
	}
	return c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return &OWIError{Sentinel: ErrUpstreamBadResponse, Operation: op, Err: err}
		}
		req.Header.Set("Accept", "application/json")
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		res, err := c.http.Do(req)
		if err != nil {
			return transportError(op, err)
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
			return statusError(op, res.StatusCode, strings.TrimSpace(string(body)))
		}
		if err := json.NewDecoder(io.LimitReader(res.Body, maxBodyBytes)).Decode(dst); err != nil {
			return &OWIError{Sentinel: ErrUpstreamBadResponse, Operation: op, Err: err}
		}
		return nil
	})
}
