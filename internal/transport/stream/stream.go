package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/domain"
	"github.com/kestrelworks/raglet/internal/metrics"
)

// DeltaFn receives each newly parsed text fragment, in arrival order.
type DeltaFn func(delta string)

// CompleteFn receives the accumulated text and the terminal status: the real
// HTTP status on normal completion, domain.StatusClientTimeout on deadline,
// domain.StatusStreamStall on a stall abort. Fired exactly once.
type CompleteFn func(fullText string, status int)

// Client issues streaming requests supervised by an absolute deadline and a
// stall watchdog.
type Client struct {
	httpc   *http.Client
	timeout time.Duration
	stall   time.Duration
	logger  *zap.Logger
}

// New creates a streaming client. timeout is the absolute request deadline;
// stall aborts a stream when no bytes arrive for that long.
func New(timeout, stall time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{httpc: &http.Client{}, timeout: timeout, stall: stall, logger: logger}
}

// Stream dispatches the request and returns immediately. Each parsed text
// fragment is forwarded to onDelta exactly once, in order; onComplete fires
// once with the accumulated text and terminal status.
func (c *Client) Stream(ctx context.Context, provider domain.Provider, method, url string, header http.Header, body []byte, onDelta DeltaFn, onComplete CompleteFn) {
	go func() {
		full, status := c.run(ctx, provider, method, url, header, body, onDelta)
		onComplete(full, status)
	}()
}

// run performs one streaming attempt synchronously.
func (c *Client) run(ctx context.Context, provider domain.Provider, method, url string, header http.Header, body []byte, onDelta DeltaFn) (string, int) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("stream request construction failed", zap.String("url", url), zap.Error(err))
		return "", domain.StatusClientTimeout
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.TransportRequestsTotal.WithLabelValues("stream", "timeout").Inc()
		c.logger.Warn("stream request failed", zap.String("url", url), zap.Error(err))
		return "", domain.StatusClientTimeout
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		metrics.TransportRequestsTotal.WithLabelValues("stream", strconv.Itoa(resp.StatusCode)).Inc()
		return "", resp.StatusCode
	}

	// Stall watchdog: aborts the read when no bytes arrive for the stall
	// window. Runs independently of the absolute deadline.
	var lastByte atomic.Int64
	lastByte.Store(time.Now().UnixNano())
	var stalled atomic.Bool
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	if c.stall > 0 {
		go func() {
			ticker := time.NewTicker(c.stall / 4)
			defer ticker.Stop()
			for {
				select {
				case <-watchdogDone:
					return
				case <-reqCtx.Done():
					return
				case <-ticker.C:
					idle := time.Since(time.Unix(0, lastByte.Load()))
					if idle >= c.stall {
						stalled.Store(true)
						cancel()
						return
					}
				}
			}
		}()
	}

	parse := ParserFor(provider)
	var full, parseBuf string
	readBuf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(readBuf)
		if n > 0 {
			lastByte.Store(time.Now().UnixNano())
			parseBuf += string(readBuf[:n])

			var fragments []string
			fragments, parseBuf = parse(parseBuf)
			for _, frag := range fragments {
				full += frag
				onDelta(frag)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				metrics.TransportRequestsTotal.WithLabelValues("stream", "200").Inc()
				return full, resp.StatusCode
			}
			if stalled.Load() {
				metrics.StreamStallsTotal.Inc()
				c.logger.Warn("stream stalled",
					zap.String("url", url),
					zap.Duration("stall_window", c.stall),
					zap.Int("bytes_so_far", len(full)),
				)
				return full, domain.StatusStreamStall
			}
			metrics.TransportRequestsTotal.WithLabelValues("stream", "timeout").Inc()
			c.logger.Warn("stream read failed", zap.String("url", url), zap.Error(readErr))
			return full, domain.StatusClientTimeout
		}
	}
}
