// Package httpx implements the non-blocking request layer. A call returns
// immediately; the outcome is delivered exactly once through a callback.
// Transport failures flow through the same callback as real responses, using
// the negative status sentinels from the domain package, so callers never
// need a second error path.
package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/domain"
	"github.com/kestrelworks/raglet/internal/metrics"
)

// CompleteFn receives the response body, status code and headers. A status
// of domain.StatusClientTimeout means the deadline elapsed or the request
// could not be sent; text is empty and header is nil in that case.
type CompleteFn func(text string, status int, header http.Header)

// Client issues asynchronous HTTP requests with a per-request deadline.
type Client struct {
	httpc   *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a client with the given request deadline.
func New(timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		// Timeout is enforced per request via context so streaming callers
		// can supervise reads themselves.
		httpc:   &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// Timeout returns the configured request deadline.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Send dispatches the request and returns immediately. onComplete is invoked
// exactly once, from the request's own goroutine.
func (c *Client) Send(ctx context.Context, method, url string, header http.Header, body []byte, onComplete CompleteFn) {
	go func() {
		text, status, respHeader := c.do(ctx, method, url, header, body)
		onComplete(text, status, respHeader)
	}()
}

// do performs one attempt synchronously. The absolute deadline is computed
// once, up front; a deadline hit or an immediate send failure both yield the
// client-timeout sentinel.
func (c *Client) do(ctx context.Context, method, url string, header http.Header, body []byte) (string, int, http.Header) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("request construction failed", zap.String("url", url), zap.Error(err))
		return "", domain.StatusClientTimeout, nil
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.TransportRequestsTotal.WithLabelValues("request", "timeout").Inc()
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err),
		)
		return "", domain.StatusClientTimeout, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TransportRequestsTotal.WithLabelValues("request", "timeout").Inc()
		c.logger.Warn("response read failed", zap.String("url", url), zap.Error(err))
		return "", domain.StatusClientTimeout, nil
	}

	metrics.TransportRequestsTotal.WithLabelValues("request", strconv.Itoa(resp.StatusCode)).Inc()
	metrics.TransportRequestDuration.WithLabelValues("request").Observe(time.Since(start).Seconds())
	c.logger.Debug("request done",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	return string(data), resp.StatusCode, resp.Header
}
