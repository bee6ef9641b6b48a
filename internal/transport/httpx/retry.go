package httpx

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/metrics"
)

// Policy bounds the retry behavior of SendWithRetry.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	BackoffFactor float64
}

// DefaultPolicy matches the engine defaults: two retries starting at 400ms
// with a doubling backoff.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, BaseDelay: 400 * time.Millisecond, BackoffFactor: 2.0}
}

// Delay returns the backoff before retrying after the given zero-based
// attempt, including 0-100ms of jitter.
func (p Policy) Delay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	return time.Duration(backoff) + time.Duration(rand.IntN(100))*time.Millisecond
}

// SendWithRetry behaves like Send but re-issues the request on any non-200
// status while attempts remain, waiting out the policy's backoff between
// attempts. Whatever the final attempt produced — success or not — is
// forwarded to onComplete, exactly once.
func (c *Client) SendWithRetry(ctx context.Context, method, url string, header http.Header, body []byte, policy Policy, onComplete CompleteFn) {
	go func() {
		var (
			text       string
			status     int
			respHeader http.Header
		)
		for attempt := 0; ; attempt++ {
			text, status, respHeader = c.do(ctx, method, url, header, body)
			if status == http.StatusOK || attempt >= policy.MaxRetries {
				break
			}

			delay := policy.Delay(attempt)
			metrics.TransportRetriesTotal.Inc()
			c.logger.Info("retrying request",
				zap.String("url", url),
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				onComplete(text, status, respHeader)
				return
			}
		}
		onComplete(text, status, respHeader)
	}()
}
