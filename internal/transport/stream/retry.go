package stream

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/metrics"
	"github.com/kestrelworks/raglet/internal/transport/httpx"

	"github.com/kestrelworks/raglet/internal/domain"
)

// StreamWithRetry restarts a fresh stream attempt after a backoff whenever
// an attempt completes with a non-200 status and retries remain. Deltas from
// failed attempts are not discarded: an emitted-length cursor over a single
// cross-attempt accumulation buffer forwards only the unseen suffix of each
// attempt's output.
//
// The cursor is deliberately not reset between attempts. A retried provider
// typically regenerates its answer from the beginning, so the caller can see
// duplicated text after a mid-stream retry; callers that cannot tolerate
// that should keep MaxRetries at 0 for streams.
func (c *Client) StreamWithRetry(ctx context.Context, provider domain.Provider, method, url string, header http.Header, body []byte, policy httpx.Policy, onDelta DeltaFn, onComplete CompleteFn) {
	go func() {
		var acc string // grows monotonically across attempts
		emitted := 0

		forward := func(delta string) {
			acc += delta
			if len(acc) > emitted {
				onDelta(acc[emitted:])
				emitted = len(acc)
			}
		}

		var status int
		for attempt := 0; ; attempt++ {
			done := make(chan int, 1)
			c.Stream(ctx, provider, method, url, header, body, forward, func(_ string, s int) {
				done <- s
			})
			status = <-done

			if status == http.StatusOK || attempt >= policy.MaxRetries {
				break
			}
			select {
			case <-ctx.Done():
				onComplete(acc, status)
				return
			default:
			}

			delay := policy.Delay(attempt)
			metrics.TransportRetriesTotal.Inc()
			c.logger.Info("retrying stream",
				zap.String("url", url),
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Int("accumulated_bytes", len(acc)),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				onComplete(acc, status)
				return
			}
		}
		onComplete(acc, status)
	}()
}
