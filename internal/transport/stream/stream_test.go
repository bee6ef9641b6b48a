package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/domain"
	"github.com/kestrelworks/raglet/internal/transport/httpx"
)

// sseChunk writes one OpenAI-style SSE frame and flushes.
func sseChunk(w http.ResponseWriter, f http.Flusher, text string) {
	fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", text)
	f.Flush()
}

func TestStream_DeltasInOrder(t *testing.T) {
	parts := []string{"The ", "quick ", "brown ", "fox"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		for _, p := range parts {
			sseChunk(w, f, p)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(5*time.Second, time.Second, zap.NewNop())

	var mu sync.Mutex
	var deltas []string
	done := make(chan struct{})
	c.Stream(context.Background(), domain.ProviderOpenAI, http.MethodPost, srv.URL, nil, nil,
		func(d string) {
			mu.Lock()
			deltas = append(deltas, d)
			mu.Unlock()
		},
		func(full string, status int) {
			if status != http.StatusOK {
				t.Errorf("status = %d, want 200", status)
			}
			if full != "The quick brown fox" {
				t.Errorf("full text = %q", full)
			}
			close(done)
		})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stream never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	if got := strings.Join(deltas, ""); got != "The quick brown fox" {
		t.Errorf("joined deltas = %q", got)
	}
	// Each delta is a disjoint, order-preserving suffix of the final text.
	offset := 0
	for i, d := range deltas {
		if !strings.HasPrefix("The quick brown fox"[offset:], d) {
			t.Errorf("delta %d (%q) does not continue at offset %d", i, d, offset)
		}
		offset += len(d)
	}
}

func TestStream_StallSentinelKeepsPartialText(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		sseChunk(w, f, "partial")
		<-release // hold the connection open without sending bytes
	}))
	defer srv.Close()
	defer close(release)

	c := New(30*time.Second, 150*time.Millisecond, zap.NewNop())

	done := make(chan struct{})
	c.Stream(context.Background(), domain.ProviderOpenAI, http.MethodPost, srv.URL, nil, nil,
		func(string) {},
		func(full string, status int) {
			if status != domain.StatusStreamStall {
				t.Errorf("status = %d, want %d", status, domain.StatusStreamStall)
			}
			if full != "partial" {
				t.Errorf("full = %q, want the text accumulated before the stall", full)
			}
			close(done)
		})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stall watchdog never fired")
	}
}

func TestStream_NonOKStatusForwarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(2*time.Second, time.Second, zap.NewNop())
	done := make(chan struct{})
	c.Stream(context.Background(), domain.ProviderOpenAI, http.MethodPost, srv.URL, nil, nil,
		func(string) { t.Error("no deltas expected for non-200") },
		func(_ string, status int) {
			if status != http.StatusTooManyRequests {
				t.Errorf("status = %d, want 429", status)
			}
			close(done)
		})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never completed")
	}
}

func TestStream_NDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		fmt.Fprint(w, "{\"message\":{\"content\":\"Hel\"}}\n")
		f.Flush()
		fmt.Fprint(w, "{\"message\":{\"content\":\"lo\"}}\n{\"done\":true}\n")
		f.Flush()
	}))
	defer srv.Close()

	c := New(5*time.Second, time.Second, zap.NewNop())
	done := make(chan struct{})
	c.Stream(context.Background(), domain.ProviderOllama, http.MethodPost, srv.URL, nil, nil,
		func(string) {},
		func(full string, status int) {
			if full != "Hello" || status != http.StatusOK {
				t.Errorf("got (%q, %d), want (Hello, 200)", full, status)
			}
			close(done)
		})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stream never completed")
	}
}

func TestStreamWithRetry_RecoversAndKeepsEarlierDeltas(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		f := w.(http.Flusher)
		sseChunk(w, f, "answer")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(5*time.Second, time.Second, zap.NewNop())
	policy := httpx.Policy{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, BackoffFactor: 2.0}

	var mu sync.Mutex
	var joined string
	done := make(chan struct{})
	c.StreamWithRetry(context.Background(), domain.ProviderOpenAI, http.MethodPost, srv.URL, nil, nil, policy,
		func(d string) {
			mu.Lock()
			joined += d
			mu.Unlock()
		},
		func(full string, status int) {
			if status != http.StatusOK {
				t.Errorf("status = %d, want 200", status)
			}
			if full != "answer" {
				t.Errorf("full = %q, want answer", full)
			}
			close(done)
		})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stream retry never completed")
	}
	mu.Lock()
	defer mu.Unlock()
	if joined != "answer" {
		t.Errorf("deltas = %q, want answer", joined)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d attempts, want 2", calls.Load())
	}
}

func TestStreamWithRetry_AccumulatesAcrossFailedAttempt(t *testing.T) {
	// First attempt streams some text and then stalls; second attempt
	// regenerates from scratch. The accumulation buffer keeps the first
	// attempt's text and the cursor forwards the second attempt's output as
	// new deltas (the documented duplication caveat).
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		if calls.Add(1) == 1 {
			sseChunk(w, f, "first-try ")
			<-release
			return
		}
		sseChunk(w, f, "regenerated")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()
	defer close(release)

	c := New(30*time.Second, 100*time.Millisecond, zap.NewNop())
	policy := httpx.Policy{MaxRetries: 1, BaseDelay: 10 * time.Millisecond, BackoffFactor: 2.0}

	done := make(chan struct{})
	c.StreamWithRetry(context.Background(), domain.ProviderOpenAI, http.MethodPost, srv.URL, nil, nil, policy,
		func(string) {},
		func(full string, status int) {
			if status != http.StatusOK {
				t.Errorf("status = %d, want 200", status)
			}
			if full != "first-try regenerated" {
				t.Errorf("full = %q, want accumulated text from both attempts", full)
			}
			close(done)
		})

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("stream retry never completed")
	}
}

func TestStreamWithRetry_ExhaustionDeliversAccumulated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(2*time.Second, time.Second, zap.NewNop())
	policy := httpx.Policy{MaxRetries: 1, BaseDelay: 5 * time.Millisecond, BackoffFactor: 2.0}

	done := make(chan struct{})
	c.StreamWithRetry(context.Background(), domain.ProviderOpenAI, http.MethodPost, srv.URL, nil, nil, policy,
		func(string) {},
		func(full string, status int) {
			if status != http.StatusBadGateway {
				t.Errorf("status = %d, want 502", status)
			}
			if full != "" {
				t.Errorf("full = %q, want empty", full)
			}
			close(done)
		})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stream retry never completed")
	}
}
