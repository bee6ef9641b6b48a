package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/domain"
)

func TestSend_DeliversResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Marker", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := New(2*time.Second, zap.NewNop())
	done := make(chan struct{})
	c.Send(context.Background(), http.MethodGet, srv.URL, nil, nil, func(text string, status int, header http.Header) {
		if text != "hello" || status != http.StatusOK {
			t.Errorf("got (%q, %d), want (hello, 200)", text, status)
		}
		if header.Get("X-Marker") != "yes" {
			t.Error("response headers not forwarded")
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestSend_TimeoutSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(50*time.Millisecond, zap.NewNop())
	done := make(chan struct{})
	c.Send(context.Background(), http.MethodGet, srv.URL, nil, nil, func(text string, status int, _ http.Header) {
		if status != domain.StatusClientTimeout {
			t.Errorf("status = %d, want %d", status, domain.StatusClientTimeout)
		}
		if text != "" {
			t.Errorf("text = %q, want empty", text)
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestSend_UnreachableHostShortCircuits(t *testing.T) {
	c := New(2*time.Second, zap.NewNop())
	done := make(chan struct{})
	c.Send(context.Background(), http.MethodGet, "http://127.0.0.1:1", nil, nil, func(_ string, status int, _ http.Header) {
		if status != domain.StatusClientTimeout {
			t.Errorf("status = %d, want %d", status, domain.StatusClientTimeout)
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestSendWithRetry_RecoversAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(2*time.Second, zap.NewNop())
	policy := Policy{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, BackoffFactor: 2.0}

	done := make(chan struct{})
	c.SendWithRetry(context.Background(), http.MethodGet, srv.URL, nil, nil, policy, func(text string, status int, _ http.Header) {
		if status != http.StatusOK || text != "ok" {
			t.Errorf("got (%q, %d), want (ok, 200)", text, status)
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("callback never fired")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d attempts, want 3", got)
	}
}

func TestSendWithRetry_ExhaustionForwardsLastResult(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream broken"))
	}))
	defer srv.Close()

	c := New(2*time.Second, zap.NewNop())
	policy := Policy{MaxRetries: 2, BaseDelay: 5 * time.Millisecond, BackoffFactor: 2.0}

	done := make(chan struct{})
	c.SendWithRetry(context.Background(), http.MethodGet, srv.URL, nil, nil, policy, func(text string, status int, _ http.Header) {
		if status != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", status)
		}
		if text != "upstream broken" {
			t.Errorf("text = %q", text)
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("callback never fired")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d attempts, want 3 (1 + 2 retries)", got)
	}
}

func TestPolicy_DelayGrows(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, BackoffFactor: 2.0}
	d0 := p.Delay(0)
	d2 := p.Delay(2)
	if d0 < 100*time.Millisecond || d0 > 200*time.Millisecond {
		t.Errorf("attempt 0 delay %v outside [100ms,200ms]", d0)
	}
	if d2 < 400*time.Millisecond || d2 > 500*time.Millisecond {
		t.Errorf("attempt 2 delay %v outside [400ms,500ms]", d2)
	}
}
