package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lawnetwork/lawnet/core/access"
)

// sseHandler emits the given events as a text/event-stream response,
// interleaved with heartbeat comments, then holds the connection open.
func sseHandler(t *testing.T, events []access.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/access/events" {
			t.Errorf("stream path = %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)

		_, _ = fmt.Fprint(w, ": hb\n\n")
		flusher.Flush()

		for _, ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				t.Errorf("marshalling event failed: %v", err)
				return
			}
			_, _ = fmt.Fprintf(w, "event:%s\ndata:%s\n\n", ev.Type, data)
			flusher.Flush()
		}

		<-r.Context().Done()
	}
}

func Test_Subscriber_feedsCache(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	events := []access.Event{
		{Type: access.EventGrant, Subject: "dev@test.cd", Feature: "video", FeatureID: "vid-001", Expiry: &expiry},
		{Type: access.EventRevoke, Subject: "dev@test.cd", Feature: "video", FeatureID: "vid-002"},
	}
	ts := httptest.NewServer(sseHandler(t, events))
	defer ts.Close()

	checker := newFakeChecker()
	checker.set(cacheKey, expiry, "")
	cache := NewAccessCache(checker, "dev@test.cd", nil, nil)
	defer cache.Close()

	sub := NewSubscriber(New(ts.URL, ts.Client()), cache, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !cache.Allowed("video", "vid-001") {
		if time.Now().After(deadline) {
			t.Fatal("grant event never reached the cache")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func Test_Subscriber_reconcilesOnConnect(t *testing.T) {
	ts := httptest.NewServer(sseHandler(t, nil))
	defer ts.Close()

	checker := newFakeChecker()
	checker.set(cacheKey, time.Now().Add(time.Hour), "")
	cache := NewAccessCache(checker, "dev@test.cd", nil, nil)
	defer cache.Close()

	// the grant predates the connection; only the connect-time
	// reconciliation can surface it
	cache.mu.Lock()
	cache.tracked[featureKey{Feature: "video", FeatureID: "vid-001"}] = struct{}{}
	cache.mu.Unlock()

	sub := NewSubscriber(New(ts.URL, ts.Client()), cache, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !cache.Allowed("video", "vid-001") {
		if time.Now().After(deadline) {
			t.Fatal("connect-time reconciliation never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func Test_Subscriber_reconnects(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/access/events", func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			// first connection dies immediately
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cache := NewAccessCache(newFakeChecker(), "dev@test.cd", nil, nil)
	defer cache.Close()

	sub := NewSubscriber(New(ts.URL, ts.Client()), cache, nil)
	sub.Retry = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never reconnected; hits = %d", hits.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
