package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/access"
)

// Subscriber maintains a live event-stream connection for one subject
// and feeds grant/revoke events into an AccessCache. On every
// (re)connect it runs a full reconciliation, since events may have
// been missed while disconnected.
type Subscriber struct {
	client *Client
	cache  *AccessCache
	logger core.Logger

	// Retry is the delay between reconnect attempts.
	Retry time.Duration
}

func NewSubscriber(client *Client, cache *AccessCache, logger core.Logger) *Subscriber {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Subscriber{
		client: client,
		cache:  cache,
		logger: logger,
		Retry:  5 * time.Second,
	}
}

// Run connects, streams and reconnects until the context is done.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if err := s.connectAndStream(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("event stream: connection lost", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Retry):
		}
	}
}

func (s *Subscriber) connectAndStream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.eventsURL(s.cache.subject), nil)
	if err != nil {
		return errors.Wrap(err, "building stream request")
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived; a client timeout would sever it.
	httpc := &http.Client{Transport: s.client.httpc.Transport}
	res, err := httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "connecting event stream")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return errors.Errorf("connecting event stream: unexpected status %d", res.StatusCode)
	}

	if err = s.cache.Reconcile(ctx); err != nil {
		s.logger.Warn("event stream: reconnect reconciliation", "err", err)
	}

	return s.readStream(ctx, bufio.NewScanner(res.Body))
}

// readStream consumes text/event-stream frames. Comment lines (leading
// ':') are server heartbeats and only reset liveness; a blank line
// dispatches the accumulated frame.
func (s *Subscriber) readStream(ctx context.Context, sc *bufio.Scanner) error {
	var eventName, data string

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data != "" {
				s.dispatch(ctx, eventName, data)
			}
			eventName, data = "", ""
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("event stream closed")
}

func (s *Subscriber) dispatch(ctx context.Context, eventName, data string) {
	var ev access.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		s.logger.Warn("event stream: decoding event", "event", eventName, "err", err)
		return
	}
	if ev.Type == "" {
		ev.Type = access.EventType(eventName)
	}
	s.cache.HandleEvent(ctx, ev)
}
