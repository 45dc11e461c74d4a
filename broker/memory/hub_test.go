package memorybroker

import (
	"context"
	"testing"
	"time"

	"github.com/lawnetwork/lawnet/core/access"
)

func grantEvent(subject string) access.Event {
	expiry := time.Now().Add(time.Hour)
	return access.Event{
		Type:      access.EventGrant,
		Subject:   subject,
		Feature:   access.FeatureVideo,
		FeatureID: "vid-001",
		Expiry:    &expiry,
	}
}

func revokeEvent(subject string) access.Event {
	return access.Event{
		Type:      access.EventRevoke,
		Subject:   subject,
		Feature:   access.FeatureVideo,
		FeatureID: "vid-001",
	}
}

func receive(t *testing.T, sub access.Subscription) access.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return access.Event{}
}

func Test_Hub_publishOrder(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(0)
	defer func() { _ = hub.Close() }()

	sub, err := hub.Subscribe(ctx, "dev@test.cd")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	// grant then revoke must arrive in that order or the viewer ends up
	// unlocked after a revoke
	if err = hub.Publish(ctx, grantEvent("dev@test.cd")); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if err = hub.Publish(ctx, revokeEvent("dev@test.cd")); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	if ev := receive(t, sub); ev.Type != access.EventGrant {
		t.Errorf("first event = %s, want %s", ev.Type, access.EventGrant)
	}
	if ev := receive(t, sub); ev.Type != access.EventRevoke {
		t.Errorf("second event = %s, want %s", ev.Type, access.EventRevoke)
	}
}

func Test_Hub_subjectIsolation(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(0)
	defer func() { _ = hub.Close() }()

	mine, _ := hub.Subscribe(ctx, "dev@test.cd")
	other, _ := hub.Subscribe(ctx, "other@test.cd")

	if err := hub.Publish(ctx, grantEvent("dev@test.cd")); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	if ev := receive(t, mine); ev.Subject != "dev@test.cd" {
		t.Errorf("Subject = %s, want dev@test.cd", ev.Subject)
	}
	select {
	case ev := <-other.Events():
		t.Errorf("other subject received %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func Test_Hub_fullQueueDropsNotBlocks(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(1)
	defer func() { _ = hub.Close() }()

	sub, _ := hub.Subscribe(ctx, "dev@test.cd")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = hub.Publish(ctx, grantEvent("dev@test.cd"))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish() blocked on a full queue")
	}

	// the queued event is still deliverable
	receive(t, sub)
}

func Test_Hub_subscriptionClose(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(0)
	defer func() { _ = hub.Close() }()

	sub, _ := hub.Subscribe(ctx, "dev@test.cd")
	if got := hub.SubscriberCount("dev@test.cd"); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if got := hub.SubscriberCount("dev@test.cd"); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", got)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("channel still open after Close()")
	}

	// double close is safe
	if err := sub.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}

	// publishing to a pruned subject is a no-op
	if err := hub.Publish(ctx, grantEvent("dev@test.cd")); err != nil {
		t.Errorf("Publish() after close failed: %v", err)
	}
}

func Test_Hub_Close(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(0)

	sub, _ := hub.Subscribe(ctx, "dev@test.cd")
	if err := hub.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("channel still open after hub Close()")
	}

	// late subscribers get an already-closed channel
	late, err := hub.Subscribe(ctx, "dev@test.cd")
	if err != nil {
		t.Fatalf("Subscribe() after Close() failed: %v", err)
	}
	if _, ok := <-late.Events(); ok {
		t.Error("late subscription channel open after hub Close()")
	}

	// the SSE handler always defers sub.Close(); closing a late
	// subscription must not close the channel a second time
	if err = late.Close(); err != nil {
		t.Errorf("late Close() failed: %v", err)
	}
}
