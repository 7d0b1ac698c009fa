package events

import (
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishToSubjectSubscribers(t *testing.T) {
	t.Parallel()

	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("wf-1")
	other := p.Subscribe("wf-2")

	p.Publish(New(TypeStateSaved, "wf-1", nil))

	e := recv(t, ch)
	if e.Type != TypeStateSaved || e.Subject != "wf-1" {
		t.Errorf("unexpected event %+v", e)
	}

	select {
	case e := <-other:
		t.Errorf("wf-2 subscriber should not receive wf-1 events, got %+v", e)
	default:
	}
}

func TestGlobalSubscriberSeesEverything(t *testing.T) {
	t.Parallel()

	p := NewMemoryPublisher()
	defer p.Close()

	global := p.Subscribe(GlobalSubject)

	p.Publish(New(TypeWorkflowCreated, "wf-1", nil))
	p.Publish(New(TypeDeploymentActivated, "wf-2", nil))

	if e := recv(t, global); e.Subject != "wf-1" {
		t.Errorf("expected wf-1 first, got %s", e.Subject)
	}
	if e := recv(t, global); e.Subject != "wf-2" {
		t.Errorf("expected wf-2 second, got %s", e.Subject)
	}
}

func TestPublishNonBlockingOnFullBuffer(t *testing.T) {
	t.Parallel()

	p := NewMemoryPublisher(WithBufferSize(1))
	defer p.Close()

	ch := p.Subscribe("wf-1")
	p.Publish(New(TypeStateSaved, "wf-1", 1))
	// Buffer is full now; this publish must not block.
	done := make(chan struct{})
	go func() {
		p.Publish(New(TypeStateSaved, "wf-1", 2))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}

	if e := recv(t, ch); e.Data != 1 {
		t.Errorf("expected first event preserved, got %v", e.Data)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("wf-1")
	p.Unsubscribe("wf-1", ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	p.Publish(New(TypeStateSaved, "wf-1", nil))
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	t.Parallel()

	p := NewMemoryPublisher()
	p.Close()

	ch := p.Subscribe("wf-1")
	if _, ok := <-ch; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
