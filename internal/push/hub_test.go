package push

import (
	"testing"
)

func TestHubSubscribeNotify(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("CA1")
	defer cancel()

	h.Notify(Event{Kind: KindChunk, CallID: "CA1"})

	select {
	case ev := <-ch:
		if ev.Kind != KindChunk || ev.CallID != "CA1" {
			t.Errorf("event = %+v, want chunk/CA1", ev)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestHubKeyedByCallID(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("CA1")
	defer cancel()

	h.Notify(Event{Kind: KindSession, CallID: "CA2"})

	select {
	case ev := <-ch:
		t.Errorf("received %+v for a different call", ev)
	default:
	}
}

func TestHubCancelReleasesSubscription(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("CA1")
	if got := h.SubscriberCount("CA1"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}
	cancel()
	if got := h.SubscriberCount("CA1"); got != 0 {
		t.Errorf("SubscriberCount = %d after cancel, want 0", got)
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("CA1")
	defer cancel()

	// Overflow the buffer; Notify must return regardless.
	for i := 0; i < subscriberBuffer*3; i++ {
		h.Notify(Event{Kind: KindChunk, CallID: "CA1"})
	}
}
