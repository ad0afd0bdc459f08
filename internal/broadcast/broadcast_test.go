package broadcast

import (
	"testing"
	"time"
)

func TestPublishDeliversInOrderToEachSubscriber(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe(1)
	defer sub.Unsubscribe()

	for i := 0; i < 3; i++ {
		b.Publish(1, Message{Kind: EventSessionStatus})
	}

	for i := 0; i < 3; i++ {
		select {
		case <-sub.Channel():
		case <-time.After(time.Second):
			t.Fatalf("expected message %d, timed out", i)
		}
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := New(1, nil)
	sub := b.Subscribe(1)
	defer sub.Unsubscribe()

	b.Publish(1, Message{Kind: EventSessionStatus})
	b.Publish(1, Message{Kind: EventSessionStatus}) // buffer full, dropped

	select {
	case <-sub.Channel():
	default:
		t.Fatal("expected the first message to be delivered")
	}
	select {
	case <-sub.Channel():
		t.Fatal("expected the second message to have been dropped")
	default:
	}
}

func TestPublishDoesNotDeliverToOtherSessions(t *testing.T) {
	b := New(8, nil)
	subA := b.Subscribe(1)
	subB := b.Subscribe(2)
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	b.Publish(1, Message{Kind: EventSessionStatus})

	select {
	case <-subA.Channel():
	default:
		t.Fatal("expected subscriber A to receive the message")
	}
	select {
	case <-subB.Channel():
		t.Fatal("expected subscriber B not to receive session 1's message")
	default:
	}
}

func TestUnsubscribeRemovesFromRegistry(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe(1)
	if got := b.SubscriberCount(1); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}
	sub.Unsubscribe()
	if got := b.SubscriberCount(1); got != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", got)
	}
}

func TestCloseSessionSignalsDoneForAllSubscribers(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe(1)

	b.CloseSession(1)

	select {
	case <-sub.sub.done:
	case <-time.After(time.Second):
		t.Fatal("expected subscriber done channel closed after CloseSession")
	}
	if got := b.SubscriberCount(1); got != 0 {
		t.Fatalf("expected session removed from registry, got %d subscribers", got)
	}
}
