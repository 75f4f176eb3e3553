package sse

import (
	"testing"

	"github.com/yungbote/studyos-backend/internal/logger"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewHub(log)
}

func TestBroadcastReachesSubscribers(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewClient()
	hub.Subscribe(client, "subject-1")

	hub.Broadcast(Message{Channel: "subject-1", Event: EventGenerationProgress, Data: "step 1"})

	select {
	case msg := <-client.Outbound:
		if msg.Event != EventGenerationProgress || msg.Data != "step 1" {
			t.Fatalf("wrong message: %+v", msg)
		}
	default:
		t.Fatalf("no message delivered")
	}
}

func TestBroadcastSkipsOtherChannels(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewClient()
	hub.Subscribe(client, "subject-1")

	hub.Broadcast(Message{Channel: "subject-2", Event: EventGenerationProgress})

	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected delivery: %+v", msg)
	default:
	}
}

func TestBroadcastAfterUnsubscribe(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewClient()
	hub.Subscribe(client, "subject-1")
	hub.Unsubscribe(client, "subject-1")

	hub.Broadcast(Message{Channel: "subject-1", Event: EventGenerationCompleted})

	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected delivery: %+v", msg)
	default:
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewClient()
	hub.Subscribe(client, "subject-1")

	for i := 0; i < cap(client.Outbound)+5; i++ {
		hub.Broadcast(Message{Channel: "subject-1", Event: EventGenerationProgress, Data: i})
	}
	if len(client.Outbound) != cap(client.Outbound) {
		t.Fatalf("expected full buffer, got %d", len(client.Outbound))
	}
}

func TestRemoveClientCleansSubscriptions(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewClient()
	hub.Subscribe(client, "subject-1")
	hub.Subscribe(client, "subject-2")

	hub.RemoveClient(client)
	if len(hub.subscriptions) != 0 {
		t.Fatalf("subscription map not emptied: %v", hub.subscriptions)
	}
}
