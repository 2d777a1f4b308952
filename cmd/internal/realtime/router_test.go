package realtime

import (
	"context"
	"encoding/json"
	"testing"

	v1 "pulse/contracts/realtime/v1"
)

func newTestRouter(t *testing.T) (*Router, *Registry, *InMemoryParticipantStore) {
	t.Helper()
	log := testLogger()
	presence := NewRegistry(log)
	parts := NewInMemoryParticipantStore()
	return NewRouter(log, presence, parts), presence, parts
}

func drainOne(t *testing.T, c *Client) v1.Envelope {
	t.Helper()
	select {
	case env := <-c.Send:
		return env
	default:
		t.Fatalf("expected a queued frame for conn %s", c.ConnID)
		return v1.Envelope{}
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case env := <-c.Send:
		t.Fatalf("expected no frame, got type=%s", env.Type)
	default:
	}
}

func TestRouter_MessageSentFansOutToOnlineParticipants(t *testing.T) {
	router, presence, parts := newTestRouter(t)

	alice := NewClient("profile-alice", "sess-a", 8)
	bob := NewClient("profile-bob", "sess-b", 8)
	presence.Register(alice)
	presence.Register(bob)
	parts.SetChat("chat-1", "profile-alice", "profile-bob", "profile-offline")

	doc := json.RawMessage(`{"id":"msg-1","text":"hi"}`)
	err := router.Dispatch(context.Background(), MessageSent{ChatID: "chat-1", Message: doc})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	for _, c := range []*Client{alice, bob} {
		env := drainOne(t, c)
		if env.Type != v1.TypeIncomingMessage {
			t.Fatalf("expected %s, got %s", v1.TypeIncomingMessage, env.Type)
		}
		var p v1.IncomingMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if string(p.Message) != string(doc) {
			t.Fatalf("message document altered in transit: %s", p.Message)
		}
	}
}

func TestRouter_OfflineTargetIsSilentlySkipped(t *testing.T) {
	router, _, parts := newTestRouter(t)
	parts.SetChat("chat-1", "profile-alice", "profile-bob")

	err := router.Dispatch(context.Background(), MessageSent{
		ChatID:  "chat-1",
		Message: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("expected offline fanout to succeed silently, got %v", err)
	}
}

func TestRouter_ChatActionSkipsSender(t *testing.T) {
	router, presence, parts := newTestRouter(t)

	alice := NewClient("profile-alice", "sess-a", 8)
	bob := NewClient("profile-bob", "sess-b", 8)
	presence.Register(alice)
	presence.Register(bob)
	parts.SetChat("chat-1", "profile-alice", "profile-bob")

	err := router.Dispatch(context.Background(), ChatAction{
		ChatID:          "chat-1",
		SenderProfileID: "profile-alice",
		ActionType:      "typing",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	env := drainOne(t, bob)
	if env.Type != v1.TypeChatAction {
		t.Fatalf("expected %s, got %s", v1.TypeChatAction, env.Type)
	}
	var p v1.ChatActionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.SenderID != "profile-alice" || p.ChatID != "chat-1" || p.ActionType != "typing" {
		t.Fatalf("unexpected chat action payload: %+v", p)
	}

	assertEmpty(t, alice)
}

func TestRouter_ChatActionFromNonParticipantIsDropped(t *testing.T) {
	router, presence, parts := newTestRouter(t)

	bob := NewClient("profile-bob", "sess-b", 8)
	presence.Register(bob)
	parts.SetChat("chat-1", "profile-bob")

	err := router.Dispatch(context.Background(), ChatAction{
		ChatID:          "chat-1",
		SenderProfileID: "profile-intruder",
		ActionType:      "typing",
	})
	if err != nil {
		t.Fatalf("expected silent drop for non-participant sender, got %v", err)
	}
	assertEmpty(t, bob)
}

func TestRouter_PrivateChatOpenedReachesTarget(t *testing.T) {
	router, presence, _ := newTestRouter(t)

	bob := NewClient("profile-bob", "sess-b", 8)
	presence.Register(bob)

	doc := json.RawMessage(`{"id":"chat-9"}`)
	err := router.Dispatch(context.Background(), PrivateChatOpened{
		TargetProfileID: "profile-bob",
		Chat:            doc,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	env := drainOne(t, bob)
	if env.Type != v1.TypePrivateChatOpened {
		t.Fatalf("expected %s, got %s", v1.TypePrivateChatOpened, env.Type)
	}
	var p v1.PrivateChatOpenedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if string(p.Chat) != string(doc) {
		t.Fatalf("chat document altered in transit: %s", p.Chat)
	}
}

func TestRouter_BackpressureDropsInsteadOfBlocking(t *testing.T) {
	router, presence, parts := newTestRouter(t)

	// Smallest allowed queue, then saturate it.
	bob := NewClient("profile-bob", "sess-b", 1)
	presence.Register(bob)
	parts.SetChat("chat-1", "profile-bob")

	for i := 0; i < 3; i++ {
		err := router.Dispatch(context.Background(), MessageSent{
			ChatID:  "chat-1",
			Message: json.RawMessage(`{}`),
		})
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}

	// Exactly one frame fit the queue; the rest were dropped.
	drainOne(t, bob)
	assertEmpty(t, bob)
}

func TestRouter_ClosingConnectionIsSkipped(t *testing.T) {
	router, presence, _ := newTestRouter(t)

	bob := NewClient("profile-bob", "sess-b", 8)
	presence.Register(bob)
	bob.Close()

	err := router.Dispatch(context.Background(), PrivateChatOpened{
		TargetProfileID: "profile-bob",
		Chat:            json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	assertEmpty(t, bob)
}
