package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	v1 "pulse/contracts/realtime/v1"
)

// Router resolves an event's target profiles and pushes payloads to the
// targets' live connections.
//
// Delivery is at-most-once: an offline target or a saturated send queue is
// skipped silently. Participant lookups go to the store on every dispatch;
// the router never caches membership.
type Router struct {
	log          *slog.Logger
	presence     *Registry
	participants ParticipantStore
}

// NewRouter constructs a Router.
func NewRouter(log *slog.Logger, presence *Registry, participants ParticipantStore) *Router {
	return &Router{log: log, presence: presence, participants: participants}
}

// Dispatch resolves ev's targets and pushes the corresponding frame to every
// target that is currently online. Participant-store I/O errors propagate;
// offline targets never produce an error.
func (r *Router) Dispatch(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case MessageSent:
		return r.dispatchMessageSent(ctx, ev)
	case PrivateChatOpened:
		return r.dispatchPrivateChatOpened(ev)
	case ChatAction:
		return r.dispatchChatAction(ctx, ev)
	default:
		r.log.Warn("router.event.unknown", "event", ev.Name())
		return nil
	}
}

func (r *Router) dispatchMessageSent(ctx context.Context, ev MessageSent) error {
	targets, err := r.participants.ListProfileIDs(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("participants for chat %s: %w", ev.ChatID, err)
	}

	payload, err := json.Marshal(v1.IncomingMessagePayload{Message: ev.Message})
	if err != nil {
		return err
	}

	env := newEnvelope(v1.TypeIncomingMessage, payload, time.Now().UTC())
	for _, profileID := range targets {
		r.push(profileID, env)
	}
	return nil
}

func (r *Router) dispatchPrivateChatOpened(ev PrivateChatOpened) error {
	payload, err := json.Marshal(v1.PrivateChatOpenedPayload{Chat: ev.Chat})
	if err != nil {
		return err
	}

	r.push(ev.TargetProfileID, newEnvelope(v1.TypePrivateChatOpened, payload, time.Now().UTC()))
	return nil
}

func (r *Router) dispatchChatAction(ctx context.Context, ev ChatAction) error {
	targets, err := r.participants.ListProfileIDs(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("participants for chat %s: %w", ev.ChatID, err)
	}

	// A sender outside the chat gets a silent no-op, not an error frame.
	if !lo.Contains(targets, ev.SenderProfileID) {
		return nil
	}

	payload, err := json.Marshal(v1.ChatActionPayload{
		ActionType: ev.ActionType,
		SenderID:   ev.SenderProfileID,
		ChatID:     ev.ChatID,
	})
	if err != nil {
		return err
	}

	env := newEnvelope(v1.TypeChatAction, payload, time.Now().UTC())
	others := lo.Filter(targets, func(id string, _ int) bool { return id != ev.SenderProfileID })
	for _, profileID := range others {
		r.push(profileID, env)
	}
	return nil
}

// push enqueues env to a profile's current connection, if any.
// Non-blocking: offline targets and full queues are counted and skipped.
func (r *Router) push(profileID string, env v1.Envelope) {
	c := r.presence.Lookup(profileID)
	if c == nil {
		framesDropped.WithLabelValues("offline").Inc()
		return
	}

	select {
	case <-c.Done():
		framesDropped.WithLabelValues("closing").Inc()
		return
	default:
	}

	select {
	case c.Send <- env:
		framesDelivered.WithLabelValues(env.Type).Inc()
	default:
		// Drop rather than block the dispatching goroutine.
		framesDropped.WithLabelValues("backpressure").Inc()
		r.log.Warn("router.push.backpressure", "profile_id", profileID, "type", env.Type)
	}
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      ulid.Make().String(),
		TS:      ts,
		Payload: payload,
	}
}
