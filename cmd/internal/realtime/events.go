package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

// Event is a domain occurrence the realtime core pushes to live connections.
// Events are transient: constructed and consumed within a single dispatch,
// never persisted here.
type Event interface {
	// Name is a stable identifier used in logs.
	Name() string
}

// MessageSent is published by the chat layer after a message is persisted.
// Message is the persisted document, treated as opaque by this core.
type MessageSent struct {
	ChatID  string
	Message json.RawMessage
}

// Name implements Event.
func (MessageSent) Name() string { return "message.sent" }

// PrivateChatOpened is published when a private chat is created toward a
// single target profile.
type PrivateChatOpened struct {
	TargetProfileID string
	Chat            json.RawMessage
}

// Name implements Event.
func (PrivateChatOpened) Name() string { return "chat.private-opened" }

// ChatAction is a transient action indicator (typing) broadcast to the other
// participants of a chat.
type ChatAction struct {
	ChatID          string
	SenderProfileID string
	ActionType      string
}

// Name implements Event.
func (ChatAction) Name() string { return "chat.action" }

// Handler consumes one published event.
type Handler func(ctx context.Context, ev Event) error

// Bus is a synchronous publish interface: Publish runs every subscribed
// handler to completion before returning, so publishers observe delivery
// attempts as finished once Publish returns. Other components call Publish
// as their hook into the realtime core.
type Bus struct {
	log *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
}

// NewBus constructs an empty Bus.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers a handler for all subsequent publishes.
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish delivers ev to every current subscriber and waits for all of them.
// Handler errors are joined and returned; later handlers still run.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev == nil {
		return nil
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			b.log.Error("bus.handler.fail", "event", ev.Name(), "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
