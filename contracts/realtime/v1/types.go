// Package v1 defines the Pulse Realtime Protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeGetUserIsOnline asks whether a profile has a live connection (client -> server).
	TypeGetUserIsOnline = "getUserIsOnline"
	// TypeUserIsOnline answers a presence query (server -> client).
	TypeUserIsOnline = "userIsOnline"

	// TypeSendChatAction broadcasts a chat action such as typing (client -> server).
	TypeSendChatAction = "sendChatAction"
	// TypeChatAction delivers a chat action to other chat participants (server -> client).
	TypeChatAction = "chatAction"

	// TypeIncomingMessage delivers a newly persisted message to chat participants (server -> client).
	TypeIncomingMessage = "incomingMessage"
	// TypePrivateChatOpened notifies the target profile that a private chat was opened (server -> client).
	TypePrivateChatOpened = "privateChatOpened"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeGetUserIsOnline,
		TypeUserIsOnline,
		TypeSendChatAction,
		TypeChatAction,
		TypeIncomingMessage,
		TypePrivateChatOpened,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// GetUserIsOnlinePayload asks whether profileId currently holds a live connection.
type GetUserIsOnlinePayload struct {
	ProfileID string `json:"profileId" validate:"required"`
}

// UserIsOnlinePayload answers a presence query.
type UserIsOnlinePayload struct {
	ProfileID string `json:"profileId"`
	Online    bool   `json:"online"`
}

// SendChatActionPayload requests re-broadcasting a chat action to the chat's other participants.
type SendChatActionPayload struct {
	ChatID     string `json:"chatId" validate:"required"`
	ActionType string `json:"actionType" validate:"required"`
}

// ChatActionPayload delivers a chat action originated by another participant.
type ChatActionPayload struct {
	ActionType string `json:"actionType"`
	SenderID   string `json:"senderId"`
	ChatID     string `json:"chatId"`
}

// IncomingMessagePayload carries the persisted message document produced by the chat layer.
// The message shape is owned by the chat collaborator; the realtime core treats it as opaque.
type IncomingMessagePayload struct {
	Message json.RawMessage `json:"message"`
}

// PrivateChatOpenedPayload carries the chat document pushed to the target profile.
type PrivateChatOpenedPayload struct {
	Chat json.RawMessage `json:"chat"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
