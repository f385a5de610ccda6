// Package events defines the server→client push protocol carried over the
// websocket. Every frame is a JSON envelope {"event": name, "data": payload}.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/models"
)

const (
	// OnlineUsers carries the full set of online user ids.
	OnlineUsers = "getOnlineUsers"
	// NewMessage carries a models.MessageView.
	NewMessage = "newMessage"
	// IncrementUnread hints the receiver that a sender has one more unread.
	IncrementUnread = "incrementUnread"
	// MessageDelivered tells the sender a message reached a live receiver.
	MessageDelivered = "messageDelivered"
	// MessagesSeen tells a sender that the peer has read the conversation.
	MessagesSeen = "messagesSeen"
)

// Event is an outbound push before encoding.
type Event struct {
	Name string
	Data any
}

// Envelope is the wire form. Data stays raw so receivers decode it by name.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type FromPayload struct {
	From uuid.UUID `json:"from"`
}

type DeliveredPayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

func Online(userIDs []uuid.UUID) Event {
	if userIDs == nil {
		userIDs = []uuid.UUID{}
	}
	return Event{Name: OnlineUsers, Data: userIDs}
}

func Message(view models.MessageView) Event {
	return Event{Name: NewMessage, Data: view}
}

func Unread(from uuid.UUID) Event {
	return Event{Name: IncrementUnread, Data: FromPayload{From: from}}
}

func Delivered(messageID uuid.UUID) Event {
	return Event{Name: MessageDelivered, Data: DeliveredPayload{MessageID: messageID}}
}

func Seen(from uuid.UUID) Event {
	return Event{Name: MessagesSeen, Data: FromPayload{From: from}}
}

// Encode renders an event as a wire frame.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Name, err)
	}
	return json.Marshal(Envelope{Event: e.Name, Data: data})
}

// Decode parses a wire frame into its envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event name")
	}
	return env, nil
}

// Payload decodes the envelope's data into v.
func (e Envelope) Payload(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}
