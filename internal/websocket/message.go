package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always emits RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Server to client events
const (
	// EventPresenceRoster carries the sorted ids of every online user and is
	// sent to every connection, registered or anonymous
	EventPresenceRoster = "presenceRoster"

	EventNotification           = "notification"
	EventNewMessage             = "newMessage"
	EventNewConversation        = "newConversation"
	EventMessageRequestDeclined = "messageRequestDeclined"
	EventConversationUnblocked  = "conversationUnblocked"
)

// Message is one frame sent to a client
type Message struct {
	Event     string       `json:"event"`
	Payload   interface{}  `json:"payload,omitempty"`
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(event string, payload interface{}) *Message {
	return &Message{
		Event:     event,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// ParsePayload decodes the payload into v
func (m *Message) ParsePayload(v interface{}) error {
	if m.Payload == nil {
		return fmt.Errorf("message has no payload")
	}

	var data []byte
	switch p := m.Payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		var err error
		data, err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}
	return json.Unmarshal(data, v)
}

// ConversationStatePayload is the payload of messageRequestDeclined and
// conversationUnblocked
type ConversationStatePayload struct {
	ConversationID string `json:"conversationId"`
	ActorUserID    string `json:"actorUserId"`
}

// OnlineStatus is one entry of a bulk presence query
type OnlineStatus struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}
