// Package wire defines the JSON payload types exchanged over the Pasugo chat
// socket. One event per text frame, discriminated by the "event" field.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Outbound event names (client -> server).
const (
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventMarkRead    = "mark_read"
	EventPing        = "ping"
)

// Inbound event names (server -> client).
const (
	EventNewMessage   = "new_message"
	EventUserTyping   = "user_typing"
	EventMessagesRead = "messages_read"
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventPong         = "pong"
	EventError        = "error"
)

// Message kinds.
const (
	KindText   = "text"
	KindImage  = "image"
	KindSystem = "system"
)

// ID is a backend identifier. The API is not consistent about quoting ids,
// so it decodes from either a JSON string or a JSON number.
type ID string

// UnmarshalJSON accepts "42", 42 and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("wire: id is neither string nor number: %s", b)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers so the backend sees the same
// shape it sent.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if numeric(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func numeric(s string) bool {
	if len(s) == 0 || len(s) > 18 || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (id ID) String() string { return string(id) }

// Envelope is the discriminant every frame carries.
type Envelope struct {
	Event string `json:"event"`
}

// SendMessagePayload is the payload of a send_message frame.
type SendMessagePayload struct {
	Event          string `json:"event"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
}

// MarkReadPayload is the payload of a mark_read frame.
type MarkReadPayload struct {
	Event      string `json:"event"`
	MessageIDs []ID   `json:"message_ids"`
}

// NewMessagePayload is pushed for every message in the conversation,
// including the sender's own.
type NewMessagePayload struct {
	MessageID      ID     `json:"message_id"`
	SenderID       ID     `json:"sender_id"`
	SenderRole     string `json:"sender_role,omitempty"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
	SentAt         string `json:"sent_at"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
}

// UserTypingPayload reports a typing burst start or end.
type UserTypingPayload struct {
	UserID   ID     `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
	FullName string `json:"full_name"`
}

// MessagesReadPayload lists messages the other participant has read.
type MessagesReadPayload struct {
	MessageIDs []ID `json:"message_ids"`
	UserID     ID   `json:"user_id,omitempty"`
}

// PresencePayload is the payload of user_joined and user_left.
type PresencePayload struct {
	UserID   ID     `json:"user_id"`
	FullName string `json:"full_name"`
}

// ErrorPayload is an application-level error from the server.
type ErrorPayload struct {
	Message string `json:"message"`
}
