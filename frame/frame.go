// Package frame implements the JSON frame codec for the Pasugo chat socket.
//
// Every frame is a single JSON object whose "event" field selects the
// payload shape (see package wire). Inbound frames decode into one of the
// Event types below; callers switch on the concrete type:
//
//	switch ev := ev.(type) {
//	case frame.NewMessage:
//	case frame.UserTyping:
//	...
//	case frame.Unknown:
//		// forward-compatible: ignored
//	}
package frame

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pasugo/pasugo-chat-go/wire"
)

// MaxFrameLen is the largest frame accepted in either direction.
const MaxFrameLen = 64 * 1024

var (
	ErrFrameTooLarge = errors.New("frame: exceeds maximum size")
	ErrMissingEvent  = errors.New("frame: missing event discriminant")
	ErrMalformed     = errors.New("frame: malformed payload")
)

// Event is an inbound event. The set of implementations is closed.
type Event interface {
	EventName() string
	sealed()
}

// NewMessage is a message appended to the conversation.
type NewMessage struct{ wire.NewMessagePayload }

// UserTyping reports the other participant's typing state.
type UserTyping struct{ wire.UserTypingPayload }

// MessagesRead lists messages that are now read.
type MessagesRead struct{ wire.MessagesReadPayload }

// UserJoined reports the other participant opening the chat.
type UserJoined struct{ wire.PresencePayload }

// UserLeft reports the other participant leaving the chat.
type UserLeft struct{ wire.PresencePayload }

// Pong answers a ping.
type Pong struct{}

// ServerError is an application-level error; the channel stays open.
type ServerError struct{ wire.ErrorPayload }

// Unknown carries a discriminant this client does not understand.
type Unknown struct {
	Name string
	Raw  json.RawMessage
}

func (NewMessage) EventName() string   { return wire.EventNewMessage }
func (UserTyping) EventName() string   { return wire.EventUserTyping }
func (MessagesRead) EventName() string { return wire.EventMessagesRead }
func (UserJoined) EventName() string   { return wire.EventUserJoined }
func (UserLeft) EventName() string     { return wire.EventUserLeft }
func (Pong) EventName() string         { return wire.EventPong }
func (ServerError) EventName() string  { return wire.EventError }
func (u Unknown) EventName() string    { return u.Name }

func (NewMessage) sealed()   {}
func (UserTyping) sealed()   {}
func (MessagesRead) sealed() {}
func (UserJoined) sealed()   {}
func (UserLeft) sealed()     {}
func (Pong) sealed()         {}
func (ServerError) sealed()  {}
func (Unknown) sealed()      {}

// Decode parses one inbound frame.
func Decode(data []byte) (Event, error) {
	if len(data) > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return nil, ErrMissingEvent
	}

	switch env.Event {
	case wire.EventNewMessage:
		var ev NewMessage
		if err := unmarshal(data, &ev.NewMessagePayload); err != nil {
			return nil, err
		}
		if ev.MessageID == "" {
			return nil, fmt.Errorf("%w: new_message without message_id", ErrMalformed)
		}
		if ev.MessageType == "" {
			ev.MessageType = wire.KindText
		}
		return ev, nil

	case wire.EventUserTyping:
		var ev UserTyping
		if err := unmarshal(data, &ev.UserTypingPayload); err != nil {
			return nil, err
		}
		if ev.UserID == "" {
			return nil, fmt.Errorf("%w: user_typing without user_id", ErrMalformed)
		}
		return ev, nil

	case wire.EventMessagesRead:
		var ev MessagesRead
		if err := unmarshal(data, &ev.MessagesReadPayload); err != nil {
			return nil, err
		}
		return ev, nil

	case wire.EventUserJoined:
		var ev UserJoined
		if err := unmarshal(data, &ev.PresencePayload); err != nil {
			return nil, err
		}
		return ev, nil

	case wire.EventUserLeft:
		var ev UserLeft
		if err := unmarshal(data, &ev.PresencePayload); err != nil {
			return nil, err
		}
		return ev, nil

	case wire.EventPong:
		return Pong{}, nil

	case wire.EventError:
		var ev ServerError
		if err := unmarshal(data, &ev.ErrorPayload); err != nil {
			return nil, err
		}
		return ev, nil

	default:
		return Unknown{Name: env.Event, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Outbound is an encoded client frame.
type Outbound struct {
	Event string
	Data  []byte
}

// Ephemeral frames are meaningless after a reconnect and are never queued.
func (o Outbound) Ephemeral() bool {
	switch o.Event {
	case wire.EventTypingStart, wire.EventTypingStop, wire.EventPing:
		return true
	}
	return false
}

func encode(event string, v any) (Outbound, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Outbound{}, err
	}
	if len(data) > MaxFrameLen {
		return Outbound{}, ErrFrameTooLarge
	}
	return Outbound{Event: event, Data: data}, nil
}

// SendMessage encodes a send_message frame. kind defaults to text.
func SendMessage(content, kind, attachmentURL, attachmentType string) (Outbound, error) {
	if kind == "" {
		kind = wire.KindText
	}
	return encode(wire.EventSendMessage, wire.SendMessagePayload{
		Event:          wire.EventSendMessage,
		Content:        content,
		MessageType:    kind,
		AttachmentURL:  attachmentURL,
		AttachmentType: attachmentType,
	})
}

// MarkRead encodes a mark_read frame.
func MarkRead(ids ...wire.ID) (Outbound, error) {
	return encode(wire.EventMarkRead, wire.MarkReadPayload{
		Event:      wire.EventMarkRead,
		MessageIDs: ids,
	})
}

// TypingStart encodes a typing_start frame.
func TypingStart() Outbound { return bare(wire.EventTypingStart) }

// TypingStop encodes a typing_stop frame.
func TypingStop() Outbound { return bare(wire.EventTypingStop) }

// Ping encodes a keepalive frame.
func Ping() Outbound { return bare(wire.EventPing) }

func bare(event string) Outbound {
	return Outbound{Event: event, Data: []byte(`{"event":"` + event + `"}`)}
}
