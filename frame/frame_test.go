package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasugo/pasugo-chat-go/wire"
)

func TestDecodeKnownEvents(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, ev Event)
	}{
		{
			name:  "new_message",
			input: `{"event":"new_message","message_id":12,"sender_id":"u-1","content":"hi","message_type":"text","sent_at":"2024-05-01T10:00:00Z","extra":true}`,
			check: func(t *testing.T, ev Event) {
				m, ok := ev.(NewMessage)
				require.True(t, ok)
				assert.Equal(t, wire.ID("12"), m.MessageID)
				assert.Equal(t, wire.ID("u-1"), m.SenderID)
				assert.Equal(t, "hi", m.Content)
			},
		},
		{
			name:  "new_message defaults kind",
			input: `{"event":"new_message","message_id":"a","sender_id":1,"content":"x"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, wire.KindText, ev.(NewMessage).MessageType)
			},
		},
		{
			name:  "user_typing",
			input: `{"event":"user_typing","user_id":5,"is_typing":true,"full_name":"Rina"}`,
			check: func(t *testing.T, ev Event) {
				u := ev.(UserTyping)
				assert.True(t, u.IsTyping)
				assert.Equal(t, wire.ID("5"), u.UserID)
			},
		},
		{
			name:  "messages_read",
			input: `{"event":"messages_read","message_ids":[1,"2",3]}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, []wire.ID{"1", "2", "3"}, ev.(MessagesRead).MessageIDs)
			},
		},
		{
			name:  "user_joined",
			input: `{"event":"user_joined","user_id":9,"full_name":"Jun"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "Jun", ev.(UserJoined).FullName)
			},
		},
		{
			name:  "user_left",
			input: `{"event":"user_left","user_id":9,"full_name":"Jun"}`,
			check: func(t *testing.T, ev Event) {
				assert.IsType(t, UserLeft{}, ev)
			},
		},
		{
			name:  "pong",
			input: `{"event":"pong"}`,
			check: func(t *testing.T, ev Event) {
				assert.IsType(t, Pong{}, ev)
			},
		},
		{
			name:  "error",
			input: `{"event":"error","message":"rate limited"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "rate limited", ev.(ServerError).Message)
			},
		},
		{
			name:  "unknown is forwarded, not rejected",
			input: `{"event":"rider_location","lat":1}`,
			check: func(t *testing.T, ev Event) {
				u, ok := ev.(Unknown)
				require.True(t, ok)
				assert.Equal(t, "rider_location", u.EventName())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"not json", `hello`, ErrMalformed},
		{"no event", `{"content":"x"}`, ErrMissingEvent},
		{"message without id", `{"event":"new_message","content":"x"}`, ErrMalformed},
		{"typing without user", `{"event":"user_typing","is_typing":true}`, ErrMalformed},
		{"wrong field type", `{"event":"messages_read","message_ids":"1"}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDecodeOversized(t *testing.T) {
	big := `{"event":"error","message":"` + strings.Repeat("x", MaxFrameLen) + `"}`
	_, err := Decode([]byte(big))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestSendMessageFrame(t *testing.T) {
	out, err := SendMessage("hello", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, wire.EventSendMessage, out.Event)
	assert.False(t, out.Ephemeral())
	assert.JSONEq(t, `{"event":"send_message","content":"hello","message_type":"text"}`, string(out.Data))

	out, err = SendMessage("receipt", wire.KindImage, "https://cdn/x.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"send_message","content":"receipt","message_type":"image","attachment_url":"https://cdn/x.jpg","attachment_type":"image/jpeg"}`, string(out.Data))
}

func TestSendMessageTooLarge(t *testing.T) {
	_, err := SendMessage(strings.Repeat("a", MaxFrameLen), "", "", "")
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestMarkReadKeepsNumericIDs(t *testing.T) {
	out, err := MarkRead("7", "abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"mark_read","message_ids":[7,"abc"]}`, string(out.Data))
}

func TestEphemeralFrames(t *testing.T) {
	for _, out := range []Outbound{TypingStart(), TypingStop(), Ping()} {
		assert.True(t, out.Ephemeral(), out.Event)
		var env wire.Envelope
		require.NoError(t, json.Unmarshal(out.Data, &env))
		assert.Equal(t, out.Event, env.Event)
	}
}

func TestDedupWindow(t *testing.T) {
	d := NewDedupWindow(nil)

	assert.False(t, d.IsDuplicate("1"), "first id should not be duplicate")
	assert.True(t, d.IsDuplicate("1"), "second check of same id should be duplicate")
	assert.False(t, d.IsDuplicate("2"))
	assert.Equal(t, 2, d.Len())
}

func TestDedupWindowEviction(t *testing.T) {
	d := NewDedupWindow(nil)
	for i := 0; i < dedupWindowSize+100; i++ {
		d.IsDuplicate(wire.ID(fmt.Sprint(i)))
	}
	assert.LessOrEqual(t, d.Len(), dedupWindowSize)
	assert.False(t, d.IsDuplicate("0"), "oldest id should have been evicted")
}

func TestDedupWindowTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDedupWindow(func() time.Time { return now })

	assert.False(t, d.IsDuplicate("x"))
	now = now.Add(dedupWindowTTL + time.Second)
	assert.False(t, d.IsDuplicate("x"), "expired id should be forgotten")
}
