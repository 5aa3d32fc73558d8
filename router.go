package pasugo

import (
	"github.com/pasugo/pasugo-chat-go/auth"
	"github.com/pasugo/pasugo-chat-go/frame"
)

// route decodes one inbound frame and dispatches it. Frames from a socket
// that has since been replaced are ignored.
func (c *Client) route(s *session, gen uint64, data []byte) {
	ev, err := frame.Decode(data)
	if err != nil {
		c.metrics.malformedFrame()
		c.mu.Lock()
		log := s.log
		c.mu.Unlock()
		log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
		return
	}

	var out emitter
	c.mu.Lock()
	if c.sess != s || s.gen != gen || s.state == StateClosed {
		c.mu.Unlock()
		return
	}
	_, unknown := ev.(frame.Unknown)
	c.metrics.received(ev.EventName(), !unknown)

	switch ev := ev.(type) {
	case frame.NewMessage:
		c.onNewMessageLocked(s, ev, &out)
	case frame.UserTyping:
		c.onUserTypingLocked(s, ev, &out)
	case frame.MessagesRead:
		c.onMessagesReadLocked(s, ev, &out)
	case frame.UserJoined:
		c.onPresenceLocked(s, ev.UserID, ev.FullName, true, &out)
	case frame.UserLeft:
		c.onPresenceLocked(s, ev.UserID, ev.FullName, false, &out)
	case frame.Pong:
		s.lastPong = c.clock.Now()
	case frame.ServerError:
		s.log.Warn().Str("message", ev.Message).Msg("server error")
		n := Notice{Kind: NoticeServerError, Text: ev.Message}
		out.emit(func(r Renderer) { r.Notice(n) })
	case frame.Unknown:
		s.log.Debug().Str("event", ev.Name).Msg("ignoring unknown event")
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
}

func (c *Client) onNewMessageLocked(s *session, ev frame.NewMessage, out *emitter) {
	m := Message{
		ID:             ev.MessageID,
		ConversationID: s.conv.ID,
		SenderID:       ev.SenderID,
		Content:        ev.Content,
		Kind:           ev.MessageType,
		AttachmentURL:  ev.AttachmentURL,
		AttachmentType: ev.AttachmentType,
		SentAt:         Timestamp{ParseTime(ev.SentAt)},
	}
	if m.SentAt.IsZero() {
		m.SentAt = Timestamp{c.clock.Now()}
	}
	m.SenderRole = c.roleOf(m.SenderID, m.Kind, auth.Role(ev.SenderRole))

	if !s.history.append(m) {
		s.log.Debug().Str("message_id", m.ID.String()).Msg("duplicate message ignored")
		return
	}
	out.emit(func(r Renderer) { r.MessageAppended(m) })

	if m.SenderID == c.cfg.Identity.UserID {
		return
	}
	if t, ok := s.remoteTyping[m.SenderID]; ok {
		c.hideTypingLocked(s, t, out)
	}
	c.markReadLocked(s, []ID{m.ID}, out)
	if !s.focused {
		s.unread++
		count, latest := s.unread, m
		out.emit(func(r Renderer) { r.UnreadChanged(count, &latest) })
	}
}

func (c *Client) onMessagesReadLocked(s *session, ev frame.MessagesRead, out *emitter) {
	changed := s.history.markRead(ev.MessageIDs)
	if len(changed) == 0 {
		return
	}
	out.emit(func(r Renderer) { r.MessagesRead(changed) })
}

func (c *Client) onPresenceLocked(s *session, userID ID, name string, online bool, out *emitter) {
	if userID == "" || userID == c.cfg.Identity.UserID {
		return
	}
	if !online {
		if t, ok := s.remoteTyping[userID]; ok {
			c.hideTypingLocked(s, t, out)
		}
	}
	p := Presence{
		UserID:   userID,
		FullName: name,
		Role:     c.cfg.Identity.Role.Counterpart(),
		Online:   online,
	}
	out.emit(func(r Renderer) { r.PresenceChanged(p) })
}
