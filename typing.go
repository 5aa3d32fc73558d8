package pasugo

import "github.com/pasugo/pasugo-chat-go/frame"

// StartTyping reports a keystroke. Only the first keystroke of a burst
// sends typing_start; every keystroke pushes the automatic typing_stop
// back by TypingIdle.
func (c *Client) StartTyping() {
	var out emitter
	c.mu.Lock()
	s, err := c.composableLocked()
	if err == nil && s.state == StateConnected {
		if !s.typing {
			s.typing = true
			c.enqueueLocked(s, frame.TypingStart(), &out)
		}
		if s.typing {
			c.afterLocked(s, timerTypingIdle, c.cfg.TypingIdle, func() { c.typingIdle(s) })
		}
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
}

// StopTyping ends the burst now. typing_stop is only sent if typing_start
// was.
func (c *Client) StopTyping() {
	var out emitter
	c.mu.Lock()
	if s := c.sess; s != nil {
		c.stopTypingLocked(s, &out)
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
}

func (c *Client) typingIdle(s *session) {
	var out emitter
	c.mu.Lock()
	c.stopTypingLocked(s, &out)
	c.mu.Unlock()
	out.deliver(c.renderer)
}

func (c *Client) stopTypingLocked(s *session, out *emitter) {
	s.timers.cancel(timerTypingIdle)
	if !s.typing {
		return
	}
	s.typing = false
	c.enqueueLocked(s, frame.TypingStop(), out)
}

// resetTypingLocked forgets both typing states when the socket goes away.
// Nothing is sent; the server clears indicators of a closed socket itself.
func (c *Client) resetTypingLocked(s *session, out *emitter) {
	s.typing = false
	s.timers.cancel(timerTypingIdle)
	for _, t := range s.remoteTyping {
		c.hideTypingLocked(s, t, out)
	}
}

func (c *Client) onUserTypingLocked(s *session, ev frame.UserTyping, out *emitter) {
	if ev.UserID == c.cfg.Identity.UserID {
		return
	}
	if !ev.IsTyping {
		if t, ok := s.remoteTyping[ev.UserID]; ok {
			c.hideTypingLocked(s, t, out)
		}
		return
	}

	t := Typing{UserID: ev.UserID, FullName: ev.FullName, Active: true}
	if _, shown := s.remoteTyping[ev.UserID]; !shown {
		out.emit(func(r Renderer) { r.TypingChanged(t) })
	}
	s.remoteTyping[ev.UserID] = t

	// No typing_stop within TypingExpiry hides the indicator anyway.
	userID := ev.UserID
	c.afterLocked(s, timerRemoteTyping+userID.String(), c.cfg.TypingExpiry, func() {
		var out emitter
		c.mu.Lock()
		if t, ok := s.remoteTyping[userID]; ok {
			c.hideTypingLocked(s, t, &out)
		}
		c.mu.Unlock()
		out.deliver(c.renderer)
	})
}

func (c *Client) hideTypingLocked(s *session, t Typing, out *emitter) {
	delete(s.remoteTyping, t.UserID)
	s.timers.cancel(timerRemoteTyping + t.UserID.String())
	t.Active = false
	out.emit(func(r Renderer) { r.TypingChanged(t) })
}
