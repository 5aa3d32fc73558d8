package pasugo

import "github.com/pasugo/pasugo-chat-go/frame"

// history is the rendered message list: arrival order, unique ids.
type history struct {
	msgs  []Message
	index map[ID]int
}

func (h *history) reset(msgs []Message) {
	h.msgs = make([]Message, 0, len(msgs))
	h.index = make(map[ID]int, len(msgs))
	for _, m := range msgs {
		h.append(m)
	}
}

// append adds m unless a message with the same id is already present.
func (h *history) append(m Message) bool {
	if h.index == nil {
		h.index = make(map[ID]int)
	}
	if m.ID != "" {
		if _, dup := h.index[m.ID]; dup {
			return false
		}
		h.index[m.ID] = len(h.msgs)
	}
	h.msgs = append(h.msgs, m)
	return true
}

// markRead flags ids as read and returns only those whose state changed.
// Unknown ids are ignored.
func (h *history) markRead(ids []ID) []ID {
	var changed []ID
	for _, id := range ids {
		i, ok := h.index[id]
		if !ok || h.msgs[i].Read {
			continue
		}
		h.msgs[i].Read = true
		changed = append(changed, id)
	}
	return changed
}

// unreadFrom returns the ids of unread messages not sent by self.
func (h *history) unreadFrom(self ID) []ID {
	var ids []ID
	for _, m := range h.msgs {
		if !m.Read && m.ID != "" && m.SenderID != self {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func (h *history) snapshot() []Message {
	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *history) len() int { return len(h.msgs) }

// outbox holds frames composed while the socket was not writable.
type outbox struct {
	items []frame.Outbound
}

func (q *outbox) push(o frame.Outbound) { q.items = append(q.items, o) }

func (q *outbox) peek() (frame.Outbound, bool) {
	if len(q.items) == 0 {
		return frame.Outbound{}, false
	}
	return q.items[0], true
}

func (q *outbox) pop() {
	q.items[0] = frame.Outbound{}
	q.items = q.items[1:]
}

func (q *outbox) len() int { return len(q.items) }

// drain empties the queue and returns what it held.
func (q *outbox) drain() []frame.Outbound {
	items := q.items
	q.items = nil
	return items
}
