package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	pasugo "github.com/pasugo/pasugo-chat-go"
	"github.com/pasugo/pasugo-chat-go/wire"
)

// terminalRenderer prints chat events as plain lines.
type terminalRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	self pasugo.ID
}

func newTerminalRenderer(out io.Writer) *terminalRenderer {
	return &terminalRenderer{out: out}
}

func (t *terminalRenderer) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format+"\n", args...)
}

func (t *terminalRenderer) StateChanged(state pasugo.State, reason pasugo.CloseReason) {
	if reason != pasugo.ReasonNone {
		t.printf("-- %s (%s)", state, reason)
		return
	}
	t.printf("-- %s", state)
}

func (t *terminalRenderer) HistoryLoaded(conv pasugo.Conversation, msgs []pasugo.Message) {
	t.printf("-- conversation %s for task %s", conv.ID, conv.TaskID)
	for _, m := range msgs {
		t.MessageAppended(m)
	}
}

func (t *terminalRenderer) MessageAppended(m pasugo.Message) {
	t.printf("%s", formatMessage(m, t.self))
}

func (t *terminalRenderer) MessagesRead(ids []pasugo.ID) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	t.printf("   seen: %s", strings.Join(parts, ", "))
}

func (t *terminalRenderer) TypingChanged(ty pasugo.Typing) {
	if ty.Active {
		t.printf("   %s is typing...", displayName(ty.FullName, ty.UserID))
	}
}

func (t *terminalRenderer) PresenceChanged(p pasugo.Presence) {
	verb := "left"
	if p.Online {
		verb = "joined"
	}
	t.printf("-- %s (%s) %s", displayName(p.FullName, p.UserID), p.Role, verb)
}

func (t *terminalRenderer) Notice(n pasugo.Notice) {
	if n.Unsent > 0 {
		t.printf("** %s (%d unsent)", n.Text, n.Unsent)
		return
	}
	t.printf("** %s", n.Text)
}

func (t *terminalRenderer) TaskChanged(task pasugo.TaskSnapshot) {
	t.printf("%s", formatTask(task))
}

func (t *terminalRenderer) UnreadChanged(count int, latest *pasugo.Message) {
	if count == 0 || latest == nil {
		return
	}
	t.printf("   %d unread, latest: %q", count, latest.Content)
}

func (t *terminalRenderer) ComposerChanged(enabled bool) {
	if !enabled {
		t.printf("-- chat is read-only")
	}
}

func formatMessage(m pasugo.Message, self pasugo.ID) string {
	ts := "--:--"
	if !m.SentAt.IsZero() {
		ts = m.SentAt.Local().Format("15:04")
	}
	if m.IsSystem() {
		return fmt.Sprintf("[%s] * %s", ts, m.Content)
	}
	who := displayName(m.SenderName, m.SenderID)
	if m.SenderRole != "" {
		who += " (" + string(m.SenderRole) + ")"
	}
	if self != "" && m.SenderID == self {
		who = "you"
	}
	body := m.Content
	if m.Kind == wire.KindImage && m.AttachmentURL != "" {
		body = strings.TrimSpace("[image " + m.AttachmentURL + "] " + m.Content)
	}
	mark := ""
	if m.Read {
		mark = " ✓"
	}
	return fmt.Sprintf("[%s] %s: %s%s", ts, who, body, mark)
}

func formatTask(task pasugo.TaskSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "task %s: %s", task.ID, task.Status)
	if task.ServiceType != "" {
		fmt.Fprintf(&b, " [%s]", task.ServiceType)
	}
	if !task.Fee.IsZero() {
		fmt.Fprintf(&b, " fee %s", task.Fee.StringFixed(2))
	}
	if !task.BillAmount.IsZero() {
		fmt.Fprintf(&b, " bill %s", task.BillAmount.StringFixed(2))
	}
	if !task.Total.IsZero() {
		fmt.Fprintf(&b, " total %s", task.Total.StringFixed(2))
	}
	if task.PaymentDone {
		b.WriteString(" (paid)")
	}
	return b.String()
}

func displayName(name string, id pasugo.ID) string {
	if name != "" {
		return name
	}
	return "user " + id.String()
}
