package pasugo

import "github.com/pasugo/pasugo-chat-go/auth"

// Renderer receives everything the chat view needs to draw. Methods are
// never called with client locks held, so they may call back into the
// Client. They can be invoked from different goroutines, one at a time
// per event.
type Renderer interface {
	StateChanged(state State, reason CloseReason)
	HistoryLoaded(conv Conversation, msgs []Message)
	MessageAppended(m Message)
	MessagesRead(ids []ID)
	TypingChanged(t Typing)
	PresenceChanged(p Presence)
	Notice(n Notice)
	TaskChanged(t TaskSnapshot)
	UnreadChanged(count int, latest *Message)
	ComposerChanged(enabled bool)
}

// Typing is the remote participant's typing indicator.
type Typing struct {
	UserID   ID
	FullName string
	Active   bool
}

// Presence is the remote participant's presence in the conversation.
type Presence struct {
	UserID   ID
	FullName string
	Role     auth.Role
	Online   bool
}

// NoticeKind classifies system notices.
type NoticeKind string

const (
	NoticeEmpty          NoticeKind = "empty"
	NoticeTaskCompleted  NoticeKind = "task_completed"
	NoticeTaskCancelled  NoticeKind = "task_cancelled"
	NoticeConnectionLost NoticeKind = "connection_lost"
	NoticeAuthRejected   NoticeKind = "auth_rejected"
	NoticeRequestFailed  NoticeKind = "request_failed"
	NoticeServerError    NoticeKind = "server_error"
	NoticeRemoteClosed   NoticeKind = "remote_closed"
)

// Notice is a system line rendered inline with the messages.
type Notice struct {
	Kind NoticeKind
	Text string
	// Unsent counts queued messages that were not delivered when the
	// session ended.
	Unsent int
}

// NopRenderer ignores every event. Embed it to implement a subset.
type NopRenderer struct{}

func (NopRenderer) StateChanged(State, CloseReason)      {}
func (NopRenderer) HistoryLoaded(Conversation, []Message) {}
func (NopRenderer) MessageAppended(Message)               {}
func (NopRenderer) MessagesRead([]ID)                     {}
func (NopRenderer) TypingChanged(Typing)                  {}
func (NopRenderer) PresenceChanged(Presence)              {}
func (NopRenderer) Notice(Notice)                         {}
func (NopRenderer) TaskChanged(TaskSnapshot)              {}
func (NopRenderer) UnreadChanged(int, *Message)           {}
func (NopRenderer) ComposerChanged(bool)                  {}

// emitter collects renderer calls made while the client lock is held so
// they can be delivered after it is released.
type emitter []func(Renderer)

func (e *emitter) emit(fn func(Renderer)) { *e = append(*e, fn) }

func (e emitter) deliver(r Renderer) {
	for _, fn := range e {
		fn(r)
	}
}
