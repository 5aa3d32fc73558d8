package pasugo

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Timer names. Remote typing timers are keyed per user with the
// timerRemoteTyping prefix.
const (
	timerHeartbeat    = "heartbeat"
	timerReconnect    = "reconnect"
	timerPoll         = "poll"
	timerTypingIdle   = "typing-idle"
	timerRemoteTyping = "typing-remote:"
)

type timerEntry struct {
	timer *clock.Timer
	token uint64
}

// timerRegistry owns every pending timer of a session so they can be
// cancelled in one step. It is not safe for concurrent use; callers hold
// the client lock.
type timerRegistry struct {
	clock  clock.Clock
	seq    uint64
	timers map[string]timerEntry
}

func newTimerRegistry(clk clock.Clock) *timerRegistry {
	return &timerRegistry{
		clock:  clk,
		timers: make(map[string]timerEntry),
	}
}

// schedule arms name, replacing any pending timer of the same name.
// fire receives the token identifying this arming; it must call claim
// before acting.
func (r *timerRegistry) schedule(name string, d time.Duration, fire func(token uint64)) {
	r.cancel(name)
	r.seq++
	tok := r.seq
	r.timers[name] = timerEntry{
		timer: r.clock.AfterFunc(d, func() { fire(tok) }),
		token: tok,
	}
}

// claim consumes the entry for name if token is still the current arming.
// A timer that was cancelled or replaced before its callback ran loses.
func (r *timerRegistry) claim(name string, token uint64) bool {
	e, ok := r.timers[name]
	if !ok || e.token != token {
		return false
	}
	delete(r.timers, name)
	return true
}

func (r *timerRegistry) pending(name string) bool {
	_, ok := r.timers[name]
	return ok
}

func (r *timerRegistry) cancel(name string) {
	if e, ok := r.timers[name]; ok {
		e.timer.Stop()
		delete(r.timers, name)
	}
}

func (r *timerRegistry) cancelAll() {
	for name := range r.timers {
		r.cancel(name)
	}
}

func (r *timerRegistry) len() int { return len(r.timers) }
