// Package pasugo is the real-time chat core of the Pasugo delivery app.
// It connects a customer or a rider to the conversation of one task over a
// WebSocket, keeps the socket alive across drops, queues outbound messages
// while it is down, and turns the chat read-only once the task ends.
package pasugo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pasugo/pasugo-chat-go/auth"
	"github.com/pasugo/pasugo-chat-go/frame"
	"github.com/pasugo/pasugo-chat-go/wire"
)

const (
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectBaseDelay   = 2 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultTypingIdle           = 3 * time.Second
	DefaultTypingExpiry         = 3 * time.Second
	DefaultPollInterval         = 8 * time.Second
	DefaultRequestTimeout       = 10 * time.Second
)

// Config holds connection parameters. Zero durations take the defaults.
type Config struct {
	Endpoint    string // socket base URL (e.g. "wss://api.pasugo.app")
	APIEndpoint string // REST base URL (e.g. "https://api.pasugo.app/api"), derived from Endpoint if empty

	Tokens   auth.TokenProvider
	Identity auth.Identity // read from the access token when UserID is empty

	HeartbeatInterval    time.Duration
	PongTimeout          time.Duration // 0 disables the pong watchdog
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	TypingIdle           time.Duration
	TypingExpiry         time.Duration
	PollInterval         time.Duration
	RequestTimeout       time.Duration

	API     *APIClient // built from APIEndpoint and Tokens when nil
	Dialer  Dialer     // WSDialer when nil
	Clock   clock.Clock
	Logger  *zerolog.Logger
	Metrics *Metrics
}

func (cfg *Config) applyDefaults() {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.TypingIdle == 0 {
		cfg.TypingIdle = DefaultTypingIdle
	}
	if cfg.TypingExpiry == 0 {
		cfg.TypingExpiry = DefaultTypingExpiry
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WSDialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
}

// Client owns at most one chat session at a time. All methods are safe for
// concurrent use.
type Client struct {
	cfg      Config
	api      *APIClient
	renderer Renderer
	log      zerolog.Logger
	metrics  *Metrics
	clock    clock.Clock

	ctx    context.Context // cancelled by Dispose
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	disposed bool
	sess     *session
}

// session is the state of one Connect call. Every field below ready is
// guarded by Client.mu.
type session struct {
	id     string
	taskID ID

	ready  chan struct{} // closed when Connect returns
	result *Conversation
	err    error

	log      zerolog.Logger
	conv     *Conversation
	task     *TaskSnapshot
	state    State
	reason   CloseReason
	conn     Conn
	gen      uint64 // bumped whenever conn is replaced or dropped
	dialing  bool
	lastPong time.Time

	policy *reconnectPolicy
	queue  outbox
	timers *timerRegistry

	history      history
	acked        *frame.DedupWindow
	composer     bool
	focused      bool
	unread       int
	typing       bool
	remoteTyping map[ID]Typing
}

// New creates a client. r may be nil.
func New(cfg Config, r Renderer) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("pasugo: endpoint not configured")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("pasugo: token provider not configured")
	}
	if cfg.MaxReconnectAttempts < 0 {
		return nil, fmt.Errorf("pasugo: MaxReconnectAttempts must not be negative, got %d", cfg.MaxReconnectAttempts)
	}
	cfg.applyDefaults()

	if cfg.Identity.UserID == "" {
		token, err := cfg.Tokens.AccessToken(context.Background())
		if err != nil {
			return nil, fmt.Errorf("resolve identity: %w", err)
		}
		id, err := auth.IdentityFromToken(token)
		if err != nil {
			return nil, fmt.Errorf("resolve identity: %w", err)
		}
		if cfg.Identity.Role != "" {
			id.Role = cfg.Identity.Role
		}
		if cfg.Identity.FullName != "" {
			id.FullName = cfg.Identity.FullName
		}
		cfg.Identity = id
	}
	if !cfg.Identity.Role.Valid() {
		return nil, fmt.Errorf("pasugo: identity role %q is not customer or rider", cfg.Identity.Role)
	}

	api := cfg.API
	if api == nil {
		var err error
		api, err = NewAPIClient(resolveAPIBase(cfg), cfg.Tokens, nil)
		if err != nil {
			return nil, err
		}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if r == nil {
		r = NopRenderer{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		api:      api,
		renderer: r,
		log: logger.With().
			Str("component", "chat").
			Str("user_id", cfg.Identity.UserID.String()).
			Str("role", string(cfg.Identity.Role)).
			Logger(),
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// API returns the REST client the chat uses.
func (c *Client) API() *APIClient { return c.api }

// Identity returns the local participant.
func (c *Client) Identity() auth.Identity { return c.cfg.Identity }

func (c *Client) newSessionLocked(taskID ID) *session {
	s := &session{
		id:           uuid.NewString(),
		taskID:       taskID,
		ready:        make(chan struct{}),
		state:        StateIdle,
		policy:       newReconnectPolicy(c.cfg.ReconnectBaseDelay, c.cfg.MaxReconnectAttempts),
		timers:       newTimerRegistry(c.clock),
		acked:        frame.NewDedupWindow(c.clock.Now),
		focused:      true,
		remoteTyping: make(map[ID]Typing),
	}
	s.log = c.log.With().Str("session", s.id).Str("task_id", taskID.String()).Logger()
	return s
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Connect opens the chat for a task: it resolves the conversation, loads
// its history and the task snapshot, then opens the socket. Calling it
// again for the same task while that chat is open or opening returns the
// same conversation. Calling it for another task closes the current chat
// first.
//
// A dial failure after the history loaded is not an error; the client keeps
// reconnecting in the background. REST and auth rejections are returned
// and also reported to the renderer.
func (c *Client) Connect(ctx context.Context, taskID ID) (*Conversation, error) {
	if taskID == "" {
		return nil, errors.New("pasugo: empty task id")
	}

	var out emitter
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if s := c.sess; s != nil && s.taskID == taskID && s.state != StateClosed {
		c.mu.Unlock()
		return s.wait(ctx)
	}

	var carry []frame.Outbound
	if prev := c.sess; prev != nil {
		// Messages stranded by a lost connection survive a reopen of the
		// same task.
		if prev.taskID == taskID && prev.reason == ReasonConnectionLost {
			carry = prev.queue.drain()
		}
		c.closeLocked(prev, ReasonSwitched, nil, &out)
	}
	s := c.newSessionLocked(taskID)
	s.queue.items = carry
	c.sess = s
	c.setStateLocked(s, StateConnecting, &out)
	c.mu.Unlock()
	out.deliver(c.renderer)

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	conv, err := c.bootstrap(ctx, s)
	stop()
	cancel()

	s.result, s.err = conv, err
	close(s.ready)
	return conv, err
}

func (s *session) wait(ctx context.Context) (*Conversation, error) {
	select {
	case <-s.ready:
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) bootstrap(ctx context.Context, s *session) (*Conversation, error) {
	conv, err := c.api.ResolveConversation(ctx, s.taskID)
	if err != nil {
		return nil, c.reject(s, fmt.Errorf("resolve conversation: %w", err))
	}
	msgs, err := c.api.History(ctx, conv.ID)
	if err != nil {
		return nil, c.reject(s, fmt.Errorf("load history: %w", err))
	}
	task, err := c.api.GetTask(ctx, s.taskID)
	if err != nil {
		if authRejected(err) {
			return nil, c.reject(s, fmt.Errorf("load task: %w", err))
		}
		s.log.Warn().Err(err).Msg("initial task fetch failed, poller will retry")
		task = nil
	}

	var out emitter
	c.mu.Lock()
	if c.sess != s || s.state == StateClosed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	s.conv = conv
	s.log = s.log.With().Str("conversation_id", conv.ID.String()).Logger()
	for i := range msgs {
		msgs[i].SenderRole = c.roleOf(msgs[i].SenderID, msgs[i].Kind, msgs[i].SenderRole)
	}
	s.history.reset(msgs)
	loaded, convCopy := s.history.snapshot(), *conv
	out.emit(func(r Renderer) { r.HistoryLoaded(convCopy, loaded) })
	if len(loaded) == 0 {
		out.emit(func(r Renderer) {
			r.Notice(Notice{Kind: NoticeEmpty, Text: "No messages yet. Say hello!"})
		})
	}
	s.log.Info().Int("messages", s.history.len()).Msg("history loaded")

	if task != nil {
		snap := *task
		s.task = task
		out.emit(func(r Renderer) { r.TaskChanged(snap) })
		if task.Status.Terminal() {
			// Read-only from the start: history only, no socket.
			out.emit(func(r Renderer) { r.ComposerChanged(false) })
			c.endTaskLocked(s, &out)
			c.mu.Unlock()
			out.deliver(c.renderer)
			return conv, nil
		}
	}

	s.composer = true
	out.emit(func(r Renderer) { r.ComposerChanged(true) })
	if ids := s.history.unreadFrom(c.cfg.Identity.UserID); len(ids) > 0 {
		c.markReadLocked(s, ids, &out)
	}
	c.schedulePollLocked(s)
	c.mu.Unlock()
	out.deliver(c.renderer)

	if err := c.open(s); err != nil && authRejected(err) {
		return nil, err
	}
	return conv, nil
}

// reject ends s after a failed bootstrap request and returns err.
func (c *Client) reject(s *session, err error) error {
	var out emitter
	c.mu.Lock()
	if c.sess == s {
		reason := ReasonRejected
		if authRejected(err) {
			reason = ReasonAuthRejected
		}
		c.closeLocked(s, reason, err, &out)
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
	return err
}

// Close ends the chat intentionally. The socket is closed with code 1000
// and nothing reconnects. Queued messages are discarded.
func (c *Client) Close() error {
	var out emitter
	c.mu.Lock()
	if s := c.sess; s != nil {
		c.closeLocked(s, ReasonUser, nil, &out)
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
	return nil
}

// Dispose closes the chat, cancels in-flight requests and waits for every
// goroutine the client started. The client cannot be reused.
func (c *Client) Dispose() {
	var out emitter
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	if s := c.sess; s != nil {
		c.closeLocked(s, ReasonDisposed, nil, &out)
	}
	c.mu.Unlock()
	c.cancel()
	out.deliver(c.renderer)
	c.wg.Wait()
}

// --------------------------------------------------------------------------
// Sending
// --------------------------------------------------------------------------

// Send sends a text message. While the socket is down the message is queued
// and delivered, in order, once it reopens.
func (c *Client) Send(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("pasugo: empty message")
	}
	return c.send(content, wire.KindText, "", "")
}

// SendAttachment sends an uploaded image. The upload itself happens
// elsewhere; attachmentURL is where it landed.
func (c *Client) SendAttachment(attachmentURL, attachmentType, caption string) error {
	if attachmentURL == "" {
		return errors.New("pasugo: empty attachment url")
	}
	return c.send(caption, wire.KindImage, attachmentURL, attachmentType)
}

func (c *Client) send(content, kind, attachmentURL, attachmentType string) error {
	o, err := frame.SendMessage(content, kind, attachmentURL, attachmentType)
	if err != nil {
		return err
	}

	var out emitter
	c.mu.Lock()
	s, err := c.composableLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.stopTypingLocked(s, &out)
	c.enqueueLocked(s, o, &out)
	c.mu.Unlock()
	out.deliver(c.renderer)
	return nil
}

// composableLocked returns the session that accepts user input.
func (c *Client) composableLocked() (*session, error) {
	s := c.sess
	switch {
	case c.disposed:
		return nil, ErrClosed
	case s == nil:
		return nil, ErrNotConnected
	case s.state == StateClosed && s.reason.intentional():
		return nil, ErrClosed
	case !s.composer:
		return nil, ErrComposerDisabled
	}
	return s, nil
}

// enqueueLocked writes o now when the socket is up. Otherwise durable
// frames wait in the outbox and ephemeral ones are dropped.
func (c *Client) enqueueLocked(s *session, o frame.Outbound, out *emitter) {
	if s.state == StateConnected && s.conn != nil {
		if err := c.writeLocked(s, o); err != nil {
			s.log.Warn().Err(err).Str("event", o.Event).Msg("write failed")
			if !o.Ephemeral() {
				s.queue.push(o)
				c.metrics.queued(s.queue.len())
			}
			c.breakConnLocked(s, err, out)
		}
		return
	}
	if o.Ephemeral() || s.state == StateClosed {
		return
	}
	s.queue.push(o)
	c.metrics.queued(s.queue.len())
	s.log.Debug().Str("event", o.Event).Int("queued", s.queue.len()).Msg("frame queued")

	reconnecting := s.dialing || s.timers.pending(timerReconnect)
	if s.state == StateDisconnected || (s.state == StateReconnecting && !reconnecting) {
		c.scheduleReconnectLocked(s, out)
	}
}

func (c *Client) writeLocked(s *session, o frame.Outbound) error {
	if err := s.conn.WriteFrame(o.Data); err != nil {
		return err
	}
	c.metrics.sent(o.Event)
	s.log.Trace().Str("event", o.Event).Msg("frame sent")
	return nil
}

// flushLocked drains the outbox in order. On failure the unsent frames,
// including the one that failed, stay at the head of the queue.
func (c *Client) flushLocked(s *session) error {
	n := s.queue.len()
	for {
		o, ok := s.queue.peek()
		if !ok {
			break
		}
		if err := c.writeLocked(s, o); err != nil {
			c.metrics.queued(s.queue.len())
			return err
		}
		s.queue.pop()
	}
	if n > 0 {
		s.log.Info().Int("frames", n).Msg("outbox flushed")
	}
	c.metrics.queued(0)
	return nil
}

// markReadLocked acknowledges ids not acknowledged before.
func (c *Client) markReadLocked(s *session, ids []ID, out *emitter) {
	var fresh []ID
	for _, id := range ids {
		if !s.acked.IsDuplicate(id) {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return
	}
	o, err := frame.MarkRead(fresh...)
	if err != nil {
		s.log.Warn().Err(err).Int("ids", len(fresh)).Msg("cannot encode mark_read")
		return
	}
	s.log.Debug().Int("ids", len(fresh)).Int("acked", s.acked.Len()).Msg("marking read")
	c.enqueueLocked(s, o, out)
}

// --------------------------------------------------------------------------
// Socket
// --------------------------------------------------------------------------

// open dials the socket for s if it is waiting for one.
func (c *Client) open(s *session) error {
	c.mu.Lock()
	if c.sess != s || s.conv == nil || s.conn != nil || s.dialing ||
		(s.state != StateConnecting && s.state != StateReconnecting) {
		c.mu.Unlock()
		return nil
	}
	s.dialing = true
	convID := s.conv.ID
	s.log.Debug().Int("attempt", s.policy.attempts()).Msg("dialing chat socket")
	c.mu.Unlock()

	conn, err := c.dial(convID)

	var out emitter
	c.mu.Lock()
	s.dialing = false
	if c.sess != s || s.state == StateClosed {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close(CloseNormal, "chat closed")
		}
		return ErrClosed
	}
	if err != nil {
		s.log.Warn().Err(err).Int("attempt", s.policy.attempts()).Msg("chat socket dial failed")
		c.dropLocked(s, err, &out)
	} else {
		c.attachLocked(s, conn, &out)
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
	return err
}

func (c *Client) dial(convID ID) (Conn, error) {
	ctx, cancel := context.WithTimeout(c.ctx, dialTimeout)
	defer cancel()

	token, err := c.cfg.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if auth.Expired(token, c.clock.Now()) {
		return nil, fmt.Errorf("%w: access token expired", ErrUnauthorized)
	}
	u, err := socketURL(c.cfg.Endpoint, convID, token)
	if err != nil {
		return nil, err
	}
	return c.cfg.Dialer.Dial(ctx, u)
}

// attachLocked makes conn the live socket of s: flush the outbox, go
// Connected, start the heartbeat and the read loop.
func (c *Client) attachLocked(s *session, conn Conn, out *emitter) {
	s.gen++
	gen := s.gen
	s.conn = conn
	s.lastPong = c.clock.Now()

	if err := c.flushLocked(s); err != nil {
		s.log.Warn().Err(err).Int("queued", s.queue.len()).Msg("outbox flush failed")
		c.breakConnLocked(s, err, out)
		return
	}
	s.policy.reset()
	c.metrics.connected()
	s.log.Info().Msg("chat connected")
	c.setStateLocked(s, StateConnected, out)
	c.scheduleHeartbeatLocked(s, gen)

	c.wg.Add(1)
	go c.readLoop(s, conn, gen)
}

func (c *Client) readLoop(s *session, conn Conn, gen uint64) {
	defer c.wg.Done()
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			var out emitter
			c.mu.Lock()
			if c.sess == s && s.gen == gen && s.state != StateClosed {
				s.log.Info().Err(err).Msg("chat socket closed")
				c.dropLocked(s, err, &out)
			}
			c.mu.Unlock()
			_ = conn.Close(ws.StatusGoingAway, "")
			out.deliver(c.renderer)
			return
		}
		c.route(s, gen, data)
	}
}

// breakConnLocked abandons the live socket after a local failure and goes
// through the regular drop path.
func (c *Client) breakConnLocked(s *session, cause error, out *emitter) {
	conn := s.conn
	s.conn = nil
	s.gen++
	if conn != nil {
		_ = conn.Close(ws.StatusGoingAway, "")
	}
	var ce *CloseError
	if !errors.As(cause, &ce) {
		cause = &CloseError{Code: CloseAbnormal, Reason: cause.Error()}
	}
	c.dropLocked(s, cause, out)
}

// dropLocked handles a socket that is gone. Auth codes and a normal close
// from the server end the session; anything else reconnects.
func (c *Client) dropLocked(s *session, cause error, out *emitter) {
	s.conn = nil
	s.gen++
	s.timers.cancel(timerHeartbeat)
	c.resetTypingLocked(s, out)

	var ce *CloseError
	switch {
	case authRejected(cause):
		c.closeLocked(s, ReasonAuthRejected, cause, out)
	case errors.As(cause, &ce) && ce.Code == CloseNormal:
		c.closeLocked(s, ReasonRemote, cause, out)
	default:
		c.setStateLocked(s, StateDisconnected, out)
		c.scheduleReconnectLocked(s, out)
	}
}

func (c *Client) scheduleReconnectLocked(s *session, out *emitter) {
	if s.state == StateClosed || s.dialing || s.timers.pending(timerReconnect) {
		return
	}
	delay, ok := s.policy.next()
	if !ok {
		s.log.Warn().Int("attempts", s.policy.attempts()).Msg("reconnect attempts exhausted")
		c.closeLocked(s, ReasonConnectionLost, ErrConnectionLost, out)
		return
	}
	c.metrics.reconnectScheduled()
	s.log.Info().Int("attempt", s.policy.attempts()).Dur("delay", delay).Msg("reconnect scheduled")
	c.setStateLocked(s, StateReconnecting, out)
	c.afterLocked(s, timerReconnect, delay, func() { _ = c.open(s) })
}

func (c *Client) scheduleHeartbeatLocked(s *session, gen uint64) {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	c.afterLocked(s, timerHeartbeat, c.cfg.HeartbeatInterval, func() { c.heartbeat(s, gen) })
}

func (c *Client) heartbeat(s *session, gen uint64) {
	var out emitter
	c.mu.Lock()
	if s.gen == gen && s.state == StateConnected && s.conn != nil {
		silence := c.clock.Now().Sub(s.lastPong)
		if c.cfg.PongTimeout > 0 && silence > c.cfg.PongTimeout {
			s.log.Warn().Dur("silence", silence).Msg("no pong, dropping socket")
			c.breakConnLocked(s, &CloseError{Code: CloseAbnormal, Reason: "pong timeout"}, &out)
		} else {
			c.enqueueLocked(s, frame.Ping(), &out)
			if s.gen == gen && s.state == StateConnected {
				c.scheduleHeartbeatLocked(s, gen)
			}
		}
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
}

// afterLocked arms a session timer. fn runs without the lock, and only if
// the timer was neither cancelled nor replaced in the meantime.
func (c *Client) afterLocked(s *session, name string, d time.Duration, fn func()) {
	s.timers.schedule(name, d, func(token uint64) {
		c.mu.Lock()
		ok := !c.disposed && c.sess == s && s.timers.claim(name, token)
		if ok {
			c.wg.Add(1)
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		defer c.wg.Done()
		fn()
	})
}

// closeLocked moves s to StateClosed for good: timers cancelled, socket
// closed with 1000, composer disabled.
func (c *Client) closeLocked(s *session, reason CloseReason, cause error, out *emitter) {
	if s.state == StateClosed {
		return
	}
	s.timers.cancelAll()
	s.reason = reason
	c.resetTypingLocked(s, out)
	if conn := s.conn; conn != nil {
		s.conn = nil
		_ = conn.Close(CloseNormal, string(reason))
	}
	s.gen++

	unsent := s.queue.len()
	if reason != ReasonConnectionLost && unsent > 0 {
		s.queue.drain()
		s.log.Info().Int("frames", unsent).Msg("discarding queued frames")
	}
	c.metrics.queued(0)
	c.metrics.closed(reason)

	ev := s.log.Info()
	if !reason.intentional() {
		ev = s.log.Warn()
	}
	ev.Err(cause).Str("reason", string(reason)).Msg("chat closed")

	if s.composer {
		s.composer = false
		out.emit(func(r Renderer) { r.ComposerChanged(false) })
	}
	if n, ok := closeNotice(reason, cause, unsent); ok {
		out.emit(func(r Renderer) { r.Notice(n) })
	}
	c.setStateLocked(s, StateClosed, out)
}

func closeNotice(reason CloseReason, cause error, unsent int) (Notice, bool) {
	switch reason {
	case ReasonConnectionLost:
		return Notice{Kind: NoticeConnectionLost, Text: "Connection lost. Please reopen the chat.", Unsent: unsent}, true
	case ReasonAuthRejected:
		if errors.Is(cause, ErrForbidden) {
			return Notice{Kind: NoticeAuthRejected, Text: "You don't have access to this chat."}, true
		}
		return Notice{Kind: NoticeAuthRejected, Text: "Your session has expired. Please log in again."}, true
	case ReasonRejected:
		return Notice{Kind: NoticeRequestFailed, Text: "Could not open the chat. Please try again."}, true
	case ReasonRemote:
		return Notice{Kind: NoticeRemoteClosed, Text: "The chat was closed by the server."}, true
	}
	return Notice{}, false
}

func (c *Client) setStateLocked(s *session, st State, out *emitter) {
	if s.state == st {
		return
	}
	prev := s.state
	s.state = st
	reason := s.reason
	s.log.Debug().Stringer("from", prev).Stringer("to", st).Msg("state changed")
	out.emit(func(r Renderer) { r.StateChanged(st, reason) })
}

// roleOf fills in a sender role the backend left out.
func (c *Client) roleOf(sender ID, kind string, role auth.Role) auth.Role {
	switch {
	case role != "":
		return role
	case kind == wire.KindSystem:
		return ""
	case sender == c.cfg.Identity.UserID:
		return c.cfg.Identity.Role
	default:
		return c.cfg.Identity.Role.Counterpart()
	}
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// State returns the connection state, StateIdle before the first Connect.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return StateIdle
	}
	return c.sess.state
}

// CloseReason returns why the chat closed, if it did.
func (c *Client) CloseReason() CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ReasonNone
	}
	return c.sess.reason
}

// Attempts returns the reconnect attempts since the last successful open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.policy.attempts()
}

// Conversation returns the resolved conversation, or nil.
func (c *Client) Conversation() *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.sess.conv == nil {
		return nil
	}
	conv := *c.sess.conv
	return &conv
}

// Task returns the latest task snapshot.
func (c *Client) Task() (TaskSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.sess.task == nil {
		return TaskSnapshot{}, false
	}
	return *c.sess.task, true
}

// History returns a copy of the rendered messages.
func (c *Client) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	return c.sess.history.snapshot()
}

// Unread returns messages received while the view was not focused.
func (c *Client) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.unread
}

// ComposerEnabled reports whether Send is accepted.
func (c *Client) ComposerEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.composer
}

// Queued returns the number of frames waiting for the socket.
func (c *Client) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.queue.len()
}

// SetFocused tells the client whether the chat view is visible. Focusing
// clears the unread counter.
func (c *Client) SetFocused(focused bool) {
	var out emitter
	c.mu.Lock()
	if s := c.sess; s != nil {
		s.focused = focused
		if focused && s.unread > 0 {
			s.unread = 0
			out.emit(func(r Renderer) { r.UnreadChanged(0, nil) })
		}
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
}

// resolveAPIBase derives the REST base from the socket endpoint when no
// APIEndpoint is configured: ws→http, wss→https, path /api.
func resolveAPIBase(cfg Config) string {
	if cfg.APIEndpoint != "" {
		return strings.TrimRight(cfg.APIEndpoint, "/")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return strings.TrimRight(cfg.Endpoint, "/") + "/api"
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = joinPath(u.Path, "/api")
	u.RawQuery = ""
	return u.String()
}
