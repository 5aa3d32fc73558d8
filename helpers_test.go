package pasugo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gobwas/ws"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pasugo/pasugo-chat-go/auth"
)

// --------------------------------------------------------------------------
// Fake socket
// --------------------------------------------------------------------------

type fakeConn struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	written   []string
	writeErr  error
	readErr   error
	closeCode ws.StatusCode
	closed    bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (f *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.readErr != nil {
			return nil, f.readErr
		}
		return nil, &CloseError{Code: ws.StatusGoingAway}
	default:
	}
	select {
	case b := <-f.in:
		return b, nil
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.readErr != nil {
			return nil, f.readErr
		}
		return nil, &CloseError{Code: ws.StatusGoingAway}
	}
}

func (f *fakeConn) WriteFrame(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.closed {
		return errors.New("write on closed conn")
	}
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeConn) Close(code ws.StatusCode, _ string) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		f.closeCode = code
	}
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
	return nil
}

// push delivers a server frame.
func (f *fakeConn) push(frame string) { f.in <- []byte(frame) }

// drop simulates the server closing the socket with code.
func (f *fakeConn) drop(code ws.StatusCode) {
	f.mu.Lock()
	f.readErr = &CloseError{Code: code}
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
}

func (f *fakeConn) failWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func (f *fakeConn) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeConn) events() []string {
	var out []string
	for _, fr := range f.frames() {
		var env struct {
			Event string `json:"event"`
		}
		_ = json.Unmarshal([]byte(fr), &env)
		out = append(out, env.Event)
	}
	return out
}

func (f *fakeConn) closedWith() (ws.StatusCode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode, f.closed
}

type fakeDialer struct {
	mu      sync.Mutex
	urls    []string
	conns   []*fakeConn
	errs    []error
	failAll error
}

func (d *fakeDialer) Dial(_ context.Context, rawURL string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, rawURL)
	if d.failAll != nil {
		return nil, d.failAll
	}
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 {
		i += len(d.conns)
	}
	return d.conns[i]
}

func (d *fakeDialer) setFailAll(err error) {
	d.mu.Lock()
	d.failAll = err
	d.mu.Unlock()
}

// --------------------------------------------------------------------------
// Fake REST backend
// --------------------------------------------------------------------------

type fakeAPI struct {
	mu          sync.Mutex
	convs       map[string]string // task -> conversation
	history     map[string]string // conversation -> JSON array
	status      map[string]TaskStatus
	resolveCode int
	taskErr     bool
	taskCalls   int
	actions     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		convs:   map[string]string{"42": "7", "43": "8"},
		history: map[string]string{},
		status:  map[string]TaskStatus{"42": TaskInProgress, "43": TaskAssigned},
	}
}

func (a *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.resolveCode != 0 {
			http.Error(w, `{"error":"rejected"}`, a.resolveCode)
			return
		}
		var req struct {
			TaskID ID `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		conv, ok := a.convs[req.TaskID.String()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"conversation":{"conversation_id":%s,"task_id":%s}}`, conv, req.TaskID)
	})
	mux.HandleFunc("GET /api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		h, ok := a.history[r.PathValue("id")]
		if !ok {
			h = "[]"
		}
		fmt.Fprintf(w, `{"messages":%s}`, h)
	})
	mux.HandleFunc("GET /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.taskCalls++
		if a.taskErr {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		id := r.PathValue("id")
		fmt.Fprintf(w, `{"task":{"id":%s,"status":%q,"delivery_fee":"49.00"}}`, id, a.status[id])
	})
	mux.HandleFunc("POST /api/tasks/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		id, action := r.PathValue("id"), r.PathValue("action")
		a.actions = append(a.actions, action)
		switch TaskAction(action) {
		case ActionAccept:
			a.status[id] = TaskAssigned
		case ActionStart:
			a.status[id] = TaskInProgress
		case ActionComplete:
			a.status[id] = TaskCompleted
		case ActionCancel:
			a.status[id] = TaskCancelled
		}
		fmt.Fprintf(w, `{"task":{"id":%s,"status":%q}}`, id, a.status[id])
	})
	return mux
}

func (a *fakeAPI) set(fn func(a *fakeAPI)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

func (a *fakeAPI) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.taskCalls
}

// handlerTransport serves requests in-process so tests open no sockets.
type handlerTransport struct{ h http.Handler }

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, req)
	return rec.Result(), nil
}

// --------------------------------------------------------------------------
// Recording renderer
// --------------------------------------------------------------------------

type recorder struct {
	mu        sync.Mutex
	states    []State
	reasons   []CloseReason
	histories int
	appended  []Message
	read      [][]ID
	typing    []Typing
	presence  []Presence
	notices   []Notice
	tasks     []TaskSnapshot
	unread    []int
	composer  []bool
}

func (r *recorder) StateChanged(s State, reason CloseReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	r.reasons = append(r.reasons, reason)
}

func (r *recorder) HistoryLoaded(Conversation, []Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histories++
}

func (r *recorder) MessageAppended(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, m)
}

func (r *recorder) MessagesRead(ids []ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = append(r.read, ids)
}

func (r *recorder) TypingChanged(t Typing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = append(r.typing, t)
}

func (r *recorder) PresenceChanged(p Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = append(r.presence, p)
}

func (r *recorder) Notice(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) TaskChanged(t TaskSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
}

func (r *recorder) UnreadChanged(count int, _ *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unread = append(r.unread, count)
}

func (r *recorder) ComposerChanged(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.composer = append(r.composer, enabled)
}

func (r *recorder) noticeKinds() []NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []NoticeKind
	for _, n := range r.notices {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (r *recorder) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.appended...)
}

func (r *recorder) typingEvents() []Typing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Typing(nil), r.typing...)
}

func (r *recorder) readEvents() [][]ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]ID(nil), r.read...)
}

// --------------------------------------------------------------------------
// Harness
// --------------------------------------------------------------------------

type harness struct {
	t      *testing.T
	c      *Client
	clk    *clock.Mock
	dialer *fakeDialer
	api    *fakeAPI
	rec    *recorder
}

func newHarness(t *testing.T, opts ...func(*Config, *fakeAPI)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clk:    clock.NewMock(),
		dialer: &fakeDialer{},
		api:    newFakeAPI(),
		rec:    &recorder{},
	}
	api, err := NewAPIClient("http://api.test/api", auth.Static("tok"), &http.Client{
		Transport: handlerTransport{h.api.handler()},
	})
	require.NoError(t, err)

	cfg := Config{
		Endpoint: "ws://chat.test",
		Tokens:   auth.Static("tok"),
		Identity: auth.Identity{UserID: "100", Role: auth.RoleCustomer, FullName: "Ana"},
		API:      api,
		Dialer:   h.dialer,
		Clock:    h.clk,
	}
	for _, opt := range opts {
		opt(&cfg, h.api)
	}
	h.c, err = New(cfg, h.rec)
	require.NoError(t, err)
	t.Cleanup(h.c.Dispose)
	return h
}

// connect opens task 42 and waits for the first socket.
func (h *harness) connect() *fakeConn {
	h.t.Helper()
	_, err := h.c.Connect(context.Background(), "42")
	require.NoError(h.t, err)
	require.Equal(h.t, StateConnected, h.c.State())
	return h.dialer.conn(-1)
}

func (h *harness) eventually(cond func() bool, msg string) {
	h.t.Helper()
	require.Eventually(h.t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

// pending reports whether the named session timer is armed.
func (h *harness) pending(name string) bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.sess != nil && h.c.sess.timers.pending(name)
}

func (h *harness) timers() int {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.sess.timers.len()
}

// waitReconnect waits until attempt n is scheduled.
func (h *harness) waitReconnect(n int) {
	h.t.Helper()
	h.eventually(func() bool {
		return h.c.State() == StateReconnecting && h.c.Attempts() == n && h.pending(timerReconnect)
	}, fmt.Sprintf("reconnect attempt %d scheduled", n))
}

func signedToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}
