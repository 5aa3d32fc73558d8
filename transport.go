package pasugo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/pasugo/pasugo-chat-go/frame"
)

// Close codes understood by the chat core.
const (
	CloseNormal       = ws.StatusNormalClosure
	CloseAbnormal     = ws.StatusAbnormalClosure
	CloseUnauthorized ws.StatusCode = 4001
	CloseForbidden    ws.StatusCode = 4003
)

const (
	writeTimeout = 10 * time.Second
	dialTimeout  = 15 * time.Second
)

// Conn is one live socket. ReadFrame returns a *CloseError when the peer
// closed the socket or the connection broke.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close(code ws.StatusCode, reason string) error
}

// Dialer opens sockets. The default is WSDialer.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// WSDialer dials with gobwas/ws.
type WSDialer struct {
	Timeout time.Duration
}

// Dial opens a client socket. HTTP 401/403 on the upgrade are reported as
// close errors carrying the matching application code.
func (d WSDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = dialTimeout
	}
	var status int
	dialer := ws.Dialer{
		Timeout: timeout,
		OnStatusError: func(code int, _ []byte, _ io.Reader) {
			status = code
		},
	}

	conn, br, _, err := dialer.Dial(ctx, rawURL)
	if err != nil {
		switch status {
		case http.StatusUnauthorized:
			return nil, &CloseError{Code: CloseUnauthorized, Reason: "upgrade rejected"}
		case http.StatusForbidden:
			return nil, &CloseError{Code: CloseForbidden, Reason: "upgrade rejected"}
		}
		return nil, fmt.Errorf("dial: %w", err)
	}

	var src io.Reader = conn
	if br != nil {
		src = br
	}
	c := &wsConn{conn: conn}
	c.rd = wsutil.Reader{
		Source:         src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		MaxFrameSize:   frame.MaxFrameLen,
		OnIntermediate: c.control,
	}
	return c, nil
}

type wsConn struct {
	conn net.Conn
	rd   wsutil.Reader

	writeMu sync.Mutex
	closed  bool
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		hdr, err := c.rd.NextFrame()
		if err != nil {
			return nil, closeErrorFrom(err)
		}
		if hdr.OpCode.IsControl() {
			if err := c.control(hdr, &c.rd); err != nil {
				return nil, closeErrorFrom(err)
			}
			continue
		}
		if hdr.OpCode != ws.OpText && hdr.OpCode != ws.OpBinary {
			if err := c.rd.Discard(); err != nil {
				return nil, closeErrorFrom(err)
			}
			continue
		}
		data, err := io.ReadAll(io.LimitReader(&c.rd, frame.MaxFrameLen+1))
		if err != nil {
			return nil, closeErrorFrom(err)
		}
		if len(data) > frame.MaxFrameLen {
			return nil, &CloseError{Code: ws.StatusMessageTooBig, Reason: "frame too large"}
		}
		return data, nil
	}
}

// control answers pings and close frames. The reply is staged in a buffer
// so it reaches the socket in one write under writeMu.
func (c *wsConn) control(h ws.Header, r io.Reader) error {
	var buf bytes.Buffer
	err := wsutil.ControlFrameHandler(&buf, ws.StateClientSide)(h, r)
	var closing wsutil.ClosedError
	peerClosed := errors.As(err, &closing)
	if buf.Len() == 0 && !peerClosed {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return err
	}
	if buf.Len() > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_, _ = c.conn.Write(buf.Bytes())
	}
	if peerClosed {
		c.closed = true
		_ = c.conn.Close()
	}
	return err
}

func (c *wsConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return wsutil.WriteClientText(c.conn, data)
}

func (c *wsConn) Close(code ws.StatusCode, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	body := ws.NewCloseFrameBody(code, reason)
	_ = ws.WriteFrame(c.conn, ws.MaskFrameInPlace(ws.NewCloseFrame(body)))
	return c.conn.Close()
}

// closeErrorFrom turns a read error into a CloseError. A close frame keeps
// its code; anything else is an abnormal closure.
func closeErrorFrom(err error) *CloseError {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		code := closed.Code
		if code == 0 {
			code = ws.StatusNoStatusRcvd
		}
		return &CloseError{Code: code, Reason: closed.Reason}
	}
	return &CloseError{Code: CloseAbnormal, Reason: err.Error()}
}

// socketURL builds {endpoint}/ws/chat/{conversation}?token=...
func socketURL(endpoint string, conversationID ID, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path = joinPath(u.Path, "/ws/chat/"+url.PathEscape(conversationID.String()))
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func joinPath(base, p string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + p
}
