package protocol

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

var ErrClosed = errors.New("websocket closed")

// WebSocket is a client connection that redials on write failure.
type WebSocket struct {
	mu      sync.Mutex
	conn    *ws.Conn
	url     string
	reconn  time.Duration
	timeout time.Duration
	closed  bool
}

func NewWebSocket(ctx context.Context, url string, reconn, timeout time.Duration) (*WebSocket, error) {
	log.Debug("init websocket protocol", "url", url)

	web := &WebSocket{
		url:     url,
		reconn:  reconn,
		timeout: timeout,
	}

	conn, err := web.dial(ctx)
	if err != nil {
		log.Error("Failed to dial url", "url", url, "err", err)
		return nil, err
	}
	web.conn = conn

	return web, nil
}

func (web *WebSocket) dial(ctx context.Context) (*ws.Conn, error) {
	d := *ws.DefaultDialer
	if web.timeout > 0 {
		d.HandshakeTimeout = web.timeout
	}
	conn, _, err := d.DialContext(ctx, web.url, nil)
	return conn, err
}

// Write sends one text frame. On failure the connection is re-established
// and the frame is sent once more.
func (web *WebSocket) Write(ctx context.Context, payload []byte) error {
	web.mu.Lock()
	defer web.mu.Unlock()

	if web.closed {
		return ErrClosed
	}

	err := web.write(payload)
	if err == nil {
		return nil
	}
	log.Warn("Write ws failed, reconnecting", "err", err)

	if err := web.tryReconn(ctx); err != nil {
		return err
	}
	return web.write(payload)
}

func (web *WebSocket) write(payload []byte) error {
	if web.conn == nil {
		return ErrClosed
	}
	if web.timeout > 0 {
		_ = web.conn.SetWriteDeadline(time.Now().Add(web.timeout))
	}
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

func (web *WebSocket) tryReconn(ctx context.Context) error {
	if web.conn != nil {
		web.conn.Close()
		web.conn = nil
	}

	for {
		conn, err := web.dial(ctx)
		if err == nil {
			web.conn = conn
			log.Info("Reconnected ws", "url", web.url)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(web.reconn):
		}
	}
}

func (web *WebSocket) Close() error {
	web.mu.Lock()
	defer web.mu.Unlock()

	if web.closed {
		return nil
	}
	web.closed = true
	if web.conn == nil {
		return nil
	}

	_ = web.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return web.conn.Close()
}

func WsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
