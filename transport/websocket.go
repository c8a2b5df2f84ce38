/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const webSocketSubprotocol = "xmpp"

var errStartTLSNotSupported = errors.New("transport: websocket transport does not support starttls")

// WebSocketConn represents a websocket connection interface.
type WebSocketConn interface {
	NextReader() (messageType int, r io.Reader, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
	UnderlyingConn() net.Conn
}

type webSocketTransport struct {
	mu        sync.Mutex // guards conn writes
	conn      WebSocketConn
	r         io.Reader
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketTransport creates a websocket class stream transport.
func NewWebSocketTransport(conn WebSocketConn) Transport {
	return &webSocketTransport{conn: conn}
}

func (w *webSocketTransport) Read(p []byte) (n int, err error) {
	for {
		if w.r == nil {
			_, r, err := w.conn.NextReader()
			if err != nil {
				return 0, err
			}
			w.r = r
		}
		n, err = w.r.Read(p)
		if err == io.EOF {
			w.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *webSocketTransport) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *webSocketTransport) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		w.mu.Unlock()
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

func (w *webSocketTransport) Type() Type {
	return WebSocket
}

func (w *webSocketTransport) SupportsStartTLS() bool {
	return false
}

func (w *webSocketTransport) StartTLS(_ context.Context, _ *tls.Config) error {
	return &TLSError{Err: errStartTLSNotSupported}
}

func (w *webSocketTransport) ConnectionState() (tls.ConnectionState, bool) {
	if tlsConn, ok := w.conn.UnderlyingConn().(*tls.Conn); ok {
		return tlsConn.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}
