package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/gosuda/fanout/pkg/protocol"
)

const (
	defaultWSWriteTimeout = 10 * time.Second
	wsReadLimit           = 1 << 20
)

// WebSocketTransport dials the server's /realtime endpoint.
type WebSocketTransport struct {
	url          string
	httpClient   *http.Client
	writeTimeout time.Duration
}

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// WithHTTPClient sets the client used for the opening handshake.
func WithHTTPClient(c *http.Client) WebSocketOption {
	return func(t *WebSocketTransport) { t.httpClient = c }
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) { t.writeTimeout = d }
}

// NewWebSocketTransport creates a transport for url (ws:// or wss://).
func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:          url,
		writeTimeout: defaultWSWriteTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dial opens a connection authenticated with token as a bearer credential.
func (t *WebSocketTransport) Dial(ctx context.Context, token string) (Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	c, resp, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		HTTPClient: t.httpClient,
		HTTPHeader: header,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client.WebSocketTransport.Dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("client.WebSocketTransport.Dial: %w", err)
	}
	c.SetReadLimit(wsReadLimit)

	return &wsConn{conn: c, writeTimeout: t.writeTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) Send(ctx context.Context, f protocol.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, f); err != nil {
		return fmt.Errorf("client.wsConn.Send: %w", err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) (protocol.Frame, error) {
	var f protocol.Frame
	if err := wsjson.Read(ctx, c.conn, &f); err != nil {
		return f, fmt.Errorf("client.wsConn.Receive: %w", err)
	}
	return f, nil
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
