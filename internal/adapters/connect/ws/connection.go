package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Connection is the live websocket session handle. It keeps the socket
// alive with ping/pong and discards inbound protocol traffic it does not
// handle itself; document synchronization is the remote peer's concern.
type Connection struct {
	roomID string
	conn   *websocket.Conn

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

var _ ports.Connection = (*Connection)(nil)

// Connect dials the room's websocket endpoint, authenticating with the room
// token granted by the exchange.
func (p *Provider) Connect(ctx context.Context, roomID, roomToken string) (ports.Connection, error) {
	endpoint, err := websocketURL(p.serverURL, roomID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+roomToken)

	dialer := websocket.Dialer{HandshakeTimeout: p.requestTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("dial room %s: status %d: %w", roomID, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial room %s: %w", roomID, err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}

	c := &Connection{
		roomID: roomID,
		conn:   conn,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()

	p.log.Info().Str("room_id", roomID).Msg("collaboration connection established")
	return c, nil
}

func (c *Connection) RoomID() string {
	return c.roomID
}

func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Connection) readLoop() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			_ = c.Close()
			return
		}
	}
}

func (c *Connection) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func websocketURL(serverURL, roomID string) (string, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", parsed.Scheme)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/api/session/rooms/" + url.PathEscape(roomID)
	return parsed.String(), nil
}
