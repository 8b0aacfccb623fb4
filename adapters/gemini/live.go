package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain/repositories"
)

const (
	// DefaultLiveURL is the bidirectional streaming endpoint of the Gemini API
	DefaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame. Model audio arrives in small parts.
	maxMessageSize = 4 * 1024 * 1024

	sendBuffer = 64
)

// ErrConnectionClosed is returned by writes after Close or after the write pump failed
var ErrConnectionClosed = errors.New("live connection closed")

// Config configures the live dialer
type Config struct {
	APIKey           string
	URL              string
	HandshakeTimeout time.Duration
}

// Dialer opens live sessions against the Gemini API
type Dialer struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

// NewDialer creates a dialer. The API key is sent as the key query parameter.
func NewDialer(config Config, logger *zap.Logger) (*Dialer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	raw := config.URL
	if raw == "" {
		raw = DefaultLiveURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid live URL: %w", err)
	}
	q := u.Query()
	q.Set("key", config.APIKey)
	u.RawQuery = q.Encode()

	timeout := config.HandshakeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Dialer{
		endpoint: u.String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
			ReadBufferSize:   16 * 1024,
			WriteBufferSize:  16 * 1024,
		},
		logger: logger,
	}, nil
}

// Dial implements repositories.LiveDialer
func (d *Dialer) Dial(ctx context.Context) (repositories.LiveConnection, error) {
	ws, resp, err := d.dialer.DialContext(ctx, d.endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live endpoint: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	conn := newConn(ws, d.logger)
	go conn.writePump()

	d.logger.Debug("Live connection opened")
	return conn, nil
}

// Conn is a live connection with a dedicated write pump
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func newConn(ws *websocket.Conn, logger *zap.Logger) *Conn {
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// WriteJSON queues v for the write pump. It blocks while the queue is full.
func (c *Conn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	select {
	case <-c.done:
		return c.failure()
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return c.failure()
	}
}

// ReadMessage returns the next data frame. Text and binary frames are both JSON.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.Warn("Live connection closed unexpectedly", zap.Error(err))
		}
		return nil, err
	}
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	return data, nil
}

// Close sends a close frame and releases the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.fail(ErrConnectionClosed)
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return ErrConnectionClosed
	}
	return c.err
}

// writePump is the only writer of data frames
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write live frame", zap.Error(err))
				c.fail(err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				c.Close()
				return
			}
		}
	}
}
