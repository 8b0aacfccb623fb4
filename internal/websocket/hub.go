package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for microphone frames

	sendBuffer    = 256
	commandBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Controller is the session engine driven by one host
type Controller interface {
	OnChange(fn func(entities.Snapshot))
	Snapshot() entities.Snapshot
	Connect(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording() error
	Stop() error
}

// ControllerFactory builds a controller on top of the host's browser devices
type ControllerFactory func(input repositories.InputDevice, output repositories.OutputDevice) (Controller, error)

// HubConfig configures the host bridge
type HubConfig struct {
	// CaptureRate is assumed for microphone frames until the host announces a rate
	CaptureRate int
	Clock       clock.Clock
}

// Hub maintains the set of connected hosts, each with its own session engine.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed once Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	newController ControllerFactory
	config        HubConfig

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(factory ControllerFactory, config HubConfig, logger *zap.Logger) *Hub {
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.CaptureRate <= 0 {
		config.CaptureRate = 48000
	}
	return &Hub{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
		newController: factory,
		config:        config,
		logger:        logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Host registered", zap.String("clientID", client.id), zap.String("subject", client.subject))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.closeSend()
			}
			h.mu.Unlock()
			h.logger.Info("Host unregistered", zap.String("clientID", client.id))

		case <-ctx.Done():
			close(h.done)
			h.shutdown()
			return
		}
	}
}

// ActiveClients returns the number of connected hosts
func (h *Hub) ActiveClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// shutdown stops every engine and closes every host socket
func (h *Hub) shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.engine.Stop()
		client.closeSend()
	}
	h.logger.Info("Hub stopped", zap.Int("clients", len(clients)))
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the host websocket connection and its engine.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send     chan WriteData
	sendMu   sync.Mutex
	sendDone bool

	// Serialized host commands.
	commands chan *CommandMessage

	id      string
	subject string
	logger  *zap.Logger

	engine    Controller
	input     *browserInput
	validator *MessageValidator

	ctx    context.Context
	cancel context.CancelFunc
}

// HandleWebSocket upgrades an authenticated host request and attaches a fresh engine.
func HandleWebSocket(hub *Hub, c echo.Context, subject string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client, err := newClient(hub, conn, subject, logger)
	if err != nil {
		logger.Error("Failed to create session engine", zap.Error(err))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "engine unavailable"))
		conn.Close()
		return nil
	}

	select {
	case client.hub.register <- client:
	case <-hub.done:
		client.cancel()
		client.engine.Stop()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.commandLoop()
	go client.readPump()

	return nil
}

func newClient(hub *Hub, conn *websocket.Conn, subject string, logger *zap.Logger) (*Client, error) {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, sendBuffer),
		commands:  make(chan *CommandMessage, commandBuffer),
		id:        id,
		subject:   subject,
		logger:    logger.With(zap.String("clientID", id)),
		validator: NewMessageValidator(),
		ctx:       ctx,
		cancel:    cancel,
	}
	client.input = newBrowserInput(hub.config.CaptureRate, client.logger)

	engine, err := hub.newController(client.input, newBrowserOutput(hub.config.Clock, client.sendJSON))
	if err != nil {
		cancel()
		return nil, err
	}
	client.engine = engine
	engine.OnChange(func(snap entities.Snapshot) {
		client.sendJSON(CreateStateMessage(snap))
	})
	client.sendJSON(CreateStateMessage(engine.Snapshot()))
	return client, nil
}

// readPump pumps messages from the websocket connection to the engine.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.engine.Stop()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.input.push(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the engine to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage validates a host command and queues it for the command loop
func (c *Client) processMessage(message []byte) {
	cmd, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid host message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("invalid_message", err.Error()))
		return
	}

	if cmd.Type == MessageTypePing {
		c.sendJSON(CreatePongMessage())
		return
	}

	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
	}
}

// commandLoop runs host commands one at a time so connect completes before recording starts
func (c *Client) commandLoop() {
	for {
		select {
		case cmd := <-c.commands:
			c.execute(cmd)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) execute(cmd *CommandMessage) {
	c.logger.Debug("Executing host command", zap.String("type", string(cmd.Type)))

	var err error
	switch cmd.Type {
	case MessageTypeConnect:
		c.input.setRate(cmd.SampleRate)
		err = c.engine.Connect(c.ctx)
	case MessageTypeStartRecording:
		c.input.setRate(cmd.SampleRate)
		err = c.engine.StartRecording(c.ctx)
	case MessageTypeStopRecording:
		err = c.engine.StopRecording()
	case MessageTypeStop:
		err = c.engine.Stop()
	}
	if err != nil {
		c.logger.Warn("Host command failed", zap.String("type", string(cmd.Type)), zap.Error(err))
		c.sendJSON(CreateErrorMessage(errorCode(err), err.Error()))
	}
}

func errorCode(err error) string {
	var deviceErr *domain.DeviceError
	var connErr *domain.ConnectionError
	switch {
	case errors.Is(err, domain.ErrSessionActive):
		return "session_active"
	case errors.Is(err, domain.ErrSessionStopped):
		return "session_stopped"
	case errors.As(err, &deviceErr):
		return "device_error"
	case errors.As(err, &connErr):
		return "connection_error"
	default:
		return "internal_error"
	}
}

// sendJSON queues a text frame; it drops the message if the socket is gone or backed up
func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendDone {
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Send buffer full, dropping message")
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendDone {
		c.sendDone = true
		close(c.send)
	}
}
