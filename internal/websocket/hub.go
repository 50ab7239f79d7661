package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/windrose/skylane/server/domain/entities"
	"github.com/windrose/skylane/server/internal/audio"
	"github.com/windrose/skylane/server/internal/audio/pcm"
	"github.com/windrose/skylane/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Microphone frames waiting on the capture pipeline. The oldest frame
	// is dropped on overflow.
	micQueueDepth = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Check origins against an allowlist from config
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// AssistantFactory builds the assistant for one client, with the client
// acting as both its observer and its audio device opener.
type AssistantFactory func(observer usecase.Observer, opener usecase.DeviceOpener) *usecase.Assistant

// Hub maintains the set of active clients.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	newAssistant AssistantFactory
	validator    *MessageValidator
	logger       *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(newAssistant AssistantFactory, logger *zap.Logger) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		newAssistant: newAssistant,
		validator:    NewMessageValidator(),
		logger:       logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.clientID),
				zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.sessionID]; ok {
				delete(h.clients, client.sessionID)
				client.markClosed()
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered",
				zap.String("clientID", client.clientID),
				zap.String("sessionID", client.sessionID))
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between one websocket connection and its
// assistant. It relays commands in, observer events out as JSON, browser
// microphone frames in as binary, and scheduled playback out as binary.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Authenticated client ID from the token
	clientID string

	// Unique per connection; the same client may hold several
	sessionID string

	logger    *zap.Logger
	assistant *usecase.Assistant

	mu     sync.Mutex
	closed bool
	device *remoteDevice
}

// HandleWebSocketWithAuth serves one authenticated client connection.
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		clientID:  clientID,
		sessionID: uuid.New().String(),
		logger:    logger,
	}
	client.assistant = hub.newAssistant(client, client)

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the assistant.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.assistant.Disconnect()
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
			c.processCommand(message)
		case websocket.BinaryMessage:
			c.processBinaryFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the assistant to the websocket connection.
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

// processCommand dispatches one JSON command from the client.
func (c *Client) processCommand(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected client command", zap.Error(err))
		c.deliverJSON(CreateErrorMessage("invalid_command", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *ConnectMessage:
		go c.assistant.Connect(context.Background())
	case *DisconnectMessage:
		go c.assistant.Disconnect()
	case *TextQueryMessage:
		// The result reaches the client through OnFlights.
		go c.assistant.RunTextQuery(context.Background(), msg.Query)
	}
}

// processBinaryFrame routes one microphone frame to the open capture
// device. Frames arriving without one are dropped.
func (c *Client) processBinaryFrame(data []byte) {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()

	if device == nil {
		c.logger.Debug("Dropping microphone frame without an open device",
			zap.String("clientID", c.clientID))
		return
	}
	device.mic.push(pcm.Decode(data))
}

// deliver queues one outbound frame, dropping it when the client is gone
// or cannot keep up.
func (c *Client) deliver(data WriteData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Dropping outbound frame, send buffer full",
			zap.String("clientID", c.clientID))
	}
}

func (c *Client) deliverJSON(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}
	c.deliver(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// markClosed stops deliver from touching the send channel again.
func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// OnStatus implements usecase.Observer.
func (c *Client) OnStatus(status entities.ConnectionStatus) {
	c.deliverJSON(CreateStatusMessage(status))
}

// OnAudioLevel implements usecase.Observer.
func (c *Client) OnAudioLevel(level float64) {
	c.deliverJSON(CreateAudioLevelMessage(level))
}

// OnFlights implements usecase.Observer.
func (c *Client) OnFlights(response *entities.SearchResponse) {
	c.deliverJSON(CreateFlightsMessage(response))
}

// OnTranscript implements usecase.Observer.
func (c *Client) OnTranscript(text string, isUser bool) {
	c.deliverJSON(CreateTranscriptMessage(text, isUser))
}

// Open implements usecase.DeviceOpener. The device lives until the
// assistant closes it on teardown.
func (c *Client) Open(ctx context.Context) (audio.Device, error) {
	device := newRemoteDevice(c)
	c.mu.Lock()
	c.device = device
	c.mu.Unlock()
	return device, nil
}

func (c *Client) detachDevice(device *remoteDevice) {
	c.mu.Lock()
	if c.device == device {
		c.device = nil
	}
	c.mu.Unlock()
}

var (
	_ usecase.Observer     = (*Client)(nil)
	_ usecase.DeviceOpener = (*Client)(nil)
)

// remoteDevice is the audio device of one connected browser: microphone
// frames arrive as binary websocket messages, playback leaves the same
// way. The real hardware lives on the client, so Resume is a no-op and
// the state only tracks Close.
type remoteDevice struct {
	client *Client
	mic    *micSource

	mu    sync.Mutex
	state audio.DeviceState
}

var _ audio.Device = (*remoteDevice)(nil)

func newRemoteDevice(client *Client) *remoteDevice {
	return &remoteDevice{
		client: client,
		mic:    newMicSource(),
		state:  audio.DeviceRunning,
	}
}

func (d *remoteDevice) Microphone() (audio.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == audio.DeviceClosed {
		return nil, audio.ErrDeviceUnavailable
	}
	return d.mic, nil
}

func (d *remoteDevice) Speaker() audio.Sink { return d }

// Play forwards one scheduled playback buffer as a binary frame.
func (d *remoteDevice) Play(samples []float32) {
	d.client.deliver(WriteData{Type: websocket.BinaryMessage, Payload: pcm.Encode(samples)})
}

func (d *remoteDevice) State() audio.DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *remoteDevice) Resume(ctx context.Context) error { return nil }

func (d *remoteDevice) Close() error {
	d.mu.Lock()
	if d.state == audio.DeviceClosed {
		d.mu.Unlock()
		return nil
	}
	d.state = audio.DeviceClosed
	d.mu.Unlock()

	d.mic.Close()
	d.client.detachDevice(d)
	return nil
}

// micSource buffers browser microphone frames for the capture pipeline.
// push never blocks; the oldest frame is dropped on overflow. ReadFrame
// is single-reader: leftover samples from an oversized frame carry into
// the next read.
type micSource struct {
	frames chan []float32
	done   chan struct{}
	once   sync.Once
	rest   []float32
}

func newMicSource() *micSource {
	return &micSource{
		frames: make(chan []float32, micQueueDepth),
		done:   make(chan struct{}),
	}
}

func (s *micSource) ReadFrame(buf []float32) (int, error) {
	if len(s.rest) > 0 {
		n := copy(buf, s.rest)
		s.rest = s.rest[n:]
		return n, nil
	}

	select {
	case frame := <-s.frames:
		n := copy(buf, frame)
		s.rest = frame[n:]
		return n, nil
	case <-s.done:
		return 0, io.EOF
	}
}

func (s *micSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *micSource) push(frame []float32) {
	if len(frame) == 0 {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}
