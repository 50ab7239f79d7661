package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/windrose/skylane/server/domain/repositories"
	"github.com/windrose/skylane/server/internal/audio/pcm"
)

const (
	// Time allowed to write a frame to the live socket.
	liveWriteWait = 10 * time.Second

	// Events buffered between the read loop and the session consumer.
	liveEventBuffer = 64

	// Maximum size of one server frame. Audio chunks are small but a
	// grounded turn can carry long transcripts.
	liveMaxMessageSize = 16 * 1024 * 1024
)

// GeminiLive opens live audio sessions using the Gemini Live API
type GeminiLive struct {
	endpoint         string
	apiKey           string
	model            string
	voice            string
	handshakeTimeout time.Duration
	logger           *zap.Logger
}

// Ensure GeminiLive implements the LiveModel interface
var _ repositories.LiveModel = (*GeminiLive)(nil)

// NewGeminiLive creates a new Gemini live model instance
func NewGeminiLive(config GeminiConfig, logger *zap.Logger) (*GeminiLive, error) {
	// Validate required configuration
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	// Apply defaults where needed
	endpoint := config.LiveEndpoint
	if endpoint == "" {
		endpoint = defaultLiveEndpoint
	}

	model := config.LiveModel
	if model == "" {
		model = defaultLiveModel
		logger.Info("Using default live model", zap.String("model", model))
	}

	voice := config.Voice
	if voice == "" {
		voice = defaultVoice
		logger.Info("Using default voice", zap.String("voice", voice))
	}

	handshakeTimeoutSeconds := config.HandshakeTimeoutSeconds
	if handshakeTimeoutSeconds == 0 {
		handshakeTimeoutSeconds = defaultHandshakeTimeoutSeconds
		logger.Info("Using default handshake timeout", zap.Int("handshakeTimeoutSeconds", handshakeTimeoutSeconds))
	}

	return &GeminiLive{
		endpoint:         endpoint,
		apiKey:           config.APIKey,
		model:            model,
		voice:            voice,
		handshakeTimeout: time.Duration(handshakeTimeoutSeconds) * time.Second,
		logger:           logger,
	}, nil
}

// Connect dials the live endpoint, performs the setup handshake, and returns
// an open session once the server acknowledges it.
func (g *GeminiLive) Connect(ctx context.Context, config repositories.LiveConfig) (repositories.LiveSession, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, g.endpoint+"?key="+g.apiKey, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial live endpoint (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial live endpoint: %w", err)
	}
	conn.SetReadLimit(liveMaxMessageSize)

	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteJSON(g.buildSetup(config)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send setup message: %w", err)
	}

	// The first server frame must acknowledge the setup.
	conn.SetReadDeadline(time.Now().Add(g.handshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read setup acknowledgement: %w", err)
	}

	var ack serverMessage
	if err := json.Unmarshal(raw, &ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to decode setup acknowledgement: %w", err)
	}
	if ack.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("live session setup was not acknowledged")
	}
	conn.SetReadDeadline(time.Time{})

	session := &GeminiLiveSession{
		conn:   conn,
		events: make(chan repositories.LiveEvent, liveEventBuffer),
		done:   make(chan struct{}),
		logger: g.logger,
	}

	// The buffer is empty here, so the open event cannot be dropped.
	session.events <- repositories.Opened{}
	go session.readLoop()

	g.logger.Info("Live session established",
		zap.String("model", config.Model),
		zap.Int("toolCount", len(config.Tools)))

	return session, nil
}

// buildSetup assembles the first frame of the handshake from the session
// configuration, falling back to the adapter's configured model and voice.
func (g *GeminiLive) buildSetup(config repositories.LiveConfig) clientMessage {
	model := config.Model
	if model == "" {
		model = g.model
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	voice := config.Voice
	if voice == "" {
		voice = g.voice
	}

	setup := &setupPayload{
		Model: model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: &voiceConfig{
					PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	}

	if config.SystemInstruction != "" {
		setup.SystemInstruction = &content{
			Parts: []part{{Text: config.SystemInstruction}},
		}
	}

	if len(config.Tools) > 0 {
		declarations := make([]functionDeclaration, 0, len(config.Tools))
		for _, t := range config.Tools {
			declarations = append(declarations, functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convertSchema(t.Parameters),
			})
		}
		setup.Tools = []tool{{FunctionDeclarations: declarations}}
	}

	if config.Transcription {
		setup.InputAudioTranscription = &transcriptionConfig{}
		setup.OutputAudioTranscription = &transcriptionConfig{}
	}

	return clientMessage{Setup: setup}
}

// GeminiLiveSession is one open bidirectional stream against the live model
type GeminiLiveSession struct {
	conn   *websocket.Conn
	events chan repositories.LiveEvent
	logger *zap.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Ensure GeminiLiveSession implements the LiveSession interface
var _ repositories.LiveSession = (*GeminiLiveSession)(nil)

// Events delivers session events in arrival order.
func (s *GeminiLiveSession) Events() <-chan repositories.LiveEvent {
	return s.events
}

// SendAudio streams one encoded PCM frame as realtime input.
func (s *GeminiLiveSession) SendAudio(frame []byte) error {
	return s.write(clientMessage{
		RealtimeInput: &realtimeInput{
			MediaChunks: []inlineData{{
				MimeType: pcm.L16Mono16K.MIME(),
				Data:     pcm.EncodeBase64(frame),
			}},
		},
	})
}

// SendToolResponses reports tool results back to the model, correlated by
// call ID, so the spoken conversation can continue from real data.
func (s *GeminiLiveSession) SendToolResponses(results []repositories.ToolResult) error {
	responses := make([]functionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, functionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: map[string]any{"output": r.Output},
		})
	}

	return s.write(clientMessage{
		ToolResponse: &toolResponse{FunctionResponses: responses},
	})
}

func (s *GeminiLiveSession) write(msg clientMessage) error {
	select {
	case <-s.done:
		return fmt.Errorf("live session is closed")
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to live session: %w", err)
	}
	return nil
}

// Close tears the stream down. Safe to call more than once.
func (s *GeminiLiveSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		s.conn.Close()
	})
	return nil
}

// readLoop turns server frames into tagged events until the connection ends.
// Frames that fail to decode are dropped without terminating the session;
// only transport-level failures are terminal.
func (s *GeminiLiveSession) readLoop() {
	defer close(s.events)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				s.emit(repositories.Closed{})
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.emit(repositories.Closed{})
				} else {
					s.logger.Error("Live session read failed", zap.Error(err))
					s.emit(repositories.Errored{Err: err})
				}
				s.conn.Close()
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("Dropping undecodable live message", zap.Error(err))
			continue
		}

		if msg.GoAway != nil {
			s.logger.Warn("Live session going away", zap.String("timeLeft", msg.GoAway.TimeLeft))
			continue
		}

		payload, err := msg.payload()
		if err != nil {
			s.logger.Warn("Dropping live message with malformed audio", zap.Error(err))
			continue
		}
		if payloadEmpty(payload) {
			continue
		}

		s.emit(repositories.Message{Payload: payload})
	}
}

func (s *GeminiLiveSession) emit(event repositories.LiveEvent) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("Live event buffer full, dropping event")
	}
}
