package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/windrose/skylane/server/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client commands
const (
	MessageTypeConnect    MessageType = "connect"
	MessageTypeDisconnect MessageType = "disconnect"
	MessageTypeTextQuery  MessageType = "text_query"
)

// Server events
const (
	MessageTypeStatus     MessageType = "status"
	MessageTypeAudioLevel MessageType = "audio_level"
	MessageTypeFlights    MessageType = "flights"
	MessageTypeTranscript MessageType = "transcript"
	MessageTypeError      MessageType = "error"
)

// maxQueryLength bounds a text query; anything longer is rejected before
// it reaches the retrieval pipeline.
const maxQueryLength = 2000

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// ConnectMessage asks for a live voice session.
type ConnectMessage struct {
	BaseMessage
}

// DisconnectMessage ends the live voice session.
type DisconnectMessage struct {
	BaseMessage
}

// TextQueryMessage runs a typed flight query without a voice session.
type TextQueryMessage struct {
	BaseMessage
	Query string `json:"query" validate:"required"`
}

// StatusMessage reports a connection status transition.
type StatusMessage struct {
	BaseMessage
	Status entities.ConnectionStatus `json:"status"`
}

// AudioLevelMessage carries the playback loudness for the level meter.
type AudioLevelMessage struct {
	BaseMessage
	Level float64 `json:"level"`
}

// FlightsMessage carries one complete retrieval result. It replaces any
// previously shown result outright.
type FlightsMessage struct {
	BaseMessage
	Flights []entities.Flight `json:"flights"`
	Summary string            `json:"summary"`
	Sources []entities.Source `json:"sources"`
}

// TranscriptMessage carries one transcription fragment.
type TranscriptMessage struct {
	BaseMessage
	Text   string `json:"text"`
	IsUser bool   `json:"is_user"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// MessageValidator provides validation for incoming WebSocket commands
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming command and returns its typed form
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeConnect:
		var msg ConnectMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid connect message: %w", err)
		}
		return &msg, nil

	case MessageTypeDisconnect:
		var msg DisconnectMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid disconnect message: %w", err)
		}
		return &msg, nil

	case MessageTypeTextQuery:
		var msg TextQueryMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid text query message: %w", err)
		}
		if err := v.validateTextQuery(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateTextQuery validates text query fields
func (v *MessageValidator) validateTextQuery(msg *TextQueryMessage) error {
	if msg.Query == "" {
		return fmt.Errorf("query is required")
	}
	if len(msg.Query) > maxQueryLength {
		return fmt.Errorf("query must be at most %d characters", maxQueryLength)
	}
	return nil
}

func stamp(messageType MessageType) BaseMessage {
	return BaseMessage{
		Type:      messageType,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateStatusMessage creates a status event
func CreateStatusMessage(status entities.ConnectionStatus) *StatusMessage {
	return &StatusMessage{
		BaseMessage: stamp(MessageTypeStatus),
		Status:      status,
	}
}

// CreateAudioLevelMessage creates an audio level event
func CreateAudioLevelMessage(level float64) *AudioLevelMessage {
	return &AudioLevelMessage{
		BaseMessage: stamp(MessageTypeAudioLevel),
		Level:       level,
	}
}

// CreateFlightsMessage creates a flights event from a retrieval result
func CreateFlightsMessage(response *entities.SearchResponse) *FlightsMessage {
	return &FlightsMessage{
		BaseMessage: stamp(MessageTypeFlights),
		Flights:     response.Flights,
		Summary:     response.Summary,
		Sources:     response.Sources,
	}
}

// CreateTranscriptMessage creates a transcript event
func CreateTranscriptMessage(text string, isUser bool) *TranscriptMessage {
	return &TranscriptMessage{
		BaseMessage: stamp(MessageTypeTranscript),
		Text:        text,
		IsUser:      isUser,
	}
}

// CreateErrorMessage creates a standardized error event
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: stamp(MessageTypeError),
		Code:        code,
		Message:     message,
	}
}
