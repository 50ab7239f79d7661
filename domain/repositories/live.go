package repositories

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolDeclaration describes one callable function offered to the live
// model at session start.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// LiveConfig carries everything needed to open a live session.
type LiveConfig struct {
	Model             string
	SystemInstruction string
	Voice             string
	Tools             []ToolDeclaration
	Transcription     bool
}

// LiveModel opens bidirectional streaming sessions against the remote
// conversational model.
type LiveModel interface {
	Connect(ctx context.Context, config LiveConfig) (LiveSession, error)
}

// LiveSession is one open bidirectional stream: audio frames go up, tagged
// events come down on a single channel consumed by one handler loop.
type LiveSession interface {
	// Events delivers session events in arrival order. The channel closes
	// after a Closed or Errored event.
	Events() <-chan LiveEvent

	// SendAudio streams one encoded PCM frame of microphone audio.
	SendAudio(frame []byte) error

	// SendToolResponses reports tool results back to the model,
	// correlated by call ID.
	SendToolResponses(results []ToolResult) error

	// Close tears the stream down. Idempotent.
	Close() error
}

// FunctionCall is a structured invocation request emitted by the model
// mid-conversation.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers one FunctionCall.
type ToolResult struct {
	ID     string
	Name   string
	Output string
}

// Transcript is a speech transcription fragment from either side of the
// conversation.
type Transcript struct {
	Text   string
	IsUser bool
}

// MessagePayload is the content of one server event. Audio and tool calls
// are independent and may both be present.
type MessagePayload struct {
	// Audio holds decoded PCM bytes at the playback rate.
	Audio        []byte
	ToolCalls    []FunctionCall
	Transcripts  []Transcript
	TurnComplete bool
	Interrupted  bool

	// CancelledToolCalls lists IDs of earlier tool calls the model has
	// withdrawn; pending results for them should be discarded.
	CancelledToolCalls []string
}

// LiveEvent is one tagged session event: Opened, Message, Closed, or
// Errored.
type LiveEvent interface {
	liveEvent()
}

// Opened reports the session is established and ready for audio.
type Opened struct{}

// Message carries one server payload.
type Message struct {
	Payload MessagePayload
}

// Closed reports an orderly end of the session.
type Closed struct{}

// Errored reports a transport-level failure; the session is unusable.
type Errored struct {
	Err error
}

func (Opened) liveEvent()  {}
func (Message) liveEvent() {}
func (Closed) liveEvent()  {}
func (Errored) liveEvent() {}
