package gemini

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/windrose/skylane/server/domain/flightsearch"
	"github.com/windrose/skylane/server/domain/repositories"
	"github.com/windrose/skylane/server/internal/audio/pcm"
)

// startLiveServer runs a scripted live endpoint and returns its ws:// URL.
// The script owns the connection after the upgrade.
func startLiveServer(t *testing.T, script func(t *testing.T, conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "" {
			t.Errorf("Expected API key on the query string")
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		script(t, conn)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// acceptSetup reads the client's setup frame and acknowledges it.
func acceptSetup(t *testing.T, conn *websocket.Conn) clientMessage {
	t.Helper()

	var msg clientMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Errorf("Failed to read setup message: %v", err)
		return msg
	}
	if msg.Setup == nil {
		t.Errorf("Expected setup as the first message, got %+v", msg)
		return msg
	}

	if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
		t.Errorf("Failed to acknowledge setup: %v", err)
	}
	return msg
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()

	if err := conn.WriteJSON(frame); err != nil {
		t.Errorf("Failed to write frame: %v", err)
	}
}

func closeNormally(conn *websocket.Conn) {
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func testLiveModel(t *testing.T, endpoint string) *GeminiLive {
	t.Helper()

	model, err := NewGeminiLive(GeminiConfig{
		APIKey:                  "test-key",
		LiveEndpoint:            endpoint,
		HandshakeTimeoutSeconds: 2,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create live model: %v", err)
	}
	return model
}

func connectTestSession(t *testing.T, endpoint string) repositories.LiveSession {
	t.Helper()

	session, err := testLiveModel(t, endpoint).Connect(context.Background(), repositories.LiveConfig{
		Model:             "gemini-2.0-flash-live-001",
		SystemInstruction: "You are a helpful flight search assistant.",
		Tools: []repositories.ToolDeclaration{{
			Name:        flightsearch.ToolName,
			Description: flightsearch.ToolDescription,
			Parameters:  flightsearch.QuerySchema(),
		}},
		Transcription: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	return session
}

func nextEvent(t *testing.T, events <-chan repositories.LiveEvent) repositories.LiveEvent {
	t.Helper()

	select {
	case event, ok := <-events:
		if !ok {
			t.Fatalf("Event channel closed while waiting for an event")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for event")
	}
	return nil
}

func waitForServer(t *testing.T, done <-chan struct{}) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for server script")
	}
}

func TestConnectPerformsSetupHandshake(t *testing.T) {
	serverDone := make(chan struct{})
	endpoint := startLiveServer(t, func(t *testing.T, conn *websocket.Conn) {
		defer close(serverDone)
		setup := acceptSetup(t, conn)
		if setup.Setup == nil {
			return
		}

		if setup.Setup.Model != "models/gemini-2.0-flash-live-001" {
			t.Errorf("Expected prefixed model path, got %q", setup.Setup.Model)
		}

		generation := setup.Setup.GenerationConfig
		if generation == nil || len(generation.ResponseModalities) != 1 || generation.ResponseModalities[0] != "AUDIO" {
			t.Errorf("Expected AUDIO response modality, got %+v", generation)
		}

		if len(setup.Setup.Tools) != 1 || len(setup.Setup.Tools[0].FunctionDeclarations) != 1 {
			t.Errorf("Expected one function declaration, got %+v", setup.Setup.Tools)
			return
		}
		declaration := setup.Setup.Tools[0].FunctionDeclarations[0]
		if declaration.Name != flightsearch.ToolName {
			t.Errorf("Expected %s declaration, got %s", flightsearch.ToolName, declaration.Name)
		}
		if declaration.Parameters == nil || declaration.Parameters.Type != genai.TypeObject {
			t.Errorf("Expected object parameter schema, got %+v", declaration.Parameters)
		}

		if setup.Setup.InputAudioTranscription == nil || setup.Setup.OutputAudioTranscription == nil {
			t.Errorf("Expected transcription enabled in setup")
		}
	})

	session := connectTestSession(t, endpoint)
	defer session.Close()

	if _, ok := nextEvent(t, session.Events()).(repositories.Opened); !ok {
		t.Fatalf("Expected Opened event first")
	}

	waitForServer(t, serverDone)
}

func TestSessionStreamsServerEvents(t *testing.T) {
	audio := pcm.Encode([]float32{0.5, -0.5})
	serverDone := make(chan struct{})
	endpoint := startLiveServer(t, func(t *testing.T, conn *websocket.Conn) {
		defer close(serverDone)
		acceptSetup(t, conn)

		writeFrame(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     pcm.EncodeBase64(audio),
						}},
					},
				},
			},
		})
		writeFrame(t, conn, map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []map[string]any{
					{"id": "call-1", "name": "searchFlights", "args": map[string]any{"origin": "LHR", "destination": "SIN"}},
				},
			},
		})
		closeNormally(conn)
	})

	session := connectTestSession(t, endpoint)
	defer session.Close()

	if _, ok := nextEvent(t, session.Events()).(repositories.Opened); !ok {
		t.Fatalf("Expected Opened event first")
	}

	message, ok := nextEvent(t, session.Events()).(repositories.Message)
	if !ok {
		t.Fatalf("Expected audio message second")
	}
	if !bytes.Equal(message.Payload.Audio, audio) {
		t.Errorf("Expected audio %v, got %v", audio, message.Payload.Audio)
	}

	message, ok = nextEvent(t, session.Events()).(repositories.Message)
	if !ok {
		t.Fatalf("Expected tool call message third")
	}
	if len(message.Payload.ToolCalls) != 1 || message.Payload.ToolCalls[0].ID != "call-1" {
		t.Errorf("Expected tool call call-1, got %+v", message.Payload.ToolCalls)
	}

	if _, ok := nextEvent(t, session.Events()).(repositories.Closed); !ok {
		t.Fatalf("Expected Closed event after server close")
	}
	if _, open := <-session.Events(); open {
		t.Errorf("Expected event channel to close after Closed")
	}

	waitForServer(t, serverDone)
}

func TestSendAudioFormatsRealtimeInput(t *testing.T) {
	frame := pcm.Encode([]float32{0.1, 0.2, 0.3})
	serverDone := make(chan struct{})
	endpoint := startLiveServer(t, func(t *testing.T, conn *websocket.Conn) {
		defer close(serverDone)
		acceptSetup(t, conn)

		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("Failed to read realtime input: %v", err)
			return
		}
		if msg.RealtimeInput == nil || len(msg.RealtimeInput.MediaChunks) != 1 {
			t.Errorf("Expected one media chunk, got %+v", msg.RealtimeInput)
			return
		}

		chunk := msg.RealtimeInput.MediaChunks[0]
		if chunk.MimeType != "audio/pcm;rate=16000" {
			t.Errorf("Expected capture mime type, got %q", chunk.MimeType)
		}
		decoded, err := pcm.DecodeBase64(chunk.Data)
		if err != nil {
			t.Errorf("Failed to decode chunk data: %v", err)
			return
		}
		if !bytes.Equal(decoded, frame) {
			t.Errorf("Expected frame %v, got %v", frame, decoded)
		}
	})

	session := connectTestSession(t, endpoint)
	defer session.Close()

	if err := session.SendAudio(frame); err != nil {
		t.Fatalf("Failed to send audio: %v", err)
	}

	waitForServer(t, serverDone)
}

func TestSendToolResponsesCorrelatesByCallID(t *testing.T) {
	serverDone := make(chan struct{})
	endpoint := startLiveServer(t, func(t *testing.T, conn *websocket.Conn) {
		defer close(serverDone)
		acceptSetup(t, conn)

		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("Failed to read tool response: %v", err)
			return
		}
		if msg.ToolResponse == nil || len(msg.ToolResponse.FunctionResponses) != 1 {
			t.Errorf("Expected one function response, got %+v", msg.ToolResponse)
			return
		}

		response := msg.ToolResponse.FunctionResponses[0]
		if response.ID != "call-9" || response.Name != "searchFlights" {
			t.Errorf("Expected call-9/searchFlights, got %s/%s", response.ID, response.Name)
		}
		if response.Response["output"] != "Found 3 flights. Top option: $420 on Singapore Airlines." {
			t.Errorf("Expected summary output, got %v", response.Response["output"])
		}
	})

	session := connectTestSession(t, endpoint)
	defer session.Close()

	err := session.SendToolResponses([]repositories.ToolResult{{
		ID:     "call-9",
		Name:   "searchFlights",
		Output: "Found 3 flights. Top option: $420 on Singapore Airlines.",
	}})
	if err != nil {
		t.Fatalf("Failed to send tool responses: %v", err)
	}

	waitForServer(t, serverDone)
}

func TestConnectRejectsMissingAck(t *testing.T) {
	endpoint := startLiveServer(t, func(t *testing.T, conn *websocket.Conn) {
		var setup clientMessage
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		// Reply with a content frame instead of the acknowledgement.
		conn.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
	})

	_, err := testLiveModel(t, endpoint).Connect(context.Background(), repositories.LiveConfig{})
	if err == nil {
		t.Fatalf("Expected connect to fail without setup acknowledgement")
	}
	if !strings.Contains(err.Error(), "not acknowledged") {
		t.Errorf("Expected acknowledgement error, got %v", err)
	}
}

func TestConnectTimesOutWithoutAck(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	endpoint := startLiveServer(t, func(t *testing.T, conn *websocket.Conn) {
		var setup clientMessage
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		<-release
	})

	model, err := NewGeminiLive(GeminiConfig{
		APIKey:                  "test-key",
		LiveEndpoint:            endpoint,
		HandshakeTimeoutSeconds: 1,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create live model: %v", err)
	}

	start := time.Now()
	if _, err := model.Connect(context.Background(), repositories.LiveConfig{}); err == nil {
		t.Fatalf("Expected connect to time out")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Expected timeout near the configured second, took %v", elapsed)
	}
}

func TestMalformedAudioDropsFrameKeepsSession(t *testing.T) {
	serverDone := make(chan struct{})
	endpoint := startLiveServer(t, func(t *testing.T, conn *websocket.Conn) {
		defer close(serverDone)
		acceptSetup(t, conn)

		writeFrame(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": "%%%"}},
					},
				},
			},
		})
		writeFrame(t, conn, map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []map[string]any{{"id": "call-2", "name": "searchFlights"}},
			},
		})
		closeNormally(conn)
	})

	session := connectTestSession(t, endpoint)
	defer session.Close()

	if _, ok := nextEvent(t, session.Events()).(repositories.Opened); !ok {
		t.Fatalf("Expected Opened event first")
	}

	message, ok := nextEvent(t, session.Events()).(repositories.Message)
	if !ok {
		t.Fatalf("Expected the tool call to arrive after the dropped frame")
	}
	if len(message.Payload.Audio) != 0 || len(message.Payload.ToolCalls) != 1 {
		t.Errorf("Expected dropped audio and one tool call, got %+v", message.Payload)
	}

	if _, ok := nextEvent(t, session.Events()).(repositories.Closed); !ok {
		t.Fatalf("Expected Closed event after server close")
	}

	waitForServer(t, serverDone)
}

func TestCloseIsIdempotent(t *testing.T) {
	endpoint := startLiveServer(t, func(t *testing.T, conn *websocket.Conn) {
		acceptSetup(t, conn)
		// Hold the connection until the client closes it.
		conn.ReadMessage()
	})

	session := connectTestSession(t, endpoint)

	if _, ok := nextEvent(t, session.Events()).(repositories.Opened); !ok {
		t.Fatalf("Expected Opened event first")
	}

	if err := session.Close(); err != nil {
		t.Errorf("Expected first close to succeed, got %v", err)
	}
	if err := session.Close(); err != nil {
		t.Errorf("Expected second close to succeed, got %v", err)
	}

	if _, ok := nextEvent(t, session.Events()).(repositories.Closed); !ok {
		t.Fatalf("Expected Closed event after close")
	}

	if err := session.SendAudio([]byte{0, 0}); err == nil {
		t.Errorf("Expected send after close to fail")
	}
}
