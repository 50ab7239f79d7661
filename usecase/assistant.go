package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/windrose/skylane/server/domain/entities"
	"github.com/windrose/skylane/server/domain/flightsearch"
	"github.com/windrose/skylane/server/domain/repositories"
	"github.com/windrose/skylane/server/internal/audio"
	"github.com/windrose/skylane/server/internal/audio/pcm"
)

// levelStride decimates playback buffers for the level meter so the UI
// update stays cheap.
const levelStride = 64

// Observer receives the UI-facing notifications of one assistant session.
// Callbacks arrive from multiple goroutines and must not block; each
// OnFlights result replaces the previous one outright.
type Observer interface {
	OnStatus(status entities.ConnectionStatus)
	OnAudioLevel(level float64)
	OnFlights(response *entities.SearchResponse)
	OnTranscript(text string, isUser bool)
}

// DeviceOpener acquires the audio device context for one session.
type DeviceOpener interface {
	Open(ctx context.Context) (audio.Device, error)
}

// Assistant manages one live voice conversation end to end: device and
// microphone lifecycle, the bidirectional model session, tool-call
// interception into the flight search pipeline, and status reporting.
// A generation counter fences every asynchronous completion so that work
// started under an old session can never touch a newer one.
type Assistant struct {
	live     repositories.LiveModel
	search   *FlightSearch
	opener   DeviceOpener
	observer Observer
	persona  string
	logger   *zap.Logger
	clk      clock.Clock

	mu         sync.Mutex
	status     entities.ConnectionStatus
	generation uint64
	session    repositories.LiveSession
	device     audio.Device
	mic        audio.Source
	capture    *audio.Capture
	scheduler  *audio.Scheduler
	cancelled  map[string]bool
}

// NewAssistant creates a new assistant session manager
func NewAssistant(
	live repositories.LiveModel,
	search *FlightSearch,
	opener DeviceOpener,
	observer Observer,
	persona string,
	logger *zap.Logger,
) *Assistant {
	return &Assistant{
		live:      live,
		search:    search,
		opener:    opener,
		observer:  observer,
		persona:   persona,
		logger:    logger,
		clk:       clock.New(),
		status:    entities.StatusDisconnected,
		cancelled: make(map[string]bool),
	}
}

// Status returns the current connection status.
func (a *Assistant) Status() entities.ConnectionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Connect opens a live voice session. An already active session is torn
// down first, so the newest connect always wins. Failures surface through
// the status observer, never as a return value.
func (a *Assistant) Connect(ctx context.Context) {
	a.Disconnect()

	a.mu.Lock()
	a.generation++
	generation := a.generation
	a.status = entities.StatusConnecting
	a.mu.Unlock()
	a.observer.OnStatus(entities.StatusConnecting)

	device, err := a.opener.Open(ctx)
	if err != nil {
		a.logger.Error("Audio device acquisition failed", zap.Error(err))
		a.failConnect(generation)
		return
	}

	mic, err := device.Microphone()
	if err != nil {
		a.logger.Error("Microphone acquisition failed", zap.Error(err))
		device.Close()
		a.failConnect(generation)
		return
	}

	session, err := a.live.Connect(ctx, repositories.LiveConfig{
		SystemInstruction: a.persona,
		Tools: []repositories.ToolDeclaration{{
			Name:        flightsearch.ToolName,
			Description: flightsearch.ToolDescription,
			Parameters:  flightsearch.QuerySchema(),
		}},
		Transcription: true,
	})
	if err != nil {
		a.logger.Error("Live session connect failed", zap.Error(err))
		mic.Close()
		device.Close()
		a.failConnect(generation)
		return
	}

	a.mu.Lock()
	if generation != a.generation {
		// A disconnect overtook us; release what was acquired and bow out.
		a.mu.Unlock()
		session.Close()
		mic.Close()
		device.Close()
		return
	}
	a.session = session
	a.device = device
	a.mic = mic
	a.mu.Unlock()

	go a.eventLoop(generation, session)
}

// Disconnect tears the active session down. Safe from any state: before
// the first connect it is a no-op, and repeated calls notify only once.
func (a *Assistant) Disconnect() {
	a.mu.Lock()
	if a.status == entities.StatusDisconnected {
		a.mu.Unlock()
		return
	}
	a.generation++
	a.teardownLocked()
	a.status = entities.StatusDisconnected
	a.mu.Unlock()

	a.logger.Info("Live session disconnected")
	a.observer.OnStatus(entities.StatusDisconnected)
}

// RunTextQuery answers a typed query through the retrieval pipeline. It
// requires no live session and leaves any session state untouched.
func (a *Assistant) RunTextQuery(ctx context.Context, query string) *entities.SearchResponse {
	response := a.search.Search(ctx, query)
	a.observer.OnFlights(response)
	return response
}

// failConnect moves a half-open connect into the error state unless a
// newer connect or disconnect has already taken over.
func (a *Assistant) failConnect(generation uint64) {
	a.mu.Lock()
	if generation != a.generation {
		a.mu.Unlock()
		return
	}
	a.teardownLocked()
	a.status = entities.StatusError
	a.mu.Unlock()

	a.observer.OnStatus(entities.StatusError)
}

// teardownLocked releases every resource the current session owns. The
// caller holds the mutex and handles status and notification itself.
func (a *Assistant) teardownLocked() {
	if a.capture != nil {
		// Stop closes the microphone source with it.
		a.capture.Stop()
		a.capture = nil
		a.mic = nil
	}
	if a.mic != nil {
		a.mic.Close()
		a.mic = nil
	}
	if a.scheduler != nil {
		a.scheduler.Close()
		a.scheduler = nil
	}
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
	if a.device != nil {
		a.device.Close()
		a.device = nil
	}
	a.cancelled = make(map[string]bool)
}

// eventLoop drains one session's event stream. It exits when the channel
// closes; a close without a terminal event is treated as orderly.
func (a *Assistant) eventLoop(generation uint64, session repositories.LiveSession) {
	for event := range session.Events() {
		switch e := event.(type) {
		case repositories.Opened:
			a.handleOpened(generation, session)
		case repositories.Message:
			a.handleMessage(generation, session, e.Payload)
		case repositories.Closed:
			a.handleClosed(generation)
			return
		case repositories.Errored:
			a.handleErrored(generation, e.Err)
			return
		}
	}
	a.handleClosed(generation)
}

func (a *Assistant) handleOpened(generation uint64, session repositories.LiveSession) {
	a.mu.Lock()
	if generation != a.generation {
		a.mu.Unlock()
		return
	}
	a.status = entities.StatusConnected
	a.scheduler = audio.NewScheduler(a.device, pcm.L16Mono24K, a.clk, a.logger)
	a.capture = audio.StartCapture(a.mic, func(frame []byte) {
		if err := session.SendAudio(frame); err != nil {
			a.logger.Debug("Dropping microphone frame", zap.Error(err))
		}
	}, a.logger)
	a.mu.Unlock()

	a.logger.Info("Live session established")
	a.observer.OnStatus(entities.StatusConnected)
}

func (a *Assistant) handleMessage(generation uint64, session repositories.LiveSession, payload repositories.MessagePayload) {
	a.mu.Lock()
	if generation != a.generation {
		// Buffered events from a superseded session; drop them.
		a.mu.Unlock()
		return
	}
	scheduler := a.scheduler
	a.mu.Unlock()

	if payload.Interrupted && scheduler != nil {
		scheduler.Reset()
	}

	if len(payload.Audio) > 0 {
		samples := pcm.Decode(payload.Audio)
		a.observer.OnAudioLevel(pcm.Level(samples, levelStride))
		if scheduler != nil {
			scheduler.Enqueue(samples)
		}
	}

	for _, transcript := range payload.Transcripts {
		a.observer.OnTranscript(transcript.Text, transcript.IsUser)
	}

	if len(payload.CancelledToolCalls) > 0 {
		a.mu.Lock()
		for _, id := range payload.CancelledToolCalls {
			a.cancelled[id] = true
		}
		a.mu.Unlock()
	}

	for _, call := range payload.ToolCalls {
		if call.Name != flightsearch.ToolName {
			a.logger.Warn("Ignoring unknown tool call", zap.String("name", call.Name))
			continue
		}
		go a.runToolCall(generation, session, call)
	}
}

// runToolCall resolves one searchFlights call. A result still reaches the
// UI when the session ended mid-retrieval, but the tool response goes back
// only while the originating session is current. A call the model has
// withdrawn is discarded entirely.
func (a *Assistant) runToolCall(generation uint64, session repositories.LiveSession, call repositories.FunctionCall) {
	a.logger.Info("Intercepted tool call",
		zap.String("callID", call.ID),
		zap.String("name", call.Name))

	query, err := entities.QueryFromArgs(call.Args)
	if err != nil {
		a.logger.Warn("Malformed tool call arguments", zap.Error(err), zap.String("callID", call.ID))
		a.respond(generation, session, repositories.ToolResult{
			ID:     call.ID,
			Name:   call.Name,
			Output: "The flight query was missing a required origin or destination.",
		})
		return
	}

	// Retrieval deliberately outlives the session: a disconnect must not
	// abort it, and its result is still shown.
	response := a.search.Search(context.Background(), query.Prompt())

	a.mu.Lock()
	withdrawn := a.cancelled[call.ID]
	delete(a.cancelled, call.ID)
	a.mu.Unlock()
	if withdrawn {
		a.logger.Info("Discarding result of cancelled tool call", zap.String("callID", call.ID))
		return
	}

	a.observer.OnFlights(response)
	a.respond(generation, session, repositories.ToolResult{
		ID:     call.ID,
		Name:   call.Name,
		Output: toolCallOutput(response),
	})
}

// respond sends one tool result back over the session, unless the session
// has been superseded since the call arrived.
func (a *Assistant) respond(generation uint64, session repositories.LiveSession, result repositories.ToolResult) {
	a.mu.Lock()
	current := generation == a.generation && a.session == session
	a.mu.Unlock()
	if !current {
		a.logger.Info("Session gone, dropping tool response", zap.String("callID", result.ID))
		return
	}

	if err := session.SendToolResponses([]repositories.ToolResult{result}); err != nil {
		a.logger.Warn("Failed to send tool response", zap.Error(err), zap.String("callID", result.ID))
	}
}

func (a *Assistant) handleClosed(generation uint64) {
	a.mu.Lock()
	if generation != a.generation {
		a.mu.Unlock()
		return
	}
	a.generation++
	a.teardownLocked()
	a.status = entities.StatusDisconnected
	a.mu.Unlock()

	a.logger.Info("Live session closed by server")
	a.observer.OnStatus(entities.StatusDisconnected)
}

func (a *Assistant) handleErrored(generation uint64, err error) {
	a.mu.Lock()
	if generation != a.generation {
		a.mu.Unlock()
		return
	}
	a.generation++
	a.teardownLocked()
	a.status = entities.StatusError
	a.mu.Unlock()

	a.logger.Error("Live session failed", zap.Error(err))
	a.observer.OnStatus(entities.StatusError)
}

// toolCallOutput is the short textual result the model reads back, so its
// spoken reply can reference what the user sees on screen.
func toolCallOutput(response *entities.SearchResponse) string {
	if len(response.Flights) == 0 {
		return response.Summary
	}

	top := response.Flights[0]
	carrier := "multiple carriers"
	if len(top.Legs) > 0 && top.Legs[0].Carrier != "" {
		carrier = top.Legs[0].Carrier
	}
	count := fmt.Sprintf("%d flight options", len(response.Flights))
	if len(response.Flights) == 1 {
		count = "1 flight option"
	}
	return fmt.Sprintf("Found %s. Top result: %.0f %s with %s, total duration %s.",
		count, top.TotalPrice, top.Currency, carrier, top.TotalDuration)
}
