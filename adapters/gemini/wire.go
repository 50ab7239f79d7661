package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/windrose/skylane/server/domain/repositories"
	"github.com/windrose/skylane/server/internal/audio/pcm"
)

// Wire frames for the BidiGenerateContent protocol. Both directions travel
// as single JSON objects over the socket; field names follow the API's JSON
// mapping.

// clientMessage is the envelope for everything the client sends.
type clientMessage struct {
	Setup         *setupPayload  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *toolResponse  `json:"toolResponse,omitempty"`
}

// setupPayload must be the first message on a new connection.
type setupPayload struct {
	Model                    string               `json:"model"`
	GenerationConfig         *generationConfig    `json:"generationConfig,omitempty"`
	SystemInstruction        *content             `json:"systemInstruction,omitempty"`
	Tools                    []tool               `json:"tools,omitempty"`
	InputAudioTranscription  *transcriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *transcriptionConfig `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig *voiceConfig `json:"voiceConfig,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig *prebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName,omitempty"`
}

type transcriptionConfig struct{}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations,omitempty"`
}

type functionDeclaration struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Parameters  *genai.Schema `json:"parameters,omitempty"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks,omitempty"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses,omitempty"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// serverMessage is the envelope for everything the server sends.
type serverMessage struct {
	SetupComplete        *setupComplete        `json:"setupComplete,omitempty"`
	ServerContent        *serverContent        `json:"serverContent,omitempty"`
	ToolCall             *toolCallMessage      `json:"toolCall,omitempty"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation,omitempty"`
	GoAway               *goAway               `json:"goAway,omitempty"`
	UsageMetadata        *usageMetadata        `json:"usageMetadata,omitempty"`
}

// setupComplete acknowledges the setup message (empty object).
type setupComplete struct{}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text,omitempty"`
}

type toolCallMessage struct {
	FunctionCalls []functionCall `json:"functionCalls,omitempty"`
}

type functionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount   int `json:"promptTokenCount,omitempty"`
	ResponseTokenCount int `json:"responseTokenCount,omitempty"`
	TotalTokenCount    int `json:"totalTokenCount,omitempty"`
}

// payload flattens a server frame into the repository event payload. Audio
// parts carry base64 PCM; a malformed part fails the whole frame so the
// caller can drop it without tearing the session down.
func (m *serverMessage) payload() (repositories.MessagePayload, error) {
	var p repositories.MessagePayload

	if sc := m.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, pt := range sc.ModelTurn.Parts {
				if pt.InlineData == nil || !strings.HasPrefix(pt.InlineData.MimeType, "audio/pcm") {
					continue
				}
				chunk, err := pcm.DecodeBase64(pt.InlineData.Data)
				if err != nil {
					return repositories.MessagePayload{}, err
				}
				p.Audio = append(p.Audio, chunk...)
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			p.Transcripts = append(p.Transcripts, repositories.Transcript{Text: sc.InputTranscription.Text, IsUser: true})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			p.Transcripts = append(p.Transcripts, repositories.Transcript{Text: sc.OutputTranscription.Text, IsUser: false})
		}
		p.TurnComplete = sc.TurnComplete
		p.Interrupted = sc.Interrupted
	}

	if tc := m.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			p.ToolCalls = append(p.ToolCalls, repositories.FunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}

	if m.ToolCallCancellation != nil {
		p.CancelledToolCalls = append(p.CancelledToolCalls, m.ToolCallCancellation.IDs...)
	}

	return p, nil
}

// payloadEmpty reports whether a frame carried nothing for the session layer.
func payloadEmpty(p repositories.MessagePayload) bool {
	return len(p.Audio) == 0 &&
		len(p.ToolCalls) == 0 &&
		len(p.Transcripts) == 0 &&
		len(p.CancelledToolCalls) == 0 &&
		!p.TurnComplete && !p.Interrupted
}
