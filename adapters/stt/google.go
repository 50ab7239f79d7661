package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/windrose/skylane/server/domain/repositories"
)

const defaultLanguage = "en-US"

// GoogleSpeechToText transcribes complete voice notes with the Google
// Cloud Speech-to-Text unary API. Input is raw 16-bit little-endian mono
// PCM, the same layout the live session uplink uses.
type GoogleSpeechToText struct {
	client   *speech.Client
	language string
	logger   *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates the speech client. Credentials are read
// from the environment (GOOGLE_APPLICATION_CREDENTIALS).
func NewGoogleSpeechToText(ctx context.Context, language string, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	if language == "" {
		language = defaultLanguage
		logger.Info("Using default transcription language", zap.String("language", language))
	}

	return &GoogleSpeechToText{
		client:   client,
		language: language,
		logger:   logger,
	}, nil
}

// Transcribe converts one voice note to text.
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, audio []byte, sampleRateHz int) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(sampleRateHz),
			LanguageCode:    g.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to recognize audio: %w", err)
	}

	var b strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(result.Alternatives[0].Transcript)
	}

	transcript := strings.TrimSpace(b.String())
	if transcript == "" {
		return "", fmt.Errorf("no speech detected in audio")
	}

	g.logger.Info("Transcribed voice note",
		zap.Int("audioBytes", len(audio)),
		zap.Int("transcriptLength", len(transcript)))

	return transcript, nil
}

// Close releases the underlying client.
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}
