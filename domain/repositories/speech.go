package repositories

import "context"

// SpeechToText transcribes short voice notes recorded outside a live
// session, for typed-query style input.
type SpeechToText interface {
	// Transcribe converts LINEAR16 PCM audio at the given sample rate to
	// text.
	Transcribe(ctx context.Context, audio []byte, sampleRateHz int) (string, error)
}
