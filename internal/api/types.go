package api

import (
	"time"

	"github.com/windrose/skylane/server/domain/entities"
)

// TokenRequest represents the request payload for client authentication
type TokenRequest struct {
	ClientID  string `json:"client_id" validate:"required"`
	SecretKey string `json:"secret_key" validate:"required"`
}

// TokenResponse represents the response payload for client authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// QueryRequest carries one typed flight query
type QueryRequest struct {
	Query string `json:"query" validate:"required"`
}

// QueryResponse mirrors one retrieval result. It is always well-formed;
// failed retrievals come back with empty flights and an explanatory
// summary.
type QueryResponse struct {
	Flights []entities.Flight `json:"flights"`
	Summary string            `json:"summary"`
	Sources []entities.Source `json:"sources"`
}

// VoiceQueryRequest carries one voice note as base64 16-bit PCM
type VoiceQueryRequest struct {
	Audio        string `json:"audio" validate:"required"`
	SampleRateHz int    `json:"sample_rate_hz,omitempty"`
}

// VoiceQueryResponse is a query response plus what was heard
type VoiceQueryResponse struct {
	Transcript string `json:"transcript"`
	QueryResponse
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
