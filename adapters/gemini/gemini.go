package gemini

import (
	"fmt"
	"os"
	"strconv"
)

const (
	defaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultLiveModel    = "gemini-2.0-flash-live-001"
	defaultSearchModel  = "gemini-2.5-flash"
	defaultVoice        = "Puck"

	defaultHandshakeTimeoutSeconds = 10
	defaultTimeoutSeconds          = 45
)

// GeminiConfig holds configuration shared by the live and retrieval adapters
// Required fields:
// - APIKey: Your Google AI API key
// Optional fields with defaults:
// - LiveEndpoint: WebSocket endpoint for live sessions (default: the production BidiGenerateContent endpoint)
// - LiveModel: Model used for live audio sessions (default: "gemini-2.0-flash-live-001")
// - SearchModel: Model used for grounded search and extraction (default: "gemini-2.5-flash")
// - Voice: Prebuilt voice name for spoken replies (default: "Puck")
// - HandshakeTimeoutSeconds: Seconds to wait for setup acknowledgement (default: 10)
// - TimeoutSeconds: Per-call timeout for retrieval requests (default: 45)
type GeminiConfig struct {
	APIKey                  string // Required: Your Google AI API key
	LiveEndpoint            string // Optional: WebSocket endpoint for live sessions
	LiveModel               string // Optional: Model used for live audio sessions
	SearchModel             string // Optional: Model used for grounded search and extraction
	Voice                   string // Optional: Prebuilt voice name for spoken replies
	HandshakeTimeoutSeconds int    // Optional: Seconds to wait for setup acknowledgement
	TimeoutSeconds          int    // Optional: Per-call timeout for retrieval requests
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}

	// Validate timeouts are reasonable if specified
	if config.HandshakeTimeoutSeconds < 0 {
		return fmt.Errorf("handshake timeout must be positive, got %d", config.HandshakeTimeoutSeconds)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	return nil
}

// NewGeminiConfigFromEnv creates a new GeminiConfig from environment variables
// This is a helper function to simplify the creation of a properly configured GeminiConfig
func NewGeminiConfigFromEnv() GeminiConfig {
	// Read required API key
	apiKey := os.Getenv("GEMINI_API_KEY")

	// Read optional parameters with defaults
	config := GeminiConfig{
		APIKey:       apiKey,
		LiveEndpoint: os.Getenv("GEMINI_LIVE_ENDPOINT"),
		LiveModel:    os.Getenv("GEMINI_LIVE_MODEL"),
		SearchModel:  os.Getenv("GEMINI_SEARCH_MODEL"),
		Voice:        os.Getenv("GEMINI_VOICE"),
	}

	// Parse numeric values from environment
	if timeoutStr := os.Getenv("GEMINI_HANDSHAKE_TIMEOUT_SECONDS"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil && timeout > 0 {
			config.HandshakeTimeoutSeconds = timeout
		}
	}

	if timeoutStr := os.Getenv("GEMINI_TIMEOUT_SECONDS"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil && timeout > 0 {
			config.TimeoutSeconds = timeout
		}
	}

	return config
}
