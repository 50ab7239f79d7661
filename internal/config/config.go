package config

import (
	"fmt"
	"os"
	"strings"
)

const defaultPort = "8080"

// ServerConfig holds server-level settings
// Required fields:
// - JWTSecret: Secret used to sign client session tokens
// - ClientCredentials: client_id:secret pairs allowed to request tokens
// Optional fields with defaults:
// - Port: HTTP listen port (default: "8080")
// - PersonaPath: Path to a YAML persona definition (default: built-in persona)
// - SpeechLanguage: BCP-47 language code for voice note transcription
type ServerConfig struct {
	Port              string            // Optional: HTTP listen port
	JWTSecret         string            // Required: Secret used to sign client session tokens
	ClientCredentials map[string]string // Required: client_id:secret pairs allowed to request tokens
	PersonaPath       string            // Optional: Path to a YAML persona definition
	SpeechLanguage    string            // Optional: BCP-47 language code for voice note transcription
}

// ValidateServerConfig validates the ServerConfig
func ValidateServerConfig(config ServerConfig) error {
	if config.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(config.ClientCredentials) == 0 {
		return fmt.Errorf("at least one client credential is required")
	}
	return nil
}

// NewServerConfigFromEnv creates a new ServerConfig from environment variables
func NewServerConfigFromEnv() ServerConfig {
	config := ServerConfig{
		Port:              os.Getenv("PORT"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ClientCredentials: ParseCredentials(os.Getenv("CLIENT_CREDENTIALS")),
		PersonaPath:       os.Getenv("PERSONA_PATH"),
		SpeechLanguage:    os.Getenv("SPEECH_LANGUAGE"),
	}

	if config.Port == "" {
		config.Port = defaultPort
	}

	return config
}

// ParseCredentials parses comma-separated "client_id:secret" pairs.
// Malformed entries are skipped.
func ParseCredentials(raw string) map[string]string {
	credentials := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, secret, ok := strings.Cut(pair, ":")
		if !ok || id == "" || secret == "" {
			continue
		}
		credentials[id] = secret
	}
	return credentials
}
