package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/windrose/skylane/server/domain/repositories"
	"github.com/windrose/skylane/server/internal/audio/pcm"
	"github.com/windrose/skylane/server/internal/auth"
	"github.com/windrose/skylane/server/internal/websocket"
	"github.com/windrose/skylane/server/usecase"
)

// Voice notes default to the capture rate when the client omits one.
const defaultVoiceSampleRate = 16000

// Server wires the HTTP surface: health, token issuance, typed and voice
// queries, and the WebSocket upgrade into live sessions.
type Server struct {
	hub         *websocket.Hub
	auth        *auth.Auth
	search      *usecase.FlightSearch
	speech      repositories.SpeechToText
	credentials map[string]string
	logger      *zap.Logger
}

// NewServer creates the API server. speech may be nil when voice note
// transcription is not configured; the voice endpoint then responds 503.
func NewServer(hub *websocket.Hub, auth *auth.Auth, search *usecase.FlightSearch, speech repositories.SpeechToText, credentials map[string]string, logger *zap.Logger) *Server {
	return &Server{
		hub:         hub,
		auth:        auth,
		search:      search,
		speech:      speech,
		credentials: credentials,
		logger:      logger,
	}
}

// InitRoutes initializes all API routes
func (s *Server) InitRoutes(e *echo.Echo) {
	// Health check
	e.GET("/health", s.health)

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", s.issueToken)
	v1.POST("/query", s.textQuery)
	v1.POST("/query/voice", s.voiceQuery)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", s.websocketWithAuth)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "skylane-server",
	})
}

// issueToken exchanges client credentials for a signed JWT
func (s *Server) issueToken(c echo.Context) error {
	var req TokenRequest

	// Bind and validate request
	if err := c.Bind(&req); err != nil {
		s.logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	// Validate required fields
	if req.ClientID == "" || req.SecretKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Client ID and secret key are required",
		})
	}

	secret, ok := s.credentials[req.ClientID]
	if !ok || subtle.ConstantTimeCompare([]byte(secret), []byte(req.SecretKey)) != 1 {
		s.logger.Warn("Client authentication failed",
			zap.String("client_id", req.ClientID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid client credentials",
		})
	}

	// Generate JWT token for the client
	token, expiresAt, err := s.auth.GenerateClientToken(req.ClientID)
	if err != nil {
		s.logger.Error("Failed to generate client token",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	s.logger.Info("Client authenticated successfully",
		zap.String("client_id", req.ClientID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  req.ClientID,
	})
}

// textQuery runs one typed flight query through the retrieval pipeline
func (s *Server) textQuery(c echo.Context) error {
	claims, errResp := s.requireClient(c)
	if claims == nil {
		return errResp
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_query",
			Message: "Query text is required",
		})
	}

	s.logger.Info("Running text query",
		zap.String("client_id", claims.ClientID))

	result := s.search.Search(c.Request().Context(), req.Query)
	return c.JSON(http.StatusOK, QueryResponse{
		Flights: result.Flights,
		Summary: result.Summary,
		Sources: result.Sources,
	})
}

// voiceQuery transcribes a base64 PCM voice note, then runs the
// transcript as a text query
func (s *Server) voiceQuery(c echo.Context) error {
	claims, errResp := s.requireClient(c)
	if claims == nil {
		return errResp
	}
	if s.speech == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "speech_unavailable",
			Message: "Voice transcription is not configured",
		})
	}

	var req VoiceQueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	audio, err := pcm.DecodeBase64(req.Audio)
	if err != nil || len(audio) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_audio",
			Message: "Audio must be base64 encoded 16-bit PCM",
		})
	}

	sampleRate := req.SampleRateHz
	if sampleRate <= 0 {
		sampleRate = defaultVoiceSampleRate
	}

	transcript, err := s.speech.Transcribe(c.Request().Context(), audio, sampleRate)
	if err != nil {
		s.logger.Error("Voice note transcription failed",
			zap.String("client_id", claims.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "transcription_failed",
			Message: "Could not transcribe audio",
		})
	}

	s.logger.Info("Voice note transcribed",
		zap.String("client_id", claims.ClientID),
		zap.Int("transcript_length", len(transcript)))

	result := s.search.Search(c.Request().Context(), transcript)
	return c.JSON(http.StatusOK, VoiceQueryResponse{
		Transcript: transcript,
		QueryResponse: QueryResponse{
			Flights: result.Flights,
			Summary: result.Summary,
			Sources: result.Sources,
		},
	})
}

// requireClient validates the Bearer token on a REST request. On failure
// it renders the error response itself and returns nil claims; callers
// return the accompanying error.
func (s *Server) requireClient(c echo.Context) (*auth.JWTClaims, error) {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}

	if token == "" {
		return nil, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return nil, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}
	return claims, nil
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func (s *Server) websocketWithAuth(c echo.Context) error {
	// Browsers cannot set headers on WebSocket requests, so the token is
	// also accepted as a query parameter.
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		s.logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header or token query parameter",
		})
	}

	// Validate JWT token
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		s.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	// Verify this is a client token
	if claims.Role != auth.RoleClient {
		s.logger.Warn("WebSocket connection rejected: invalid role",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only client tokens are allowed for WebSocket connections",
		})
	}

	clientID := claims.ClientID
	if clientID == "" {
		s.logger.Error("WebSocket connection rejected: missing client ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Client ID not found in token",
		})
	}

	s.logger.Info("WebSocket connection authenticated",
		zap.String("client_id", clientID),
		zap.String("role", claims.Role))

	return websocket.HandleWebSocketWithAuth(s.hub, c, clientID, s.logger)
}
