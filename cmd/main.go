package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/windrose/skylane/server/adapters/gemini"
	"github.com/windrose/skylane/server/adapters/stt"
	"github.com/windrose/skylane/server/domain/repositories"
	"github.com/windrose/skylane/server/internal/api"
	"github.com/windrose/skylane/server/internal/auth"
	"github.com/windrose/skylane/server/internal/config"
	"github.com/windrose/skylane/server/internal/websocket"
	"github.com/windrose/skylane/server/usecase"
)

func main() {
	godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	serverConfig := config.NewServerConfigFromEnv()
	if err := config.ValidateServerConfig(serverConfig); err != nil {
		logger.Fatal("Invalid server configuration", zap.Error(err))
	}

	geminiConfig := gemini.NewGeminiConfigFromEnv()
	if err := gemini.ValidateGeminiConfig(geminiConfig); err != nil {
		logger.Fatal("Invalid Gemini configuration", zap.Error(err))
	}

	persona, err := config.LoadPersona(serverConfig.PersonaPath)
	if err != nil {
		logger.Fatal("Failed to load persona", zap.Error(err))
	}
	logger.Info("Persona loaded", zap.String("name", persona.Name))

	ctx := context.Background()

	// Initialize adapters
	live, err := gemini.NewGeminiLive(geminiConfig, logger)
	if err != nil {
		logger.Fatal("Failed to create live client", zap.Error(err))
	}

	retriever, err := gemini.NewGeminiRetriever(ctx, geminiConfig, logger)
	if err != nil {
		logger.Fatal("Failed to create retrieval client", zap.Error(err))
	}

	// Voice note transcription is optional; the server runs without it
	var speechToText repositories.SpeechToText
	if recognizer, err := stt.NewGoogleSpeechToText(ctx, serverConfig.SpeechLanguage, logger); err != nil {
		logger.Warn("Voice note transcription disabled", zap.Error(err))
	} else {
		speechToText = recognizer
		defer recognizer.Close()
	}

	// Initialize usecase services
	search := usecase.NewFlightSearch(retriever, logger)

	// Each WebSocket client drives its own assistant
	hub := websocket.NewHub(func(observer usecase.Observer, opener usecase.DeviceOpener) *usecase.Assistant {
		return usecase.NewAssistant(live, search, opener, observer, persona.Instructions, logger)
	}, logger)
	go hub.Run()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	server := api.NewServer(hub, auth.NewAuth(serverConfig.JWTSecret), search, speechToText, serverConfig.ClientCredentials, logger)
	server.InitRoutes(e)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + serverConfig.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", serverConfig.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
