package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/windrose/skylane/server/domain/entities"
	"github.com/windrose/skylane/server/domain/repositories"
)

// GeminiRetriever implements the Intelligence interface using Google's Gemini API
type GeminiRetriever struct {
	client         *genai.Client
	logger         *zap.Logger
	model          string
	timeoutSeconds int
}

// Ensure GeminiRetriever implements the Intelligence interface
var _ repositories.Intelligence = (*GeminiRetriever)(nil)

// NewGeminiRetriever creates a new Gemini retrieval instance
func NewGeminiRetriever(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiRetriever, error) {
	// Validate required configuration
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Apply defaults where needed
	model := config.SearchModel
	if model == "" {
		model = defaultSearchModel
		logger.Info("Using default search model", zap.String("model", model))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", timeoutSeconds))
	}

	return &GeminiRetriever{
		client:         client,
		logger:         logger,
		model:          model,
		timeoutSeconds: timeoutSeconds,
	}, nil
}

// SearchWeb answers the prompt with Google Search grounding enabled and
// collects the web citations the answer leaned on.
func (g *GeminiRetriever) SearchWeb(ctx context.Context, prompt string) (*repositories.GroundedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.timeoutSeconds)*time.Second)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("grounded search failed: %w", err)
	}

	result := &repositories.GroundedResult{}
	if len(response.Candidates) == 0 {
		g.logger.Warn("Grounded search returned no candidates")
		return result, nil
	}

	candidate := response.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				result.Text += part.Text
			}
		}
	}

	if candidate.GroundingMetadata != nil {
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			result.Sources = append(result.Sources, entities.Source{
				Title: chunk.Web.Title,
				URI:   chunk.Web.URI,
			})
		}
	}

	g.logger.Info("Grounded search completed",
		zap.Int("textLength", len(result.Text)),
		zap.Int("sourceCount", len(result.Sources)))

	return result, nil
}

// ExtractStructured re-reads text under a strict response schema and returns
// the raw JSON payload for the caller to parse.
func (g *GeminiRetriever) ExtractStructured(ctx context.Context, text string, schema *jsonschema.Schema) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.timeoutSeconds)*time.Second)
	defer cancel()

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   convertSchema(schema),
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("structured extraction failed: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", fmt.Errorf("structured extraction returned no candidates")
	}

	var out string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			out += part.Text
		}
	}

	g.logger.Info("Structured extraction completed", zap.Int("payloadLength", len(out)))

	return out, nil
}
