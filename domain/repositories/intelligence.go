package repositories

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/windrose/skylane/server/domain/entities"
)

// GroundedResult is free text plus the web citations that informed it.
type GroundedResult struct {
	Text    string
	Sources []entities.Source
}

// Intelligence abstracts the request/response model calls of the retrieval
// pipeline. Implementations perform no internal retry; failures surface to
// the orchestrator, which degrades them.
type Intelligence interface {
	// SearchWeb answers a natural-language prompt with web search enabled.
	SearchWeb(ctx context.Context, prompt string) (*GroundedResult, error)

	// ExtractStructured re-reads text under a strict output schema and
	// returns the raw structured payload for the caller to parse.
	ExtractStructured(ctx context.Context, text string, schema *jsonschema.Schema) (string, error)
}
