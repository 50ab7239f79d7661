package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/windrose/skylane/server/domain/entities"
	"github.com/windrose/skylane/server/domain/flightsearch"
	"github.com/windrose/skylane/server/domain/repositories"
)

const (
	// defaultSearchTimeout bounds the full two-stage retrieval chain.
	defaultSearchTimeout = 45 * time.Second

	// summaryLimit caps a fallback summary lifted from raw search text.
	summaryLimit = 200
)

const (
	noDataSummary = "Could not find flight data."
	errorSummary  = "Sorry, I encountered an error."
)

// FlightSearch answers flight queries in two stages: a web-grounded search
// for current availability, then a schema-constrained extraction of that
// text into itineraries. Every failure degrades into a well-formed
// response; callers never receive an error.
type FlightSearch struct {
	intelligence repositories.Intelligence
	logger       *zap.Logger
	timeout      time.Duration
}

// NewFlightSearch creates a new flight search service
func NewFlightSearch(intelligence repositories.Intelligence, logger *zap.Logger) *FlightSearch {
	return &FlightSearch{
		intelligence: intelligence,
		logger:       logger,
		timeout:      defaultSearchTimeout,
	}
}

// SetTimeout overrides the bound on the retrieval chain.
func (s *FlightSearch) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

// Search runs the retrieval pipeline for a natural-language query.
func (s *FlightSearch) Search(ctx context.Context, query string) *entities.SearchResponse {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Info("Running flight search", zap.String("query", query))

	grounded, err := s.intelligence.SearchWeb(ctx, query)
	if err != nil {
		s.logger.Error("Grounded search stage failed", zap.Error(err))
		return errorResponse()
	}

	if strings.TrimSpace(grounded.Text) == "" {
		s.logger.Warn("Grounded search returned no text", zap.String("query", query))
		return &entities.SearchResponse{
			Flights: []entities.Flight{},
			Summary: noDataSummary,
			Sources: []entities.Source{},
		}
	}

	raw, err := s.intelligence.ExtractStructured(ctx, extractionPrompt(grounded.Text), flightsearch.ItinerariesSchema())
	if err != nil {
		s.logger.Error("Extraction stage failed", zap.Error(err))
		return errorResponse()
	}

	flights := s.parseItineraries(raw)

	sources := grounded.Sources
	if sources == nil {
		sources = []entities.Source{}
	}

	summary := summarizeFlights(flights)
	if len(flights) == 0 {
		// No itineraries survived extraction; the raw search text is the
		// best answer available. Conversational replies pass through here
		// verbatim.
		summary = truncateSummary(grounded.Text)
	}

	s.logger.Info("Flight search completed",
		zap.Int("flightCount", len(flights)),
		zap.Int("sourceCount", len(sources)))

	return &entities.SearchResponse{
		Flights: flights,
		Summary: summary,
		Sources: sources,
	}
}

// parseItineraries reads extraction output into itineraries. The output is
// untrusted model text: almost-JSON is repaired before the retry, and
// anything unparseable yields no flights rather than an error.
func (s *FlightSearch) parseItineraries(raw string) []entities.Flight {
	var flights []entities.Flight
	if err := json.Unmarshal([]byte(raw), &flights); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			s.logger.Warn("Extraction output is not parseable", zap.Error(err))
			return []entities.Flight{}
		}
		if err := json.Unmarshal([]byte(repaired), &flights); err != nil {
			s.logger.Warn("Extraction output is not parseable after repair", zap.Error(err))
			return []entities.Flight{}
		}
	}

	valid := make([]entities.Flight, 0, len(flights))
	for _, flight := range flights {
		if err := flight.Validate(); err != nil {
			s.logger.Warn("Dropping malformed itinerary", zap.Error(err))
			continue
		}
		if flight.ID == "" {
			flight.ID = uuid.New().String()
		}
		for i := range flight.Legs {
			if flight.Legs[i].ID == "" {
				flight.Legs[i].ID = uuid.New().String()
			}
		}
		valid = append(valid, flight)
	}
	return valid
}

// extractionPrompt frames the grounded text for the structured stage. The
// model is told to estimate gaps so itineraries come back complete.
func extractionPrompt(text string) string {
	return "Extract all flight itineraries from the following search results. " +
		"Estimate any missing departure times, arrival times, or prices instead of omitting them.\n\n" + text
}

// summarizeFlights builds the one-line result summary from parsed
// itineraries. Empty input yields an empty string; the caller substitutes
// the raw search text in that case.
func summarizeFlights(flights []entities.Flight) string {
	if len(flights) == 0 {
		return ""
	}

	route := ""
	if legs := flights[0].Legs; len(legs) > 0 {
		route = fmt.Sprintf(" from %s to %s", legs[0].Origin, legs[len(legs)-1].Destination)
	}
	if len(flights) == 1 {
		return fmt.Sprintf("Found 1 flight option%s.", route)
	}
	return fmt.Sprintf("Found %d flight options%s.", len(flights), route)
}

// truncateSummary bounds raw search text for display. Short text passes
// through verbatim; the cut is made on a rune boundary.
func truncateSummary(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= summaryLimit {
		return text
	}
	return string(runes[:summaryLimit]) + "..."
}

func errorResponse() *entities.SearchResponse {
	return &entities.SearchResponse{
		Flights: []entities.Flight{},
		Summary: errorSummary,
		Sources: []entities.Source{},
	}
}
