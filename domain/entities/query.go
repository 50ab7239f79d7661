package entities

import (
	"errors"
	"fmt"
	"strings"
)

// FlightQuery carries the arguments of one searchFlights tool call. Never
// persisted.
type FlightQuery struct {
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Stops       []string `json:"stops,omitempty"`
	Date        string   `json:"date,omitempty"`
}

// QueryFromArgs builds a FlightQuery from tool-call arguments as decoded
// from JSON. Origin and destination are required; stops and date are
// optional.
func QueryFromArgs(args map[string]any) (FlightQuery, error) {
	query := FlightQuery{}

	origin, ok := args["origin"].(string)
	if !ok || origin == "" {
		return query, errors.New("origin is required")
	}
	destination, ok := args["destination"].(string)
	if !ok || destination == "" {
		return query, errors.New("destination is required")
	}
	query.Origin = origin
	query.Destination = destination

	if stops, ok := args["stops"].([]any); ok {
		for _, stop := range stops {
			if s, ok := stop.(string); ok && s != "" {
				query.Stops = append(query.Stops, s)
			}
		}
	}
	if date, ok := args["date"].(string); ok {
		query.Date = date
	}

	return query, nil
}

// Prompt reconstructs the query as natural language for the grounded
// search stage.
func (q FlightQuery) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Flights from %s to %s", q.Origin, q.Destination)
	if len(q.Stops) > 0 {
		fmt.Fprintf(&b, " via %s", strings.Join(q.Stops, ", "))
	}
	if q.Date != "" {
		fmt.Fprintf(&b, " on %s", q.Date)
	}
	return b.String()
}
