// Package flightsearch declares the searchFlights tool contract shared by
// the live session setup and the retrieval pipeline.
package flightsearch

import "github.com/google/jsonschema-go/jsonschema"

const (
	// ToolName is the function the model calls to request real flight data.
	ToolName = "searchFlights"

	// ToolDescription tells the model when to reach for the tool.
	ToolDescription = "Search for real flight itineraries between two airports, " +
		"optionally via stopover cities and on a specific date."
)

// QuerySchema describes the searchFlights tool parameters.
func QuerySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"origin": {
				Type:        "string",
				Description: "Departure city or airport code",
			},
			"destination": {
				Type:        "string",
				Description: "Arrival city or airport code",
			},
			"stops": {
				Type:        "array",
				Description: "Intermediate stopover cities or airport codes, in order",
				Items:       &jsonschema.Schema{Type: "string"},
			},
			"date": {
				Type:        "string",
				Description: "Travel date in YYYY-MM-DD format",
			},
		},
		Required: []string{"origin", "destination"},
	}
}

// ItinerariesSchema constrains the extraction stage output to an array of
// complete itineraries matching entities.Flight.
func ItinerariesSchema() *jsonschema.Schema {
	leg := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":            {Type: "string"},
			"origin":        {Type: "string", Description: "Airport code"},
			"destination":   {Type: "string", Description: "Airport code"},
			"departureTime": {Type: "string", Description: "Local departure time, e.g. 09:45"},
			"arrivalTime":   {Type: "string", Description: "Local arrival time, e.g. 17:20"},
			"duration":      {Type: "string", Description: "Leg duration, e.g. 7h 35m"},
			"carrier":       {Type: "string"},
			"flightNumber":  {Type: "string"},
		},
		Required: []string{
			"origin", "destination", "departureTime", "arrivalTime",
			"duration", "carrier", "flightNumber",
		},
	}

	flight := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":            {Type: "string"},
			"totalPrice":    {Type: "number", Description: "Total price as a plain number"},
			"currency":      {Type: "string", Description: "ISO currency code, e.g. USD"},
			"totalDuration": {Type: "string", Description: "Door-to-door duration, e.g. 14h 10m"},
			"legs":          {Type: "array", Items: leg},
			"tags": {
				Type:        "array",
				Description: "Short labels such as Cheapest or Fastest",
				Items:       &jsonschema.Schema{Type: "string"},
			},
			"stopoverInfo": {Type: "string", Description: "Stopover summary, empty for direct flights"},
		},
		Required: []string{"totalPrice", "currency", "totalDuration", "legs"},
	}

	return &jsonschema.Schema{Type: "array", Items: flight}
}
