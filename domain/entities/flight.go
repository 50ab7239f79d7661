package entities

import "errors"

// Leg represents a single flight segment. Immutable once constructed.
type Leg struct {
	ID            string `json:"id"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
	Duration      string `json:"duration"`
	Carrier       string `json:"carrier"`
	FlightNumber  string `json:"flightNumber"`
}

// Flight represents a complete multi-leg itinerary with aggregate price
// and duration.
type Flight struct {
	ID            string   `json:"id"`
	TotalPrice    float64  `json:"totalPrice"`
	Currency      string   `json:"currency"`
	TotalDuration string   `json:"totalDuration"`
	Legs          []Leg    `json:"legs"`
	Tags          []string `json:"tags,omitempty"`
	StopoverInfo  string   `json:"stopoverInfo,omitempty"`
}

// Validate checks the structural minimum for an itinerary.
func (f *Flight) Validate() error {
	if len(f.Legs) == 0 {
		return errors.New("itinerary requires at least one leg")
	}
	return nil
}

// ContiguousLegs reports whether consecutive legs share an airport code.
// Extracted itineraries are untrusted input, so this is checked rather
// than assumed.
func (f *Flight) ContiguousLegs() bool {
	for i := 1; i < len(f.Legs); i++ {
		if f.Legs[i-1].Destination != f.Legs[i].Origin {
			return false
		}
	}
	return true
}

// Source is a web citation attached to a retrieval result.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// SearchResponse is the normalized result of one flight retrieval. It is
// always well-formed: a failed retrieval degrades into empty flights with
// an explanatory summary, never into an error.
type SearchResponse struct {
	Flights []Flight `json:"flights"`
	Summary string   `json:"summary"`
	Sources []Source `json:"sources"`
}
