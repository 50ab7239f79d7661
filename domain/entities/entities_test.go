package entities

import (
	"testing"
)

func TestFlightQueryPrompt(t *testing.T) {
	tests := []struct {
		name  string
		query FlightQuery
		want  string
	}{
		{
			name:  "direct route",
			query: FlightQuery{Origin: "LHR", Destination: "SIN"},
			want:  "Flights from LHR to SIN",
		},
		{
			name:  "route with date",
			query: FlightQuery{Origin: "LHR", Destination: "SIN", Date: "2024-05-01"},
			want:  "Flights from LHR to SIN on 2024-05-01",
		},
		{
			name: "route with stops and date",
			query: FlightQuery{
				Origin:      "LHR",
				Destination: "SYD",
				Stops:       []string{"DXB", "SIN"},
				Date:        "2024-05-01",
			},
			want: "Flights from LHR to SYD via DXB, SIN on 2024-05-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Prompt(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestQueryFromArgs(t *testing.T) {
	args := map[string]any{
		"origin":      "LHR",
		"destination": "SIN",
		"stops":       []any{"DXB", "KUL"},
		"date":        "2024-05-01",
	}

	query, err := QueryFromArgs(args)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if query.Origin != "LHR" {
		t.Errorf("Expected origin LHR, got %s", query.Origin)
	}
	if query.Destination != "SIN" {
		t.Errorf("Expected destination SIN, got %s", query.Destination)
	}
	if len(query.Stops) != 2 || query.Stops[0] != "DXB" || query.Stops[1] != "KUL" {
		t.Errorf("Expected stops [DXB KUL], got %v", query.Stops)
	}
	if query.Date != "2024-05-01" {
		t.Errorf("Expected date 2024-05-01, got %s", query.Date)
	}
}

func TestQueryFromArgsRequiresRoute(t *testing.T) {
	if _, err := QueryFromArgs(map[string]any{"destination": "SIN"}); err == nil {
		t.Error("Expected error for missing origin")
	}
	if _, err := QueryFromArgs(map[string]any{"origin": "LHR"}); err == nil {
		t.Error("Expected error for missing destination")
	}
	if _, err := QueryFromArgs(map[string]any{"origin": "", "destination": "SIN"}); err == nil {
		t.Error("Expected error for empty origin")
	}
}

func TestQueryFromArgsOptionalFields(t *testing.T) {
	query, err := QueryFromArgs(map[string]any{"origin": "LHR", "destination": "SIN"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(query.Stops) != 0 {
		t.Errorf("Expected no stops, got %v", query.Stops)
	}
	if query.Date != "" {
		t.Errorf("Expected empty date, got %s", query.Date)
	}
}

func TestFlightContiguousLegs(t *testing.T) {
	contiguous := Flight{
		ID: "f1",
		Legs: []Leg{
			{Origin: "LHR", Destination: "DXB"},
			{Origin: "DXB", Destination: "SIN"},
		},
	}
	if !contiguous.ContiguousLegs() {
		t.Error("Expected contiguous legs to pass")
	}

	broken := Flight{
		ID: "f2",
		Legs: []Leg{
			{Origin: "LHR", Destination: "DXB"},
			{Origin: "AUH", Destination: "SIN"},
		},
	}
	if broken.ContiguousLegs() {
		t.Error("Expected broken leg chain to fail")
	}

	single := Flight{ID: "f3", Legs: []Leg{{Origin: "LHR", Destination: "SIN"}}}
	if !single.ContiguousLegs() {
		t.Error("Expected single leg to pass")
	}
}

func TestFlightValidation(t *testing.T) {
	flight := Flight{ID: "f1", Legs: []Leg{{Origin: "LHR", Destination: "SIN"}}}
	if err := flight.Validate(); err != nil {
		t.Errorf("Valid flight should not have validation errors, got: %v", err)
	}

	empty := Flight{ID: "f2"}
	if err := empty.Validate(); err == nil {
		t.Error("Flight without legs should have validation error")
	}
}

func TestConnectionStatus(t *testing.T) {
	for _, status := range []ConnectionStatus{
		StatusDisconnected, StatusConnecting, StatusConnected, StatusError,
	} {
		if !status.Valid() {
			t.Errorf("Expected %s to be valid", status)
		}
	}

	if ConnectionStatus("dialing").Valid() {
		t.Error("Expected unknown status to be invalid")
	}

	if !StatusDisconnected.Terminal() {
		t.Error("Expected disconnected to be terminal")
	}
	if !StatusError.Terminal() {
		t.Error("Expected error to be terminal")
	}
	if StatusConnecting.Terminal() {
		t.Error("Expected connecting to be non-terminal")
	}
	if StatusConnected.Terminal() {
		t.Error("Expected connected to be non-terminal")
	}
}
