package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

const defaultInstructions = "You are Skylane, a friendly flight search assistant. " +
	"Speak naturally and keep replies short. When a traveler asks about flights, " +
	"call the searchFlights tool with the origin, destination, any requested " +
	"stopovers, and the travel date, then summarize the results conversationally. " +
	"Ask for the origin or destination if either is missing. Never invent flights " +
	"you did not find."

// Persona defines the assistant's conversational role. Instructions become
// the live session's system instruction verbatim.
type Persona struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

// DefaultPersona is used when no persona file is configured.
func DefaultPersona() Persona {
	return Persona{
		Name:         "Skylane",
		Instructions: defaultInstructions,
	}
}

// LoadPersona reads a persona definition from a YAML file. An empty path
// returns the default persona.
func LoadPersona(path string) (Persona, error) {
	if path == "" {
		return DefaultPersona(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona %s: %w", path, err)
	}

	var persona Persona
	if err := yaml.Unmarshal(data, &persona); err != nil {
		return Persona{}, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if persona.Instructions == "" {
		return Persona{}, fmt.Errorf("persona %s has no instructions", path)
	}
	if persona.Name == "" {
		persona.Name = DefaultPersona().Name
	}
	return persona, nil
}
