package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona customizes the evaluator the model plays
type Persona struct {
	Instruction string `yaml:"instruction"`
	Voice       string `yaml:"voice"`
	Language    string `yaml:"language"`
}

// LoadPersona reads a persona YAML file
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var persona Persona
	if err := yaml.Unmarshal(data, &persona); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	persona.Instruction = strings.TrimSpace(persona.Instruction)
	if persona.Instruction == "" {
		return nil, fmt.Errorf("persona file %s has no instruction", path)
	}
	return &persona, nil
}
