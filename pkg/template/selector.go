package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultKey is the template used when no program-specific entry exists.
const DefaultKey = "Default"

// builtinDefault guarantees Render never returns an empty string even if
// the messages file lacks a Default entry.
const builtinDefault = "Hi {name}! Thank you for your interest in {program}. Our admissions team will reach out to you shortly."

// Selector maps a program name to a message body. Selection is an exact
// (case- and whitespace-insensitive) match with a guaranteed Default
// fallback; anything smarter lives upstream in the CRM.
type Selector struct {
	templates map[string]string
}

// LoadFromFile reads a JSON object of program name to template text,
// e.g. {"Doctor of Medicine": "Hi {name}! ...", "Default": "..."}.
func LoadFromFile(path string) (*Selector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse messages file: %w", err)
	}
	return New(raw), nil
}

func New(templates map[string]string) *Selector {
	normalized := make(map[string]string, len(templates))
	for k, v := range templates {
		normalized[normalizeKey(k)] = v
	}
	return &Selector{templates: normalized}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.Join(strings.Fields(k), " "))
}

// Render returns the message for program with {name}, {program} and
// {phone} placeholders substituted. The phone placeholder receives the
// number without its leading '+', matching what the status table stores.
func (s *Selector) Render(program, name, phone string) string {
	body, ok := s.templates[normalizeKey(program)]
	if !ok || strings.TrimSpace(body) == "" {
		body, ok = s.templates[normalizeKey(DefaultKey)]
		if !ok || strings.TrimSpace(body) == "" {
			body = builtinDefault
		}
	}
	r := strings.NewReplacer(
		"{name}", name,
		"{program}", program,
		"{phone}", strings.TrimPrefix(phone, "+"),
	)
	return r.Replace(body)
}
