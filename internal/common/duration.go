package common

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// Duration wraps time.Duration so it can be decoded from human-readable
// strings ("250ms", "30s", "1h30m") across YAML, JSON, and TOML.
type Duration struct {
	time.Duration
}

// NewDuration wraps a time.Duration value.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText parses a duration string such as "30s" or "1h30m45s".
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration using time.Duration's String form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// JSONSchema describes Duration as a string field for generated config schemas.
func (d Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "Duration expressed in units accepted by Go's time.ParseDuration, e.g. 300ms, 1m, 1h30m",
		Examples:    []any{"300ms", "1m", "1h30m"},
	}
}
