package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Level is a voltage-like scalar from a hardware description. It keeps the
// exact decimal representation the document used, so range errors can echo
// the value as typed instead of a rounded float.
type Level struct {
	raw string
	dec decimal.Decimal
}

// ParseLevel parses a decimal scalar.
func ParseLevel(s string) (Level, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Level{}, errors.New("level must not be empty")
	}
	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Level{}, fmt.Errorf("parse level %q: %w", s, err)
	}
	return Level{raw: trimmed, dec: dec}, nil
}

// LevelFromFloat builds a Level from a float value.
func LevelFromFloat(v float64) Level {
	dec := decimal.NewFromFloat(v)
	return Level{raw: dec.String(), dec: dec}
}

// Float64 returns the nearest float value.
func (l Level) Float64() float64 {
	f, _ := l.dec.Float64()
	return f
}

// Decimal returns the exact decimal value.
func (l Level) Decimal() decimal.Decimal { return l.dec }

// String returns the scalar as it appeared in the document.
func (l Level) String() string {
	if l.raw != "" {
		return l.raw
	}
	return l.dec.String()
}

// Within reports whether the level lies in [min, max]. The comparison is
// exact on the decimal value.
func (l Level) Within(min, max float64) bool {
	return l.dec.Cmp(decimal.NewFromFloat(min)) >= 0 && l.dec.Cmp(decimal.NewFromFloat(max)) <= 0
}

// UnmarshalYAML accepts both quoted and bare scalars.
func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return errors.New("level value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode level: %w", err)
	}
	parsed, err := ParseLevel(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalYAML renders the level as a bare scalar.
func (l Level) MarshalYAML() (interface{}, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: l.String()}, nil
}
