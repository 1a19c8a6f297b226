// Package profile defines named resilience profiles and their file
// loader. A profile bundles the retry, fallback, and timeout settings the
// decoration engine applies to a target's capabilities. Profiles are
// loaded from YAML or JSON files, validated with struct tags, and can be
// hot-reloaded when the files change.
package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from "250ms"-style strings
// or from plain numbers interpreted as seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String renders the duration in Go's standard notation.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) set(raw interface{}) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("invalid duration value: %v", raw)
	}
}

// Profile is a named bundle of resilience settings. Attempts above one
// select retry wrapping; exactly one selects single-shot fault handling.
// A zero Timeout disables the timeout guard.
type Profile struct {
	// Name identifies the profile in files and CLI flags.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Attempts is the total attempt budget for retry wrapping.
	Attempts int `yaml:"attempts" json:"attempts" validate:"gte=1"`

	// Delay precedes the first retry.
	Delay Duration `yaml:"delay" json:"delay"`

	// Backoff multiplies the delay after every retry.
	Backoff float64 `yaml:"backoff" json:"backoff" validate:"gte=1"`

	// MatchedKinds restricts recovery to these fault kinds. Empty means
	// every kind.
	MatchedKinds []string `yaml:"matched_kinds" json:"matched_kinds"`

	// Fallback is returned in place of a fault after recovery. A nil
	// fallback means faults are re-raised once the budget is exhausted.
	Fallback interface{} `yaml:"fallback" json:"fallback"`

	// Timeout bounds each invocation's wall-clock wait when positive.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// LogLevel is the level recovered faults are logged at.
	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns a single-attempt profile with no fallback and no
// timeout.
func Default(name string) Profile {
	return Profile{
		Name:     name,
		Attempts: 1,
		Delay:    Duration(time.Second),
		Backoff:  1.0,
		LogLevel: "error",
	}
}

// applyDefaults fills the zero fields a file may omit.
func (p *Profile) applyDefaults() {
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	if p.Backoff == 0 {
		p.Backoff = 1.0
	}
	if p.LogLevel == "" {
		p.LogLevel = "error"
	}
}

// Fingerprint identifies the decoration this profile produces. The
// decoration engine stores it on wrapped capabilities so re-wrapping
// replaces instead of nesting.
func (p Profile) Fingerprint() string {
	return fmt.Sprintf("%s/attempts=%d/delay=%s/backoff=%g/kinds=%s/timeout=%s",
		p.Name, p.Attempts, p.Delay, p.Backoff,
		strings.Join(p.MatchedKinds, ","), p.Timeout)
}

// Validate checks the profile against its struct tags.
func (p Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile %q: %w", p.Name, err)
	}
	return nil
}

var validate = validator.New()
