package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so that timeouts in config files can be
// written as Go duration strings ("30s", "1m30s") in both JSON and YAML.
type Duration struct {
	time.Duration `validate:"required"`
}

// ErrDurationMustBeString is returned when a non-string value is presented to
// be deserialized as a Duration.
var ErrDurationMustBeString = errors.New("cannot unmarshal something other than a string into a Duration")

// UnmarshalJSON parses a JSON string with time.ParseDuration. Any other JSON
// type yields ErrDurationMustBeString.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	err := json.Unmarshal(b, &s)
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return ErrDurationMustBeString
		}
		return err
	}
	return d.parse(s)
}

// MarshalJSON returns the duration as a quoted string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// UnmarshalYAML accepts the same strings as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode || value.ShortTag() != "!!str" {
		return ErrDurationMustBeString
	}
	return d.parse(value.Value)
}

// MarshalYAML returns the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func (d *Duration) parse(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// DurationCustomTypeFunc is used when registering our custom config.Duration
// type with validator.v10, so that tags like "min" compare against the
// underlying time.Duration.
func DurationCustomTypeFunc(field reflect.Value) interface{} {
	// Check if the field is a Duration.
	if d, ok := field.Interface().(Duration); ok {
		return d.Duration.Nanoseconds()
	}
	return reflect.Invalid
}
