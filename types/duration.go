package types

import (
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a config-file duration. It accepts Go duration strings
// ("45s", "5m") and integer nanosecond counts from both YAML and JSON.
type Duration time.Duration

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		return d.parse(v)
	case int:
		*d = Duration(v)
	case int64:
		*d = Duration(v)
	case float64:
		*d = Duration(int64(v))
	default:
		return Errorf(ErrConfigValidateFailed, "invalid duration value %v", raw)
	}

	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		return nil
	}

	if strings.HasPrefix(text, `"`) {
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return Errorf(ErrConfigValidateFailed, "invalid duration value %s", text)
		}
		return d.parse(unquoted)
	}

	if ns, err := strconv.ParseInt(text, 10, 64); err == nil {
		*d = Duration(ns)
		return nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Errorf(ErrConfigValidateFailed, "invalid duration value %s", text)
	}
	*d = Duration(int64(f))

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

func (d *Duration) parse(text string) error {
	if text == "" {
		*d = 0
		return nil
	}

	parsed, err := time.ParseDuration(text)
	if err != nil {
		return Errorf(ErrConfigValidateFailed, "invalid duration %q", text)
	}

	*d = Duration(parsed)
	return nil
}
