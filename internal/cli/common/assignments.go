package common

import (
	"strings"

	"go.yaml.in/yaml/v3"
)

// ApplyAssignments sets every name=value of a comma separated list on
// target. Dotted names build nested objects. Values are read as YAML
// scalars, so 46 is a number and true a boolean.
func ApplyAssignments(target map[string]any, raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ValidationError("invalid assignment list: expected name=value", nil)
	}

	for _, item := range strings.Split(trimmed, ",") {
		part := strings.TrimSpace(item)
		if part == "" {
			return ValidationError("invalid assignment list: empty item", nil)
		}
		pieces := strings.SplitN(part, "=", 2)
		if len(pieces) != 2 {
			return ValidationError("invalid assignment list: expected name=value", nil)
		}

		key := strings.TrimSpace(pieces[0])
		if key == "" {
			return ValidationError("invalid assignment list: name must not be empty", nil)
		}
		if err := setAssignmentValue(target, key, ParseScalar(pieces[1])); err != nil {
			return err
		}
	}

	return nil
}

// ParseScalar reads raw as a YAML scalar. Anything that does not decode to a
// scalar, and the empty string, stays a string.
func ParseScalar(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	var decoded any
	if err := yaml.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return trimmed
	}
	switch decoded.(type) {
	case nil:
		if trimmed == "null" || trimmed == "~" {
			return nil
		}
		return trimmed
	case string, bool, int, int64, uint64, float64:
		return decoded
	default:
		return trimmed
	}
}

func setAssignmentValue(target map[string]any, dottedKey string, value any) error {
	segments := strings.Split(strings.TrimSpace(dottedKey), ".")
	current := target
	for idx, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return ValidationError("invalid assignment name: empty path segment", nil)
		}
		if idx == len(segments)-1 {
			current[segment] = value
			return nil
		}

		next, exists := current[segment]
		if !exists {
			child := map[string]any{}
			current[segment] = child
			current = child
			continue
		}

		child, ok := next.(map[string]any)
		if !ok {
			return ValidationError("invalid assignment list: name path conflicts with scalar value", nil)
		}
		current = child
	}

	return nil
}
