package remotepath

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/crmarques/remotable/faults"
)

// Param binds a template placeholder to the value substituted for it.
type Param struct {
	Name  string
	Value any
}

func DefaultFetchTemplate(attribute string) string {
	attribute = strings.TrimSpace(attribute)
	return "by_" + attribute + "/:" + attribute
}

func ForSimpleKey(template string, attribute string, value any) (string, error) {
	return Render(template, []Param{{Name: attribute, Value: value}})
}

func ForCompositeKey(template string, attributes []string, values []any) (string, error) {
	if len(attributes) != len(values) {
		return "", configurationError(
			fmt.Sprintf("composite key %v expects %d values, got %d", attributes, len(attributes), len(values)),
			nil,
		)
	}

	params := make([]Param, len(attributes))
	for idx, attribute := range attributes {
		params[idx] = Param{Name: attribute, Value: values[idx]}
	}
	return Render(template, params)
}

// Render substitutes every :placeholder in template with its escaped param
// value. Text outside placeholders is copied verbatim.
func Render(template string, params []Param) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", configurationError("path template must not be empty", nil)
	}

	values := make(map[string]any, len(params))
	for _, param := range params {
		values[param.Name] = param.Value
	}

	var builder strings.Builder
	builder.Grow(len(template))

	for idx := 0; idx < len(template); {
		current := template[idx]
		if current != ':' {
			builder.WriteByte(current)
			idx++
			continue
		}

		end := idx + 1
		for end < len(template) && isPlaceholderByte(template[end]) {
			end++
		}
		if end == idx+1 {
			builder.WriteByte(current)
			idx++
			continue
		}

		name := template[idx+1 : end]
		value, found := values[name]
		if !found {
			return "", configurationError(fmt.Sprintf("path template %q has no value for placeholder %q", template, name), nil)
		}
		formatted := FormatValue(value)
		if formatted == "" {
			return "", configurationError(fmt.Sprintf("path template %q placeholder %q has an empty value", template, name), nil)
		}

		builder.WriteString(EscapeSegment(formatted))
		idx = end
	}

	return builder.String(), nil
}

// Placeholders lists placeholder names in template order.
func Placeholders(template string) []string {
	var names []string
	for idx := 0; idx < len(template); idx++ {
		if template[idx] != ':' {
			continue
		}
		end := idx + 1
		for end < len(template) && isPlaceholderByte(template[end]) {
			end++
		}
		if end > idx+1 {
			names = append(names, template[idx+1:end])
			idx = end - 1
		}
	}
	return names
}

// Expand joins a collection endpoint and a rendered relative path, appending
// the format as an extension: ("accounts", "by_slug/x", "json") is
// "accounts/by_slug/x.json".
func Expand(endpoint string, relativePath string, format string) string {
	joined := path.Join(strings.Trim(strings.TrimSpace(endpoint), "/"), strings.Trim(strings.TrimSpace(relativePath), "/"))
	if joined == "." {
		joined = ""
	}

	format = strings.TrimPrefix(strings.TrimSpace(format), ".")
	if format == "" || joined == "" {
		return joined
	}
	return joined + "." + format
}

func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func isPlaceholderByte(value byte) bool {
	return value == '_' ||
		(value >= 'a' && value <= 'z') ||
		(value >= 'A' && value <= 'Z') ||
		(value >= '0' && value <= '9')
}

func configurationError(message string, cause error) error {
	return faults.NewTypedError(faults.ConfigurationError, message, cause)
}
