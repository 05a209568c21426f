package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/remote"
)

func encodeRequestBody(body remote.Payload) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	normalized, err := remote.NormalizePayload(body)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return nil, validationError("failed to encode JSON request body", err)
	}
	return encoded, nil
}

func decodeJSONResponse(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, validationError("response body is not valid JSON", err)
	}

	normalized, err := remote.NormalizeValue(value)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// classifyResponse maps a completed exchange onto a remote.Result.
func classifyResponse(ex *exchange) (remote.Result, error) {
	switch {
	case isSuccess(ex.statusCode):
		// A success status with a body that is not a JSON object (a proxy
		// maintenance page, a truncated document) carries no usable state.
		decoded, err := decodeJSONResponse(ex.body)
		if err != nil {
			return remote.Unavailable{StatusCode: ex.statusCode}, nil
		}
		if decoded == nil {
			return foundFrom(ex, nil), nil
		}
		payload, ok := decoded.(map[string]any)
		if !ok {
			return remote.Unavailable{StatusCode: ex.statusCode}, nil
		}
		return foundFrom(ex, payload), nil
	case ex.statusCode == http.StatusNotModified:
		return remote.NotModified{}, nil
	case ex.statusCode == http.StatusNotFound, ex.statusCode == http.StatusGone:
		return remote.NotFound{}, nil
	case ex.statusCode == http.StatusUnprocessableEntity:
		fields, ok := parseValidationErrors(ex.body)
		if !ok {
			fields = faults.FieldErrors{}
			fields.Add(faults.BaseField, validationMessage)
		}
		return remote.ValidationFailed{Errors: fields}, nil
	case ex.statusCode == http.StatusBadRequest:
		if fields, ok := parseValidationErrors(ex.body); ok {
			return remote.ValidationFailed{Errors: fields}, nil
		}
	}

	return remote.Unavailable{StatusCode: ex.statusCode}, nil
}

func foundFrom(ex *exchange, payload remote.Payload) remote.Found {
	found := remote.Found{Payload: payload}
	if ex == nil || ex.header == nil {
		return found
	}

	found.ETag = strings.TrimSpace(ex.header.Get("ETag"))
	if lastModified := strings.TrimSpace(ex.header.Get("Last-Modified")); lastModified != "" {
		if parsed, err := http.ParseTime(lastModified); err == nil {
			found.LastModified = parsed.UTC()
		}
	}
	return found
}

// parseValidationErrors reads an {"errors": ...} document. A field map keeps
// its field names; a bare list or string is attached to the base field.
func parseValidationErrors(body []byte) (faults.FieldErrors, bool) {
	decoded, err := decodeJSONResponse(body)
	if err != nil {
		return nil, false
	}
	document, ok := decoded.(map[string]any)
	if !ok {
		return nil, false
	}
	rawErrors, ok := document["errors"]
	if !ok {
		return nil, false
	}

	fields := faults.FieldErrors{}
	switch typed := rawErrors.(type) {
	case map[string]any:
		names := make([]string, 0, len(typed))
		for name := range typed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fields.Add(name, messagesOf(typed[name])...)
		}
	default:
		fields.Add(faults.BaseField, messagesOf(typed)...)
	}

	if fields.Empty() {
		return nil, false
	}
	return fields, true
}

func messagesOf(value any) []string {
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		return []string{typed}
	case []any:
		messages := make([]string, 0, len(typed))
		for _, item := range typed {
			messages = append(messages, messagesOf(item)...)
		}
		return messages
	default:
		return []string{fmt.Sprint(typed)}
	}
}

func httpDate(value time.Time) string {
	return value.UTC().Format(http.TimeFormat)
}
