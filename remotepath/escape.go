package remotepath

const upperHex = "0123456789ABCDEF"

// EscapeSegment percent-encodes value as a single path segment. Only RFC 3986
// unreserved characters pass through, so a value can never introduce a '/'
// or any other delimiter into the rendered path.
func EscapeSegment(value string) string {
	switch value {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}

	escapeCount := 0
	for idx := 0; idx < len(value); idx++ {
		if !isUnreserved(value[idx]) {
			escapeCount++
		}
	}
	if escapeCount == 0 {
		return value
	}

	escaped := make([]byte, 0, len(value)+2*escapeCount)
	for idx := 0; idx < len(value); idx++ {
		current := value[idx]
		if isUnreserved(current) {
			escaped = append(escaped, current)
			continue
		}
		escaped = append(escaped, '%', upperHex[current>>4], upperHex[current&15])
	}
	return string(escaped)
}

func isUnreserved(value byte) bool {
	switch {
	case value >= 'a' && value <= 'z':
		return true
	case value >= 'A' && value <= 'Z':
		return true
	case value >= '0' && value <= '9':
		return true
	}
	switch value {
	case '-', '.', '_', '~':
		return true
	}
	return false
}
