package sqlite

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/remote"
)

func encodeValue(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	normalized, err := remote.NormalizeValue(value)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("failed to encode value of type %T", value), err)
	}
	return string(encoded), nil
}

func decodeValue(encoded string) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(encoded)))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return remote.NormalizeValue(value)
}
