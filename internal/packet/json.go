package packet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// fieldsFromJSON decodes a JSON object of string members. It walks the token
// stream instead of unmarshaling into a map so member order and duplicate
// names survive, matching the hash encoding.
func fieldsFromJSON(data []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEmbeddedJSON, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: top level value is not an object", ErrInvalidEmbeddedJSON)
	}

	var fields []field
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEmbeddedJSON, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrInvalidEmbeddedJSON, tok)
		}

		tok, err = dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: member %q: %w", ErrInvalidEmbeddedJSON, key, err)
		}
		value, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: member %q is not a string", ErrInvalidEmbeddedJSON, key)
		}
		fields = append(fields, field{key: key, value: []byte(value)})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEmbeddedJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidEmbeddedJSON)
	}
	return fields, nil
}
