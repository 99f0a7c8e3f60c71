package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Encode serializes v to JSON text.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", &EncodingError{Cause: err}
	}
	return string(data), nil
}

// Decode parses JSON text into generic values. Objects become map[string]any
// and numbers become json.Number.
func Decode(text string) (any, error) {
	var v any
	if err := DecodeInto([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeInto parses exactly one JSON value from data into v.
func DecodeInto(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return &DecodingError{Cause: err}
	}

	// Reject trailing garbage after the top-level value.
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("invalid data after top-level value")
		}
		return &DecodingError{Cause: err}
	}

	return nil
}
