package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrorPayload is the "error" member of a FreeIPA response.
type ErrorPayload struct {
	Name    string         `json:"name"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ResponseBody is a decoded FreeIPA reply. It is immutable after parsing.
type ResponseBody struct {
	result    json.RawMessage
	error     *ErrorPayload
	principal string
	id        string
	version   string
}

var requiredResponseKeys = []string{"result", "error", "principal", "id"}

// BuildResponse reads and decodes the body of an HTTP response.
func BuildResponse(resp *http.Response) (*ResponseBody, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DecodingError{Cause: fmt.Errorf("reading response body: %w", err)}
	}
	return ParseResponse(data)
}

// ParseResponse decodes a FreeIPA response envelope. All of result, error,
// principal and id must be present; version is optional.
func ParseResponse(data []byte) (*ResponseBody, error) {
	var envelope map[string]json.RawMessage
	if err := DecodeInto(data, &envelope); err != nil {
		return nil, err
	}
	if envelope == nil {
		return nil, &DecodingError{Cause: fmt.Errorf("response is not a JSON object")}
	}

	for _, key := range requiredResponseKeys {
		if _, ok := envelope[key]; !ok {
			return nil, &DecodingError{Cause: fmt.Errorf("response is missing the %q key", key)}
		}
	}

	r := &ResponseBody{}

	if raw := envelope["result"]; !isNull(raw) {
		r.result = bytes.Clone(raw)
	}
	if raw := envelope["error"]; !isNull(raw) {
		r.error = &ErrorPayload{}
		if err := json.Unmarshal(raw, r.error); err != nil {
			return nil, &DecodingError{Cause: fmt.Errorf("invalid error member: %w", err)}
		}
	}
	if err := decodeOptionalString(envelope["principal"], &r.principal); err != nil {
		return nil, err
	}
	if err := decodeOptionalString(envelope["id"], &r.id); err != nil {
		return nil, err
	}
	if raw, ok := envelope["version"]; ok {
		if err := decodeOptionalString(raw, &r.version); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// HasError reports whether the server returned an error member.
func (r *ResponseBody) HasError() bool {
	return r.error != nil
}

// Error returns the error member, or nil.
func (r *ResponseBody) Error() *ErrorPayload {
	if r.error == nil {
		return nil
	}
	c := *r.error
	return &c
}

// Result returns the raw result member, nil when absent or null.
func (r *ResponseBody) Result() json.RawMessage {
	return bytes.Clone(r.result)
}

func (r *ResponseBody) Principal() string { return r.principal }
func (r *ResponseBody) ID() string        { return r.id }
func (r *ResponseBody) Version() string   { return r.version }

// DecodeResult unmarshals the result member into v.
func (r *ResponseBody) DecodeResult(v any) error {
	if r.result == nil {
		return &DecodingError{Cause: fmt.Errorf("response has no result")}
	}
	return DecodeInto(r.result, v)
}

// ResultMap returns the result member as a generic object.
func (r *ResponseBody) ResultMap() (map[string]any, error) {
	var m map[string]any
	if err := r.DecodeResult(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// Summary returns result.summary, the one-line message most commands produce.
func (r *ResponseBody) Summary() string {
	m, err := r.ResultMap()
	if err != nil {
		return ""
	}
	s, _ := m["summary"].(string)
	return s
}

// MarshalJSON re-encodes the envelope.
func (r *ResponseBody) MarshalJSON() ([]byte, error) {
	var result any
	if r.result != nil {
		result = r.result
	}
	return json.Marshal(struct {
		Result    any           `json:"result"`
		Error     *ErrorPayload `json:"error"`
		Principal string        `json:"principal"`
		ID        string        `json:"id"`
		Version   string        `json:"version,omitempty"`
	}{result, r.error, r.principal, r.id, r.version})
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func decodeOptionalString(raw json.RawMessage, dst *string) error {
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &DecodingError{Cause: fmt.Errorf("expected string: %w", err)}
	}
	return nil
}
