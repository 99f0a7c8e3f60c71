package rpc

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantErr       bool
		wantHasError  bool
		wantPrincipal string
		wantVersion   string
		wantResult    bool
	}{
		{
			name:          "success",
			input:         `{"result": {"summary": "IPA server version 4.12.2. API version 2.254"}, "error": null, "id": "go-freeipa.1", "principal": "admin@EXAMPLE.TEST", "version": "4.12.2"}`,
			wantPrincipal: "admin@EXAMPLE.TEST",
			wantVersion:   "4.12.2",
			wantResult:    true,
		},
		{
			name:          "server error",
			input:         `{"result": null, "error": {"code": 4001, "message": "bob: user not found", "name": "NotFound", "data": {"reason": "bob: user not found"}}, "id": "1", "principal": "admin@EXAMPLE.TEST", "version": "4.12.2"}`,
			wantHasError:  true,
			wantPrincipal: "admin@EXAMPLE.TEST",
			wantVersion:   "4.12.2",
		},
		{
			name:          "null result and error",
			input:         `{"result": null, "error": null, "id": null, "principal": "admin@EXAMPLE.TEST"}`,
			wantPrincipal: "admin@EXAMPLE.TEST",
		},
		{name: "missing principal", input: `{"result": null, "error": null, "id": "1"}`, wantErr: true},
		{name: "missing result", input: `{"error": null, "id": "1", "principal": "p"}`, wantErr: true},
		{name: "not an object", input: `[1, 2]`, wantErr: true},
		{name: "not json", input: `<html>Bad Gateway</html>`, wantErr: true},
		{name: "null", input: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse([]byte(tt.input))
			if tt.wantErr {
				var decErr *DecodingError
				assert.ErrorAs(t, err, &decErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHasError, resp.HasError())
			assert.Equal(t, tt.wantPrincipal, resp.Principal())
			assert.Equal(t, tt.wantVersion, resp.Version())
			assert.Equal(t, tt.wantResult, resp.Result() != nil)
		})
	}
}

func TestResponseBody_Error(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"result": null, "error": {"code": 4001, "message": "bob: user not found", "name": "NotFound"}, "id": "1", "principal": "p"}`))
	require.NoError(t, err)

	payload := resp.Error()
	require.NotNil(t, payload)
	assert.Equal(t, "NotFound", payload.Name)
	assert.Equal(t, 4001, payload.Code)
	assert.Equal(t, "bob: user not found", payload.Message)

	// The returned payload is a copy.
	payload.Name = "Changed"
	assert.Equal(t, "NotFound", resp.Error().Name)
}

func TestResponseBody_ResultHelpers(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"result": {"count": 1, "truncated": false, "summary": "1 user matched", "result": [{"uid": ["admin"]}]}, "error": null, "id": "1", "principal": "p"}`))
	require.NoError(t, err)

	assert.Equal(t, "1 user matched", resp.Summary())

	var typed struct {
		Count  int                   `json:"count"`
		Result []map[string][]string `json:"result"`
	}
	require.NoError(t, resp.DecodeResult(&typed))
	assert.Equal(t, 1, typed.Count)
	assert.Equal(t, []string{"admin"}, typed.Result[0]["uid"])

	m, err := resp.ResultMap()
	require.NoError(t, err)
	assert.Equal(t, false, m["truncated"])
}

func TestResponseBody_NoResult(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"result": null, "error": null, "id": "1", "principal": "p"}`))
	require.NoError(t, err)

	assert.Empty(t, resp.Summary())
	_, err = resp.ResultMap()
	var decErr *DecodingError
	assert.ErrorAs(t, err, &decErr)
}

func TestBuildResponse(t *testing.T) {
	httpResp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"result": true, "error": null, "id": "abc", "principal": "admin@EXAMPLE.TEST"}`)),
	}

	resp, err := BuildResponse(httpResp)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.ID())
	assert.JSONEq(t, "true", string(resp.Result()))
}

func TestResponseBody_MarshalJSON(t *testing.T) {
	input := `{"result": {"summary": "ok"}, "error": null, "id": "1", "principal": "p", "version": "2.254"}`
	resp, err := ParseResponse([]byte(input))
	require.NoError(t, err)

	text, err := Encode(resp)
	require.NoError(t, err)
	assert.JSONEq(t, input, text)
}
