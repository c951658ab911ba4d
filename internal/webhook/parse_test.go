package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField(t *testing.T) {
	payload := map[string]any{
		"s":   "text",
		"n":   json.Number("12345678901234567890"),
		"b":   true,
		"nil": nil,
		"obj": map[string]any{"a": "b"},
	}
	assert.Equal(t, "text", field(payload, "s"))
	assert.Equal(t, "12345678901234567890", field(payload, "n"))
	assert.Equal(t, "true", field(payload, "b"))
	assert.Equal(t, "", field(payload, "nil"))
	assert.Equal(t, "", field(payload, "missing"))
	assert.Equal(t, `{"a":"b"}`, field(payload, "obj"))
}

func TestDecodeJSONObject_NonObject(t *testing.T) {
	fields, err := decodeJSONObject([]byte(`[1,2]`))
	assert.NoError(t, err)
	assert.Empty(t, fields)

	_, err = decodeJSONObject([]byte(`null`))
	assert.Error(t, err)
}

func TestFormFieldsKeepsLast(t *testing.T) {
	got := formFields(map[string][]string{"email": {"a@b.c", "d@e.f"}, "empty": {}})
	assert.Equal(t, map[string]any{"email": "d@e.f"}, got)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "MASKED", mask("555"))
}

func TestParsePayload_BodyLimit(t *testing.T) {
	form := func(padding int) *http.Request {
		body := "pad=" + strings.Repeat("x", padding) + "&email=a%40b.com"
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	_, err := parsePayload(form(maxBodyBytes))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body exceeds")

	// "pad=" and "&email=a%40b.com" add 20 bytes.
	fields, err := parsePayload(form(maxBodyBytes - 20))
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", field(fields, "email"))
}
