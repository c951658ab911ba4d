package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	maxBodyBytes      = 1 << 20
	maxMultipartBytes = 8 << 20
)

// parsePayload decodes the request body into a flat field map. JSON,
// url-encoded and multipart bodies are recognized by content type; anything
// else is tried as JSON, then as a url-encoded form.
func parsePayload(r *http.Request) (map[string]any, error) {
	ct := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMultipartBytes); err != nil {
			return nil, eris.Wrap(err, "webhook: parse multipart")
		}
		return formFields(r.MultipartForm.Value), nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "webhook: read body")
	}
	if len(raw) > maxBodyBytes {
		return nil, eris.Errorf("webhook: body exceeds %d bytes", maxBodyBytes)
	}

	switch {
	case strings.Contains(ct, "application/json"):
		return decodeJSONObject(raw)
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		return decodeForm(raw)
	}

	if fields, err := decodeJSONObject(raw); err == nil {
		return fields, nil
	}
	return decodeForm(raw)
}

func decodeJSONObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, eris.Wrap(err, "webhook: decode json")
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case nil:
		return nil, eris.New("webhook: payload is null")
	default:
		return map[string]any{}, nil
	}
}

func decodeForm(raw []byte) (map[string]any, error) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, eris.Wrap(err, "webhook: decode form")
	}
	return formFields(values), nil
}

// formFields keeps the last value of repeated keys.
func formFields(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[len(vs)-1]
		}
	}
	return out
}

// field returns a payload value as text. Absent, null and empty values are "".
func field(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		b, _ := json.Marshal(v) //nolint:errcheck
		return string(b)
	}
	return fmt.Sprint(v)
}
