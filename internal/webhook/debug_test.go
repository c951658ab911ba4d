package webhook

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lixohealthcareequipment/growth-ops/internal/identity"
)

func TestDebugInsert(t *testing.T) {
	h, st := newTestHandler(Config{DebugRoutes: true}, nil)
	router := h.Router()

	rec, out := do(t, router, http.MethodPost, "/v1/debug/insert_identity", "application/json",
		[]byte(`{"zoho_lead_id":"T-1","email":"Debug@X.com"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, float64(200), out["status"])
	assert.Equal(t, "T-1", out["test_id"])
	assert.Contains(t, st.rows, identity.HashEmail("debug@x.com"))

	rec, out = do(t, router, http.MethodPost, "/v1/debug/insert_identity/", "application/json",
		[]byte(`{"zoho_lead_id":"T-2"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "T-2", out["test_id"])
	assert.Contains(t, st.rows, "debug_T-2")
}

func TestDebugInsert_Rejections(t *testing.T) {
	h, _ := newTestHandler(Config{DebugRoutes: true}, nil)
	router := h.Router()

	rec, out := do(t, router, http.MethodGet, "/v1/debug/insert_identity", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method_not_allowed", out["error"])

	rec, out = do(t, router, http.MethodPost, "/v1/debug/insert_identity", "text/plain", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "content_type_must_be_json", out["error"])
	assert.Equal(t, "text/plain", out["content_type"])

	for _, body := range []string{`{}`, `not json`, `{"zoho_lead_id":""}`} {
		rec, out = do(t, router, http.MethodPost, "/v1/debug/insert_identity", "application/json", []byte(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "zoho_lead_id_required", out["error"])
	}
}

func TestDebugInsert_StoreError(t *testing.T) {
	h, st := newTestHandler(Config{DebugRoutes: true}, nil)
	st.err = errors.New(strings.Repeat("x", 400))

	rec, out := do(t, h.Router(), http.MethodPost, "/v1/debug/insert_identity", "application/json",
		[]byte(`{"zoho_lead_id":"T-3","phone":"555"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, float64(500), out["status"])
	assert.Len(t, out["body_head"], 300)
}
