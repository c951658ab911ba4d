package webhook

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/identity"
	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

const bodyHeadLen = 300

type debugInsertResponse struct {
	OK       bool   `json:"ok"`
	Status   int    `json:"status"`
	BodyHead string `json:"body_head"`
	TestID   string `json:"test_id"`
}

// handleDebugInsert writes a hashed identity row straight to the store,
// bypassing the resolver, and reports what the store said.
func (h *Handler) handleDebugInsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
		return
	}
	ct := r.Header.Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok":           false,
			"error":        "content_type_must_be_json",
			"content_type": ct,
		})
		return
	}

	var payload map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || field(payload, "zoho_lead_id") == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "zoho_lead_id_required"})
		return
	}

	leadID := field(payload, "zoho_lead_id")
	email := field(payload, "email")
	phone := field(payload, "phone")
	emailHash := identity.HashEmail(email)
	phoneHash := identity.HashPhone(phone)

	id := emailHash
	if id == "" {
		id = phoneHash
	}
	if id == "" {
		id = "debug_" + leadID
	}

	now := time.Now().UTC()
	err := h.inserter.InsertIdentity(r.Context(), model.Identity{
		ID:        id,
		EmailHash: model.Ptr(emailHash),
		PhoneHash: model.Ptr(phoneHash),
		CreatedAt: now,
		UpdatedAt: now,
	})

	resp := debugInsertResponse{OK: err == nil, Status: http.StatusOK, TestID: leadID}
	if err != nil {
		resp.Status = http.StatusInternalServerError
		resp.BodyHead = head(err.Error(), bodyHeadLen)
		zap.L().Warn("webhook: debug insert failed", zap.String("zoho_lead_id", leadID), zap.Error(err))
	}
	writeJSON(w, resp.Status, resp)
}

func head(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
