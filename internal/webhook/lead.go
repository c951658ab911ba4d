package webhook

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

type leadResponse struct {
	OK          bool   `json:"ok"`
	IdentityID  string `json:"identity_id"`
	ZohoUpdated bool   `json:"zoho_updated"`
}

type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) handleLeadCreated(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("webhook: handler panicked", zap.Any("panic", rec))
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprint(rec)})
		}
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
	payload, err := parsePayload(r)
	if err != nil {
		zap.L().Warn("webhook: parse failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "parse_failed", Message: err.Error()})
		return
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	leadID := field(payload, "zoho_lead_id")
	email := field(payload, "email")
	phone := field(payload, "phone")

	log := zap.L().With(zap.String("path", r.URL.Path), zap.String("zoho_lead_id", leadID))
	log.Info("webhook: lead received",
		zap.String("content_type", r.Header.Get("Content-Type")),
		zap.Strings("keys", keys),
		zap.String("email", mask(email)),
		zap.String("phone", mask(phone)),
	)

	ident := h.resolver.Resolve(r.Context(), email, phone)
	if ident == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "identity resolution returned nothing"})
		return
	}
	log = log.With(zap.String("identity_id", ident.ID))
	log.Info("webhook: identity resolved")

	if leadID != "" {
		h.linkLead(r.Context(), log, ident, leadID)
	}

	if h.cfg.Writeback && leadID != "" && h.writer != nil {
		res := h.writer.WriteBack(r.Context(), leadID, ident)
		log.Info("webhook: write-back finished", zap.Bool("success", res.Success), zap.String("error", res.Error))
	}

	writeJSON(w, http.StatusOK, leadResponse{
		OK:          true,
		IdentityID:  ident.ID,
		ZohoUpdated: h.cfg.Writeback,
	})
}

// linkLead associates the CRM lead with the identity. Only logged for now;
// the identity table has no lead column to store it in.
func (h *Handler) linkLead(_ context.Context, log *zap.Logger, _ *model.Identity, _ string) {
	log.Info("webhook: lead linked")
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "MASKED"
}
