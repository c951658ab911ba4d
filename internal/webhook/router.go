// Package webhook serves the inbound lead webhook and its companion routes.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/lixohealthcareequipment/growth-ops/internal/crm"
	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

// Resolver maps contact details to an identity. It never fails.
type Resolver interface {
	Resolve(ctx context.Context, email, phone string) *model.Identity
}

// IdentityInserter writes a raw identity row for the debug route.
type IdentityInserter interface {
	InsertIdentity(ctx context.Context, ident model.Identity) error
}

// Config controls optional behavior of the handler.
type Config struct {
	// Writeback pushes resolved identities to the CRM lead.
	Writeback bool
	// DebugRoutes mounts /v1/debug/insert_identity.
	DebugRoutes bool
	// CORSOrigins lists browser origins allowed to post leads.
	CORSOrigins []string
}

// Handler routes webhook requests.
type Handler struct {
	resolver Resolver
	writer   crm.Writer
	inserter IdentityInserter
	cfg      Config
}

// NewHandler creates a Handler. writer may be nil when write-back is off;
// inserter may be nil when debug routes are off.
func NewHandler(resolver Resolver, writer crm.Writer, inserter IdentityInserter, cfg Config) *Handler {
	return &Handler{resolver: resolver, writer: writer, inserter: inserter, cfg: cfg}
}

// Router builds the chi router. Unmatched paths and methods answer 200 with
// a not_found body so upstream senders do not disable the webhook.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	if len(h.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/zoho/lead_created", h.handleLeadCreated)
	if h.cfg.DebugRoutes && h.inserter != nil {
		r.HandleFunc("/v1/debug/insert_identity", h.handleDebugInsert)
		r.HandleFunc("/v1/debug/insert_identity/", h.handleDebugInsert)
	}

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       false,
		"error":    "not_found",
		"pathname": r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}
