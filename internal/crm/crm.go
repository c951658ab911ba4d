// Package crm writes resolved identity attribution back to the lead record
// in the CRM that created it.
package crm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
	"github.com/lixohealthcareequipment/growth-ops/pkg/salesforce"
	"github.com/lixohealthcareequipment/growth-ops/pkg/zoho"
)

// WriteBackResult is the outcome of one write-back. Failures are reported
// here and never as an error.
type WriteBackResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Writer updates a CRM lead with identity attribution.
type Writer interface {
	WriteBack(ctx context.Context, leadID string, ident *model.Identity) WriteBackResult
}

// LeadFields maps an identity to the lead's custom fields. Missing values
// are sent as null.
func LeadFields(ident *model.Identity, suffix string) map[string]any {
	return map[string]any{
		"Identity_ID" + suffix:            ident.ID,
		"UTM_Source" + suffix:             nullable(ident.UTMSource),
		"UTM_Medium" + suffix:             nullable(ident.UTMMedium),
		"UTM_Campaign" + suffix:           nullable(ident.UTMCampaign),
		"First_Touch_UTM_Source" + suffix: nullable(ident.FirstTouchSource),
	}
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// Zoho writes back through the Zoho CRM Leads API.
type Zoho struct {
	client zoho.Client
}

// NewZoho creates a Zoho writer.
func NewZoho(client zoho.Client) *Zoho {
	return &Zoho{client: client}
}

// WriteBack implements Writer.
func (z *Zoho) WriteBack(ctx context.Context, leadID string, ident *model.Identity) WriteBackResult {
	return run(ctx, "zoho", leadID, func(ctx context.Context) error {
		return z.client.UpdateLead(ctx, leadID, LeadFields(ident, ""))
	})
}

// Salesforce writes back to Lead custom fields (suffixed __c).
type Salesforce struct {
	client salesforce.Client
}

// NewSalesforce creates a Salesforce writer.
func NewSalesforce(client salesforce.Client) *Salesforce {
	return &Salesforce{client: client}
}

// WriteBack implements Writer.
func (s *Salesforce) WriteBack(ctx context.Context, leadID string, ident *model.Identity) WriteBackResult {
	return run(ctx, "salesforce", leadID, func(ctx context.Context) error {
		return salesforce.UpdateLead(ctx, s.client, leadID, LeadFields(ident, "__c"))
	})
}

func run(ctx context.Context, provider, leadID string, fn func(context.Context) error) (res WriteBackResult) {
	log := zap.L().With(zap.String("provider", provider), zap.String("lead_id", leadID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("crm: write-back panicked", zap.Any("panic", r))
			res = WriteBackResult{Error: fmt.Sprint(r)}
		}
	}()

	if err := fn(ctx); err != nil {
		log.Error("crm: write-back failed", zap.Error(err))
		return WriteBackResult{Error: err.Error()}
	}
	log.Info("crm: write-back succeeded")
	return WriteBackResult{Success: true}
}
