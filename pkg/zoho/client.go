// Package zoho is a minimal Zoho CRM client for updating lead records.
package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultAccountsURL = "https://accounts.zoho.com"
	defaultBaseURL     = "https://www.zohoapis.com"
)

// Client performs Zoho CRM operations.
type Client interface {
	UpdateLead(ctx context.Context, leadID string, fields map[string]any) error
}

// Credentials are the OAuth refresh-token grant inputs.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// StatusError is returned when the CRM answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Zoho API error: %d", e.StatusCode)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the CRM API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAccountsURL overrides the OAuth accounts server.
func WithAccountsURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.accountsURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the transport used for both token and API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.base = hc
	}
}

// WithRateLimit throttles API calls to rps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	creds       Credentials
	accountsURL string
	baseURL     string
	base        *http.Client
	http        *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a Zoho CRM client. Access tokens are fetched from the
// refresh token on first use and reused until they expire.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds:       creds,
		accountsURL: defaultAccountsURL,
		baseURL:     defaultBaseURL,
		base:        &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.accountsURL + "/oauth/v2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	c.http = oauth2.NewClient(ctx, src)
	c.http.Timeout = c.base.Timeout
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

type leadEnvelope struct {
	Data []map[string]any `json:"data"`
}

// UpdateLead overwrites the given fields on lead leadID.
func (c *httpClient) UpdateLead(ctx context.Context, leadID string, fields map[string]any) error {
	if leadID == "" {
		return eris.New("zoho: lead id is required")
	}
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "zoho: rate limit")
	}

	record := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record["id"] = leadID

	body, err := json.Marshal(leadEnvelope{Data: []map[string]any{record}})
	if err != nil {
		return eris.Wrap(err, "zoho: marshal lead")
	}

	endpoint := c.baseURL + "/crm/v2/Leads/" + url.PathEscape(leadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "zoho: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "zoho: update lead %s", leadID)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return eris.Wrap(err, "zoho: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
