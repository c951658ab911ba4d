// Package googleads is a REST client for the Google Ads API search and
// campaign budget endpoints.
package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/lixohealthcareequipment/growth-ops/internal/resilience"
)

const (
	defaultBaseURL  = "https://googleads.googleapis.com/v17"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
)

// Client performs Google Ads API operations.
type Client interface {
	Search(ctx context.Context, customerID, query string) ([]gjson.Result, error)
	UpdateBudget(ctx context.Context, customerID, resourceName string, amountMicros int64) error
}

// Credentials hold the OAuth client, refresh token and developer token.
type Credentials struct {
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	DeveloperToken  string
	LoginCustomerID string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (including version).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.tokenURL = u
		}
	}
}

// WithHTTPClient overrides the transport used for token and API calls.
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
	creds    Credentials
	baseURL  string
	tokenURL string
	base     *http.Client
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a Google Ads client authenticated with a refresh token.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds:    creds,
		baseURL:  defaultBaseURL,
		tokenURL: defaultTokenURL,
		base:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
	c.http = oauth2.NewClient(ctx, conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}))
	c.http.Timeout = c.base.Timeout
	return c
}

// NormalizeCustomerID strips the dashes Google shows in customer IDs.
func NormalizeCustomerID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

type searchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
}

// Search runs a GAQL query and returns every result row across all pages.
// Each page request is sent once.
func (c *httpClient) Search(ctx context.Context, customerID, query string) ([]gjson.Result, error) {
	cid := NormalizeCustomerID(customerID)
	var rows []gjson.Result
	pageToken := ""
	for {
		body, err := json.Marshal(searchRequest{Query: query, PageToken: pageToken})
		if err != nil {
			return nil, eris.Wrap(err, "googleads: marshal search")
		}

		resp, err := c.post(ctx, "/customers/"+cid+"/googleAds:search", body)
		if err != nil {
			return nil, eris.Wrapf(err, "googleads: search customer %s", cid)
		}

		page := gjson.ParseBytes(resp)
		rows = append(rows, page.Get("results").Array()...)
		pageToken = page.Get("nextPageToken").String()
		if pageToken == "" {
			return rows, nil
		}
	}
}

type budgetOperation struct {
	Update     budgetUpdate `json:"update"`
	UpdateMask string       `json:"updateMask"`
}

type budgetUpdate struct {
	ResourceName string `json:"resourceName"`
	AmountMicros string `json:"amountMicros"`
}

type mutateRequest struct {
	Operations []budgetOperation `json:"operations"`
}

// UpdateBudget sets the daily amount of a campaign budget. It is sent once;
// callers decide whether to retry or roll back.
func (c *httpClient) UpdateBudget(ctx context.Context, customerID, resourceName string, amountMicros int64) error {
	if resourceName == "" {
		return eris.New("googleads: budget resource name is required")
	}
	cid := NormalizeCustomerID(customerID)
	body, err := json.Marshal(mutateRequest{Operations: []budgetOperation{{
		Update: budgetUpdate{
			ResourceName: resourceName,
			AmountMicros: strconv.FormatInt(amountMicros, 10),
		},
		UpdateMask: "amount_micros",
	}}})
	if err != nil {
		return eris.Wrap(err, "googleads: marshal mutate")
	}
	if _, err := c.post(ctx, "/customers/"+cid+"/campaignBudgets:mutate", body); err != nil {
		return eris.Wrapf(err, "googleads: update budget %s", resourceName)
	}
	return nil
}

func (c *httpClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "googleads: rate limit")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "googleads: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", c.creds.DeveloperToken)
	if id := NormalizeCustomerID(c.creds.LoginCustomerID); id != "" {
		req.Header.Set("login-customer-id", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "googleads: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "googleads: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("googleads", resp.StatusCode, respBody)
	}
	return respBody, nil
}
