// Package postgrest is a small client for PostgREST endpoints such as the
// Supabase REST API.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lixohealthcareequipment/growth-ops/internal/resilience"
)

const (
	defaultChunkSize = 1000
	defaultRetries   = 3
	restPath         = "/rest/v1/"
)

// Client performs table operations against a PostgREST endpoint.
type Client interface {
	// Select runs GET /rest/v1/{table}?{query} and decodes the JSON array
	// into dest.
	Select(ctx context.Context, table string, query url.Values, dest any) error
	// Insert posts rows without conflict handling.
	Insert(ctx context.Context, table string, rows any) error
	// Upsert posts rows with merge-duplicates resolution. onConflict names
	// the conflict columns and may be empty to use the primary key.
	Upsert(ctx context.Context, table, onConflict string, rows any) error
	// Patch updates every row matching filter with the fields in body.
	Patch(ctx context.Context, table string, filter url.Values, body any) error
}

// Option configures the client.
type Option func(*httpClient)

// WithSchema sets the Accept-Profile and Content-Profile headers so requests
// target a non-default schema.
func WithSchema(schema string) Option {
	return func(c *httpClient) {
		c.schema = schema
	}
}

// WithRetries sets how many times a failed upsert is retried after the
// first attempt. Zero disables retries; negative values keep the default.
// Select, Insert and Patch are always sent once.
func WithRetries(n int) Option {
	return func(c *httpClient) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	key     string
	schema  string
	retries int
	backoff time.Duration
	http    *http.Client
}

// NewClient creates a PostgREST client. key is sent both as apikey and as
// the bearer token, which is what Supabase service-role access expects.
func NewClient(baseURL, key string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		retries: defaultRetries,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UpsertChunked upserts rows in batches of chunkSize. It stops at the first
// failing batch.
func UpsertChunked[T any](ctx context.Context, c Client, table, onConflict string, rows []T, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))
		if err := c.Upsert(ctx, table, onConflict, rows[start:end]); err != nil {
			return eris.Wrapf(err, "postgrest: upsert %s rows %d-%d", table, start, end)
		}
	}
	return nil
}

func (c *httpClient) Select(ctx context.Context, table string, query url.Values, dest any) error {
	body, err := c.do(ctx, http.MethodGet, table, query, nil, "")
	if err != nil {
		return eris.Wrapf(err, "postgrest: select %s", table)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return eris.Wrapf(err, "postgrest: decode %s", table)
	}
	return nil
}

func (c *httpClient) Insert(ctx context.Context, table string, rows any) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "postgrest: marshal %s", table)
	}
	if _, err := c.do(ctx, http.MethodPost, table, nil, payload, "return=minimal"); err != nil {
		return eris.Wrapf(err, "postgrest: insert %s", table)
	}
	return nil
}

func (c *httpClient) Upsert(ctx context.Context, table, onConflict string, rows any) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "postgrest: marshal %s", table)
	}
	var query url.Values
	if onConflict != "" {
		query = url.Values{"on_conflict": {onConflict}}
	}

	cfg := resilience.WithAttempts(c.retries + 1)
	cfg.InitialBackoff = c.backoff
	cfg.OnRetry = resilience.RetryLogger("postgrest", "upsert "+table)
	err = resilience.Do(ctx, cfg, func(ctx context.Context) error {
		_, err := c.do(ctx, http.MethodPost, table, query, payload, "resolution=merge-duplicates,return=minimal")
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "postgrest: upsert %s", table)
	}
	return nil
}

func (c *httpClient) Patch(ctx context.Context, table string, filter url.Values, body any) error {
	if len(filter) == 0 {
		return eris.Errorf("postgrest: patch %s without filter", table)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrapf(err, "postgrest: marshal %s", table)
	}
	if _, err := c.do(ctx, http.MethodPatch, table, filter, payload, "return=minimal"); err != nil {
		return eris.Wrapf(err, "postgrest: patch %s", table)
	}
	return nil
}

// do sends one request and returns the body of a 2xx answer. Non-2xx
// answers become resilience status errors.
func (c *httpClient) do(ctx context.Context, method, table string, query url.Values, payload []byte, prefer string) ([]byte, error) {
	endpoint := c.baseURL + restPath + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if c.schema != "" {
		req.Header.Set("Accept-Profile", c.schema)
		req.Header.Set("Content-Profile", c.schema)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.StatusError("postgrest", resp.StatusCode, respBody)
	}
	return respBody, nil
}
