// Package notion publishes pages into a Notion database.
package notion

import (
	"context"
	"errors"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/lixohealthcareequipment/growth-ops/internal/resilience"
)

// Client is the part of the Notion API this application calls.
type Client interface {
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// pageCreator is satisfied by notionapi's PageService.
type pageCreator interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// ClientOption configures the client.
type ClientOption func(*notionClient)

// WithRateLimit replaces the 3 req/s default. Zero disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithRetries sets the attempts per page for rate-limited or 5xx answers.
func WithRetries(n int) ClientOption {
	return func(c *notionClient) {
		if n > 0 {
			c.retries = n
		}
	}
}

type notionClient struct {
	pages   pageCreator
	limiter *rate.Limiter
	retries int
}

// NewClient creates a client for the integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		pages:   notionapi.NewClient(notionapi.Token(token)).Page,
		limiter: rate.NewLimiter(3, 1),
		retries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	cfg := resilience.WithAttempts(c.retries)
	cfg.ShouldRetry = retryable
	cfg.OnRetry = resilience.RetryLogger("notion", "create page")

	page, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*notionapi.Page, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "notion: rate limit")
			}
		}
		return c.pages.Create(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: create page")
	}
	return page, nil
}

// retryable treats 429 and 5xx API answers as transient.
func retryable(err error) bool {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.Status)
	}
	return resilience.IsTransient(err)
}
