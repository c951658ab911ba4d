// Package brief generates the daily executive summary and delivers it.
package brief

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/mailer"
	"github.com/lixohealthcareequipment/growth-ops/internal/model"
	"github.com/lixohealthcareequipment/growth-ops/pkg/anthropic"
	"github.com/lixohealthcareequipment/growth-ops/pkg/notion"
)

// Store persists generated briefs.
type Store interface {
	InsertBrief(ctx context.Context, brief model.Brief) error
}

// Sender delivers a brief by mail.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Publisher archives a brief as a page.
type Publisher interface {
	Publish(ctx context.Context, page notion.Page) (string, error)
}

// Options configures generation.
type Options struct {
	Company   string
	Model     string
	MaxTokens int64
}

// Generator produces, stores and delivers briefs. Sender and Publisher are
// optional.
type Generator struct {
	ai        anthropic.Client
	store     Store
	sender    Sender
	publisher Publisher
	opts      Options
	now       func() time.Time
}

// NewGenerator creates a Generator. Pass nil sender or publisher to skip
// that channel.
func NewGenerator(ai anthropic.Client, store Store, sender Sender, publisher Publisher, opts Options) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Company == "" {
		opts.Company = "Lixo Healthcare Equipment"
	}
	return &Generator{ai: ai, store: store, sender: sender, publisher: publisher, opts: opts, now: time.Now}
}

// Prompt returns the instruction sent to the model.
func Prompt(company string) string {
	return fmt.Sprintf(`You are the AI Intelligence Officer for %s.
Generate a brief daily executive summary (5-7 bullet points) for the Chairman including:
- Key AI decisions made today
- Budget optimization recommendations
- Risk alerts if any
- Recommended actions

Format: Clear, concise, action-oriented.`, company)
}

// Subject is the mail subject for a brief generated at t.
func Subject(t time.Time) string {
	return "Daily AI Intelligence Brief - " + t.Format("2006-01-02")
}

// HTMLBody wraps content in a preformatted HTML document.
func HTMLBody(content string) string {
	return "<html><body><pre>" + html.EscapeString(content) + "</pre></body></html>"
}

// Run generates a brief, stores it, then delivers it on every configured
// channel. Storage failure is fatal; delivery runs only after a successful
// store.
func (g *Generator) Run(ctx context.Context) (model.Brief, error) {
	now := g.now().UTC()
	b := model.Brief{ID: "brief-" + strconv.FormatInt(now.UnixMilli(), 10), CreatedAt: now}

	resp, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.opts.Model,
		MaxTokens: g.opts.MaxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: Prompt(g.opts.Company)}},
	})
	if err != nil {
		return model.Brief{}, eris.Wrap(err, "brief: generate")
	}
	resp.Usage.LogCost(g.opts.Model, "brief")
	if resp.Truncated() {
		zap.L().Warn("brief: generation hit max_tokens", zap.Int64("max_tokens", g.opts.MaxTokens))
	}

	b.Content = strings.TrimSpace(resp.Text())
	if b.Content == "" {
		return model.Brief{}, eris.New("brief: model returned no text")
	}

	if err := g.store.InsertBrief(ctx, b); err != nil {
		return model.Brief{}, eris.Wrap(err, "brief: store")
	}
	log := zap.L().With(zap.String("brief_id", b.ID))
	log.Info("brief: stored")

	if g.publisher != nil {
		pageID, err := g.publisher.Publish(ctx, notion.Page{Title: Subject(now), Date: now, Content: b.Content})
		if err != nil {
			return b, eris.Wrap(err, "brief: publish")
		}
		log.Info("brief: published", zap.String("page_id", pageID))
	}

	if g.sender != nil {
		err := g.sender.Send(ctx, mailer.Message{
			Subject: Subject(now),
			HTML:    HTMLBody(b.Content),
			Text:    b.Content,
		})
		if err != nil {
			return b, eris.Wrap(err, "brief: send email")
		}
		log.Info("brief: emailed")
	}
	return b, nil
}

// NotionPublisher publishes briefs to a Notion database.
type NotionPublisher struct {
	client notion.Client
	dbID   string
}

// NewNotionPublisher creates a NotionPublisher.
func NewNotionPublisher(client notion.Client, dbID string) *NotionPublisher {
	return &NotionPublisher{client: client, dbID: dbID}
}

// Publish implements Publisher.
func (p *NotionPublisher) Publish(ctx context.Context, page notion.Page) (string, error) {
	return notion.PublishPage(ctx, p.client, p.dbID, page)
}
