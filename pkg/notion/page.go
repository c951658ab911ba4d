package notion

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// maxRichText is Notion's per-block text limit.
const maxRichText = 2000

// Page is a titled text page for a database with Name and Date columns.
type Page struct {
	Title   string
	Date    time.Time
	Content string
}

// PublishPage creates p as a row of database dbID and returns the new page ID.
// Lines starting with "- " or "• " become bulleted list items; other
// non-blank lines become paragraphs.
func PublishPage(ctx context.Context, c Client, dbID string, p Page) (string, error) {
	if dbID == "" {
		return "", eris.New("notion: database id is required")
	}
	date := notionapi.Date(p.Date)
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: richText(p.Title),
			},
			"Date": notionapi.DateProperty{
				Type: notionapi.PropertyTypeDate,
				Date: &notionapi.DateObject{Start: &date},
			},
		},
		Children: contentBlocks(p.Content),
	}

	page, err := c.CreatePage(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "notion: publish page")
	}
	return string(page.ID), nil
}

func contentBlocks(content string) []notionapi.Block {
	var blocks []notionapi.Block
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if item, ok := bullet(line); ok {
			blocks = append(blocks, notionapi.BulletedListItemBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeBulletedListItem,
				},
				BulletedListItem: notionapi.ListItem{RichText: richText(item)},
			})
			continue
		}
		blocks = append(blocks, notionapi.ParagraphBlock{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeParagraph,
			},
			Paragraph: notionapi.Paragraph{RichText: richText(line)},
		})
	}
	return blocks
}

func bullet(line string) (string, bool) {
	for _, prefix := range []string{"- ", "• ", "* "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return "", false
}

// richText splits s into chunks that fit Notion's text limit.
func richText(s string) []notionapi.RichText {
	var out []notionapi.RichText
	for s != "" {
		n := len(s)
		if utf8.RuneCountInString(s) > maxRichText {
			n = len(string([]rune(s)[:maxRichText]))
		}
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s[:n]},
		})
		s = s[n:]
	}
	return out
}
