package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const atomVideoPrefix = "yt:video:"

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses a channel feed into remote items, in feed order. Entries
// without a resolvable video id are dropped.
func (p *Parser) Run(data []byte) ([]RemoteItem, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]RemoteItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		normalized := p.normalizeItem(item)
		if normalized.RemoteID == "" {
			continue
		}
		if normalized.Author == "" && feed.Author != nil {
			normalized.Author = feed.Author.Name
		}
		items = append(items, normalized)
	}

	return items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) RemoteItem {
	normalized := RemoteItem{
		RemoteID:    p.extractRemoteID(item),
		Title:       strings.TrimSpace(item.Title),
		Link:        item.Link,
		Description: cmp.Or(mediaGroupValue(item.Extensions, "description"), item.Description),
		PublishedAt: item.PublishedParsed,
		Author:      p.extractAuthor(item),
	}

	if normalized.PublishedAt == nil {
		normalized.PublishedAt = item.UpdatedParsed
	}
	if normalized.PublishedAt != nil {
		t := normalized.PublishedAt.UTC()
		normalized.PublishedAt = &t
	}

	normalized.ThumbnailURL = mediaGroupAttr(item.Extensions, "thumbnail", "url")
	if normalized.ThumbnailURL == "" && item.Image != nil {
		normalized.ThumbnailURL = item.Image.URL
	}

	if normalized.Link == "" && normalized.RemoteID != "" {
		normalized.Link = "https://www.youtube.com/watch?v=" + normalized.RemoteID
	}

	return normalized
}

// extractRemoteID prefers yt:videoId, then the Atom id, then the watch
// link's v parameter.
func (p *Parser) extractRemoteID(item *gofeed.Item) string {
	if id := extensionValue(item.Extensions, "yt", "videoId"); id != "" {
		return id
	}
	if strings.HasPrefix(item.GUID, atomVideoPrefix) {
		return strings.TrimPrefix(item.GUID, atomVideoPrefix)
	}
	if item.Link != "" {
		if u, err := url.Parse(item.Link); err == nil {
			if v := u.Query().Get("v"); v != "" {
				return v
			}
		}
	}
	return item.GUID
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	for _, author := range item.Authors {
		if author != nil && strings.TrimSpace(author.Name) != "" {
			return strings.TrimSpace(author.Name)
		}
	}
	if item.Author != nil {
		return strings.TrimSpace(item.Author.Name)
	}
	return ""
}

func extensionValue(extensions ext.Extensions, namespace, name string) string {
	values := extensions[namespace][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

func mediaGroupChild(extensions ext.Extensions, name string) *ext.Extension {
	groups := extensions["media"]["group"]
	if len(groups) == 0 {
		return nil
	}
	children := groups[0].Children[name]
	if len(children) == 0 {
		return nil
	}
	return &children[0]
}

func mediaGroupValue(extensions ext.Extensions, name string) string {
	if child := mediaGroupChild(extensions, name); child != nil {
		return strings.TrimSpace(child.Value)
	}
	return ""
}

func mediaGroupAttr(extensions ext.Extensions, name, attr string) string {
	if child := mediaGroupChild(extensions, name); child != nil {
		return child.Attrs[attr]
	}
	return ""
}
