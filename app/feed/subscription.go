package feed

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bthode/engawa/app/database"
)

const channelFeedURL = "https://www.youtube.com/feeds/videos.xml?channel_id="

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

// ResolvedFeedURL returns the explicit feed_url or the channel feed
func (c *Config) ResolvedFeedURL() string {
	if c.FeedURL != "" {
		return c.FeedURL
	}
	if c.ChannelID != "" {
		return channelFeedURL + url.QueryEscape(c.ChannelID)
	}
	return ""
}

// ToSubscription converts the file configuration into the stored model
func (c *Config) ToSubscription() (*database.Subscription, error) {
	sub := &database.Subscription{
		Name:        c.Name,
		URL:         c.URL,
		FeedURL:     c.ResolvedFeedURL(),
		Title:       c.Title,
		Description: c.Description,
		Destination: database.Destination{
			Path:           c.Destination.Path,
			LibrarySection: c.Destination.LibrarySection,
		},
	}

	for i, cf := range c.Filters {
		f := database.Filter{
			Position:         i,
			Type:             database.FilterType(cf.Type),
			Operator:         database.Operator(cf.Operator),
			ThresholdSeconds: cf.Seconds,
			Keyword:          cf.Keyword,
		}
		if cf.Date != "" {
			t, err := parseDate(cf.Date)
			if err != nil {
				return nil, fmt.Errorf("filter at index %d: %w", i, err)
			}
			f.ThresholdDate = &t
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("filter at index %d: %w", i, err)
		}
		sub.Filters = append(sub.Filters, f)
	}

	r := c.Retention
	policy := database.RetentionPolicy{
		Type:       database.RetentionType(r.Type),
		VideoCount: r.VideoCount,
		Delta: database.Delta{
			Days:   r.Delta.Days,
			Weeks:  r.Delta.Weeks,
			Months: r.Delta.Months,
			Years:  r.Delta.Years,
		},
	}
	if r.CutoffDate != "" {
		t, err := parseDate(r.CutoffDate)
		if err != nil {
			return nil, fmt.Errorf("retention: %w", err)
		}
		policy.CutoffDate = &t
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("retention: %w", err)
	}
	sub.Retention = policy

	return sub, nil
}
