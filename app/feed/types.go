package feed

import (
	"time"
)

// Feed processing types

// RemoteItem is one entry of a subscription's feed
type RemoteItem struct {
	RemoteID     string
	Title        string
	Author       string
	Link         string
	Description  string
	ThumbnailURL string
	PublishedAt  *time.Time
}

// Configuration types

type Config struct {
	Name        string            // Derived from filename (without .yml extension)
	URL         string            `yaml:"url"`
	ChannelID   string            `yaml:"channel_id"`
	FeedURL     string            `yaml:"feed_url"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Destination ConfigDestination `yaml:"destination"`
	Filters     []ConfigFilter    `yaml:"filters"`
	Retention   ConfigRetention   `yaml:"retention"`
}

type ConfigDestination struct {
	Path           string `yaml:"path"`
	LibrarySection string `yaml:"library_section"` // Plex section key
}

type ConfigFilter struct {
	Type     string `yaml:"type"`
	Operator string `yaml:"operator"`
	Seconds  int    `yaml:"seconds"`
	Date     string `yaml:"date"`
	Keyword  string `yaml:"keyword"`
}

type ConfigRetention struct {
	Type       string      `yaml:"type"`
	VideoCount int         `yaml:"video_count"`
	CutoffDate string      `yaml:"cutoff_date"`
	Delta      ConfigDelta `yaml:"delta"`
}

type ConfigDelta struct {
	Days   int `yaml:"days"`
	Weeks  int `yaml:"weeks"`
	Months int `yaml:"months"`
	Years  int `yaml:"years"`
}
