package api

import (
	"github.com/bthode/engawa/app/database"
	"github.com/bthode/engawa/app/tasks"
)

type Handler struct {
	subRepo   database.SubscriptionRepository
	videoRepo database.VideoRepository
	scheduler tasks.SchedulerInterface
	version   string
}

type subscriptionInfo struct {
	Name         string                `json:"name"`
	Title        string                `json:"title"`
	URL          string                `json:"url"`
	FeedURL      string                `json:"feed_url"`
	Destination  string                `json:"destination"`
	Filters      int                   `json:"filters"`
	Retention    string                `json:"retention"`
	LastSyncedAt *string               `json:"last_synced_at"`
	Videos       database.StatusCounts `json:"videos"`
}

type videoInfo struct {
	RemoteID        string  `json:"remote_id"`
	Title           string  `json:"title"`
	Link            string  `json:"link"`
	PublishedAt     *string `json:"published_at"`
	DurationSeconds *int    `json:"duration_seconds"`
	Status          string  `json:"status"`
	MetadataError   *string `json:"metadata_error,omitempty"`
	RetryCount      int     `json:"retry_count"`
	FilePath        string  `json:"file_path,omitempty"`
}
