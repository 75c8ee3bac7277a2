package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath           string
	SubscriptionsDir string

	// HTTP surface
	Port         string
	APIAccessKey string

	// Synchronization
	UpdateWindow    time.Duration
	TickInterval    time.Duration
	MetadataWorkers int
	MaxRetries      int
	FeedTimeout     time.Duration
	MetadataTimeout time.Duration
	DownloadTimeout time.Duration
	RefreshTimeout  time.Duration
	MinFreeSpace    uint64

	// Downloader
	YtdlpPath      string
	DownloadFormat string

	// Media server
	MediaServer    string
	PlexURL        string
	PlexToken      string
	JellyfinURL    string
	JellyfinAPIKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	LogFile   string
	Version   string

	// Run modes
	Once   bool
	Status bool
}
