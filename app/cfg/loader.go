package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath           string `long:"db-path" env:"DB_PATH" default:"./data/engawa.db" description:"SQLite database file"`
	SubscriptionsDir string `long:"subscriptions-dir" env:"SUBSCRIPTIONS_DIR" default:"./subscriptions" description:"Directory containing subscription configuration files"`

	// HTTP surface
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Synchronization
	UpdateWindow    time.Duration `long:"update-window" env:"UPDATE_WINDOW" default:"15m" description:"Minimum time between syncs of one subscription"`
	TickInterval    time.Duration `long:"tick-interval" env:"TICK_INTERVAL" default:"10s" description:"Scheduler tick interval"`
	MetadataWorkers int           `long:"metadata-workers" env:"METADATA_WORKERS" default:"3" description:"Concurrent metadata fetches"`
	MaxRetries      int           `long:"max-retries" env:"MAX_RETRIES" default:"5" description:"Retry cap for failed videos (0 retries forever)"`
	FeedTimeout     time.Duration `long:"feed-timeout" env:"FEED_TIMEOUT" default:"30s" description:"Feed request timeout"`
	MetadataTimeout time.Duration `long:"metadata-timeout" env:"METADATA_TIMEOUT" default:"2m" description:"Per-video metadata timeout"`
	DownloadTimeout time.Duration `long:"download-timeout" env:"DOWNLOAD_TIMEOUT" default:"2h" description:"Per-video download timeout"`
	RefreshTimeout  time.Duration `long:"refresh-timeout" env:"REFRESH_TIMEOUT" default:"15s" description:"Media library refresh timeout"`
	MinFreeSpace    string        `long:"min-free-space" env:"MIN_FREE_SPACE" default:"1GiB" description:"Free space required on a destination before downloading (e.g., 500MB, 2GiB)"`

	// Downloader
	YtdlpPath      string `long:"ytdlp-path" env:"YTDLP_PATH" default:"yt-dlp" description:"yt-dlp executable"`
	DownloadFormat string `long:"download-format" env:"DOWNLOAD_FORMAT" default:"best" description:"yt-dlp format selector"`

	// Media server
	MediaServer    string `long:"media-server" env:"MEDIA_SERVER" default:"none" choice:"none" choice:"plex" choice:"jellyfin" description:"Media server to refresh after downloads"`
	PlexURL        string `long:"plex-url" env:"PLEX_URL" description:"Plex base URL"`
	PlexToken      string `long:"plex-token" env:"PLEX_TOKEN" description:"Plex token"`
	JellyfinURL    string `long:"jellyfin-url" env:"JELLYFIN_URL" description:"Jellyfin base URL"`
	JellyfinAPIKey string `long:"jellyfin-api-key" env:"JELLYFIN_API_KEY" description:"Jellyfin API key"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"engawa/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFile   string `long:"log-file" env:"LOG_FILE" description:"Also write JSON logs to this file, rotated"`

	// Run modes
	Once   bool `long:"once" description:"Run a single synchronization cycle and exit"`
	Status bool `long:"status" description:"Print subscription status and exit"`
}

var globalCfg *Cfg

// Load parses the command line and environment. It returns nil, nil when
// help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	minFree, err := humanize.ParseBytes(raw.MinFreeSpace)
	if err != nil {
		return nil, fmt.Errorf("invalid min-free-space %q: %w", raw.MinFreeSpace, err)
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		SubscriptionsDir: raw.SubscriptionsDir,
		Port:             raw.Port,
		APIAccessKey:     raw.APIAccessKey,
		UpdateWindow:     raw.UpdateWindow,
		TickInterval:     raw.TickInterval,
		MetadataWorkers:  raw.MetadataWorkers,
		MaxRetries:       raw.MaxRetries,
		FeedTimeout:      raw.FeedTimeout,
		MetadataTimeout:  raw.MetadataTimeout,
		DownloadTimeout:  raw.DownloadTimeout,
		RefreshTimeout:   raw.RefreshTimeout,
		MinFreeSpace:     minFree,
		YtdlpPath:        raw.YtdlpPath,
		DownloadFormat:   raw.DownloadFormat,
		MediaServer:      raw.MediaServer,
		PlexURL:          raw.PlexURL,
		PlexToken:        raw.PlexToken,
		JellyfinURL:      raw.JellyfinURL,
		JellyfinAPIKey:   raw.JellyfinAPIKey,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		LogFile:          raw.LogFile,
		Version:          GetVersion(),
		Once:             raw.Once,
		Status:           raw.Status,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func (c *Cfg) validate() error {
	if c.MetadataWorkers < 1 {
		return fmt.Errorf("metadata-workers must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be non-negative")
	}
	switch c.MediaServer {
	case "plex":
		if c.PlexURL == "" || c.PlexToken == "" {
			return fmt.Errorf("plex requires plex-url and plex-token")
		}
	case "jellyfin":
		if c.JellyfinURL == "" || c.JellyfinAPIKey == "" {
			return fmt.Errorf("jellyfin requires jellyfin-url and jellyfin-api-key")
		}
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
