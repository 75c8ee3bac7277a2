package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/bthode/engawa/app/metadata"
)

type Destination struct {
	Path           string // Filesystem directory downloads are written to
	LibrarySection string // Media server section key, empty means refresh everything
}

type Subscription struct {
	ID           int64
	Name         string // Derived from the subscription config file name
	URL          string // Channel/source address
	FeedURL      string
	Title        string
	Description  string
	Destination  Destination
	Filters      []Filter
	Retention    RetentionPolicy
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Video struct {
	ID                   int64
	RemoteID             string
	SubscriptionID       int64
	Title                string
	Author               string
	Description          string
	Link                 string
	PublishedAt          *time.Time
	DurationSeconds      *int
	ThumbnailURL         *string
	Status               VideoStatus
	MetadataError        *metadata.ErrorKind
	MetadataErrorMessage string
	RetryCount           int
	FilePath             string // Saved path once downloaded
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Transition moves the video to the given status, rejecting edges the
// lifecycle does not allow.
func (v *Video) Transition(to VideoStatus) error {
	if !v.Status.CanTransitionTo(to) {
		return fmt.Errorf("video %s: invalid status transition %s -> %s", v.RemoteID, v.Status, to)
	}
	v.Status = to
	return nil
}

type FilterType string

const (
	FilterDuration            FilterType = "duration"
	FilterTitleContains       FilterType = "title_contains"
	FilterDescriptionContains FilterType = "description_contains"
	FilterPublishedAfter      FilterType = "published_after"
)

type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreaterEqual Operator = ">="
	OpGreater      Operator = ">"
)

func (o Operator) Valid() bool {
	switch o {
	case OpLess, OpLessEqual, OpEqual, OpNotEqual, OpGreaterEqual, OpGreater:
		return true
	}
	return false
}

type Filter struct {
	ID               int64
	SubscriptionID   int64
	Position         int
	Type             FilterType
	Operator         Operator
	ThresholdSeconds int
	ThresholdDate    *time.Time
	Keyword          string
}

func (f Filter) Validate() error {
	switch f.Type {
	case FilterDuration:
		if !f.Operator.Valid() {
			return fmt.Errorf("duration filter: invalid operator %q", f.Operator)
		}
		if f.ThresholdSeconds < 0 {
			return fmt.Errorf("duration filter: threshold must be non-negative")
		}
	case FilterTitleContains, FilterDescriptionContains:
		if strings.TrimSpace(f.Keyword) == "" {
			return fmt.Errorf("%s filter: keyword is required", f.Type)
		}
	case FilterPublishedAfter:
		if !f.Operator.Valid() {
			return fmt.Errorf("published_after filter: invalid operator %q", f.Operator)
		}
		if f.ThresholdDate == nil {
			return fmt.Errorf("published_after filter: date is required")
		}
	default:
		return fmt.Errorf("unknown filter type %q", f.Type)
	}
	return nil
}

type RetentionType string

const (
	RetentionCount        RetentionType = "count"
	RetentionDateSince    RetentionType = "date_since"
	RetentionRollingDelta RetentionType = "rolling_delta"
)

// Delta is a calendar offset applied with time.AddDate.
type Delta struct {
	Days   int
	Weeks  int
	Months int
	Years  int
}

func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Before returns the instant the delta reaches back to from now.
func (d Delta) Before(now time.Time) time.Time {
	return now.AddDate(-d.Years, -d.Months, -(d.Days + 7*d.Weeks))
}

type RetentionPolicy struct {
	ID             int64
	SubscriptionID int64
	Type           RetentionType
	VideoCount     int
	CutoffDate     *time.Time
	Delta          Delta
}

func (p RetentionPolicy) Validate() error {
	switch p.Type {
	case RetentionCount:
		if p.VideoCount < 0 {
			return fmt.Errorf("count retention: video_count must be non-negative")
		}
	case RetentionDateSince:
		if p.CutoffDate == nil {
			return fmt.Errorf("date_since retention: cutoff_date is required")
		}
	case RetentionRollingDelta:
		if p.Delta.Days < 0 || p.Delta.Weeks < 0 || p.Delta.Months < 0 || p.Delta.Years < 0 {
			return fmt.Errorf("rolling_delta retention: delta fields must be non-negative")
		}
		if p.Delta.IsZero() {
			return fmt.Errorf("rolling_delta retention: delta is required")
		}
	default:
		return fmt.Errorf("unknown retention type %q", p.Type)
	}
	return nil
}

// StatusCounts maps each status to the number of videos in it.
type StatusCounts map[VideoStatus]int

func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
