package metadata

import (
	"context"
	"time"
)

// VideoMetadata is what an extractor reports for one video
type VideoMetadata struct {
	Title           string
	Uploader        string
	Description     string
	ThumbnailURL    string
	UploadDate      *time.Time
	DurationSeconds *int // nil when the extractor reports no duration
}

// Result holds either Metadata or Err for a single link
type Result struct {
	Link     string
	Metadata *VideoMetadata
	Err      *Error
}

func (r Result) OK() bool {
	return r.Err == nil && r.Metadata != nil
}

// Extractor fetches metadata for a single link
type Extractor interface {
	Extract(ctx context.Context, link string) (*VideoMetadata, error)
}
