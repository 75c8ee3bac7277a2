package feed

import (
	"fmt"
	"slices"
	"time"

	"github.com/bthode/engawa/app/database"
)

type Retention struct{}

func NewRetention() *Retention {
	return &Retention{}
}

// Select returns the downloaded videos the policy retires. Videos in any
// other status are never selected.
func (r *Retention) Select(videos []*database.Video, policy database.RetentionPolicy, now time.Time) []*database.Video {
	downloaded := make([]*database.Video, 0, len(videos))
	for _, v := range videos {
		if v.Status == database.StatusDownloaded {
			downloaded = append(downloaded, v)
		}
	}
	if len(downloaded) == 0 {
		return nil
	}

	switch policy.Type {
	case database.RetentionCount:
		return r.beyondCount(downloaded, policy.VideoCount)
	case database.RetentionDateSince:
		if policy.CutoffDate == nil {
			return nil
		}
		return publishedBefore(downloaded, *policy.CutoffDate)
	case database.RetentionRollingDelta:
		if policy.Delta.IsZero() {
			return nil
		}
		return publishedBefore(downloaded, policy.Delta.Before(now))
	default:
		panic(fmt.Sprintf("feed: unknown retention type %q", policy.Type))
	}
}

// beyondCount keeps the newest keep videos. Unknown publish dates sort
// after every known date and ties fall back to the remote id.
func (r *Retention) beyondCount(videos []*database.Video, keep int) []*database.Video {
	if keep < 0 {
		keep = 0
	}
	if len(videos) <= keep {
		return nil
	}

	sorted := slices.Clone(videos)
	slices.SortStableFunc(sorted, func(a, b *database.Video) int {
		switch {
		case a.PublishedAt == nil && b.PublishedAt == nil:
		case a.PublishedAt == nil:
			return 1
		case b.PublishedAt == nil:
			return -1
		default:
			if c := b.PublishedAt.Compare(*a.PublishedAt); c != 0 {
				return c
			}
		}
		switch {
		case a.RemoteID < b.RemoteID:
			return -1
		case a.RemoteID > b.RemoteID:
			return 1
		}
		return 0
	})
	return sorted[keep:]
}

func publishedBefore(videos []*database.Video, cutoff time.Time) []*database.Video {
	var selected []*database.Video
	for _, v := range videos {
		if v.PublishedAt != nil && v.PublishedAt.Before(cutoff) {
			selected = append(selected, v)
		}
	}
	return selected
}
