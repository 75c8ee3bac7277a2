package feed

import (
	"cmp"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/bthode/engawa/app/database"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Evaluate accepts the video only if every filter accepts it. An empty
// filter list accepts everything.
func (f *Filterer) Evaluate(video *database.Video, filters []database.Filter) bool {
	return f.Reason(video, filters) == ""
}

// Reason describes the first filter that rejects the video, or returns
// an empty string when the video is accepted.
func (f *Filterer) Reason(video *database.Video, filters []database.Filter) string {
	fold := cases.Fold()
	for _, filter := range filters {
		if !f.matches(video, filter, fold) {
			return f.describe(video, filter)
		}
	}
	return ""
}

func (f *Filterer) matches(video *database.Video, filter database.Filter, fold cases.Caser) bool {
	switch filter.Type {
	case database.FilterDuration:
		if video.DurationSeconds == nil {
			return false
		}
		return compare(cmp.Compare(*video.DurationSeconds, filter.ThresholdSeconds), filter.Operator)
	case database.FilterTitleContains:
		return containsFold(fold, video.Title, filter.Keyword)
	case database.FilterDescriptionContains:
		return containsFold(fold, video.Description, filter.Keyword)
	case database.FilterPublishedAfter:
		if video.PublishedAt == nil || filter.ThresholdDate == nil {
			return false
		}
		return compare(video.PublishedAt.Compare(*filter.ThresholdDate), filter.Operator)
	default:
		panic(fmt.Sprintf("feed: unknown filter type %q", filter.Type))
	}
}

func (f *Filterer) describe(video *database.Video, filter database.Filter) string {
	switch filter.Type {
	case database.FilterDuration:
		if video.DurationSeconds == nil {
			return "Rejected by duration filter: duration unknown"
		}
		return fmt.Sprintf("Rejected by duration filter: %ds is not %s %ds", *video.DurationSeconds, filter.Operator, filter.ThresholdSeconds)
	case database.FilterTitleContains:
		return fmt.Sprintf("Rejected by title filter: does not contain '%s'", filter.Keyword)
	case database.FilterDescriptionContains:
		return fmt.Sprintf("Rejected by description filter: does not contain '%s'", filter.Keyword)
	default:
		if video.PublishedAt == nil || filter.ThresholdDate == nil {
			return "Rejected by published_after filter: publish date unknown"
		}
		return fmt.Sprintf("Rejected by published_after filter: %s is not %s %s",
			video.PublishedAt.Format("2006-01-02"), filter.Operator, filter.ThresholdDate.Format("2006-01-02"))
	}
}

// compare applies op to the result of a three-way comparison.
func compare(c int, op database.Operator) bool {
	switch op {
	case database.OpLess:
		return c < 0
	case database.OpLessEqual:
		return c <= 0
	case database.OpEqual:
		return c == 0
	case database.OpNotEqual:
		return c != 0
	case database.OpGreaterEqual:
		return c >= 0
	case database.OpGreater:
		return c > 0
	default:
		panic(fmt.Sprintf("feed: unknown operator %q", op))
	}
}

func containsFold(fold cases.Caser, value, keyword string) bool {
	if value == "" || strings.TrimSpace(keyword) == "" {
		return false
	}
	return strings.Contains(fold.String(value), fold.String(keyword))
}
