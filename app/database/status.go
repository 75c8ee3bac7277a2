package database

import "slices"

type VideoStatus string

const (
	StatusPending           VideoStatus = "pending"
	StatusObtainingMetadata VideoStatus = "obtaining_metadata"
	StatusObtainedMetadata  VideoStatus = "obtained_metadata"
	StatusPendingDownload   VideoStatus = "pending_download"
	StatusFiltered          VideoStatus = "filtered"
	StatusDownloading       VideoStatus = "downloading"
	StatusDownloaded        VideoStatus = "downloaded"
	StatusDeleted           VideoStatus = "deleted"
	StatusExcluded          VideoStatus = "excluded"
	StatusFailed            VideoStatus = "failed"
	StatusCopyrightStrike   VideoStatus = "copyright_strike"
)

var transitions = map[VideoStatus][]VideoStatus{
	StatusPending:           {StatusObtainingMetadata, StatusObtainedMetadata, StatusExcluded, StatusCopyrightStrike, StatusFailed},
	StatusObtainingMetadata: {StatusObtainedMetadata, StatusExcluded, StatusCopyrightStrike, StatusFailed},
	StatusObtainedMetadata:  {StatusPendingDownload, StatusFiltered},
	StatusPendingDownload:   {StatusDownloading, StatusFailed},
	StatusDownloading:       {StatusDownloaded, StatusFailed},
	StatusDownloaded:        {StatusDeleted},
	StatusFailed:            {StatusPending, StatusPendingDownload},
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []VideoStatus {
	return []VideoStatus{
		StatusPending,
		StatusObtainingMetadata,
		StatusObtainedMetadata,
		StatusPendingDownload,
		StatusFiltered,
		StatusDownloading,
		StatusDownloaded,
		StatusDeleted,
		StatusExcluded,
		StatusFailed,
		StatusCopyrightStrike,
	}
}

func (s VideoStatus) Valid() bool {
	return slices.Contains(AllStatuses(), s)
}

func (s VideoStatus) CanTransitionTo(to VideoStatus) bool {
	return slices.Contains(transitions[s], to)
}

// IsTerminal reports whether no transition leaves the status.
func (s VideoStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}
