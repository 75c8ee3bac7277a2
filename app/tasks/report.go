package tasks

import (
	"time"

	"github.com/bthode/engawa/app/library"
)

type Outcome string

const (
	OutcomeSynced  Outcome = "synced"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// SubscriptionReport summarizes one unit of work
type SubscriptionReport struct {
	SubscriptionID   int64         `json:"subscription_id"`
	Name             string        `json:"name"`
	Outcome          Outcome       `json:"outcome"`
	Error            string        `json:"error,omitempty"`
	New              int           `json:"new"`
	Excluded         int           `json:"excluded"`
	Filtered         int           `json:"filtered"`
	Downloaded       int           `json:"downloaded"`
	Deleted          int           `json:"deleted"`
	Failed           int           `json:"failed"`
	Retried          int           `json:"retried"`
	Mutations        int           `json:"mutations"`
	DownloadsSkipped bool          `json:"downloads_skipped,omitempty"`
	Duration         time.Duration `json:"duration"`

	target       library.Target
	removedFiles []string
}

// CycleReport summarizes one pass over all due subscriptions
type CycleReport struct {
	ID               string               `json:"id"`
	StartedAt        time.Time            `json:"started_at"`
	Duration         time.Duration        `json:"duration"`
	Subscriptions    []SubscriptionReport `json:"subscriptions"`
	LibraryRefreshed bool                 `json:"library_refreshed"`
	Error            string               `json:"error,omitempty"`
}

func (r *CycleReport) Count(outcome Outcome) int {
	n := 0
	for _, s := range r.Subscriptions {
		if s.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r *CycleReport) Downloaded() int {
	n := 0
	for _, s := range r.Subscriptions {
		n += s.Downloaded
	}
	return n
}
