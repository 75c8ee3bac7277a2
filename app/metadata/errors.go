package metadata

import (
	"fmt"
	"strings"
)

// ErrorKind classifies why metadata could not be obtained for a video
type ErrorKind string

const (
	LiveEventNotStarted ErrorKind = "live_event_not_started"
	Unavailable         ErrorKind = "unavailable"
	AgeRestricted       ErrorKind = "age_restricted"
	CopyrightStrike     ErrorKind = "copyright_strike"
	Unknown             ErrorKind = "unknown"
)

func (k ErrorKind) Valid() bool {
	switch k {
	case LiveEventNotStarted, Unavailable, AgeRestricted, CopyrightStrike, Unknown:
		return true
	}
	return false
}

// Retryable reports whether a later attempt may succeed.
func (k ErrorKind) Retryable() bool {
	return k == Unknown
}

// Error is a classified metadata failure for a single link
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Phrases are matched in order; copyright notices also contain the
// generic unavailable wording so they are checked first.
var classifiers = []struct {
	phrase string
	kind   ErrorKind
}{
	{"This live event will begin", LiveEventNotStarted},
	{"Premieres in", LiveEventNotStarted},
	{"This video contains content from", CopyrightStrike},
	{"copyright grounds", CopyrightStrike},
	{"inappropriate for some users", AgeRestricted},
	{"Sign in to confirm your age", AgeRestricted},
	{"This video is unavailable", Unavailable},
	{"Video unavailable", Unavailable},
	{"Private video", Unavailable},
}

// Classify maps an extractor error message to an ErrorKind
func Classify(message string) ErrorKind {
	for _, c := range classifiers {
		if strings.Contains(message, c.phrase) {
			return c.kind
		}
	}
	return Unknown
}

// NewError builds a classified Error from an extractor message
func NewError(message string) *Error {
	return &Error{Kind: Classify(message), Message: strings.TrimSpace(message)}
}
