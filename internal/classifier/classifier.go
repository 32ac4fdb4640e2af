// Package classifier maps the outcome of a backend call to an error kind.
//
// The backend does not reliably separate success from failure: a call can
// return normally with a string that itself describes an error. Classify
// therefore inspects both failures and successful payloads with the same
// patterns.
package classifier

import (
	"context"
	"errors"
	"regexp"

	"github.com/RichardoC/padchat/internal/models"
)

var (
	timeoutPattern = regexp.MustCompile(`(?i)timeout|timed out|time-out|time limit exceeded`)
	busyPattern    = regexp.MustCompile(`(?i)\bbusy\b|overloaded|too many requests`)
	genericPattern = regexp.MustCompile(`(?i)error|exception|\bfailed\b`)
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
)

// Outcome is how a backend call settled: a returned string or an error.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Err  error
}

func Succeeded(text string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Text: text}
}

func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Err: err}
}

// Classify is pure: the same outcome always yields the same kind.
func Classify(o Outcome) models.ErrorKind {
	if o.Kind == OutcomeFailure {
		return classifyFailure(o.Err)
	}

	switch {
	case timeoutPattern.MatchString(o.Text):
		return models.ErrorKindTimeout
	case busyPattern.MatchString(o.Text):
		return models.ErrorKindBusy
	case genericPattern.MatchString(o.Text):
		return models.ErrorKindGeneric
	default:
		return models.ErrorKindNone
	}
}

func classifyFailure(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindGeneric
	}
	if errors.Is(err, models.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTimeout
	}
	if timeoutPattern.MatchString(err.Error()) {
		return models.ErrorKindTimeout
	}
	return models.ErrorKindGeneric
}

// UserMessage is the text shown in place of an answer for a failed attempt.
func UserMessage(kind models.ErrorKind) string {
	switch kind {
	case models.ErrorKindTimeout:
		return "The assistant took too long to answer. You can retry your message."
	case models.ErrorKindBusy:
		return "The assistant is busy right now. Please wait a moment and retry."
	default:
		return "Sorry, something went wrong while getting a response. You can retry your message."
	}
}

// Err returns the sentinel matching kind, or nil for ErrorKindNone.
func Err(kind models.ErrorKind) error {
	switch kind {
	case models.ErrorKindNone:
		return nil
	case models.ErrorKindTimeout:
		return models.ErrTimeout
	case models.ErrorKindBusy:
		return models.ErrBusy
	default:
		return models.ErrGeneric
	}
}
