package domain

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// Terminal reports whether reaching s ends the correlation lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether a context at from may move to to.
// Repeating a non-terminal status is a progress report and is allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateContext ties an outstanding update notification to the chat message it produced.
type UpdateContext struct {
	UpdateID        string
	UserID          string
	ChatID          int64
	GameID          string
	AppID           string
	GameName        string
	AppName         string
	MessageID       int64
	Status          Status
	OriginalMessage string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AppendHistory adds fragment below the message text. History only grows.
func AppendHistory(text, fragment string) string {
	if fragment == "" {
		return text
	}
	return text + "\n\n" + fragment
}

type ParseMode string

const (
	ParseModePlain    ParseMode = ""
	ParseModeMarkdown ParseMode = "Markdown"
	ParseModeHTML     ParseMode = "HTML"
)

// Control is the single inline button attached to a notification.
type Control struct {
	Label string
	Token string
}

// ControlTokenMaxBytes is the platform limit for callback data.
const ControlTokenMaxBytes = 64

var (
	ErrUnknownStatus = errors.New("unknown update status")
	ErrMissingFields = errors.New("missing required fields")

	ErrControlTooLong = errors.New("control token exceeds 64 bytes")
)
