package util

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUpdateID returns a 26-character ULID. Its 80 random bits keep ids minted in the
// same millisecond distinct, so it fits a control token without truncation.
func NewUpdateID() string {
	t := time.Now().UTC()
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// NewDeliveryID tags one broker delivery or HTTP request in logs.
func NewDeliveryID() string {
	return uuid.NewString()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
