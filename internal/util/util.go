package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

func NewSessionID() string {
	// ULID is sortable (nice for log correlation and dashboards)
	t := time.Now().UTC()
	return "sess_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewSubscriptionID() string {
	t := time.Now().UTC()
	return "sub_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
