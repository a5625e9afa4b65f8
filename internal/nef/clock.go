package nef

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces time-ordered UUIDv7 record ids. Two records created
// in the same millisecond still get distinct ids.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// FileTimestamp formats t for use inside file names: ISO-8601 in UTC with
// millisecond precision and colons replaced by dashes.
func FileTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15-04-05.000Z")
}
