package storage

import (
	"fmt"
	"time"
)

const (
	// DefaultIntervalSeconds is the poll cadence before an admin changes it.
	DefaultIntervalSeconds = 300

	// SeenRetentionCap bounds the seen-run history; the oldest records are
	// evicted once the cap is exceeded.
	SeenRetentionCap = 10000
)

// Settings is the single runtime configuration record for the deployment.
type Settings struct {
	ChannelID       string
	RoleID          string
	Games           []string
	IntervalSeconds int
	UpdatedAt       time.Time
}

// DefaultSettings returns the configuration created on first run.
func DefaultSettings() Settings {
	return Settings{
		Games:           []string{"Destiny 2"},
		IntervalSeconds: DefaultIntervalSeconds,
	}
}

// Interval returns the poll cadence as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// SeenRun records a run that has been announced. Records are never
// mutated; they are removed only by reset or retention eviction.
type SeenRun struct {
	RunID       string
	Game        string
	Player      string
	Category    string
	Weblink     string
	AnnouncedAt time.Time
}

// StorageError indicates the persistence medium failed. Callers must not
// treat it as fatal: the affected run is simply retried next cycle.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
