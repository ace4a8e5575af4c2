package saga

import (
	"time"
)

const (
	defaultPollInterval    time.Duration = time.Second * 3
	defaultInitialDelay    time.Duration = time.Second * 10
	defaultCleanupSchedule string        = "@midnight"
)

// TxKey is the context key under which implementations expect the ambient
// business transaction.
type TxKey any

// Settings holds the scheduling configuration of one saga leg. The values
// are provided by the surrounding service configuration; zero values fall
// back to defaults.
type Settings struct {
	PollInterval    time.Duration // interval between outbox table pollings
	InitialDelay    time.Duration // delay before the first polling after Start
	CleanupSchedule string        // cron spec for the terminal-row cleaner
}

// validateSettings validates the established settings and sets defaults
// if needed.
func validateSettings(s *Settings) {
	if s.PollInterval <= 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.InitialDelay < 0 {
		s.InitialDelay = defaultInitialDelay
	}
	if s.CleanupSchedule == "" {
		s.CleanupSchedule = defaultCleanupSchedule
	}
}
