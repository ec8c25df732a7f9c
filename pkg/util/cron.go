package util

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Five-field expressions (minute hour dom month dow), the format the
// reminder schedule is configured in.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpr rejects malformed schedule expressions before the
// worker starts sleeping on them.
func ValidateCronExpr(expr string) error {
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// NextCronTime returns the first occurrence of the schedule strictly
// after 'from', evaluated in UTC.
func NextCronTime(expr string, from time.Time) (time.Time, error) {
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule.Next(from.UTC()), nil
}
