// Package schedule computes the next eligible run instant for a
// recurring job. NextRun is a pure function: identical inputs always
// yield the identical instant, and the result is strictly after now.
package schedule

import (
	"errors"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// ErrInvalidSchedule indicates a malformed recurrence spec.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Frequency is a recurrence interval.
type Frequency string

const (
	Hourly  Frequency = "hourly"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Spec is a recurrence specification: either a frequency with a
// time-of-day anchor, or a raw cron expression. When Cron is set it
// takes precedence over the frequency form.
type Spec struct {
	Frequency Frequency `yaml:"frequency"`
	TimeOfDay string    `yaml:"time"` // "HH:MM", 24-hour clock
	Cron      string    `yaml:"cron,omitempty"`
}

// Validate checks the spec is well-formed without computing anything.
func (s Spec) Validate() error {
	if s.Cron != "" {
		if _, err := cronParser.Parse(s.Cron); err != nil {
			return fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, s.Cron, err)
		}
		return nil
	}
	switch s.Frequency {
	case Hourly, Daily, Weekly, Monthly:
	default:
		return fmt.Errorf("%w: frequency %q", ErrInvalidSchedule, s.Frequency)
	}
	if _, err := time.Parse("15:04", s.TimeOfDay); err != nil {
		return fmt.Errorf("%w: time %q", ErrInvalidSchedule, s.TimeOfDay)
	}
	return nil
}

// NextRun returns the next run instant strictly after now.
//
// For the frequency form the candidate is today at the anchored
// time-of-day in now's location; while the candidate is at or before
// now it advances by one frequency unit (hour, day, 7 days, or one
// calendar month with Go's date normalization).
func NextRun(s Spec, now time.Time) (time.Time, error) {
	if s.Cron != "" {
		sched, err := cronParser.Parse(s.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, s.Cron, err)
		}
		return sched.Next(now), nil
	}

	anchor, err := time.Parse("15:04", s.TimeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q", ErrInvalidSchedule, s.TimeOfDay)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(),
		anchor.Hour(), anchor.Minute(), 0, 0, now.Location())

	// Hourly may need several steps when the anchor lies hours in the
	// past; the other frequencies converge in one.
	for !next.After(now) {
		switch s.Frequency {
		case Hourly:
			next = next.Add(time.Hour)
		case Daily:
			next = next.AddDate(0, 0, 1)
		case Weekly:
			next = next.AddDate(0, 0, 7)
		case Monthly:
			next = next.AddDate(0, 1, 0)
		default:
			return time.Time{}, fmt.Errorf("%w: frequency %q", ErrInvalidSchedule, s.Frequency)
		}
	}
	return next, nil
}
