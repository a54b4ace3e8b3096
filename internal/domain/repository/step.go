package repository

import "time"

// Step is the spacing between timestamps of a backfill job.
type Step string

const (
	StepDaily   Step = "1d"
	StepWeekly  Step = "1w"
	StepMonthly Step = "1mo"
)

// IsValidStep returns true if s is a supported step.
func IsValidStep(s Step) bool {
	switch s {
	case StepDaily, StepWeekly, StepMonthly:
		return true
	default:
		return false
	}
}

// DefaultStep returns the default step.
func DefaultStep() Step { return StepDaily }

// NormalizeStep converts a raw string to a valid step (or default).
func NormalizeStep(s string) Step {
	if s == "" {
		return DefaultStep()
	}
	st := Step(s)
	if IsValidStep(st) {
		return st
	}
	return DefaultStep()
}

// Next returns t advanced by one step.
func (s Step) Next(t time.Time) time.Time {
	switch s {
	case StepWeekly:
		return t.AddDate(0, 0, 7)
	case StepMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Timestamps lists from, from+step, ... up to and including to.
func (s Step) Timestamps(from, to time.Time) []time.Time {
	var out []time.Time
	for t := from; !t.After(to); t = s.Next(t) {
		out = append(out, t)
	}
	return out
}
