package intent

import (
	"time"
)

type Coordination int

const (
	Single Coordination = iota
	Sequential
	Parallel
	Conditional
	Temporal
)

func (c Coordination) String() string {
	switch c {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	case Conditional:
		return "conditional"
	case Temporal:
		return "temporal"
	}
	return "single"
}

type Relation int

const (
	After Relation = iota
	In
	Before
	At
)

func (r Relation) String() string {
	switch r {
	case In:
		return "in"
	case Before:
		return "before"
	case At:
		return "at"
	}
	return "after"
}

// Schedulable reports whether the relation delays the action by a
// duration.
func (r Relation) Schedulable() bool { return r == After || r == In }

type TemporalModifier struct {
	Relation Relation
	Duration time.Duration // zero when not given
	At       *TimeOfDay
	Raw      string
}

// Delay is the wait before the action relative to now, or zero when the
// modifier does not schedule.
func (m TemporalModifier) Delay(now time.Time) time.Duration {
	if !m.Relation.Schedulable() {
		return 0
	}
	if m.Duration > 0 {
		return m.Duration
	}
	if m.At != nil {
		return m.At.Next(now).Sub(now)
	}
	return 0
}

type Segment struct {
	Text      string
	Temporal  *TemporalModifier
	Condition string
	Result    Classification
}

type MultiIntent struct {
	Original     string
	Coordination Coordination
	Segments     []Segment
}

func (m MultiIntent) IsMulti() bool { return len(m.Segments) > 1 }

// ClockDependent reports whether the parse was resolved against the
// clock: an absolute time modifier or a date such as "tomorrow". Such
// parses and their plans go stale and must not be reused.
func (m MultiIntent) ClockDependent() bool {
	for _, s := range m.Segments {
		if s.Temporal != nil && s.Temporal.At != nil {
			return true
		}
		for _, e := range s.Result.Command.Entities {
			if e.Kind() == KindDate {
				return true
			}
		}
	}
	return false
}
