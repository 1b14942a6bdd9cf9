// Package taskstatus remembers, per child and per calendar day, which
// tasks have already been scored. It is what stops a task from being
// awarded or penalised twice on the same day.
package taskstatus

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status int

const (
	Unset Status = iota
	Done
	NotDone
)

// Persisted encodings. Unset is stored as JSON null.
const (
	doneValue    = "feita"
	notDoneValue = "nao-feita"
)

func (s Status) String() string {
	switch s {
	case Done:
		return "done"
	case NotDone:
		return "not done"
	default:
		return "unset"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	switch s {
	case Done:
		return json.Marshal(doneValue)
	case NotDone:
		return json.Marshal(notDoneValue)
	default:
		return []byte("null"), nil
	}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Unset
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	switch v {
	case doneValue:
		*s = Done
	case notDoneValue:
		*s = NotDone
	case "":
		*s = Unset
	default:
		return fmt.Errorf("status: unknown value %q", v)
	}
	return nil
}

// Map holds the statuses of one child's tasks for one day. A task missing
// from the map is Unset.
type Map map[int64]Status

// Get returns the status of taskID.
func (m Map) Get(taskID int64) Status {
	return m[taskID]
}

// Counts returns how many tasks are done and not done.
func (m Map) Counts() (done, notDone int) {
	for _, s := range m {
		switch s {
		case Done:
			done++
		case NotDone:
			notDone++
		}
	}
	return done, notDone
}

const dayLayout = "2006-01-02"

// Day is a calendar date in YYYY-MM-DD form.
type Day string

// ParseDay accepts YYYY-MM-DD or an RFC 3339 timestamp and normalises it
// to a Day.
func ParseDay(s string) (Day, error) {
	if t, err := time.Parse(dayLayout, s); err == nil {
		return DayOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DayOf(t), nil
}

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// Today returns the current local calendar day.
func Today() Day {
	return DayOf(time.Now())
}

func (d Day) String() string {
	return string(d)
}
