package schedule

import "time"

// PassedDuration is how long an event without an end is considered running.
func PassedDuration(c Category) time.Duration {
	if c == CategoryParty {
		return 6 * time.Hour
	}
	return 2 * time.Hour
}

// IsPassed reports whether e is over at now: its end when it has one,
// otherwise its start plus PassedDuration.
func IsPassed(e Event, now time.Time) bool {
	end := e.Start.Add(PassedDuration(e.Category))
	if e.End != nil {
		end = *e.End
	}
	return now.After(end)
}
