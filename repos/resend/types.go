package resend

import "time"

// VoteReport summarizes one vote sync run for the organizers.
type VoteReport struct {
	At           time.Time
	Participants int
	Written      int
	Failed       int
	Tallies      []Tally
}

type Tally struct {
	Sport      string
	Delegation string
	Votes      int
	Winner     bool
}
