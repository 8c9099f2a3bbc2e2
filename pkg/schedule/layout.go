package schedule

import (
	"sort"
	"time"
)

type Category string

const (
	CategoryMatch Category = "match"
	CategoryParty Category = "party"
	CategoryOther Category = "other"
)

// Display constants of the day view.
const (
	DayStartHour     = 8
	PixelsPerHour    = 43.33
	MinDisplayHeight = 15.0

	dayEndMinutes  = 23 * 60
	midnightMinute = 24 * 60
)

type Event struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Category Category   `json:"category"`
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
	// NoEnd marks events that run until the end of the day.
	NoEnd bool `json:"noEnd,omitempty"`
}

// Placement is an event positioned in the day view.
type Placement struct {
	Event        Event `json:"event"`
	StartMinutes int   `json:"startMinutes"`
	EndMinutes   int   `json:"endMinutes"`
	// Lane is the overlap group the event was put in, Index its position
	// within that group.
	Lane      int `json:"lane"`
	Index     int `json:"index"`
	GroupSize int `json:"groupSize"`

	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	// DisplayHeight is Height raised to MinDisplayHeight.
	DisplayHeight float64 `json:"displayHeight"`
	WidthPercent  float64 `json:"widthPercent"`
	LeftPercent   float64 `json:"leftPercent"`
	Passed        bool    `json:"passed"`
}

// LayoutDuration is the length assumed for the day view when an event has
// no end. It differs from PassedDuration on purpose.
func LayoutDuration(c Category) time.Duration {
	if c == CategoryParty {
		return 6 * time.Hour
	}
	return time.Hour
}

// Minutes returns the start and end of e in minutes since midnight of its
// start day.
func Minutes(e Event) (int, int) {
	start := e.Start.Hour()*60 + e.Start.Minute()

	var end int
	switch {
	case e.End != nil:
		endT := e.End.In(e.Start.Location())
		y1, m1, d1 := e.Start.Date()
		y2, m2, d2 := endT.Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			if endT.Before(e.Start) {
				end = start
			} else {
				end = midnightMinute
			}
		} else {
			end = endT.Hour()*60 + endT.Minute()
		}
	case e.NoEnd:
		end = dayEndMinutes
	default:
		end = start + int(LayoutDuration(e.Category)/time.Minute)
	}
	if end < start {
		end = start
	}
	return start, end
}

// Layout places the events of one day. Events are sorted by start (stable)
// and greedily grouped: an event joins the first lane whose most recently
// added event overlaps it, otherwise it opens a new lane. Events in a lane
// share the width evenly.
func Layout(events []Event) []Placement {
	placements := make([]Placement, len(events))
	for i, e := range events {
		start, end := Minutes(e)
		placements[i] = Placement{Event: e, StartMinutes: start, EndMinutes: end}
	}
	sort.SliceStable(placements, func(i, j int) bool {
		return placements[i].StartMinutes < placements[j].StartMinutes
	})

	var lanes [][]int
	for i := range placements {
		p := &placements[i]
		lane := -1
		for l, members := range lanes {
			last := placements[members[len(members)-1]]
			if p.StartMinutes < last.EndMinutes && p.EndMinutes > last.StartMinutes {
				lane = l
				break
			}
		}
		if lane < 0 {
			lanes = append(lanes, nil)
			lane = len(lanes) - 1
		}
		p.Lane = lane
		p.Index = len(lanes[lane])
		lanes[lane] = append(lanes[lane], i)
	}

	for i := range placements {
		p := &placements[i]
		p.GroupSize = len(lanes[p.Lane])
		p.WidthPercent = 100 / float64(p.GroupSize)
		p.LeftPercent = float64(p.Index) * p.WidthPercent
		p.Top = (float64(p.StartMinutes)/60 - DayStartHour) * PixelsPerHour
		p.Height = float64(p.EndMinutes-p.StartMinutes) / 60 * PixelsPerHour
		p.DisplayHeight = p.Height
		if p.DisplayHeight < MinDisplayHeight {
			p.DisplayHeight = MinDisplayHeight
		}
	}
	return placements
}

// LayoutAt is Layout with the passed flag evaluated at now.
func LayoutAt(events []Event, now time.Time) []Placement {
	placements := Layout(events)
	for i := range placements {
		placements[i].Passed = IsPassed(placements[i].Event, now)
	}
	return placements
}
