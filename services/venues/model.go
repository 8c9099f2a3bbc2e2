package venues

import (
	"errors"
	"time"

	"github.com/cummap/backend/pkg/schedule"
	timehelper "github.com/cummap/backend/pkg/timeHelper"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrVenueNotFound = errors.New("venue not found")
	ErrMatchNotFound = errors.New("match not found")
)

type Venue struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Address     string  `json:"address"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Sport       string  `json:"sport"`
	Emoji       string  `json:"emoji"`
	Matches     []Match `json:"matches"`
}

type Match struct {
	ID          string     `json:"id"`
	Teams       string     `json:"teams"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Sport       string     `json:"sport"`
	VenueID     string     `json:"venueId"`
}

// Event converts the match for the day view.
func (m Match) Event() schedule.Event {
	return schedule.Event{
		ID:       m.ID,
		Title:    m.Teams,
		Category: schedule.CategoryMatch,
		Start:    m.StartTime,
		End:      m.EndTime,
	}
}

func (v Venue) clone() Venue {
	out := v
	out.Matches = append([]Match(nil), v.Matches...)
	return out
}

// toVenue projects a stored document. Matches whose start cannot be parsed
// are returned in skipped; sport and venueId are always derived from the
// owning venue.
func toVenue(id string, doc VenueDoc, loc *time.Location) (v Venue, skipped []string) {
	v = Venue{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Address:     doc.Address,
		Latitude:    doc.Latitude,
		Longitude:   doc.Longitude,
		Sport:       doc.Sport,
		Emoji:       doc.Emoji,
		Matches:     make([]Match, 0, len(doc.Matches)),
	}
	for _, md := range doc.Matches {
		start, err := timehelper.ParseTimestamp(md.StartTime, loc)
		if err != nil {
			skipped = append(skipped, md.ID)
			continue
		}
		m := Match{
			ID:          md.ID,
			Teams:       md.Teams,
			Description: md.Description,
			StartTime:   start,
			Sport:       doc.Sport,
			VenueID:     id,
		}
		if md.EndTime != nil {
			if end, err := timehelper.ParseTimestamp(*md.EndTime, loc); err == nil {
				m.EndTime = &end
			}
		}
		v.Matches = append(v.Matches, m)
	}
	return v, skipped
}
