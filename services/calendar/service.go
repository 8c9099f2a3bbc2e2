package calendar

import (
	"errors"
	"time"

	"golang.org/x/xerrors"

	"github.com/cummap/backend/pkg/schedule"
	timehelper "github.com/cummap/backend/pkg/timeHelper"
	"github.com/cummap/backend/services/catalog"
	"github.com/cummap/backend/services/venues"
)

var ErrInvalidDate = errors.New("invalid date")

// MatchSource is implemented by *venues.Projection.
type MatchSource interface {
	MatchesOn(day time.Time, sport string) []venues.Match
}

// PartySource is implemented by *catalog.Catalog.
type PartySource interface {
	PartiesOn(day time.Time) []catalog.Party
}

type DayView struct {
	Date       string               `json:"date"`
	Sport      string               `json:"sport,omitempty"`
	Placements []schedule.Placement `json:"placements"`
}

type CalendarService struct {
	matches MatchSource
	parties PartySource
	loc     *time.Location
	now     func() time.Time
}

func NewCalendarService(m MatchSource, p PartySource, loc *time.Location) *CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarService{matches: m, parties: p, loc: loc, now: time.Now}
}

// Day lays out the matches and parties of date (YYYY-MM-DD). Filtering by
// sport leaves the parties out since they belong to no sport.
func (s *CalendarService) Day(date, sport string) (DayView, error) {
	day, err := timehelper.ParseDate(date, s.loc)
	if err != nil {
		return DayView{}, xerrors.Errorf("%q: %w", date, ErrInvalidDate)
	}

	var events []schedule.Event
	for _, m := range s.matches.MatchesOn(day, sport) {
		events = append(events, m.Event())
	}
	if sport == "" && s.parties != nil {
		for _, p := range s.parties.PartiesOn(day) {
			events = append(events, p.Event())
		}
	}

	placements := schedule.LayoutAt(events, s.now().In(s.loc))
	if placements == nil {
		placements = []schedule.Placement{}
	}
	return DayView{
		Date:       day.Format(timehelper.DateLayout),
		Sport:      sport,
		Placements: placements,
	}, nil
}
