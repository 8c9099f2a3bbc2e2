package venues

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/cummap/backend/pkg/history"
	"github.com/cummap/backend/pkg/idgen"
	"github.com/cummap/backend/pkg/logging"
	timehelper "github.com/cummap/backend/pkg/timeHelper"
	"github.com/cummap/backend/repos/store"
)

type VenueInput struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Address     string  `json:"address"`
	Latitude    float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude   float64 `json:"longitude" binding:"min=-180,max=180"`
	Sport       string  `json:"sport"`
	Emoji       string  `json:"emoji"`
}

type MatchInput struct {
	Teams       string  `json:"teams" binding:"required"`
	Description string  `json:"description"`
	StartTime   string  `json:"startTime" binding:"required"`
	EndTime     *string `json:"endTime"`
}

// VenueChange is the payload of venue-level history actions.
type VenueChange struct {
	VenueID string      `json:"venueId"`
	Before  *VenueDoc   `json:"before,omitempty"`
	After   *VenueDoc   `json:"after,omitempty"`
	Fields  *fieldsPair `json:"fields,omitempty"`
}

type fieldsPair struct {
	Before venueFields `json:"before"`
	After  venueFields `json:"after"`
}

// MatchChange is the payload of match history actions.
type MatchChange struct {
	VenueID string    `json:"venueId"`
	Index   int       `json:"index"`
	Before  *MatchDoc `json:"before,omitempty"`
	After   *MatchDoc `json:"after,omitempty"`
}

// VenuesService performs admin edits. Every edit is written to the store
// first and recorded in the history only once the write succeeded.
type VenuesService struct {
	store      store.Store
	history    *history.History
	loc        *time.Location
	logger     *zap.SugaredLogger
	newMatchID func() string
}

func NewVenuesService(s store.Store, h *history.History, loc *time.Location, logger *zap.SugaredLogger) *VenuesService {
	if loc == nil {
		loc = time.UTC
	}
	return &VenuesService{
		store:      s,
		history:    h,
		loc:        loc,
		logger:     logging.OrNop(logger),
		newMatchID: idgen.NewMatchID,
	}
}

func (s *VenuesService) AddVenue(ctx context.Context, input VenueInput) (Venue, error) {
	fields, err := s.venueFields(input)
	if err != nil {
		return Venue{}, err
	}
	doc := VenueDoc{Matches: []MatchDoc{}}
	doc.applyFields(fields)

	id, err := s.store.Push(ctx, venuesPath, doc)
	if err != nil {
		s.logger.Errorf("Failed to add venue %q: %v", input.Name, err)
		return Venue{}, xerrors.Errorf("add venue: %w", err)
	}

	s.record(history.Action{
		Kind: history.VenueAdded,
		Data: VenueChange{VenueID: id, After: &doc},
		Undo: func(ctx context.Context) error {
			return s.store.Write(ctx, venuePath(id), nil)
		},
		Redo: func(ctx context.Context) error {
			return s.store.Write(ctx, venuePath(id), doc)
		},
	})

	v, _ := toVenue(id, doc, s.loc)
	return v, nil
}

func (s *VenuesService) UpdateVenue(ctx context.Context, venueID string, input VenueInput) (Venue, error) {
	after, err := s.venueFields(input)
	if err != nil {
		return Venue{}, err
	}
	doc, err := s.readVenue(ctx, venueID)
	if err != nil {
		return Venue{}, err
	}
	before := doc.fields()
	doc.applyFields(after)

	if err := s.store.Write(ctx, venuePath(venueID), doc); err != nil {
		s.logger.Errorf("Failed to update venue %s: %v", venueID, err)
		return Venue{}, xerrors.Errorf("update venue: %w", err)
	}

	s.record(history.Action{
		Kind: history.VenueUpdated,
		Data: VenueChange{VenueID: venueID, Fields: &fieldsPair{Before: before, After: after}},
		Undo: s.mergeIntoCurrent(venueID, func(d *VenueDoc) { d.applyFields(before) }),
		Redo: s.mergeIntoCurrent(venueID, func(d *VenueDoc) { d.applyFields(after) }),
	})

	v, _ := toVenue(venueID, doc, s.loc)
	return v, nil
}

func (s *VenuesService) DeleteVenue(ctx context.Context, venueID string) error {
	before, err := s.readVenue(ctx, venueID)
	if err != nil {
		return err
	}
	if err := s.store.Write(ctx, venuePath(venueID), nil); err != nil {
		s.logger.Errorf("Failed to delete venue %s: %v", venueID, err)
		return xerrors.Errorf("delete venue: %w", err)
	}

	s.record(history.Action{
		Kind: history.VenueDeleted,
		Data: VenueChange{VenueID: venueID, Before: &before},
		Undo: func(ctx context.Context) error {
			return s.store.Write(ctx, venuePath(venueID), before)
		},
		Redo: func(ctx context.Context) error {
			return s.store.Write(ctx, venuePath(venueID), nil)
		},
	})
	return nil
}

func (s *VenuesService) AddMatch(ctx context.Context, venueID string, input MatchInput) (Match, error) {
	doc, err := s.readVenue(ctx, venueID)
	if err != nil {
		return Match{}, err
	}
	m, err := s.matchDoc(s.newMatchID(), venueID, doc.Sport, input)
	if err != nil {
		return Match{}, err
	}
	doc.Matches = append(doc.Matches, m)
	index := len(doc.Matches) - 1

	if err := s.store.Write(ctx, venuePath(venueID), doc); err != nil {
		s.logger.Errorf("Failed to add match to venue %s: %v", venueID, err)
		return Match{}, xerrors.Errorf("add match: %w", err)
	}

	s.record(history.Action{
		Kind: history.MatchAdded,
		Data: MatchChange{VenueID: venueID, Index: index, After: &m},
		Undo: s.mergeIntoCurrent(venueID, func(d *VenueDoc) { d.removeMatch(m.ID) }),
		Redo: s.mergeIntoCurrent(venueID, func(d *VenueDoc) { d.upsertMatch(m, index) }),
	})

	return s.projectMatch(venueID, doc, m.ID), nil
}

func (s *VenuesService) UpdateMatch(ctx context.Context, venueID, matchID string, input MatchInput) (Match, error) {
	doc, err := s.readVenue(ctx, venueID)
	if err != nil {
		return Match{}, err
	}
	index := doc.matchIndex(matchID)
	if index < 0 {
		return Match{}, xerrors.Errorf("%s in venue %s: %w", matchID, venueID, ErrMatchNotFound)
	}
	before := doc.Matches[index]
	after, err := s.matchDoc(matchID, venueID, doc.Sport, input)
	if err != nil {
		return Match{}, err
	}
	doc.Matches[index] = after

	if err := s.store.Write(ctx, venuePath(venueID), doc); err != nil {
		s.logger.Errorf("Failed to update match %s: %v", matchID, err)
		return Match{}, xerrors.Errorf("update match: %w", err)
	}

	s.record(history.Action{
		Kind: history.MatchUpdated,
		Data: MatchChange{VenueID: venueID, Index: index, Before: &before, After: &after},
		Undo: s.mergeIntoCurrent(venueID, func(d *VenueDoc) { d.upsertMatch(before, index) }),
		Redo: s.mergeIntoCurrent(venueID, func(d *VenueDoc) { d.upsertMatch(after, index) }),
	})

	return s.projectMatch(venueID, doc, matchID), nil
}

func (s *VenuesService) DeleteMatch(ctx context.Context, venueID, matchID string) error {
	doc, err := s.readVenue(ctx, venueID)
	if err != nil {
		return err
	}
	index := doc.matchIndex(matchID)
	if index < 0 {
		return xerrors.Errorf("%s in venue %s: %w", matchID, venueID, ErrMatchNotFound)
	}
	before := doc.Matches[index]
	doc.removeMatch(matchID)

	if err := s.store.Write(ctx, venuePath(venueID), doc); err != nil {
		s.logger.Errorf("Failed to delete match %s: %v", matchID, err)
		return xerrors.Errorf("delete match: %w", err)
	}

	s.record(history.Action{
		Kind: history.MatchDeleted,
		Data: MatchChange{VenueID: venueID, Index: index, Before: &before},
		Undo: s.mergeIntoCurrent(venueID, func(d *VenueDoc) { d.upsertMatch(before, index) }),
		Redo: s.mergeIntoCurrent(venueID, func(d *VenueDoc) { d.removeMatch(matchID) }),
	})
	return nil
}

func (s *VenuesService) Undo(ctx context.Context) (bool, error) {
	return s.history.Undo(ctx)
}

func (s *VenuesService) Redo(ctx context.Context) (bool, error) {
	return s.history.Redo(ctx)
}

func (s *VenuesService) History() history.State {
	return s.history.State()
}

// mergeIntoCurrent builds a history closure that applies mutate to the
// venue as it is in the store now, so edits made since the action was
// recorded survive the undo or redo.
func (s *VenuesService) mergeIntoCurrent(venueID string, mutate func(*VenueDoc)) func(context.Context) error {
	return func(ctx context.Context) error {
		doc, err := s.readVenue(ctx, venueID)
		if err != nil {
			return err
		}
		mutate(&doc)
		return s.store.Write(ctx, venuePath(venueID), doc)
	}
}

func (s *VenuesService) record(a history.Action) {
	if err := s.history.Push(a); err != nil {
		s.logger.Errorf("Failed to record %s: %v", a.Kind, err)
	}
}

func (s *VenuesService) readVenue(ctx context.Context, venueID string) (VenueDoc, error) {
	if strings.TrimSpace(venueID) == "" {
		return VenueDoc{}, xerrors.Errorf("venue id is required: %w", ErrInvalidInput)
	}
	snap, err := s.store.Read(ctx, venuePath(venueID))
	if err != nil {
		return VenueDoc{}, xerrors.Errorf("read venue %s: %w", venueID, err)
	}
	if !snap.Exists() {
		return VenueDoc{}, xerrors.Errorf("%s: %w", venueID, ErrVenueNotFound)
	}
	doc, ok := decodeVenueDoc(snap.Value())
	if !ok {
		return VenueDoc{}, xerrors.Errorf("consistency error. venue %s is not an object: %w", venueID, ErrVenueNotFound)
	}
	return doc.clone(), nil
}

func (s *VenuesService) venueFields(input VenueInput) (venueFields, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return venueFields{}, xerrors.Errorf("venue name is required: %w", ErrInvalidInput)
	}
	if input.Latitude < -90 || input.Latitude > 90 || input.Longitude < -180 || input.Longitude > 180 {
		return venueFields{}, xerrors.Errorf("coordinates out of range: %w", ErrInvalidInput)
	}
	return venueFields{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Address:     strings.TrimSpace(input.Address),
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		Sport:       strings.TrimSpace(input.Sport),
		Emoji:       strings.TrimSpace(input.Emoji),
	}, nil
}

func (s *VenuesService) matchDoc(id, venueID, sport string, input MatchInput) (MatchDoc, error) {
	teams := strings.TrimSpace(input.Teams)
	if teams == "" {
		return MatchDoc{}, xerrors.Errorf("teams are required: %w", ErrInvalidInput)
	}
	start, err := timehelper.ParseTimestamp(input.StartTime, s.loc)
	if err != nil {
		return MatchDoc{}, xerrors.Errorf("startTime: %v: %w", err, ErrInvalidInput)
	}
	m := MatchDoc{
		ID:          id,
		Teams:       teams,
		Description: strings.TrimSpace(input.Description),
		StartTime:   timehelper.FormatTimestamp(start, s.loc),
		Sport:       sport,
		VenueID:     venueID,
	}
	if input.EndTime != nil && strings.TrimSpace(*input.EndTime) != "" {
		end, err := timehelper.ParseTimestamp(*input.EndTime, s.loc)
		if err != nil {
			return MatchDoc{}, xerrors.Errorf("endTime: %v: %w", err, ErrInvalidInput)
		}
		if end.Before(start) {
			return MatchDoc{}, xerrors.Errorf("endTime before startTime: %w", ErrInvalidInput)
		}
		formatted := timehelper.FormatTimestamp(end, s.loc)
		m.EndTime = &formatted
	}
	return m, nil
}

func (s *VenuesService) projectMatch(venueID string, doc VenueDoc, matchID string) Match {
	v, _ := toVenue(venueID, doc, s.loc)
	for _, m := range v.Matches {
		if m.ID == matchID {
			return m
		}
	}
	return Match{ID: matchID, VenueID: venueID}
}
