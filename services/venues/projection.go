package venues

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cummap/backend/pkg/logging"
	timehelper "github.com/cummap/backend/pkg/timeHelper"
	"github.com/cummap/backend/repos/store"
)

const venuesPath = "venues"

func venuePath(id string) string {
	return store.JoinPath(venuesPath, id)
}

// Projection keeps the typed view of the venues collection. It rebuilds the
// whole view from every snapshot the store emits, so echoes of its own
// writes and out-of-order notifications converge on the latest value.
type Projection struct {
	store  store.Store
	loc    *time.Location
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	venues  []Venue
	byID    map[string]int
	version uint64

	lmu       sync.Mutex
	listeners map[chan uint64]struct{}

	unsubscribe func()
}

func NewProjection(s store.Store, loc *time.Location, logger *zap.SugaredLogger) *Projection {
	if loc == nil {
		loc = time.UTC
	}
	return &Projection{
		store:     s,
		loc:       loc,
		logger:    logging.OrNop(logger),
		byID:      map[string]int{},
		listeners: map[chan uint64]struct{}{},
	}
}

// Start subscribes to the venues collection until ctx is done or Stop is
// called.
func (p *Projection) Start(ctx context.Context) error {
	unsubscribe, err := p.store.Subscribe(ctx, venuesPath, p.apply)
	if err != nil {
		return err
	}
	p.unsubscribe = unsubscribe
	return nil
}

func (p *Projection) Stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.lmu.Lock()
	for ch := range p.listeners {
		close(ch)
		delete(p.listeners, ch)
	}
	p.lmu.Unlock()
}

func (p *Projection) apply(snap store.Snapshot) {
	var raw map[string]any
	if err := snap.Unmarshal(&raw); err != nil {
		p.logger.Errorf("Failed to decode venues snapshot: %v", err)
		return
	}

	venues := make([]Venue, 0, len(raw))
	for id, value := range raw {
		doc, ok := decodeVenueDoc(value)
		if !ok {
			p.logger.Warnf("Skipping venue %s: not an object", id)
			continue
		}
		v, skipped := toVenue(id, doc, p.loc)
		for _, matchID := range skipped {
			p.logger.Warnf("Skipping match %s of venue %s: invalid start time", matchID, id)
		}
		venues = append(venues, v)
	}
	sort.Slice(venues, func(i, j int) bool {
		if venues[i].Name != venues[j].Name {
			return venues[i].Name < venues[j].Name
		}
		return venues[i].ID < venues[j].ID
	})
	byID := make(map[string]int, len(venues))
	for i, v := range venues {
		byID[v.ID] = i
	}

	p.mu.Lock()
	p.venues = venues
	p.byID = byID
	p.version++
	version := p.version
	p.mu.Unlock()

	p.lmu.Lock()
	for ch := range p.listeners {
		select {
		case ch <- version:
		default:
		}
	}
	p.lmu.Unlock()
}

func (p *Projection) Venues() []Venue {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Venue, len(p.venues))
	for i, v := range p.venues {
		out[i] = v.clone()
	}
	return out
}

func (p *Projection) Venue(id string) (Venue, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	i, ok := p.byID[id]
	if !ok {
		return Venue{}, false
	}
	return p.venues[i].clone(), true
}

// Matches returns every match of every venue.
func (p *Projection) Matches() []Match {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Match
	for _, v := range p.venues {
		out = append(out, v.Matches...)
	}
	return out
}

// MatchesOn returns the matches starting on day, optionally restricted to a
// sport (case-insensitive).
func (p *Projection) MatchesOn(day time.Time, sport string) []Match {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Match
	for _, v := range p.venues {
		if sport != "" && !strings.EqualFold(v.Sport, sport) {
			continue
		}
		for _, m := range v.Matches {
			if timehelper.SameDay(m.StartTime, day) {
				out = append(out, m)
			}
		}
	}
	return out
}

func (p *Projection) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// Listen returns a channel receiving the projection version after each
// rebuild. Slow listeners miss intermediate versions.
func (p *Projection) Listen() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	p.lmu.Lock()
	p.listeners[ch] = struct{}{}
	p.lmu.Unlock()

	return ch, func() {
		p.lmu.Lock()
		if _, ok := p.listeners[ch]; ok {
			delete(p.listeners, ch)
			close(ch)
		}
		p.lmu.Unlock()
	}
}
