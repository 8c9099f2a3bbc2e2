// Package catalog serves the static parties and hotels of the event.
package catalog

import (
	_ "embed"
	"os"
	"sort"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/cummap/backend/pkg/schedule"
	timehelper "github.com/cummap/backend/pkg/timeHelper"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Party struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description,omitempty"`
	Address     string  `yaml:"address" json:"address,omitempty"`
	Latitude    float64 `yaml:"latitude" json:"latitude"`
	Longitude   float64 `yaml:"longitude" json:"longitude"`
	StartTime   string  `yaml:"startTime" json:"startTime"`
	EndTime     *string `yaml:"endTime" json:"endTime,omitempty"`
	NoEnd       bool    `yaml:"noEnd" json:"noEnd,omitempty"`

	start time.Time
	end   *time.Time
}

type Hotel struct {
	ID        string  `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	Address   string  `yaml:"address" json:"address,omitempty"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	URL       string  `yaml:"url" json:"url,omitempty"`
	Phone     string  `yaml:"phone" json:"phone,omitempty"`
}

// Event converts the party for the day view.
func (p Party) Event() schedule.Event {
	return schedule.Event{
		ID:       p.ID,
		Title:    p.Name,
		Category: schedule.CategoryParty,
		Start:    p.start,
		End:      p.end,
		NoEnd:    p.NoEnd,
	}
}

type Catalog struct {
	parties []Party
	hotels  []Hotel
}

type document struct {
	Parties []Party `yaml:"parties"`
	Hotels  []Hotel `yaml:"hotels"`
}

// Load reads the catalog at path, or the built-in one when path is empty.
func Load(path string, loc *time.Location) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Errorf("read catalog %s: %w", path, err)
		}
		data = b
	}
	return Parse(data, loc)
}

func Parse(data []byte, loc *time.Location) (*Catalog, error) {
	if loc == nil {
		loc = time.UTC
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, xerrors.Errorf("parse catalog: %w", err)
	}

	for i := range doc.Parties {
		p := &doc.Parties[i]
		start, err := timehelper.ParseTimestamp(p.StartTime, loc)
		if err != nil {
			return nil, xerrors.Errorf("party %s: startTime: %w", p.ID, err)
		}
		p.start = start
		if p.EndTime != nil {
			end, err := timehelper.ParseTimestamp(*p.EndTime, loc)
			if err != nil {
				return nil, xerrors.Errorf("party %s: endTime: %w", p.ID, err)
			}
			p.end = &end
		}
	}
	sort.SliceStable(doc.Parties, func(i, j int) bool {
		return doc.Parties[i].start.Before(doc.Parties[j].start)
	})
	sort.SliceStable(doc.Hotels, func(i, j int) bool {
		return doc.Hotels[i].Name < doc.Hotels[j].Name
	})
	return &Catalog{parties: doc.Parties, hotels: doc.Hotels}, nil
}

func (c *Catalog) Parties() []Party {
	return append([]Party(nil), c.parties...)
}

func (c *Catalog) Hotels() []Hotel {
	return append([]Hotel(nil), c.hotels...)
}

// PartiesOn returns the parties starting on day.
func (c *Catalog) PartiesOn(day time.Time) []Party {
	var out []Party
	for _, p := range c.parties {
		if timehelper.SameDay(p.start, day) {
			out = append(out, p)
		}
	}
	return out
}
