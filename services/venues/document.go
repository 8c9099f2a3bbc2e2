package venues

import (
	"sort"
	"strconv"
	"strings"
)

// VenueDoc is the document stored at venues/<id>. The id is the key and is
// not part of the document.
type VenueDoc struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Address     string     `json:"address,omitempty"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Sport       string     `json:"sport,omitempty"`
	Emoji       string     `json:"emoji,omitempty"`
	Matches     []MatchDoc `json:"matches"`
}

type MatchDoc struct {
	ID          string  `json:"id"`
	Teams       string  `json:"teams"`
	Description string  `json:"description,omitempty"`
	StartTime   string  `json:"startTime"`
	EndTime     *string `json:"endTime,omitempty"`
	Sport       string  `json:"sport,omitempty"`
	VenueID     string  `json:"venueId,omitempty"`
}

// venueFields are the venue-level attributes an edit replaces; matches are
// edited separately.
type venueFields struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Address     string  `json:"address"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Sport       string  `json:"sport"`
	Emoji       string  `json:"emoji"`
}

func (d VenueDoc) fields() venueFields {
	return venueFields{
		Name:        d.Name,
		Description: d.Description,
		Address:     d.Address,
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		Sport:       d.Sport,
		Emoji:       d.Emoji,
	}
}

// applyFields overwrites the venue-level attributes and keeps the matches,
// whose inherited sport follows the venue.
func (d *VenueDoc) applyFields(f venueFields) {
	d.Name = f.Name
	d.Description = f.Description
	d.Address = f.Address
	d.Latitude = f.Latitude
	d.Longitude = f.Longitude
	d.Sport = f.Sport
	d.Emoji = f.Emoji
	for i := range d.Matches {
		d.Matches[i].Sport = f.Sport
	}
}

func (d *VenueDoc) matchIndex(id string) int {
	for i, m := range d.Matches {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// upsertMatch replaces the match with the same id, or inserts m at index
// (clamped; negative appends).
func (d *VenueDoc) upsertMatch(m MatchDoc, index int) {
	if i := d.matchIndex(m.ID); i >= 0 {
		d.Matches[i] = m
		return
	}
	if index < 0 || index > len(d.Matches) {
		index = len(d.Matches)
	}
	d.Matches = append(d.Matches, MatchDoc{})
	copy(d.Matches[index+1:], d.Matches[index:])
	d.Matches[index] = m
}

func (d *VenueDoc) removeMatch(id string) {
	if i := d.matchIndex(id); i >= 0 {
		d.Matches = append(d.Matches[:i], d.Matches[i+1:]...)
	}
}

func (d VenueDoc) clone() VenueDoc {
	out := d
	out.Matches = append([]MatchDoc(nil), d.Matches...)
	return out
}

// decodeVenueDoc reads a venue document leniently. Documents written by
// older clients keep coordinates in other shapes and may store matches as a
// sparse array or an index-keyed object.
func decodeVenueDoc(raw any) (VenueDoc, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return VenueDoc{}, false
	}
	doc := VenueDoc{
		Name:        stringField(m, "name"),
		Description: stringField(m, "description"),
		Address:     stringField(m, "address"),
		Sport:       stringField(m, "sport"),
		Emoji:       stringField(m, "emoji"),
		Matches:     []MatchDoc{},
	}
	doc.Latitude, doc.Longitude = extractLatLon(m)

	for _, raw := range normalizeMatches(m["matches"]) {
		md := MatchDoc{
			ID:          stringField(raw, "id"),
			Teams:       stringField(raw, "teams"),
			Description: stringField(raw, "description"),
			StartTime:   stringField(raw, "startTime"),
			Sport:       stringField(raw, "sport"),
			VenueID:     stringField(raw, "venueId"),
		}
		if end := stringField(raw, "endTime"); end != "" {
			md.EndTime = &end
		}
		doc.Matches = append(doc.Matches, md)
	}
	return doc, true
}

func normalizeMatches(v any) []map[string]any {
	out := []map[string]any{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, errA := strconv.Atoi(keys[i])
			b, errB := strconv.Atoi(keys[j])
			if errA == nil && errB == nil {
				return a < b
			}
			return keys[i] < keys[j]
		})
		for _, k := range keys {
			if m, ok := t[k].(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

// extractLatLon tries latitude/longitude, then coordinates [lat, lon], then
// location {lat, lng}.
func extractLatLon(m map[string]any) (float64, float64) {
	lat, okLat := toFloat(m["latitude"])
	lon, okLon := toFloat(m["longitude"])
	if okLat && okLon {
		return lat, lon
	}
	if coords, ok := m["coordinates"].([]any); ok && len(coords) == 2 {
		lat, okLat = toFloat(coords[0])
		lon, okLon = toFloat(coords[1])
		if okLat && okLon {
			return lat, lon
		}
	}
	if loc, ok := m["location"].(map[string]any); ok {
		lat, okLat = toFloat(loc["lat"])
		lon, okLon = toFloat(loc["lng"])
		if okLat && okLon {
			return lat, lon
		}
	}
	return 0, 0
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func stringField(m map[string]any, key string) string {
	switch t := m[key].(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
