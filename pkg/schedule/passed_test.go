package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsPassed(t *testing.T) {
	match := Event{Category: CategoryMatch, Start: at(10, 0)}
	party := Event{Category: CategoryParty, Start: at(10, 0)}
	withEnd := Event{Category: CategoryMatch, Start: at(10, 0), End: ptr(at(10, 30))}

	cases := []struct {
		name  string
		event Event
		now   time.Time
		want  bool
	}{
		{"match past default", match, at(13, 0), true},
		{"match within default", match, at(11, 30), false},
		{"party within default", party, at(15, 0), false},
		{"party past default", party, at(16, 1), true},
		{"explicit end wins", withEnd, at(11, 0), true},
		{"before explicit end", withEnd, at(10, 15), false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsPassed(c.event, c.now))
		})
	}
}

func TestLayoutAtFlagsPassed(t *testing.T) {
	got := LayoutAt([]Event{{ID: "a", Category: CategoryMatch, Start: at(10, 0)}}, at(13, 0))
	assert.True(t, got[0].Passed)
}
