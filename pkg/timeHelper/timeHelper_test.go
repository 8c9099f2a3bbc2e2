package timehelper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, time.April, 16, 10, 0, 0, 0, time.UTC)

	for _, in := range []string{"2026-04-16T10:00", "2026-04-16T10:00:00", "2026-04-16 10:00", "2026-04-16T10:00:00Z", " 2026-04-16T10:00 "} {
		got, err := ParseTimestamp(in, time.UTC)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s parsed to %s", in, got)
	}

	_, err := ParseTimestamp("16/04/2026", time.UTC)
	assert.EqualError(t, err, `unrecognized timestamp "16/04/2026"`)
}

func TestSameDay(t *testing.T) {
	day, err := ParseDate("2026-04-16", time.UTC)
	require.NoError(t, err)

	assert.True(t, SameDay(time.Date(2026, 4, 16, 23, 59, 0, 0, time.UTC), day))
	assert.False(t, SameDay(time.Date(2026, 4, 17, 0, 0, 0, 0, time.UTC), day))
}
