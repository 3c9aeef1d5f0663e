package mailclient

import (
	"strconv"
	"testing"
	"time"

	"github.com/lgwanai/email-mcp/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ascendingIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	return ids
}

func TestSliceWindowLimit(t *testing.T) {
	got := sliceWindow(ascendingIDs(10), Filter{Limit: 3})
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestSliceWindowReverse(t *testing.T) {
	got := sliceWindow(ascendingIDs(10), Filter{Limit: 3, Reverse: true})
	assert.Equal(t, []string{"10", "9", "8"}, got)
}

func TestSliceWindowCursorIsExclusive(t *testing.T) {
	got := sliceWindow(ascendingIDs(10), Filter{Limit: 3, StartUID: "4"})
	assert.Equal(t, []string{"5", "6", "7"}, got)
}

func TestSliceWindowUnknownCursorIgnored(t *testing.T) {
	got := sliceWindow(ascendingIDs(5), Filter{Limit: 2, StartUID: "99"})
	assert.Equal(t, []string{"1", "2"}, got)
}

// Paging newest-first with the cursor chained from the previous page must
// cover the store without overlap.
func TestSliceWindowReversePaging(t *testing.T) {
	ids := ascendingIDs(10)

	first := sliceWindow(ids, Filter{Limit: 5, Reverse: true})
	require.Equal(t, []string{"10", "9", "8", "7", "6"}, first)

	second := sliceWindow(ids, Filter{Limit: 5, Reverse: true, StartUID: first[len(first)-1]})
	require.Equal(t, []string{"5", "4", "3", "2", "1"}, second)

	for _, a := range first {
		for _, b := range second {
			assert.NotEqual(t, a, b)
		}
	}
}

func TestSliceWindowEmpty(t *testing.T) {
	assert.Empty(t, sliceWindow(nil, Filter{Limit: 5}))
	assert.Empty(t, sliceWindow([]string{"1"}, Filter{StartUID: "1", Limit: 5}))
}

func TestInDateWindow(t *testing.T) {
	day := func(d int, hour int) time.Time {
		return time.Date(2026, 8, d, hour, 0, 0, 0, model.FixedZone)
	}
	window := Filter{StartDate: day(10, 0), EndDate: day(20, 0)}

	cases := []struct {
		name string
		date time.Time
		f    Filter
		want bool
	}{
		{"exactly at start", day(10, 0), window, true},
		{"just before start", day(9, 23), window, false},
		{"inside window", day(15, 12), window, true},
		{"late on end day", day(20, 23), window, true},
		{"exactly at end plus one day", day(21, 0), window, false},
		{"start only", day(10, 0), Filter{StartDate: day(10, 0)}, true},
		{"end only", day(20, 23), Filter{EndDate: day(20, 0)}, true},
		{"no window", day(1, 0), Filter{}, true},
		{"zero date with window", time.Time{}, window, false},
		{"zero date without window", time.Time{}, Filter{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, inDateWindow(tc.date, tc.f))
		})
	}
}

// The BEFORE term must point one day past the requested end date so messages
// stamped anywhere on the end day itself are still returned.
func TestSearchCriteriaDateWindow(t *testing.T) {
	start := time.Date(2026, 8, 10, 0, 0, 0, 0, model.FixedZone)
	end := time.Date(2026, 8, 20, 0, 0, 0, 0, model.FixedZone)

	criteria := searchCriteria(Filter{StartDate: start, EndDate: end})
	assert.True(t, criteria.Since.Equal(start))
	assert.True(t, criteria.Before.Equal(end.AddDate(0, 0, 1)))

	open := searchCriteria(Filter{})
	assert.True(t, open.Since.IsZero())
	assert.True(t, open.Before.IsZero())
}
