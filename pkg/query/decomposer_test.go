package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
)

func mustRequest(t *testing.T, id string, sources []string, begin, end time.Time) *dpapi.Request {
	t.Helper()
	r, err := dpapi.NewRequest(id, sources, dpapi.TimeRange{Begin: begin, End: end})
	require.NoError(t, err)
	return r
}

func TestDecomposeNoCapsReturnsOriginal(t *testing.T) {
	begin := time.Unix(0, 0).UTC()
	end := begin.Add(time.Hour)
	r := mustRequest(t, "q1", []string{"a", "b"}, begin, end)

	out := Decompose(r, 0, 0)
	require.Len(t, out, 1)
	require.Same(t, r, out[0])
}

func TestDecomposeSplitsVerticalThenHorizontal(t *testing.T) {
	begin := time.Unix(0, 0).UTC()
	end := begin.Add(2 * time.Hour)
	r := mustRequest(t, "q1", []string{"a", "b", "c"}, begin, end)

	out := Decompose(r, 2, time.Hour)

	// 2 vertical groups ({a,b},{c}) x 2 horizontal intervals = 4 subs.
	require.Len(t, out, 4)

	// Sub ids are stable and ordered groups-outer, intervals-inner.
	require.Equal(t, "q1#0", out[0].ID())
	require.Equal(t, "q1#1", out[1].ID())
	require.Equal(t, "q1#2", out[2].ID())
	require.Equal(t, "q1#3", out[3].ID())

	require.Equal(t, []string{"a", "b"}, out[0].Sources())
	require.Equal(t, []string{"a", "b"}, out[1].Sources())
	require.Equal(t, []string{"c"}, out[2].Sources())
	require.Equal(t, []string{"c"}, out[3].Sources())

	// Horizontal intervals within a group tile the range with no gap/overlap.
	require.Equal(t, begin, out[0].Range().Begin)
	require.Equal(t, out[1].Range().Begin, out[0].Range().End)
	require.Equal(t, end, out[1].Range().End)
}

func TestDecomposeHonorsRequestCaps(t *testing.T) {
	begin := time.Unix(0, 0).UTC()
	end := begin.Add(time.Hour)
	r, err := dpapi.NewRequest("q1", []string{"a", "b"}, dpapi.TimeRange{Begin: begin, End: end},
		dpapi.WithMaxSourcesCap(1))
	require.NoError(t, err)

	out := Decompose(r, 1, 0)
	require.Len(t, out, 2)
	require.Equal(t, []string{"a"}, out[0].Sources())
	require.Equal(t, []string{"b"}, out[1].Sources())
}

func TestVerticalGroupsSingleGroupWhenCapCoversAll(t *testing.T) {
	groups := verticalGroups([]string{"a", "b", "c"}, 10)
	require.Equal(t, [][]string{{"a", "b", "c"}}, groups)
}

func TestHorizontalIntervalsFoldsRemainderIntoLast(t *testing.T) {
	begin := time.Unix(0, 0).UTC()
	r := dpapi.TimeRange{Begin: begin, End: begin.Add(100*time.Second + 3)}

	intervals := horizontalIntervals(r, 30*time.Second)
	require.Len(t, intervals, 4)
	// 100s+3ns over 4 intervals: 25s each, with the 3ns remainder in the last.
	require.Equal(t, intervals[0].Duration()+3, intervals[3].Duration())

	total := time.Duration(0)
	for i, iv := range intervals {
		total += iv.Duration()
		if i > 0 {
			require.Equal(t, intervals[i-1].End, iv.Begin)
		}
	}
	require.Equal(t, r.Duration(), total)
	require.Equal(t, r.Begin, intervals[0].Begin)
	require.Equal(t, r.End, intervals[len(intervals)-1].End)
}
