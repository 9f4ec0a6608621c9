// Package query implements the read-path pipeline: the Request
// Decomposer (C7), the Query Recoverer (C8), the Correlator (C9), and the
// Sampling-Process Assembler / Result Table (C10/C11) of spec.md
// §4.5-§4.8.
package query

import (
	"time"

	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
)

// Decompose splits r into sub-Requests that jointly cover its (sources ×
// range) domain with no overlap and no gap, respecting maxSources and
// maxDuration caps (spec.md §4.5). A zero cap means "no cap" for that
// axis. Vertical grouping (by source) runs first, then each group is
// split horizontally (by time) — the Open Question on grid order is
// resolved in favor of this order (see DESIGN.md).
func Decompose(r *dpapi.Request, maxSources int, maxDuration time.Duration) []*dpapi.Request {
	groups := verticalGroups(r.Sources(), maxSources)
	intervals := horizontalIntervals(r.Range(), maxDuration)

	if len(groups) == 1 && len(intervals) == 1 {
		return []*dpapi.Request{r}
	}

	out := make([]*dpapi.Request, 0, len(groups)*len(intervals))
	index := 0
	for _, g := range groups {
		for _, iv := range intervals {
			id := dpapi.SubID(r.ID(), index)
			out = append(out, r.WithOverride(id, g, iv))
			index++
		}
	}
	return out
}

// verticalGroups partitions sources (already sorted by NewRequest) into
// contiguous groups of size <= cap, preserving order. cap <= 0 means one
// group containing every source.
func verticalGroups(sources []string, maxSources int) [][]string {
	if maxSources <= 0 || maxSources >= len(sources) {
		return [][]string{sources}
	}
	var groups [][]string
	for start := 0; start < len(sources); start += maxSources {
		end := start + maxSources
		if end > len(sources) {
			end = len(sources)
		}
		groups = append(groups, sources[start:end])
	}
	return groups
}

// horizontalIntervals divides r into the minimum number of contiguous,
// equal-length sub-intervals each no longer than maxDuration. maxDuration
// <= 0 means one interval spanning the whole range.
func horizontalIntervals(r dpapi.TimeRange, maxDuration time.Duration) []dpapi.TimeRange {
	total := r.Duration()
	if maxDuration <= 0 || total <= maxDuration {
		return []dpapi.TimeRange{r}
	}

	n := int(total / maxDuration)
	if total%maxDuration != 0 {
		n++
	}
	step := total / time.Duration(n)
	extra := total - step*time.Duration(n)

	out := make([]dpapi.TimeRange, 0, n)
	cursor := r.Begin
	for i := 0; i < n; i++ {
		d := step
		if i == n-1 {
			d += extra
		}
		end := cursor.Add(d)
		out = append(out, dpapi.TimeRange{Begin: cursor, End: end})
		cursor = end
	}
	return out
}
