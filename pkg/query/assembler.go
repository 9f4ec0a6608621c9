package query

import (
	"sort"

	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
	"github.com/osprey-dcs/dp-client-go/pkg/dperrors"
)

// SamplingProcess is the logical result of assembling a sorted block set:
// a global timeline of non-overlapping Correlated Blocks and the union of
// sources present across them (spec.md §4.8).
type SamplingProcess struct {
	Sources []string
	Blocks  []*Block
}

// Assemble walks blocks — expected already sorted by (start, span, count)
// as Correlator.Close produces — and builds a SamplingProcess, rejecting
// overlapping blocks and non-monotonic ordering.
func Assemble(blocks []*Block) (*SamplingProcess, error) {
	sourceSet := make(map[string]struct{})

	for i, blk := range blocks {
		start := blk.Timebase.Start()

		if i > 0 {
			prev := blocks[i-1].Timebase
			prevStart := prev.Start()
			prevEnd := prevStart.Add(prev.Span())
			if start.Before(prevStart) {
				return nil, dperrors.Order("query: correlated blocks are not monotonically ordered by timebase start")
			}
			if start.Before(prevEnd) {
				return nil, dperrors.Overlap("query: correlated blocks have overlapping timebases")
			}
		}

		for _, col := range blk.Columns {
			sourceSet[col.Name] = struct{}{}
		}
	}

	sources := make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	return &SamplingProcess{Sources: sources, Blocks: blocks}, nil
}
