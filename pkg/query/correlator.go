package query

import (
	"sort"
	"sync"

	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
	"github.com/osprey-dcs/dp-client-go/pkg/dperrors"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
)

// Block is a Correlated Block: all source columns sharing one timebase
// (spec.md §4.7).
type Block struct {
	Timebase dpapi.Timebase
	Columns  []dpapi.Column
}

const stripeCount = 16

// Correlator is component C9: it groups raw response payloads by
// timebase equality, using a striped lock keyed on fingerprint byte 0
// (see DESIGN.md) so appends to distinct blocks proceed concurrently while
// appends to the same block serialize.
type Correlator struct {
	mu     [stripeCount]sync.Mutex
	blocks [stripeCount]map[[32]byte]*correlatedBlock
}

type correlatedBlock struct {
	timebase    dpapi.Timebase
	columns     []dpapi.Column
	sourceIndex map[string]int
}

// NewCorrelator constructs an empty Correlator.
func NewCorrelator() *Correlator {
	c := &Correlator{}
	for i := range c.blocks {
		c.blocks[i] = make(map[[32]byte]*correlatedBlock)
	}
	return c
}

func stripeFor(fp [32]byte) int { return int(fp[0]) % stripeCount }

// Add appends one (timebase, column) payload extracted from resp into the
// block matching resp's timebase fingerprint, creating the block on first
// arrival. Duplicate source names within one block are a ConsistencyError
// (spec.md §4.7).
func (c *Correlator) Add(resp *dpgrpc.QueryDataResponse) error {
	if resp.Err != nil {
		return dperrors.Consistencyf("query: response carried an in-band error: %s", resp.Err.Message)
	}

	tb := fromWireTimebase(resp.Timebase)
	fp := tb.Fingerprint()
	stripe := stripeFor(fp)

	c.mu[stripe].Lock()
	defer c.mu[stripe].Unlock()

	blk, ok := c.blocks[stripe][fp]
	if !ok {
		blk = &correlatedBlock{timebase: tb, sourceIndex: make(map[string]int)}
		c.blocks[stripe][fp] = blk
	}

	for _, qc := range resp.Columns {
		if _, dup := blk.sourceIndex[qc.SourceName]; dup {
			return dperrors.Consistencyf("query: source %q appears twice within one correlated block", qc.SourceName)
		}
		col, err := decodeColumn(qc.SourceName, qc.Type, tb.Count(), qc.Bytes)
		if err != nil {
			return err
		}
		blk.sourceIndex[qc.SourceName] = len(blk.columns)
		blk.columns = append(blk.columns, col)
	}
	return nil
}

// Close drains every accumulated block into a sorted set ordered by
// (timebase.start, timebase.duration, timebase.count), the final form
// handed to the Assembler.
func (c *Correlator) Close() []*Block {
	var out []*Block
	for i := range c.blocks {
		c.mu[i].Lock()
		for _, blk := range c.blocks[i] {
			out = append(out, &Block{Timebase: blk.timebase, Columns: blk.columns})
		}
		c.mu[i].Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Timebase, out[j].Timebase
		if !a.Start().Equal(b.Start()) {
			return a.Start().Before(b.Start())
		}
		if a.Span() != b.Span() {
			return a.Span() < b.Span()
		}
		return a.Count() < b.Count()
	})
	return out
}
