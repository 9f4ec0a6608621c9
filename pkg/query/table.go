package query

import (
	"sync"
	"time"

	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
	"github.com/osprey-dcs/dp-client-go/pkg/dperrors"
)

// Table is the Result Table (component C11): a lazy, typed,
// row/column-addressable view over a SamplingProcess. Column
// materialization is grounded on the teacher's lazy, cached descriptor
// assembly (see DESIGN.md): a column is concatenated from its per-block
// slices on first access and cached thereafter.
type Table struct {
	proc *SamplingProcess

	rowCount int
	offsets  []int // cumulative row offset of each block

	mu    sync.Mutex
	cache map[string][]dpapi.Value

	columnType map[string]dpapi.Type
}

// NewTable builds a Table over proc.
func NewTable(proc *SamplingProcess) *Table {
	t := &Table{proc: proc, cache: make(map[string][]dpapi.Value), columnType: make(map[string]dpapi.Type)}
	offset := 0
	for _, blk := range proc.Blocks {
		t.offsets = append(t.offsets, offset)
		offset += blk.Timebase.Count()
		for _, col := range blk.Columns {
			if _, ok := t.columnType[col.Name]; !ok {
				t.columnType[col.Name] = col.Type
			}
		}
	}
	t.rowCount = offset
	return t
}

// RowCount returns the sum of block row counts.
func (t *Table) RowCount() int { return t.rowCount }

// ColumnCount returns the number of distinct sources across all blocks.
func (t *Table) ColumnCount() int { return len(t.proc.Sources) }

// ColumnNames returns the sorted union of source names.
func (t *Table) ColumnNames() []string { return append([]string(nil), t.proc.Sources...) }

// ColumnType returns the scalar type recorded for name, from whichever
// block first carried it.
func (t *Table) ColumnType(name string) (dpapi.Type, bool) {
	typ, ok := t.columnType[name]
	return typ, ok
}

// ColumnSize returns the materialized column's length (equal to
// RowCount once built).
func (t *Table) ColumnSize(name string) (int, error) {
	col, err := t.GetColumn(name)
	if err != nil {
		return 0, err
	}
	return len(col), nil
}

// GetColumn lazily materializes and caches the named column: the
// concatenation, in block order, of that source's values, with a
// type-appropriate absent marker inserted for blocks where the source is
// missing.
func (t *Table) GetColumn(name string) ([]dpapi.Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cached, ok := t.cache[name]; ok {
		return cached, nil
	}

	typ, ok := t.columnType[name]
	if !ok {
		return nil, dperrors.Consistencyf("query: unknown column %q", name)
	}

	out := make([]dpapi.Value, 0, t.rowCount)
	for _, blk := range t.proc.Blocks {
		found := false
		for _, col := range blk.Columns {
			if col.Name == name {
				out = append(out, col.Values...)
				found = true
				break
			}
		}
		if !found {
			for i := 0; i < blk.Timebase.Count(); i++ {
				out = append(out, dpapi.Absent(typ))
			}
		}
	}

	t.cache[name] = out
	return out, nil
}

// GetValue returns the value at (row, col-name).
func (t *Table) GetValue(row int, name string) (dpapi.Value, error) {
	col, err := t.GetColumn(name)
	if err != nil {
		return dpapi.Value{}, err
	}
	if row < 0 || row >= len(col) {
		return dpapi.Value{}, dperrors.Consistencyf("query: row %d out of range [0,%d)", row, len(col))
	}
	return col[row], nil
}

// GetRow returns every column's value at row, keyed by source name.
func (t *Table) GetRow(row int) (map[string]dpapi.Value, error) {
	if row < 0 || row >= t.rowCount {
		return nil, dperrors.Consistencyf("query: row %d out of range [0,%d)", row, t.rowCount)
	}
	out := make(map[string]dpapi.Value, len(t.proc.Sources))
	for _, name := range t.proc.Sources {
		v, err := t.GetValue(row, name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// GetTimestamps returns the ordered instant for every row, concatenating
// each block's timebase in order.
func (t *Table) GetTimestamps() []time.Time {
	out := make([]time.Time, 0, t.rowCount)
	for _, blk := range t.proc.Blocks {
		out = append(out, expandTimebase(blk.Timebase)...)
	}
	return out
}

// AllocationSize estimates the table's materialized footprint: the sum of
// every currently-cached column's byte size, walked the same way
// dpapi.Frame.EstimatedByteSize walks a frame's columns.
func (t *Table) AllocationSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := 0
	for name, col := range t.cache {
		size += len(name) + 8
		for _, v := range col {
			size += valueSize(v)
		}
	}
	return size
}

func valueSize(v dpapi.Value) int {
	switch v.Type {
	case dpapi.TypeBool, dpapi.TypeInt8, dpapi.TypeUint8:
		return 1
	case dpapi.TypeInt16, dpapi.TypeUint16:
		return 2
	case dpapi.TypeInt32, dpapi.TypeUint32, dpapi.TypeFloat32:
		return 4
	case dpapi.TypeInt64, dpapi.TypeUint64, dpapi.TypeFloat64, dpapi.TypeTimestamp:
		return 8
	case dpapi.TypeString:
		return len(v.Str)
	default:
		return len(v.Bytes)
	}
}

// expandTimebase returns the ordered instants a timebase describes.
func expandTimebase(tb dpapi.Timebase) []time.Time {
	switch t := tb.(type) {
	case dpapi.TimestampList:
		return append([]time.Time(nil), t.Instants...)
	case dpapi.UniformClock:
		out := make([]time.Time, t.SampleCount)
		for i := 0; i < t.SampleCount; i++ {
			out[i] = t.StartInstant.Add(t.Period * time.Duration(i))
		}
		return out
	default:
		out := make([]time.Time, tb.Count())
		cur := tb.Start()
		if tb.Count() > 1 {
			step := tb.Span() / time.Duration(tb.Count())
			for i := range out {
				out[i] = cur.Add(step * time.Duration(i))
			}
		} else if tb.Count() == 1 {
			out[0] = cur
		}
		return out
	}
}
