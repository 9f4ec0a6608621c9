package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
)

func uniformWire(start time.Time, period time.Duration, count int) dpgrpc.WireTimebase {
	return dpgrpc.WireTimebase{
		IsUniform:   true,
		StartNanos:  start.UnixNano(),
		PeriodNanos: int64(period),
		Count:       int64(count),
	}
}

func int32Column(name string, values ...int32) dpgrpc.QueryColumn {
	var raw []byte
	for _, v := range values {
		raw = append(raw, encodeValue(dpapi.Value{Type: dpapi.TypeInt32, Int: int64(v)})...)
	}
	return dpgrpc.QueryColumn{SourceName: name, Type: int32(dpapi.TypeInt32), Bytes: raw}
}

// TestCorrelatorGroupsByTimebaseAndOrders is the determinism example from
// spec.md §8: three responses across two distinct uniform timebases (one
// of which repeats) must collapse to two blocks, ordered by start.
func TestCorrelatorGroupsByTimebaseAndOrders(t *testing.T) {
	t0 := time.Unix(0, 0).UTC()
	t1 := t0.Add(time.Second)

	c := NewCorrelator()
	require.NoError(t, c.Add(&dpgrpc.QueryDataResponse{
		Timebase: uniformWire(t0, time.Millisecond, 3),
		Columns:  []dpgrpc.QueryColumn{int32Column("A", 1, 2, 3)},
	}))
	require.NoError(t, c.Add(&dpgrpc.QueryDataResponse{
		Timebase: uniformWire(t1, time.Millisecond, 3),
		Columns:  []dpgrpc.QueryColumn{int32Column("A", 4, 5, 6)},
	}))
	require.NoError(t, c.Add(&dpgrpc.QueryDataResponse{
		Timebase: uniformWire(t0, time.Millisecond, 3),
		Columns:  []dpgrpc.QueryColumn{int32Column("B", 7, 8, 9)},
	}))

	blocks := c.Close()
	require.Len(t, blocks, 2)
	require.Equal(t, t0, blocks[0].Timebase.Start())
	require.Equal(t, t1, blocks[1].Timebase.Start())

	require.Len(t, blocks[0].Columns, 2)
	require.Len(t, blocks[1].Columns, 1)
}

func TestCorrelatorRejectsDuplicateSourceWithinBlock(t *testing.T) {
	t0 := time.Unix(0, 0).UTC()
	c := NewCorrelator()
	require.NoError(t, c.Add(&dpgrpc.QueryDataResponse{
		Timebase: uniformWire(t0, time.Millisecond, 1),
		Columns:  []dpgrpc.QueryColumn{int32Column("A", 1)},
	}))
	err := c.Add(&dpgrpc.QueryDataResponse{
		Timebase: uniformWire(t0, time.Millisecond, 1),
		Columns:  []dpgrpc.QueryColumn{int32Column("A", 2)},
	})
	require.Error(t, err)
}

func TestCorrelatorRejectsInBandError(t *testing.T) {
	c := NewCorrelator()
	err := c.Add(&dpgrpc.QueryDataResponse{Err: &dpgrpc.QueryError{Message: "boom"}})
	require.Error(t, err)
}
