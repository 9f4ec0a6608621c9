package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
)

func TestDecodeColumnRoundTripsFixedWidthTypes(t *testing.T) {
	values := []dpapi.Value{
		{Type: dpapi.TypeFloat64, Float: 3.5},
		{Type: dpapi.TypeFloat64, Float: -1.25},
	}
	var raw []byte
	for _, v := range values {
		raw = append(raw, encodeValue(v)...)
	}

	col, err := decodeColumn("x", int32(dpapi.TypeFloat64), len(values), raw)
	require.NoError(t, err)
	require.Equal(t, "x", col.Name)
	require.Len(t, col.Values, 2)
	require.InDelta(t, 3.5, col.Values[0].Float, 0.0001)
	require.InDelta(t, -1.25, col.Values[1].Float, 0.0001)
}

func TestDecodeColumnRejectsVariableWidthType(t *testing.T) {
	_, err := decodeColumn("x", int32(dpapi.TypeString), 1, []byte("hi"))
	require.Error(t, err)
}

func TestDecodeColumnRejectsMismatchedLength(t *testing.T) {
	_, err := decodeColumn("x", int32(dpapi.TypeInt32), 2, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestFromWireTimebaseUniform(t *testing.T) {
	start := time.Unix(100, 0).UTC()
	tb := fromWireTimebase(dpgrpc.WireTimebase{
		IsUniform:   true,
		StartNanos:  start.UnixNano(),
		PeriodNanos: int64(time.Millisecond),
		Count:       10,
	})
	require.Equal(t, start, tb.Start())
	require.Equal(t, 10, tb.Count())
}

func TestFromWireTimebaseExplicit(t *testing.T) {
	t0 := time.Unix(1, 0).UTC()
	t1 := time.Unix(2, 500).UTC()
	tb := fromWireTimebase(dpgrpc.WireTimebase{
		Timestamps: []dpgrpc.WireTimestamp{
			{Seconds: t0.Unix(), Nanos: int32(t0.Nanosecond())},
			{Seconds: t1.Unix(), Nanos: int32(t1.Nanosecond())},
		},
	})
	require.Equal(t, 2, tb.Count())
	require.Equal(t, t0, tb.Start())
}
