package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
)

func uniformBlock(start time.Time, period time.Duration, count int, sources ...string) *Block {
	cols := make([]dpapi.Column, len(sources))
	for i, s := range sources {
		vals := make([]dpapi.Value, count)
		for j := range vals {
			vals[j] = dpapi.Value{Type: dpapi.TypeInt32, Int: int64(j)}
		}
		cols[i] = dpapi.Column{Name: s, Type: dpapi.TypeInt32, Values: vals}
	}
	return &Block{
		Timebase: dpapi.UniformClock{StartInstant: start, Period: period, SampleCount: count},
		Columns:  cols,
	}
}

func TestAssembleBuildsSourceUnion(t *testing.T) {
	t0 := time.Unix(0, 0).UTC()
	b1 := uniformBlock(t0, time.Second, 2, "a")
	b2 := uniformBlock(t0.Add(2*time.Second), time.Second, 2, "b")

	proc, err := Assemble([]*Block{b1, b2})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, proc.Sources)
	require.Len(t, proc.Blocks, 2)
}

func TestAssembleRejectsOverlap(t *testing.T) {
	t0 := time.Unix(0, 0).UTC()
	b1 := uniformBlock(t0, time.Second, 3, "a") // spans [t0, t0+3s)
	b2 := uniformBlock(t0.Add(time.Second), time.Second, 2, "a")

	_, err := Assemble([]*Block{b1, b2})
	require.Error(t, err)
}

func TestAssembleRejectsNonMonotonicOrder(t *testing.T) {
	t0 := time.Unix(0, 0).UTC()
	b1 := uniformBlock(t0.Add(5*time.Second), time.Second, 1, "a")
	b2 := uniformBlock(t0, time.Second, 1, "a")

	_, err := Assemble([]*Block{b1, b2})
	require.Error(t, err)
}
