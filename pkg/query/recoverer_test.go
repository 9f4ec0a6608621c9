package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc/dpgrpctest"
)

var errDispatch = errors.New("dispatch failed")

func responsesFixture() []*dpgrpc.QueryDataResponse {
	t0 := time.Unix(0, 0).UTC()
	return []*dpgrpc.QueryDataResponse{
		{
			Timebase: uniformWire(t0, time.Second, 2),
			Columns:  []dpgrpc.QueryColumn{int32Column("a", 1, 2)},
		},
	}
}

func TestRecovererProcessInline(t *testing.T) {
	svc := dpgrpctest.NewFakeQueryService(responsesFixture())
	client, err := dpgrpctest.NewFactory(nil, svc).NewQueryClient(context.Background())
	require.NoError(t, err)

	rc := NewRecoverer(client, RecovererConfig{CorrelateWhileStream: true, MaxDispatchRetries: 1}, nil, nil)

	r := mustRequest(t, "q1", []string{"a"}, time.Unix(0, 0).UTC(), time.Unix(2, 0).UTC())
	blocks, err := rc.Process(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.EqualValues(t, 1, rc.ProcessedMessageCount())
}

func TestRecovererProcessBuffered(t *testing.T) {
	svc := dpgrpctest.NewFakeQueryService(responsesFixture())
	client, err := dpgrpctest.NewFactory(nil, svc).NewQueryClient(context.Background())
	require.NoError(t, err)

	rc := NewRecoverer(client, RecovererConfig{
		CorrelateWhileStream: false,
		CorrelateConcurrent:  true,
		CorrelateWorkers:     2,
		MaxDispatchRetries:   1,
	}, nil, nil)

	r := mustRequest(t, "q1", []string{"a"}, time.Unix(0, 0).UTC(), time.Unix(2, 0).UTC())
	blocks, err := rc.Process(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
}

func TestRecovererPropagatesDispatchFailure(t *testing.T) {
	svc := dpgrpctest.NewFakeQueryService(nil)
	svc.SetError(errDispatch)
	client, err := dpgrpctest.NewFactory(nil, svc).NewQueryClient(context.Background())
	require.NoError(t, err)

	rc := NewRecoverer(client, RecovererConfig{CorrelateWhileStream: true, MaxDispatchRetries: 1}, nil, nil)
	r := mustRequest(t, "q1", []string{"a"}, time.Unix(0, 0).UTC(), time.Unix(1, 0).UTC())

	_, err = rc.Process(context.Background(), r)
	require.Error(t, err)
}

// TestRecovererCountsCompositeRequests checks the composite-request counter
// increments as soon as a Request decomposes into more than one sub-request,
// even though the fake Query Service here hands every sub the same canned
// timebase/column pair, which the Correlator rightly rejects as a duplicate
// source within one block once a second sub's payload arrives.
func TestRecovererCountsCompositeRequests(t *testing.T) {
	svc := dpgrpctest.NewFakeQueryService(responsesFixture())
	client, err := dpgrpctest.NewFactory(nil, svc).NewQueryClient(context.Background())
	require.NoError(t, err)

	rc := NewRecoverer(client, RecovererConfig{
		CorrelateWhileStream: true,
		MaxSourcesPerSub:     1,
		MaxDurationPerSub:    time.Second,
		MaxDispatchRetries:   1,
	}, nil, nil)

	r := mustRequest(t, "q1", []string{"a", "b"}, time.Unix(0, 0).UTC(), time.Unix(2, 0).UTC())
	_, _ = rc.Process(context.Background(), r)
	require.EqualValues(t, 1, rc.CompositeRequestCount())
}
