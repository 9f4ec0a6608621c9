package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osprey-dcs/dp-client-go/pkg/buffer"
	"github.com/osprey-dcs/dp-client-go/pkg/dpconfig"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc/dpgrpctest"
)

func TestChannelConfigRejectsUnaryBackward(t *testing.T) {
	cfg := ChannelConfig{StreamType: dpconfig.StreamTypeUnaryBackward, StreamCount: 1}
	_, err := NewChannel(cfg, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestChannelConfigRejectsZeroStreamCount(t *testing.T) {
	cfg := ChannelConfig{StreamType: dpconfig.StreamTypeBidirectionalStreaming, StreamCount: 0}
	_, err := NewChannel(cfg, nil, nil, nil, nil)
	require.Error(t, err)
}

func newTestChannel(t *testing.T, streamType dpconfig.StreamType) (*Channel, *buffer.Buffer[*dpgrpc.IngestRequest], *dpgrpctest.FakeIngestionService) {
	t.Helper()
	svc := dpgrpctest.NewFakeIngestionService()
	factory := dpgrpctest.NewFactory(svc, nil)
	client, err := factory.NewIngestionClient(context.Background())
	require.NoError(t, err)

	in := buffer.New[*dpgrpc.IngestRequest](0, false)
	require.NoError(t, in.Activate())

	ch, err := NewChannel(ChannelConfig{StreamType: streamType, StreamCount: 2}, client, in, nil, nil)
	require.NoError(t, err)
	return ch, in, svc
}

func TestChannelBidiStreamAcceptsAndRejects(t *testing.T) {
	ch, in, svc := newTestChannel(t, dpconfig.StreamTypeBidirectionalStreaming)
	svc.SetRule(2, dpgrpctest.IngestionRule{Reject: true, Reason: dpgrpc.RejectionInvalidData, Message: "bad row"})

	require.NoError(t, ch.Activate(context.Background()))

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, in.Enqueue(context.Background(), &dpgrpc.IngestRequest{ClientRequestID: i}))
	}
	require.NoError(t, in.Shutdown(context.Background()))
	require.NoError(t, ch.Shutdown(context.Background()))

	out := ch.Outcome()
	require.ElementsMatch(t, []uint64{1, 2, 3}, out.SentRequestIDs)
	require.ElementsMatch(t, []uint64{1, 3}, out.ReceivedRequestIDs)
	require.ElementsMatch(t, []uint64{2}, out.RejectedRequestIDs)
	require.Zero(t, ch.InFlight())
}

func TestChannelForwardUnaryAcceptsAndRejects(t *testing.T) {
	ch, in, svc := newTestChannel(t, dpconfig.StreamTypeForwardUnary)
	svc.SetRule(5, dpgrpctest.IngestionRule{Reject: true})

	require.NoError(t, ch.Activate(context.Background()))
	require.NoError(t, in.Enqueue(context.Background(), &dpgrpc.IngestRequest{ClientRequestID: 5}))
	require.NoError(t, in.Enqueue(context.Background(), &dpgrpc.IngestRequest{ClientRequestID: 6}))
	require.NoError(t, in.Shutdown(context.Background()))
	require.NoError(t, ch.Shutdown(context.Background()))

	out := ch.Outcome()
	require.ElementsMatch(t, []uint64{5}, out.RejectedRequestIDs)
	require.ElementsMatch(t, []uint64{6}, out.ReceivedRequestIDs)
}

func TestChannelSetConfigRejectedWhileActive(t *testing.T) {
	ch, in, _ := newTestChannel(t, dpconfig.StreamTypeBidirectionalStreaming)
	require.NoError(t, ch.Activate(context.Background()))
	err := ch.SetConfig(ChannelConfig{StreamType: dpconfig.StreamTypeForwardUnary, StreamCount: 1})
	require.Error(t, err)

	require.NoError(t, in.Shutdown(context.Background()))
	require.NoError(t, ch.Shutdown(context.Background()))
}
