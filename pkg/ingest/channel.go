package ingest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/osprey-dcs/dp-client-go/pkg/buffer"
	"github.com/osprey-dcs/dp-client-go/pkg/dpconfig"
	"github.com/osprey-dcs/dp-client-go/pkg/dperrors"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
	"github.com/osprey-dcs/dp-client-go/internal/dplog"
	"github.com/osprey-dcs/dp-client-go/internal/metrics"
)

// ChannelState is the Ingestion Channel's lifecycle (spec.md §4.3).
type ChannelState int

const (
	ChannelInactive ChannelState = iota
	ChannelActive
	ChannelShuttingDown
	ChannelClosed
)

// ChannelConfig is C5's configuration: transport shape and fan-out width.
// Unary-backward is explicitly rejected (spec.md §4.3, §6).
type ChannelConfig struct {
	StreamType  dpconfig.StreamType
	StreamCount int
}

func (c ChannelConfig) validate() error {
	if c.StreamType == dpconfig.StreamTypeUnaryBackward {
		return dperrors.Configuration("ingest: unary-backward streams are not supported by the Ingestion Channel")
	}
	if c.StreamType == dpconfig.StreamTypeUnspecified {
		return dperrors.Configuration("ingest: stream type must be set")
	}
	if c.StreamCount < 1 {
		return dperrors.Configuration("ingest: stream count must be at least 1")
	}
	return nil
}

// Exception records a transport or framing failure observed while driving
// a stream, carrying the offending client-request-id when known (spec.md
// §4.3, §9 Open Question 3).
type Exception struct {
	ClientRequestID uint64
	HasRequestID    bool
	Err             error
}

// Outcome is the outcome record the Ingestion Channel exposes once shut
// down (spec.md §4.3).
type Outcome struct {
	SentRequestIDs     []uint64
	ReceivedRequestIDs []uint64
	RejectedRequestIDs []uint64
	Exceptions         []Exception
}

// Channel is the Ingestion Channel (component C5): it fans wire messages
// from an input buffer out across N concurrent gRPC streams and collects
// per-request outcomes.
type Channel struct {
	mu    sync.Mutex
	state ChannelState
	cfg   ChannelConfig

	input  *buffer.Buffer[*dpgrpc.IngestRequest]
	client dpgrpc.IngestionServiceClient

	sent     sync.Map // uint64 -> struct{}
	received sync.Map
	rejected sync.Map
	excMu    sync.Mutex
	excs     []Exception

	inFlight int64

	group  *errgroup.Group
	cancel context.CancelFunc

	log     *dplog.Logger
	metrics *metrics.Registry
}

// NewChannel constructs a Channel in the Inactive state.
func NewChannel(cfg ChannelConfig, client dpgrpc.IngestionServiceClient, input *buffer.Buffer[*dpgrpc.IngestRequest], log *dplog.Logger, m *metrics.Registry) (*Channel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = dplog.Default()
	}
	if m == nil {
		m = metrics.NewRegistry(nil)
	}
	return &Channel{cfg: cfg, input: input, client: client, log: log.With(dplog.F("component", "ingestion-channel")), metrics: m}, nil
}

// Activate transitions Inactive -> Active. The input buffer must already
// be Supplying.
func (c *Channel) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ChannelInactive {
		return dperrors.Statef("ingest: channel activate called in state %d", c.state)
	}
	if !c.input.IsSupplying() {
		return dperrors.State("ingest: channel activate requires a supplying input buffer")
	}

	gctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	g, gctx2 := errgroup.WithContext(gctx)
	c.group = g

	for i := 0; i < c.cfg.StreamCount; i++ {
		switch c.cfg.StreamType {
		case dpconfig.StreamTypeBidirectionalStreaming:
			g.Go(func() error { return c.runBidiStream(gctx2) })
		case dpconfig.StreamTypeForwardUnary:
			g.Go(func() error { return c.runForwardUnary(gctx2) })
		}
	}

	c.state = ChannelActive
	return nil
}

// SetConfig updates the channel's configuration. Only valid while
// Inactive.
func (c *Channel) SetConfig(cfg ChannelConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ChannelInactive {
		return dperrors.State("ingest: cannot reconfigure an active channel")
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *Channel) recordSent(id uint64) {
	c.sent.Store(id, struct{}{})
	atomic.AddInt64(&c.inFlight, 1)
	c.metrics.MessageSent()
}

func (c *Channel) recordResponse(resp *dpgrpc.IngestResponse) {
	if _, known := c.sent.Load(resp.ClientRequestID); !known {
		c.recordStreamException(resp.ClientRequestID, true,
			dperrors.Consistencyf("ingest: response carries unknown client-request-id %d", resp.ClientRequestID))
		return
	}
	atomic.AddInt64(&c.inFlight, -1)
	if resp.Accepted {
		c.received.Store(resp.ClientRequestID, struct{}{})
		c.metrics.MessageAccepted()
		return
	}
	c.rejected.Store(resp.ClientRequestID, struct{}{})
	c.metrics.MessageRejected()
}

func (c *Channel) recordException(id uint64, hasID bool, err error) {
	atomic.AddInt64(&c.inFlight, -1)
	c.recordStreamException(id, hasID, err)
}

// recordStreamException records an exception not tied to decrementing
// in-flight count, used for whole-stream failures observed by a recv
// loop rather than a per-send failure.
func (c *Channel) recordStreamException(id uint64, hasID bool, err error) {
	c.excMu.Lock()
	c.excs = append(c.excs, Exception{ClientRequestID: id, HasRequestID: hasID, Err: err})
	c.excMu.Unlock()
	c.metrics.TransportError()
}

func (c *Channel) runForwardUnary(ctx context.Context) error {
	for {
		req, ok, err := c.input.Take(ctx)
		if err != nil {
			if dperrors.IsKind(err, dperrors.KindClosed) {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}
		c.recordSent(req.ClientRequestID)
		resp, err := c.client.IngestDataUnary(ctx, req)
		if err != nil {
			c.recordException(req.ClientRequestID, true, err)
			continue
		}
		c.recordResponse(resp)
	}
}

func (c *Channel) runBidiStream(ctx context.Context) error {
	stream, err := c.client.IngestData(ctx)
	if err != nil {
		return dperrors.Transport(err)
	}

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		for {
			resp, err := stream.Recv()
			if err != nil {
				if err != io.EOF {
					c.recordStreamException(0, false, err)
				}
				return
			}
			c.recordResponse(resp)
		}
	}()

	var sendErr error
sendLoop:
	for {
		req, ok, err := c.input.Take(ctx)
		if err != nil {
			if !dperrors.IsKind(err, dperrors.KindClosed) {
				sendErr = err
			}
			break sendLoop
		}
		if !ok {
			break sendLoop
		}
		c.recordSent(req.ClientRequestID)
		if err := stream.Send(req); err != nil {
			c.recordException(req.ClientRequestID, true, err)
			continue
		}
	}

	_ = stream.CloseSend()
	<-recvDone
	return sendErr
}

// Shutdown stops accepting new work (the input buffer must already be
// Draining — typically arranged by the Facade), waits until every
// in-flight request has a matched response or exception, closes all
// streams, and returns.
func (c *Channel) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.state != ChannelActive {
		c.mu.Unlock()
		return dperrors.Statef("ingest: shutdown called in state %d", c.state)
	}
	c.state = ChannelShuttingDown
	c.mu.Unlock()

	err := c.group.Wait()

	c.mu.Lock()
	c.state = ChannelClosed
	c.mu.Unlock()
	return err
}

// ShutdownNow cancels all streams immediately, dropping any pending
// responses.
func (c *Channel) ShutdownNow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.group != nil {
		_ = c.group.Wait()
	}
	c.state = ChannelClosed
}

// Outcome snapshots the outcome record. Safe to call after Shutdown.
func (c *Channel) Outcome() Outcome {
	out := Outcome{}
	c.sent.Range(func(k, _ interface{}) bool { out.SentRequestIDs = append(out.SentRequestIDs, k.(uint64)); return true })
	c.received.Range(func(k, _ interface{}) bool { out.ReceivedRequestIDs = append(out.ReceivedRequestIDs, k.(uint64)); return true })
	c.rejected.Range(func(k, _ interface{}) bool { out.RejectedRequestIDs = append(out.RejectedRequestIDs, k.(uint64)); return true })
	c.excMu.Lock()
	out.Exceptions = append([]Exception(nil), c.excs...)
	c.excMu.Unlock()
	return out
}

// InFlight reports the number of sent requests awaiting a matched response
// or exception.
func (c *Channel) InFlight() int64 { return atomic.LoadInt64(&c.inFlight) }
