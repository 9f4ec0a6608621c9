package query

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/osprey-dcs/dp-client-go/pkg/buffer"
	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
	"github.com/osprey-dcs/dp-client-go/pkg/dpconfig"
	"github.com/osprey-dcs/dp-client-go/pkg/dperrors"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
	"github.com/osprey-dcs/dp-client-go/internal/dplog"
	"github.com/osprey-dcs/dp-client-go/internal/metrics"
)

// RecovererConfig is C8's configuration (spec.md §4.6).
type RecovererConfig struct {
	MultiStream        bool
	MaxStreams         int
	MinDomainBytes     int
	MaxSourcesPerSub   int
	MaxDurationPerSub  time.Duration
	CorrelateConcurrent bool
	CorrelateWhileStream bool
	CorrelateWorkers    int
	MaxDispatchRetries  int
}

// RecovererConfigFromDPConfig bridges dpconfig's query section into a
// RecovererConfig.
func RecovererConfigFromDPConfig(cfg dpconfig.QueryConfig) RecovererConfig {
	return RecovererConfig{
		MultiStream:          cfg.Recovery.Multistream.Enabled,
		MaxStreams:           cfg.Recovery.Multistream.MaxStreams,
		MinDomainBytes:       cfg.Recovery.Multistream.DomainSizeMin,
		MaxSourcesPerSub:     cfg.Request.MaxSources,
		MaxDurationPerSub:    cfg.Request.MaxDuration,
		CorrelateConcurrent:  cfg.Recovery.Correlate.Concurrency,
		CorrelateWhileStream: cfg.Recovery.Correlate.WhileStreaming,
		CorrelateWorkers:     cfg.Recovery.Correlate.WorkerCount,
		MaxDispatchRetries:   5,
	}
}

// Recoverer is component C8: it decomposes a Request, drives one or more
// concurrent streams against the Query Service, and feeds every response
// payload into a Correlator, either inline as it streams or through a
// buffered worker pool.
type Recoverer struct {
	client dpgrpc.QueryServiceClient
	cfg    RecovererConfig

	processedMessages int64
	processedBytes    int64
	compositeRequests int64

	log     *dplog.Logger
	metrics *metrics.Registry
}

// NewRecoverer constructs a Recoverer driving client.
func NewRecoverer(client dpgrpc.QueryServiceClient, cfg RecovererConfig, log *dplog.Logger, m *metrics.Registry) *Recoverer {
	if log == nil {
		log = dplog.Default()
	}
	if m == nil {
		m = metrics.NewRegistry(nil)
	}
	if cfg.MaxDispatchRetries <= 0 {
		cfg.MaxDispatchRetries = 5
	}
	return &Recoverer{client: client, cfg: cfg, log: log.With(dplog.F("component", "query-recoverer")), metrics: m}
}

// Process drives r to completion and returns the sorted Correlated Block
// set (spec.md §4.6).
func (rc *Recoverer) Process(ctx context.Context, r *dpapi.Request) ([]*Block, error) {
	subs := rc.decomposeFor(r)
	if len(subs) > 1 {
		atomic.AddInt64(&rc.compositeRequests, 1)
		rc.metrics.CompositeRequest()
	}

	streamCount := rc.streamCountFor(r, len(subs))

	correlator := NewCorrelator()

	if rc.cfg.CorrelateWhileStream {
		return rc.runInline(ctx, subs, streamCount, correlator)
	}
	return rc.runBuffered(ctx, subs, streamCount, correlator)
}

// ProcessMany runs Process against every request in turn, concatenating
// their block sets in order, for callers that already pre-decomposed.
func (rc *Recoverer) ProcessMany(ctx context.Context, reqs []*dpapi.Request) ([]*Block, error) {
	var out []*Block
	for _, r := range reqs {
		blocks, err := rc.Process(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, blocks...)
	}
	return out, nil
}

func (rc *Recoverer) decomposeFor(r *dpapi.Request) []*dpapi.Request {
	maxSources := r.MaxSourcesCap()
	if maxSources == 0 {
		maxSources = rc.cfg.MaxSourcesPerSub
	}
	maxDuration := r.MaxDurationCap()
	if maxDuration == 0 {
		maxDuration = rc.cfg.MaxDurationPerSub
	}
	return Decompose(r, maxSources, maxDuration)
}

// streamCountFor decides fan-out width: below MinDomainBytes, or when
// multi-stream is disabled, a single stream is used regardless of how
// many sub-requests were produced.
func (rc *Recoverer) streamCountFor(r *dpapi.Request, subCount int) int {
	if !rc.cfg.MultiStream || estimateDomainBytes(r) < rc.cfg.MinDomainBytes {
		return 1
	}
	n := rc.cfg.MaxStreams
	if n <= 0 || n > subCount {
		n = subCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

// estimateDomainBytes is a cheap heuristic for a Request's recovered
// data volume, used only to decide whether multi-streaming is worth its
// overhead (spec.md §4.6's min-domain-bytes-for-multi).
func estimateDomainBytes(r *dpapi.Request) int {
	const bytesPerSourceSecond = 8
	seconds := int(r.Range().Duration().Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return len(r.Sources()) * seconds * bytesPerSourceSecond
}

// runInline correlates each response as soon as it is received, without
// an intermediate buffer — lowest latency, but recovery throttles to
// whatever rate the Correlator can keep up with.
func (rc *Recoverer) runInline(ctx context.Context, subs []*dpapi.Request, streamCount int, correlator *Correlator) ([]*Block, error) {
	g, gctx := errgroup.WithContext(ctx)
	work := make(chan *dpapi.Request)

	for i := 0; i < streamCount; i++ {
		g.Go(func() error {
			for sub := range work {
				if err := rc.recoverSub(gctx, sub, func(resp *dpgrpc.QueryDataResponse) error {
					return correlator.Add(resp)
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}

	for _, sub := range subs {
		select {
		case work <- sub:
		case <-gctx.Done():
			close(work)
			_ = g.Wait()
			return nil, dperrors.Interrupted(gctx.Err())
		}
	}
	close(work)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return correlator.Close(), nil
}

// runBuffered decouples stream reading from correlation: responses flow
// through a bounded buffer, drained by a pool of correlate-worker-count
// goroutines (one, if CorrelateConcurrent is false).
func (rc *Recoverer) runBuffered(ctx context.Context, subs []*dpapi.Request, streamCount int, correlator *Correlator) ([]*Block, error) {
	respBuf := buffer.New[*dpgrpc.QueryDataResponse](0, true)
	if err := respBuf.Activate(); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan *dpapi.Request)

	for i := 0; i < streamCount; i++ {
		g.Go(func() error {
			for sub := range work {
				if err := rc.recoverSub(gctx, sub, func(resp *dpgrpc.QueryDataResponse) error {
					return respBuf.Enqueue(gctx, resp)
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}

	correlateWorkers := rc.cfg.CorrelateWorkers
	if !rc.cfg.CorrelateConcurrent || correlateWorkers < 1 {
		correlateWorkers = 1
	}
	cg, cgctx := errgroup.WithContext(ctx)
	for i := 0; i < correlateWorkers; i++ {
		cg.Go(func() error {
			for {
				resp, ok, err := respBuf.Take(cgctx)
				if err != nil {
					if dperrors.IsKind(err, dperrors.KindClosed) {
						return nil
					}
					return err
				}
				if !ok {
					return nil
				}
				if err := correlator.Add(resp); err != nil {
					return err
				}
			}
		})
	}

	go func() {
		for _, sub := range subs {
			select {
			case work <- sub:
			case <-gctx.Done():
			}
		}
		close(work)
	}()

	dispatchErr := g.Wait()
	_ = respBuf.Shutdown(ctx)
	correlateErr := cg.Wait()

	if dispatchErr != nil {
		return nil, dispatchErr
	}
	if correlateErr != nil {
		return nil, correlateErr
	}
	return correlator.Close(), nil
}

// recoverSub dials one stream for sub, retrying the dial itself on a
// transient transport failure with a bounded exponential backoff — this
// is dispatch-level retry of a not-yet-accepted query, distinct from the
// module's explicit non-goal of retrying already-accepted ingestions.
func (rc *Recoverer) recoverSub(ctx context.Context, sub *dpapi.Request, sink func(*dpgrpc.QueryDataResponse) error) error {
	var stream dpgrpc.QueryStream
	dial := func() error {
		s, err := rc.client.QueryData(ctx, toWireRequest(sub))
		if err != nil {
			if dperrors.IsKind(err, dperrors.KindTransport) {
				return err
			}
			return backoff.Permanent(err)
		}
		stream = s
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(rc.cfg.MaxDispatchRetries))
	if err := backoff.Retry(dial, backoff.WithContext(b, ctx)); err != nil {
		return dperrors.Transport(err)
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return dperrors.Transport(err)
		}
		atomic.AddInt64(&rc.processedMessages, 1)
		size := responseByteSize(resp)
		atomic.AddInt64(&rc.processedBytes, int64(size))
		rc.metrics.QueryMessage(size)
		if err := sink(resp); err != nil {
			return err
		}
	}
}

// ProcessedMessageCount, ProcessedByteCount, and CompositeRequestCount
// are the counters spec.md §4.6 names.
func (rc *Recoverer) ProcessedMessageCount() int64 { return atomic.LoadInt64(&rc.processedMessages) }
func (rc *Recoverer) ProcessedByteCount() int64    { return atomic.LoadInt64(&rc.processedBytes) }
func (rc *Recoverer) CompositeRequestCount() int64 { return atomic.LoadInt64(&rc.compositeRequests) }

func responseByteSize(resp *dpgrpc.QueryDataResponse) int {
	size := 24
	for _, c := range resp.Columns {
		size += len(c.SourceName) + len(c.Bytes)
	}
	return size
}
