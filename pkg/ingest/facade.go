package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/osprey-dcs/dp-client-go/pkg/buffer"
	"github.com/osprey-dcs/dp-client-go/pkg/dpapi"
	"github.com/osprey-dcs/dp-client-go/pkg/dperrors"
	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
	"github.com/osprey-dcs/dp-client-go/internal/dplog"
	"github.com/osprey-dcs/dp-client-go/internal/metrics"
)

// FacadeState is the Ingestion Facade's lifecycle (spec.md §4.4).
type FacadeState int

const (
	FacadeNew FacadeState = iota
	FacadeRegistered
	FacadeActive
	FacadeShuttingDown
	FacadeTerminated
)

// Facade is the Ingestion Facade (component C6): the caller-facing entry
// point that owns a Frame Processor, the buffer feeding its Ingestion
// Channel, and the channel itself, and presents them as a single
// register/ingest/shutdown surface.
type Facade struct {
	mu    sync.Mutex
	state FacadeState

	providerName string
	providerID   string

	client    dpgrpc.IngestionServiceClient
	processor *Processor
	channel   *Channel
	wire      *buffer.Buffer[*dpgrpc.IngestRequest]

	transmissionCount int64

	log     *dplog.Logger
	metrics *metrics.Registry
}

// NewFacade constructs a Facade in the New state. client is the stub
// obtained from a dpgrpc.StubFactory; procCfg and chanCfg supply the
// processor and channel configuration (provider id is filled in by RegisterProvider).
func NewFacade(client dpgrpc.IngestionServiceClient, procCfg ProcessorConfig, chanCfg ChannelConfig, log *dplog.Logger, m *metrics.Registry) *Facade {
	if log == nil {
		log = dplog.Default()
	}
	if m == nil {
		m = metrics.NewRegistry(nil)
	}
	f := &Facade{client: client, log: log.With(dplog.F("component", "ingestion-facade")), metrics: m}
	f.wire = buffer.New[*dpgrpc.IngestRequest](0, false)
	_ = f.wire.Activate()

	proc, err := NewProcessor(procCfg, f.wire, log, m)
	if err != nil {
		panic(err)
	}
	f.processor = proc

	ch, err := NewChannel(chanCfg, client, f.wire, log, m)
	if err != nil {
		panic(err)
	}
	f.channel = ch
	return f
}

// RegisterProvider calls the Ingestion Service's registration RPC and
// records the returned provider id for use by every subsequent Ingest
// call. Valid only once, while New.
func (f *Facade) RegisterProvider(ctx context.Context, name string, attrs map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FacadeNew {
		return "", dperrors.Statef("ingest: register provider called in state %d", f.state)
	}

	resp, err := f.client.RegisterProvider(ctx, &dpgrpc.RegisterProviderRequest{Name: name, Attributes: attrs})
	if err != nil {
		return "", dperrors.Transport(err)
	}

	f.providerName = name
	f.providerID = resp.ProviderID
	f.processor.cfg.ProviderID = resp.ProviderID
	f.state = FacadeRegistered
	f.log.Info("provider registered", dplog.F("provider-name", name), dplog.F("provider-id", resp.ProviderID))
	return resp.ProviderID, nil
}

// GetProviderUID returns the provider id obtained from RegisterProvider.
func (f *Facade) GetProviderUID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providerID
}

// activateLocked starts the processor and channel on first Ingest call.
func (f *Facade) activateLocked(ctx context.Context) error {
	if f.state != FacadeRegistered {
		return nil
	}
	if err := f.processor.Activate(ctx); err != nil {
		return err
	}
	if err := f.channel.Activate(ctx); err != nil {
		return err
	}
	f.state = FacadeActive
	return nil
}

// Ingest submits one frame to the write path, activating the pipeline on
// first use.
func (f *Facade) Ingest(ctx context.Context, frame *dpapi.Frame) error {
	f.mu.Lock()
	if f.state == FacadeRegistered {
		if err := f.activateLocked(ctx); err != nil {
			f.mu.Unlock()
			return err
		}
	}
	state := f.state
	f.mu.Unlock()

	if state != FacadeActive {
		return dperrors.Statef("ingest: ingest called in state %d", state)
	}
	if err := f.processor.Submit(ctx, frame); err != nil {
		return err
	}
	atomic.AddInt64(&f.transmissionCount, 1)
	return nil
}

// IngestAll submits each frame in order, stopping at the first failure.
func (f *Facade) IngestAll(ctx context.Context, frames []*dpapi.Frame) error {
	for _, fr := range frames {
		if err := f.Ingest(ctx, fr); err != nil {
			return err
		}
	}
	return nil
}

// GetTransmissionCount reports how many frames have been accepted by
// Ingest so far.
func (f *Facade) GetTransmissionCount() int64 { return atomic.LoadInt64(&f.transmissionCount) }

// IsShutdown reports whether Shutdown/ShutdownNow has been called.
func (f *Facade) IsShutdown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == FacadeShuttingDown || f.state == FacadeTerminated
}

// IsTerminated reports whether the facade has fully drained and closed.
func (f *Facade) IsTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == FacadeTerminated
}

// Shutdown drains the processor, then the channel, in order, and waits
// for both to fully quiesce before returning the channel's outcome
// record.
func (f *Facade) Shutdown(ctx context.Context) (Outcome, error) {
	f.mu.Lock()
	if f.state != FacadeActive {
		state := f.state
		if state == FacadeNew || state == FacadeRegistered {
			f.state = FacadeTerminated
			f.mu.Unlock()
			return Outcome{}, nil
		}
		f.mu.Unlock()
		return Outcome{}, dperrors.Statef("ingest: shutdown called in state %d", state)
	}
	f.state = FacadeShuttingDown
	f.mu.Unlock()

	procErr := f.processor.Shutdown(ctx)
	chanErr := f.channel.Shutdown(ctx)

	f.mu.Lock()
	f.state = FacadeTerminated
	f.mu.Unlock()

	if procErr != nil {
		return f.channel.Outcome(), procErr
	}
	return f.channel.Outcome(), chanErr
}

// ShutdownNow cancels both the processor's and the channel's work
// immediately, discarding anything still queued.
func (f *Facade) ShutdownNow() Outcome {
	f.mu.Lock()
	f.state = FacadeShuttingDown
	f.mu.Unlock()

	f.processor.input.ShutdownNow()
	f.processor.mu.Lock()
	cancel := f.processor.cancel
	f.processor.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	f.wire.ShutdownNow()
	f.channel.ShutdownNow()

	f.mu.Lock()
	f.state = FacadeTerminated
	f.mu.Unlock()
	return f.channel.Outcome()
}

// AwaitTermination blocks until Shutdown has fully completed or ctx is
// cancelled.
func (f *Facade) AwaitTermination(ctx context.Context) error {
	const pollInterval = 10 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if f.IsTerminated() {
			return nil
		}
		select {
		case <-ctx.Done():
			return dperrors.Interrupted(ctx.Err())
		case <-ticker.C:
		}
	}
}
