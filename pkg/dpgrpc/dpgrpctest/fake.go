// Package dpgrpctest provides an in-memory fake of pkg/dpgrpc's collaborator
// interfaces, standing in for a real Data Platform during this module's own
// tests — generating real .proto stubs is out of scope for this repository
// (spec.md §1).
package dpgrpctest

import (
	"context"
	"io"
	"sync"

	"github.com/osprey-dcs/dp-client-go/pkg/dpgrpc"
)

// IngestionRule lets a test script canned responses or failures for
// specific client-request-ids; unmatched requests are accepted.
type IngestionRule struct {
	Reject  bool
	Reason  dpgrpc.RejectionReason
	Message string
	Err     error
}

// FakeIngestionService is an in-memory Ingestion Service backend.
type FakeIngestionService struct {
	mu         sync.Mutex
	providers  map[string]string // name -> id
	nextID     int
	rules      map[uint64]IngestionRule
	received   []*dpgrpc.IngestRequest
}

func NewFakeIngestionService() *FakeIngestionService {
	return &FakeIngestionService{providers: make(map[string]string), rules: make(map[uint64]IngestionRule)}
}

// SetRule configures a canned outcome for a specific client-request-id.
func (f *FakeIngestionService) SetRule(id uint64, rule IngestionRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[id] = rule
}

func (f *FakeIngestionService) Received() []*dpgrpc.IngestRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*dpgrpc.IngestRequest, len(f.received))
	copy(out, f.received)
	return out
}

func (f *FakeIngestionService) respond(req *dpgrpc.IngestRequest) (*dpgrpc.IngestResponse, error) {
	f.mu.Lock()
	f.received = append(f.received, req)
	rule, has := f.rules[req.ClientRequestID]
	f.mu.Unlock()

	if has && rule.Err != nil {
		return nil, rule.Err
	}
	if has && rule.Reject {
		return &dpgrpc.IngestResponse{
			ProviderID:       req.ProviderID,
			ClientRequestID:  req.ClientRequestID,
			Accepted:         false,
			RejectionReason:  rule.Reason,
			RejectionMessage: rule.Message,
		}, nil
	}
	return &dpgrpc.IngestResponse{ProviderID: req.ProviderID, ClientRequestID: req.ClientRequestID, Accepted: true}, nil
}

// FakeQueryService is an in-memory Query Service backend driven directly
// off a canned set of responses per sub-request (keyed by source list
// signature would be over-precise for a fake; tests instead construct one
// FakeQueryService per expected call pattern).
type FakeQueryService struct {
	mu        sync.Mutex
	responses []*dpgrpc.QueryDataResponse
	err       error
}

func NewFakeQueryService(responses []*dpgrpc.QueryDataResponse) *FakeQueryService {
	return &FakeQueryService{responses: responses}
}

// SetError makes every subsequent QueryData call fail with err.
func (f *FakeQueryService) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Factory is a dpgrpc.StubFactory backed by FakeIngestionService and
// FakeQueryService.
type Factory struct {
	Ingestion *FakeIngestionService
	Query     *FakeQueryService
}

func NewFactory(ingestion *FakeIngestionService, query *FakeQueryService) *Factory {
	return &Factory{Ingestion: ingestion, Query: query}
}

func (f *Factory) NewIngestionClient(_ context.Context) (dpgrpc.IngestionServiceClient, error) {
	return &fakeIngestionClient{svc: f.Ingestion}, nil
}

func (f *Factory) NewQueryClient(_ context.Context) (dpgrpc.QueryServiceClient, error) {
	return &fakeQueryClient{svc: f.Query}, nil
}

type fakeIngestionClient struct {
	svc *FakeIngestionService
}

func (c *fakeIngestionClient) RegisterProvider(_ context.Context, req *dpgrpc.RegisterProviderRequest) (*dpgrpc.RegisterProviderResponse, error) {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if id, ok := c.svc.providers[req.Name]; ok {
		return &dpgrpc.RegisterProviderResponse{ProviderID: id}, nil
	}
	c.svc.nextID++
	id := providerID(c.svc.nextID)
	c.svc.providers[req.Name] = id
	return &dpgrpc.RegisterProviderResponse{ProviderID: id}, nil
}

func providerID(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	return "provider-" + string(alphabet[n%len(alphabet)]) + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (c *fakeIngestionClient) IngestDataUnary(_ context.Context, req *dpgrpc.IngestRequest) (*dpgrpc.IngestResponse, error) {
	return c.svc.respond(req)
}

func (c *fakeIngestionClient) IngestData(_ context.Context) (dpgrpc.IngestionStream, error) {
	return &fakeIngestionStream{svc: c.svc, pending: make(chan *dpgrpc.IngestResponse, 64)}, nil
}

type fakeIngestionStream struct {
	svc     *FakeIngestionService
	pending chan *dpgrpc.IngestResponse
	closed  bool
	mu      sync.Mutex
}

func (s *fakeIngestionStream) Send(req *dpgrpc.IngestRequest) error {
	resp, err := s.svc.respond(req)
	if err != nil {
		return err
	}
	s.pending <- resp
	return nil
}

func (s *fakeIngestionStream) Recv() (*dpgrpc.IngestResponse, error) {
	resp, ok := <-s.pending
	if !ok {
		return nil, io.EOF
	}
	return resp, nil
}

func (s *fakeIngestionStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.pending)
	}
	return nil
}

type fakeQueryClient struct {
	svc *FakeQueryService
}

func (c *fakeQueryClient) QueryData(_ context.Context, _ *dpgrpc.QueryRequest) (dpgrpc.QueryStream, error) {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if c.svc.err != nil {
		return nil, c.svc.err
	}
	out := make([]*dpgrpc.QueryDataResponse, len(c.svc.responses))
	copy(out, c.svc.responses)
	return &fakeQueryStream{responses: out}, nil
}

type fakeQueryStream struct {
	responses []*dpgrpc.QueryDataResponse
	idx       int
}

func (s *fakeQueryStream) Recv() (*dpgrpc.QueryDataResponse, error) {
	if s.idx >= len(s.responses) {
		return nil, io.EOF
	}
	resp := s.responses[s.idx]
	s.idx++
	return resp, nil
}
