package dpgrpc

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
)

// GenericIngestionClient adapts hand-written RPC invocations against a
// *grpc.ClientConn to the narrower IngestionServiceClient interface. A real
// deployment normally plugs in the method set generated by
// protoc-gen-go-grpc instead of this adapter; it is kept here so the
// module has one concrete, wireable path to an actual Data Platform
// without requiring generated stubs to exist in this repository.
type GenericIngestionClient struct {
	conn                  *grpc.ClientConn
	registerMethod        string
	ingestStreamMethod    string
	ingestUnaryMethod     string
}

// NewGenericIngestionClient builds a GenericIngestionClient bound to conn,
// invoking the named fully-qualified gRPC methods.
func NewGenericIngestionClient(conn *grpc.ClientConn, registerMethod, ingestStreamMethod, ingestUnaryMethod string) *GenericIngestionClient {
	return &GenericIngestionClient{
		conn:               conn,
		registerMethod:     registerMethod,
		ingestStreamMethod: ingestStreamMethod,
		ingestUnaryMethod:  ingestUnaryMethod,
	}
}

func (c *GenericIngestionClient) RegisterProvider(ctx context.Context, req *RegisterProviderRequest) (*RegisterProviderResponse, error) {
	resp := new(RegisterProviderResponse)
	if err := c.conn.Invoke(ctx, c.registerMethod, req, resp); err != nil {
		return nil, TranslateError(err)
	}
	return resp, nil
}

func (c *GenericIngestionClient) IngestDataUnary(ctx context.Context, req *IngestRequest) (*IngestResponse, error) {
	resp := new(IngestResponse)
	if err := c.conn.Invoke(ctx, c.ingestUnaryMethod, req, resp); err != nil {
		return nil, TranslateError(err)
	}
	return resp, nil
}

func (c *GenericIngestionClient) IngestData(ctx context.Context) (IngestionStream, error) {
	desc := &grpc.StreamDesc{StreamName: "IngestData", ClientStreams: true, ServerStreams: true}
	cs, err := c.conn.NewStream(ctx, desc, c.ingestStreamMethod)
	if err != nil {
		return nil, TranslateError(err)
	}
	return &genericIngestionStream{cs: cs}, nil
}

type genericIngestionStream struct {
	cs grpc.ClientStream
}

func (s *genericIngestionStream) Send(req *IngestRequest) error {
	if err := s.cs.SendMsg(req); err != nil {
		return TranslateError(err)
	}
	return nil
}

func (s *genericIngestionStream) Recv() (*IngestResponse, error) {
	resp := new(IngestResponse)
	if err := s.cs.RecvMsg(resp); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, TranslateError(err)
	}
	return resp, nil
}

func (s *genericIngestionStream) CloseSend() error {
	return s.cs.CloseSend()
}

// GenericQueryClient is the Query Service analogue of
// GenericIngestionClient.
type GenericQueryClient struct {
	conn         *grpc.ClientConn
	queryMethod  string
}

func NewGenericQueryClient(conn *grpc.ClientConn, queryMethod string) *GenericQueryClient {
	return &GenericQueryClient{conn: conn, queryMethod: queryMethod}
}

func (c *GenericQueryClient) QueryData(ctx context.Context, req *QueryRequest) (QueryStream, error) {
	desc := &grpc.StreamDesc{StreamName: "QueryData", ClientStreams: false, ServerStreams: true}
	cs, err := c.conn.NewStream(ctx, desc, c.queryMethod)
	if err != nil {
		return nil, TranslateError(err)
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, TranslateError(err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, TranslateError(err)
	}
	return &genericQueryStream{cs: cs}, nil
}

type genericQueryStream struct {
	cs grpc.ClientStream
}

func (s *genericQueryStream) Recv() (*QueryDataResponse, error) {
	resp := new(QueryDataResponse)
	if err := s.cs.RecvMsg(resp); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, TranslateError(err)
	}
	return resp, nil
}

// ConnStubFactory is the StubFactory implementation backed by a single
// shared *grpc.ClientConn, matching spec.md §5's "the gRPC connection is
// shared across streams of one pipeline; each stream has its own
// send/receive pair".
type ConnStubFactory struct {
	Conn                  *grpc.ClientConn
	RegisterMethod        string
	IngestStreamMethod    string
	IngestUnaryMethod     string
	QueryMethod           string
}

func (f *ConnStubFactory) NewIngestionClient(_ context.Context) (IngestionServiceClient, error) {
	if f.Conn == nil {
		return nil, fmt.Errorf("dpgrpc: connection factory has no connection configured")
	}
	return NewGenericIngestionClient(f.Conn, f.RegisterMethod, f.IngestStreamMethod, f.IngestUnaryMethod), nil
}

func (f *ConnStubFactory) NewQueryClient(_ context.Context) (QueryServiceClient, error) {
	if f.Conn == nil {
		return nil, fmt.Errorf("dpgrpc: connection factory has no connection configured")
	}
	return NewGenericQueryClient(f.Conn, f.QueryMethod), nil
}
