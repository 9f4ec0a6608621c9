// Package dpgrpc defines the collaborator surface this module depends on
// but does not implement: the generated gRPC message/stub types and the
// connection factory that yields them. spec.md §1 treats both as external
// ("generated wire-format message types... treated as opaque encodable
// records", "connection/channel establishment... treated as a factory
// yielding ready-to-use blocking and streaming service stubs").
//
// The types below are the minimal Go shape those collaborators must
// present. A real deployment satisfies them with code generated by
// protoc-gen-go-grpc; ConnStubFactory here only adapts a *grpc.ClientConn
// to this module's narrower interfaces. pkg/dpgrpc/dpgrpctest supplies an
// in-memory fake of the same interfaces for this repository's own tests.
package dpgrpc

import (
	"context"
	"time"
)

// WireTimebase is the wire form of a Timebase (spec.md §6): either a
// UniformClock projected to nanosecond fields, or an explicit list of
// (seconds, nanos) pairs.
type WireTimebase struct {
	IsUniform bool

	// Uniform form.
	StartNanos int64
	PeriodNanos int64
	Count       int64

	// Explicit form.
	Timestamps []WireTimestamp
}

// WireTimestamp is a (seconds, nanos) pair, the wire projection of a single
// instant.
type WireTimestamp struct {
	Seconds int64
	Nanos   int32
}

// WireColumn is one named, typed, byte-encoded column within a frame
// descriptor or a query response.
type WireColumn struct {
	Name  string
	Type  int32
	Bytes []byte
}

// FrameDescriptor is the wire shape of one ingestion frame slice.
type FrameDescriptor struct {
	Timebase WireTimebase
	Sources  []string
	Columns  []WireColumn
}

// IngestRequest is the wire request message of spec.md §6.
type IngestRequest struct {
	ProviderID      string
	ClientRequestID uint64
	Frame           FrameDescriptor
	Attributes      map[string]string
}

// RejectionReason enumerates why IngestData/IngestDataUnary rejected a
// request it otherwise accepted for framing.
type RejectionReason int32

const (
	RejectionUnspecified RejectionReason = iota
	RejectionInvalidData
	RejectionProviderUnknown
	RejectionQuotaExceeded
)

// IngestResponse is the wire response message of spec.md §6: either an
// accept receipt or a rejection.
type IngestResponse struct {
	ProviderID      string
	ClientRequestID uint64

	Accepted bool
	// Rejection fields, meaningful when Accepted is false.
	RejectionReason  RejectionReason
	RejectionMessage string
}

// QueryRequest is the wire request message for the Query Service.
type QueryRequest struct {
	Sources []string
	Begin   time.Time
	End     time.Time
	Options map[string]string
}

// QueryDataResponse is one streamed response chunk from QueryData: a
// timebase plus the (source, typed column) pairs sharing it, or an error.
type QueryDataResponse struct {
	Timebase WireTimebase
	Columns  []QueryColumn
	Err      *QueryError
}

// QueryColumn pairs a source name with its wire-encoded column.
type QueryColumn struct {
	SourceName string
	Type       int32
	Bytes      []byte
}

// QueryError is an in-band error payload a QueryDataResponse may carry
// instead of data.
type QueryError struct {
	Message string
}

// RegisterProviderRequest/Response model the single-call provider
// registration RPC, also an external collaborator per spec.md §1 but
// needed here as a call shape the Ingestion Facade (pkg/ingest) invokes.
type RegisterProviderRequest struct {
	Name       string
	Attributes map[string]string
}

type RegisterProviderResponse struct {
	ProviderID string
}

// IngestionStream is the bidirectional stream shape IngestData presents.
type IngestionStream interface {
	Send(*IngestRequest) error
	Recv() (*IngestResponse, error)
	CloseSend() error
}

// QueryStream is the server-streaming shape QueryData presents.
type QueryStream interface {
	Recv() (*QueryDataResponse, error)
}

// IngestionServiceClient is the collaborator stub for the Ingestion
// Service (spec.md §6): RegisterProvider, IngestData (bidi), and
// IngestDataUnary (forward-unary).
type IngestionServiceClient interface {
	RegisterProvider(ctx context.Context, req *RegisterProviderRequest) (*RegisterProviderResponse, error)
	IngestData(ctx context.Context) (IngestionStream, error)
	IngestDataUnary(ctx context.Context, req *IngestRequest) (*IngestResponse, error)
}

// QueryServiceClient is the collaborator stub for the Query Service.
type QueryServiceClient interface {
	QueryData(ctx context.Context, req *QueryRequest) (QueryStream, error)
}

// StubFactory stands in for "connection/channel establishment and TLS
// setup", yielding ready-to-use stubs. pkg/dpconfig's Connection section
// configures whatever concrete factory a deployment wires in; this module
// depends only on this interface.
type StubFactory interface {
	NewIngestionClient(ctx context.Context) (IngestionServiceClient, error)
	NewQueryClient(ctx context.Context) (QueryServiceClient, error)
}
