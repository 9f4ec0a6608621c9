package dpconfig

import "time"

// Default returns a Config with sensible defaults for every leaf,
// matching the teacher's DefaultConfig() convention.
func Default() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Host: HostConfig{URL: "localhost", Port: 50051},
			TLS:  TLSConfig{Active: false},
			GRPC: GRPCConfig{
				UsePlainText:          true,
				MessageSizeMax:        64 * 1024 * 1024,
				KeepAliveWithoutCalls: true,
				Gzip:                  false,
				TimeoutLimit:          30,
				TimeoutUnit:           time.Second,
			},
		},
		Ingest: IngestConfig{
			FrameDecompose: FrameDecomposeConfig{Enabled: true, MaxBytes: 4 * 1024 * 1024},
			Processor:      ProcessorConfig{Concurrency: true, WorkerCount: 4},
			Channel:        ChannelConfig{StreamType: StreamTypeBidirectionalStreaming, StreamCount: 1},
			Buffer:         BufferConfig{Capacity: 0, Backpressure: true},
		},
		Query: QueryConfig{
			Recovery: RecoveryConfig{
				Multistream: MultistreamConfig{Enabled: true, MaxStreams: 4, DomainSizeMin: 8 * 1024 * 1024},
				Correlate:   CorrelateConfig{Concurrency: false, WhileStreaming: false, WorkerCount: 1},
			},
			Request: RequestDecomposeConfig{MaxSources: 200, MaxDuration: 30 * time.Second},
		},
	}
}
