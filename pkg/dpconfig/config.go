// Package dpconfig is the configuration surface of spec.md §6, consumed as
// a plain struct tree (configuration-file loading is an external
// collaborator, out of scope per §1). It is decomposed into focused files
// the way the teacher decomposes its own storage configuration:
//
//   connection.go - host/TLS/gRPC channel parameters
//   ingest.go      - frame decomposition, processor, channel, buffer options
//   query.go       - recovery fan-out, correlation, and decomposition caps
//   defaults.go    - Default() with sensible defaults
//
// All types remain in this package for a single import at the call site.
package dpconfig

// Config is the full client configuration tree.
type Config struct {
	Connection ConnectionConfig
	Ingest     IngestConfig
	Query      QueryConfig
}

// Validate checks every leaf for internally-inconsistent values. It does
// not validate reachability of the configured host — that is the
// connection factory's concern.
func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	if err := c.Query.Validate(); err != nil {
		return err
	}
	return nil
}
